package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHealthHandler_Health(t *testing.T) {
	handler := NewHealthHandler(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health", nil)

	handler.Health(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestHealthHandler_Ready(t *testing.T) {
	ok := HealthCheckFunc(func(ctx context.Context) error { return nil })
	down := HealthCheckFunc(func(ctx context.Context) error { return errors.New("connection refused") })

	t.Run("all healthy", func(t *testing.T) {
		handler := NewHealthHandler(map[string]HealthChecker{"database": ok, "redis": nil})

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/ready", nil)
		handler.Ready(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "not configured")
	})

	t.Run("one component down", func(t *testing.T) {
		handler := NewHealthHandler(map[string]HealthChecker{"database": ok, "kafka": down})

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/ready", nil)
		handler.Ready(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "connection refused")
	})
}
