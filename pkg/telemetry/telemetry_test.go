package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Disabled(t *testing.T) {
	tel, err := Init(context.Background(), &Config{Enabled: false, ServiceName: "settlement-service"})
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer())

	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()
	assert.NotNil(t, ctx)
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInit_NilConfig(t *testing.T) {
	tel, err := Init(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, tel)
}

func TestMetrics_NoopProvider(t *testing.T) {
	require.NoError(t, InitMetrics(context.Background(), &Config{Enabled: false}))

	c, err := NewCounter(MetricOpts{Name: "test_total", Description: "test", Unit: "1"})
	require.NoError(t, err)
	c.Inc(context.Background())

	h, err := NewHistogramWithBuckets(MetricOpts{Name: "test_seconds", Unit: "s"}, []float64{0.1, 1})
	require.NoError(t, err)
	h.Record(context.Background(), 0.5)

	u, err := NewUpDownCounter(MetricOpts{Name: "test_inflight"})
	require.NoError(t, err)
	u.Add(context.Background(), 1)
	u.Add(context.Background(), -1)

	var nilCounter *Counter
	nilCounter.Inc(context.Background())
}

func TestTracingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, _ = Init(context.Background(), &Config{Enabled: false, ServiceName: "settlement-service"})

	router := gin.New()
	router.Use(TracingMiddleware("settlement-service"))
	router.GET("/boom", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
