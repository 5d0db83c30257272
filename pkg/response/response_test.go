package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Success(c, gin.H{"reference": "ref-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
}

func TestInternalError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	InternalError(c, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.Equal(t, "boom", resp.Error.Details)
}

func TestErrorWithData(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ErrorWithData(c, http.StatusConflict, "SETTLEMENT_FAILED", "nothing settled", []string{"r1"})

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, []interface{}{"r1"}, resp.Data)
	assert.Equal(t, "SETTLEMENT_FAILED", resp.Error.Code)
}

func TestErrorBody(t *testing.T) {
	body := ErrorBody("FORBIDDEN", "no")
	assert.False(t, body.Success)
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
}
