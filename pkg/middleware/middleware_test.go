package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestRequestID_GeneratesNew(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	headerID := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, headerID)
	assert.Equal(t, headerID, w.Body.String())
}

func TestRequestID_UsesExisting(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "existing-request-id-123")
	r.ServeHTTP(w, req)

	assert.Equal(t, "existing-request-id-123", w.Body.String())
	assert.Equal(t, "existing-request-id-123", w.Header().Get(RequestIDHeader))
}

func TestJWTAuth(t *testing.T) {
	r := gin.New()
	r.Use(JWTAuth(testSecret))
	r.GET("/me", func(c *gin.Context) {
		id, _ := GetUserID(c)
		c.String(http.StatusOK, id+"|"+GetUserRole(c))
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-jwt", status: http.StatusUnauthorized},
		{
			name: "valid token",
			header: "Bearer " + signToken(t, jwt.MapClaims{
				"user_id": "u-1", "email": "a@b.c", "role": "organizer",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			status: http.StatusOK,
			body:   "u-1|organizer",
		},
		{
			name: "subject fallback",
			header: "Bearer " + signToken(t, jwt.MapClaims{
				"sub": "u-2", "exp": time.Now().Add(time.Hour).Unix(),
			}),
			status: http.StatusOK,
			body:   "u-2|",
		},
		{
			name: "expired token",
			header: "Bearer " + signToken(t, jwt.MapClaims{
				"user_id": "u-1", "exp": time.Now().Add(-time.Hour).Unix(),
			}),
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"user_id": "u-1"})
	_, err := ParseToken(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoggerAndMetrics(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Logger(logger.NewNop()), Metrics())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	for _, path := range []string{"/ok", "/bad", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	}
}

// fakeRedis is an in-memory RedisClient
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx, "get", key)
	if v, ok := f.data[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	cmd := redis.NewStatusCmd(ctx, "set", key)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx, "setnx", key)
	if _, ok := f.data[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	f.data[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd := redis.NewIntCmd(ctx, "del")
	cmd.SetVal(n)
	return cmd
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	var calls int32
	rdb := newFakeRedis()

	r := gin.New()
	r.Use(Idempotency(DefaultIdempotencyConfig(rdb)))
	r.POST("/payouts", func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusCreated, gin.H{"call": n})
	})

	send := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/payouts", strings.NewReader(body))
		req.Header.Set(IdempotencyKeyHeader, "key-1")
		r.ServeHTTP(w, req)
		return w
	}

	first := send(`{"amount":"10"}`)
	second := send(`{"amount":"10"}`)

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	reused := send(`{"amount":"99"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, reused.Code)
}

func TestIdempotency_ServerErrorNotStored(t *testing.T) {
	var calls int32
	rdb := newFakeRedis()

	r := gin.New()
	r.Use(Idempotency(DefaultIdempotencyConfig(rdb)))
	r.POST("/resend", func(c *gin.Context) {
		atomic.AddInt32(&calls, 1)
		c.Status(http.StatusServiceUnavailable)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/resend", nil)
		req.Header.Set(IdempotencyKeyHeader, "key-2")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_RequireKey(t *testing.T) {
	cfg := DefaultIdempotencyConfig(newFakeRedis())
	cfg.RequireKey = true

	r := gin.New()
	r.Use(Idempotency(cfg))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdempotency_InProgress(t *testing.T) {
	rdb := newFakeRedis()
	rdb.data[IdempotencyKeyPrefix+"key-3"] = `{"key":"key-3","status":"processing","request_hash":"` +
		hashForTest(http.MethodPost, "/x", "") + `"}`

	r := gin.New()
	r.Use(Idempotency(DefaultIdempotencyConfig(rdb)))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(IdempotencyKeyHeader, "key-3")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func hashForTest(method, path, body string) string {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(method, path, nil)
	return hashRequest(c, []byte(body))
}
