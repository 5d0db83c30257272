package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPaystack(t *testing.T, handler http.HandlerFunc) *PaystackVerifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	v, err := NewPaystackVerifier(&PaystackConfig{
		BaseURL:   srv.URL,
		SecretKey: "sk_test_123",
		Timeout:   200 * time.Millisecond,
	})
	require.NoError(t, err)
	return v
}

func TestPaystackVerifier_Success(t *testing.T) {
	v := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/ref_123", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{
			"reference":"ref_123","status":"success","amount":10607,"currency":"ghs",
			"paid_at":"2026-03-01T10:00:00Z",
			"metadata":{"reservation_ids":["r1","r2"]}}}`))
	})

	result, err := v.Verify(context.Background(), "ref_123")
	require.NoError(t, err)
	assert.True(t, result.IsSuccess())
	assert.Equal(t, int64(10607), result.Amount)
	assert.Equal(t, "GHS", result.Currency)
	assert.Equal(t, []any{"r1", "r2"}, result.Metadata["reservation_ids"])
	require.NotNil(t, result.PaidAt)
}

func TestPaystackVerifier_MetadataAsString(t *testing.T) {
	v := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"status":"success","amount":100,"currency":"NGN",
			"metadata":"{\"reservation_id\":\"r9\"}"}}`))
	})

	result, err := v.Verify(context.Background(), "ref_str")
	require.NoError(t, err)
	assert.Equal(t, "r9", result.Metadata["reservation_id"])
	assert.Equal(t, "ref_str", result.Reference)
}

func TestPaystackVerifier_NonSuccessIsNotAnError(t *testing.T) {
	v := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"status":"abandoned","amount":100,"currency":"GHS"}}`))
	})

	result, err := v.Verify(context.Background(), "ref_abandoned")
	require.NoError(t, err)
	assert.False(t, result.IsSuccess())
	assert.Equal(t, StatusAbandoned, result.Status)
}

func TestPaystackVerifier_UnknownReferenceIsTerminal(t *testing.T) {
	v := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
	})

	result, err := v.Verify(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
}

func TestPaystackVerifier_RetryableFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}},
		{"invalid secret key", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
		}},
		{"forbidden", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}},
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}},
		{"missing data", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":false,"message":"oops"}`))
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestPaystack(t, tt.handler)

			_, err := v.Verify(context.Background(), "ref")
			var ve *domain.VerificationError
			require.ErrorAs(t, err, &ve)
			assert.True(t, domain.IsRetryable(err))
		})
	}
}

func TestNewPaystackVerifier_RequiresSecret(t *testing.T) {
	_, err := NewPaystackVerifier(&PaystackConfig{})
	assert.Error(t, err)
	_, err = NewPaystackVerifier(nil)
	assert.Error(t, err)
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier(&Config{Kind: "mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", v.Name())

	v, err = NewVerifier(&Config{Kind: "paystack", SecretKey: "sk", Timeout: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &ResilientVerifier{}, v)
	assert.Equal(t, "paystack", v.Name())

	_, err = NewVerifier(&Config{Kind: "paypal"})
	assert.Error(t, err)
}

func TestStripeStatus(t *testing.T) {
	assert.Equal(t, StatusSuccess, stripeStatus("succeeded"))
	assert.Equal(t, StatusPending, stripeStatus("processing"))
	assert.Equal(t, StatusFailed, stripeStatus("canceled"))
	assert.Equal(t, StatusAbandoned, stripeStatus("requires_payment_method"))
}
