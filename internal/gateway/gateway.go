// Package gateway confirms payment references with the payment provider.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Gateway transaction statuses. Anything other than StatusSuccess must not be settled.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
	StatusPending   = "pending"
	StatusReversed  = "reversed"
)

// Verifier confirms a payment reference with the gateway
type Verifier interface {
	// Verify returns the gateway's view of the transaction. A non-success
	// status is reported through the result, not as an error. Errors are
	// *domain.VerificationError when the gateway could not answer.
	Verify(ctx context.Context, reference string) (*TransactionResult, error)

	// Name returns the gateway name
	Name() string
}

// TransactionResult is the verified state of a gateway transaction
type TransactionResult struct {
	Reference string         `json:"reference"`
	Status    string         `json:"status"`
	Amount    int64          `json:"amount"` // minor units
	Currency  string         `json:"currency"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	PaidAt    *time.Time     `json:"paid_at,omitempty"`
}

// IsSuccess returns true if the gateway reports the charge as successful
func (r *TransactionResult) IsSuccess() bool {
	return r != nil && r.Status == StatusSuccess
}

// Config holds verifier settings
type Config struct {
	Kind       string
	BaseURL    string
	SecretKey  string
	Timeout    time.Duration
	MaxRetries int
}

// NewVerifier creates the verifier for cfg.Kind, wrapped with retry and a circuit breaker
func NewVerifier(cfg *Config) (Verifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gateway config is required")
	}

	var base Verifier
	switch strings.ToLower(cfg.Kind) {
	case "paystack":
		v, err := NewPaystackVerifier(&PaystackConfig{
			BaseURL:   cfg.BaseURL,
			SecretKey: cfg.SecretKey,
			Timeout:   cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		base = v
	case "stripe":
		v, err := NewStripeVerifier(&StripeConfig{SecretKey: cfg.SecretKey})
		if err != nil {
			return nil, err
		}
		base = v
	case "mock":
		return NewMockVerifier(), nil
	default:
		return nil, fmt.Errorf("unknown gateway kind %q", cfg.Kind)
	}

	return NewResilientVerifier(base, &ResilientConfig{
		MaxRetries: cfg.MaxRetries,
		Breaker:    DefaultBreakerConfig(base.Name()),
	}), nil
}

// newHTTPClient returns a traced client with a bounded timeout
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
