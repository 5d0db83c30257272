package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// StripeVerifier verifies PaymentIntent ids with Stripe
type StripeVerifier struct {
	config *StripeConfig
}

// StripeConfig holds configuration for the Stripe verifier
type StripeConfig struct {
	SecretKey string
}

// NewStripeVerifier creates a new Stripe verifier
func NewStripeVerifier(config *StripeConfig) (*StripeVerifier, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	// Set Stripe API key globally
	stripe.Key = config.SecretKey

	return &StripeVerifier{config: config}, nil
}

// Verify retrieves the PaymentIntent named by reference
func (v *StripeVerifier) Verify(ctx context.Context, reference string) (*TransactionResult, error) {
	if reference == "" {
		return nil, fmt.Errorf("reference is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(reference, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= http.StatusBadRequest &&
			stripeErr.HTTPStatusCode < http.StatusInternalServerError &&
			stripeErr.HTTPStatusCode != http.StatusTooManyRequests {
			return &TransactionResult{Reference: reference, Status: StatusFailed}, nil
		}
		return nil, &domain.VerificationError{Reference: reference, Err: err}
	}

	return stripeResult(reference, pi), nil
}

// Name returns the gateway name
func (v *StripeVerifier) Name() string {
	return "stripe"
}

func stripeResult(reference string, pi *stripe.PaymentIntent) *TransactionResult {
	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}

	metadata := make(map[string]any, len(pi.Metadata))
	for k, val := range pi.Metadata {
		metadata[k] = val
	}

	result := &TransactionResult{
		Reference: reference,
		Status:    stripeStatus(pi.Status),
		Amount:    amount,
		Currency:  strings.ToUpper(string(pi.Currency)),
		Metadata:  metadata,
	}
	if result.Status == StatusSuccess && pi.Created > 0 {
		paidAt := time.Unix(pi.Created, 0).UTC()
		result.PaidAt = &paidAt
	}
	return result
}

func stripeStatus(status stripe.PaymentIntentStatus) string {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSuccess
	case stripe.PaymentIntentStatusProcessing:
		return StatusPending
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture:
		return StatusAbandoned
	default:
		return strings.ToLower(string(status))
	}
}
