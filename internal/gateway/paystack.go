package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
)

// PaystackVerifier verifies references against the Paystack transaction API
type PaystackVerifier struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// PaystackConfig holds configuration for the Paystack verifier
type PaystackConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
	// Client overrides the default traced client (tests)
	Client *http.Client
}

// NewPaystackVerifier creates a new Paystack verifier
func NewPaystackVerifier(config *PaystackConfig) (*PaystackVerifier, error) {
	if config == nil {
		return nil, fmt.Errorf("paystack config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("paystack secret key is required")
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}

	client := config.Client
	if client == nil {
		client = newHTTPClient(config.Timeout)
	}

	return &PaystackVerifier{
		baseURL:   baseURL,
		secretKey: config.SecretKey,
		client:    client,
	}, nil
}

type paystackEnvelope struct {
	Status  bool             `json:"status"`
	Message string           `json:"message"`
	Data    *paystackPayment `json:"data"`
}

type paystackPayment struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    *time.Time      `json:"paid_at"`
	Metadata  json.RawMessage `json:"metadata"`
}

// Verify calls GET /transaction/verify/{reference}
func (v *PaystackVerifier) Verify(ctx context.Context, reference string) (*TransactionResult, error) {
	if reference == "" {
		return nil, fmt.Errorf("reference is required")
	}

	endpoint := fmt.Sprintf("%s/transaction/verify/%s", v.baseURL, url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, &domain.VerificationError{Reference: reference, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.VerificationError{Reference: reference, Err: err}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return nil, &domain.VerificationError{
			Reference: reference,
			Err:       fmt.Errorf("gateway returned %d", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusNotFound:
		// the gateway has no charge under this reference
		return &TransactionResult{Reference: reference, Status: StatusFailed}, nil
	case resp.StatusCode >= http.StatusBadRequest:
		// rejected credentials or request, says nothing about the charge
		return nil, &domain.VerificationError{
			Reference: reference,
			Err:       fmt.Errorf("gateway rejected verify request with %d", resp.StatusCode),
		}
	}

	var envelope paystackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &domain.VerificationError{Reference: reference, Err: fmt.Errorf("undecodable response: %w", err)}
	}
	if !envelope.Status || envelope.Data == nil {
		return nil, &domain.VerificationError{
			Reference: reference,
			Err:       errors.New("gateway response missing data: " + envelope.Message),
		}
	}

	data := envelope.Data
	result := &TransactionResult{
		Reference: reference,
		Status:    strings.ToLower(data.Status),
		Amount:    data.Amount,
		Currency:  strings.ToUpper(data.Currency),
		Metadata:  decodeMetadata(data.Metadata),
		PaidAt:    data.PaidAt,
	}
	if data.Reference != "" {
		result.Reference = data.Reference
	}
	return result, nil
}

// Name returns the gateway name
func (v *PaystackVerifier) Name() string {
	return "paystack"
}

// decodeMetadata accepts an object, a JSON-encoded object string, or nothing
func decodeMetadata(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			return m
		}
	}
	return nil
}
