package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/pkg/retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Dispatcher hands a tickets-issued event to whatever renders and sends the
// ticket artifacts
type Dispatcher interface {
	Dispatch(ctx context.Context, evt *domain.TicketsIssuedEvent) error
}

// HTTPDispatcherConfig configures the artifact service client
type HTTPDispatcherConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
	// Client overrides the default traced client (tests)
	Client *http.Client
}

// HTTPDispatcher POSTs events to the artifact service
type HTTPDispatcher struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPDispatcher creates a new HTTP dispatcher
func NewHTTPDispatcher(cfg *HTTPDispatcherConfig) (*HTTPDispatcher, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("dispatch url is required")
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &HTTPDispatcher{url: cfg.URL, token: cfg.Token, client: client}, nil
}

// Dispatch sends the event. 4xx answers other than 408 and 429 are permanent.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, evt *domain.TicketsIssuedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to marshal event: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to build dispatch request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", evt.MessageID)
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("artifact service returned %d", resp.StatusCode)
	default:
		return retry.Permanent(fmt.Errorf("artifact service rejected event: %d", resp.StatusCode))
	}
}
