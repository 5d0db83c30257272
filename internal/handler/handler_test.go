package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/mcofie/gatepass-settlement/pkg/middleware"
	"github.com/mcofie/gatepass-settlement/pkg/response"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockSettlementService implements service.SettlementService for testing
type mockSettlementService struct {
	mu        sync.Mutex
	calls     []*service.VerifyRequest
	result    *domain.SettlementResult
	err       error
	tickets   []*domain.Ticket
	lookupErr error
}

func (m *mockSettlementService) Settle(ctx context.Context, req *service.SettleRequest) (*domain.SettlementResult, error) {
	return m.VerifyAndSettle(ctx, &service.VerifyRequest{
		Reference:      req.Reference,
		ReservationIDs: req.ReservationIDs,
		Source:         req.Source,
	})
}

func (m *mockSettlementService) VerifyAndSettle(ctx context.Context, req *service.VerifyRequest) (*domain.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return m.result, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &domain.SettlementResult{
		Reference: req.Reference,
		Success:   true,
		State:     domain.StateSettled,
		Tickets:   []*domain.Ticket{{ID: "tkt-1", ReservationID: "res-1", OrderReference: req.Reference}},
	}, nil
}

func (m *mockSettlementService) GetTicketsByReference(ctx context.Context, reference string) ([]*domain.Ticket, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return m.tickets, nil
}

func (m *mockSettlementService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockSettlementService) lastCall() *service.VerifyRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// asUser simulates JWTAuth having run
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID)
		c.Next()
	}
}

func doJSON(router *gin.Engine, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
