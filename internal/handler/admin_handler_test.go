package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotificationService struct {
	err error
}

func (s *stubNotificationService) ResendTickets(ctx context.Context, reservationID string) (*domain.OutboxMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.OutboxMessage{ID: "msg-" + reservationID}, nil
}

func setupAdminRouter(svc *stubNotificationService) *gin.Engine {
	h := NewAdminHandler(svc)
	r := gin.New()
	r.POST("/admin/reservations/:id/resend", h.ResendTickets)
	return r
}

func TestAdminHandler_ResendTickets(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		w := doJSON(setupAdminRouter(&stubNotificationService{}), http.MethodPost, "/admin/reservations/res-1/resend", nil, nil)

		require.Equal(t, http.StatusOK, w.Code)
		data, ok := decodeResponse(t, w).Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "res-1", data["reservation_id"])
		assert.Equal(t, "msg-res-1", data["message_id"])
	})

	t.Run("no tickets", func(t *testing.T) {
		w := doJSON(setupAdminRouter(&stubNotificationService{err: domain.ErrTicketsNotFound}), http.MethodPost, "/admin/reservations/res-2/resend", nil, nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("outbox unavailable", func(t *testing.T) {
		err := domain.NewPersistenceError("enqueue notification", errors.New("connection refused"))
		w := doJSON(setupAdminRouter(&stubNotificationService{err: err}), http.MethodPost, "/admin/reservations/res-3/resend", nil, nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
