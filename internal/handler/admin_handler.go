package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/mcofie/gatepass-settlement/internal/dto"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/mcofie/gatepass-settlement/pkg/response"
)

// AdminHandler handles operator actions on settled reservations
type AdminHandler struct {
	notifications service.NotificationService
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(notifications service.NotificationService) *AdminHandler {
	return &AdminHandler{notifications: notifications}
}

// ResendTickets handles POST /admin/reservations/:id/resend
func (h *AdminHandler) ResendTickets(c *gin.Context) {
	reservationID := c.Param("id")
	msg, err := h.notifications.ResendTickets(c.Request.Context(), reservationID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, dto.ResendResponse{ReservationID: reservationID, MessageID: msg.ID})
}
