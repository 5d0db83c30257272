package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/dto"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/mcofie/gatepass-settlement/pkg/response"
)

// PaymentHandler handles the client-facing payment endpoints
type PaymentHandler struct {
	settlements service.SettlementService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(settlements service.SettlementService) *PaymentHandler {
	return &PaymentHandler{settlements: settlements}
}

// VerifyPayment handles POST /payments/verify
// Verifies the reference with the gateway and returns the issued tickets
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var req dto.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "reference is required")
		return
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" {
		response.BadRequest(c, "reference is required")
		return
	}

	result, err := h.settlements.VerifyAndSettle(c.Request.Context(), &service.VerifyRequest{
		Reference:      req.Reference,
		ReservationIDs: req.IDs(),
		Addons:         dto.ToDomainAddons(req.Addons),
		Source:         domain.SourceClientVerify,
	})
	if err != nil {
		if result != nil && result.Success && domain.IsRetryable(err) {
			// Part of the order went through; the rest settles on the next poll
			body := dto.FromSettlementResult(result)
			body.Error = "Some tickets are still being issued. Please retry shortly."
			response.ErrorWithData(c, http.StatusServiceUnavailable, domain.ErrorCode(err), body.Error, body)
			return
		}
		writeError(c, err)
		return
	}

	body := dto.FromSettlementResult(result)
	if !result.Success {
		code := "SETTLEMENT_FAILED"
		message := "None of the reservations could be settled."
		if result.State == domain.StateInventoryExceeded {
			code = "INVENTORY_EXCEEDED"
			message = "Tickets sold out before your payment completed. You will be refunded."
		}
		body.Error = message
		response.ErrorWithData(c, http.StatusConflict, code, message, body)
		return
	}

	response.Success(c, body)
}

// GetTickets handles GET /payments/:reference/tickets
func (h *PaymentHandler) GetTickets(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("reference"))
	if reference == "" {
		response.BadRequest(c, "reference is required")
		return
	}

	tickets, err := h.settlements.GetTicketsByReference(c.Request.Context(), reference)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"reference": reference, "tickets": dto.FromTickets(tickets)})
}
