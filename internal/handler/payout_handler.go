package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/dto"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/mcofie/gatepass-settlement/pkg/response"
)

// PayoutHandler handles revenue and payout endpoints
type PayoutHandler struct {
	payouts service.PayoutService
	revenue service.RevenueService
}

// NewPayoutHandler creates a new PayoutHandler
func NewPayoutHandler(payouts service.PayoutService, revenue service.RevenueService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts, revenue: revenue}
}

// GetRevenue handles GET /events/:id/revenue
func (h *PayoutHandler) GetRevenue(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	eventID := c.Param("id")

	summaries, err := h.revenue.GetRevenue(c.Request.Context(), uid, eventID)
	if err != nil {
		writeError(c, err)
		return
	}
	if summaries == nil {
		summaries = []*domain.RevenueSummary{}
	}
	response.Success(c, dto.RevenueResponse{EventID: eventID, Summaries: summaries})
}

// RequestPayout handles POST /events/:id/payouts
func (h *PayoutHandler) RequestPayout(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req dto.CreatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "amount must be a number")
		return
	}

	payout, err := h.payouts.RequestPayout(c.Request.Context(), uid, &service.PayoutRequest{
		EventID:  c.Param("id"),
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, payout)
}

// ListPayouts handles GET /events/:id/payouts
func (h *PayoutHandler) ListPayouts(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	payouts, err := h.payouts.ListPayouts(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if payouts == nil {
		payouts = []*domain.Payout{}
	}
	response.Success(c, payouts)
}

// Approve handles POST /admin/payouts/:id/approve
func (h *PayoutHandler) Approve(c *gin.Context) {
	h.transition(c, func(adminID, payoutID string) (*domain.Payout, error) {
		return h.payouts.Approve(c.Request.Context(), adminID, payoutID)
	})
}

// MarkPaid handles POST /admin/payouts/:id/paid
func (h *PayoutHandler) MarkPaid(c *gin.Context) {
	h.transition(c, func(adminID, payoutID string) (*domain.Payout, error) {
		return h.payouts.MarkPaid(c.Request.Context(), adminID, payoutID)
	})
}

// Fail handles POST /admin/payouts/:id/fail
func (h *PayoutHandler) Fail(c *gin.Context) {
	var req dto.FailPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "reason is required")
		return
	}
	h.transition(c, func(adminID, payoutID string) (*domain.Payout, error) {
		return h.payouts.Fail(c.Request.Context(), adminID, payoutID, req.Reason)
	})
}

func (h *PayoutHandler) transition(c *gin.Context, apply func(adminID, payoutID string) (*domain.Payout, error)) {
	adminID, ok := userID(c)
	if !ok {
		return
	}
	payout, err := apply(adminID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, payout)
}
