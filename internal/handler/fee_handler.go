package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/mcofie/gatepass-settlement/internal/dto"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/mcofie/gatepass-settlement/pkg/response"
)

// FeeHandler serves fee quotes and the global fee settings
type FeeHandler struct {
	fees service.FeeService
}

// NewFeeHandler creates a new FeeHandler
func NewFeeHandler(fees service.FeeService) *FeeHandler {
	return &FeeHandler{fees: fees}
}

// Quote handles POST /fees/quote
func (h *FeeHandler) Quote(c *gin.Context) {
	var req dto.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "tier_id and a positive quantity are required")
		return
	}

	breakdown, err := h.fees.Quote(c.Request.Context(), &service.QuoteRequest{
		TierID:       req.TierID,
		Quantity:     req.Quantity,
		DiscountCode: req.DiscountCode,
		Addons:       dto.ToDomainAddons(req.Addons),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, breakdown)
}

// GetSettings handles GET /admin/fee-settings
func (h *FeeHandler) GetSettings(c *gin.Context) {
	settings, err := h.fees.GetSettings(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, settings)
}

// UpdateSettings handles PUT /admin/fee-settings
func (h *FeeHandler) UpdateSettings(c *gin.Context) {
	adminID, ok := userID(c)
	if !ok {
		return
	}

	var req dto.UpdateFeeSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "platform_fee_percent and processor_fee_percent must be numbers")
		return
	}

	settings, err := h.fees.UpdateSettings(c.Request.Context(), adminID, req.PlatformFeePercent, req.ProcessorFeePercent)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, settings)
}
