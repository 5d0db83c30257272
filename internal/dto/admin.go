package dto

import (
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/shopspring/decimal"
)

// QuoteRequest asks for the fee breakdown of a purchase
type QuoteRequest struct {
	TierID       string           `json:"tier_id" binding:"required"`
	Quantity     int              `json:"quantity" binding:"required,gt=0"`
	DiscountCode string           `json:"discount_code,omitempty"`
	Addons       []AddonSelection `json:"addons,omitempty" binding:"omitempty,dive"`
}

// CreatePayoutRequest is an organizer's withdrawal request
type CreatePayoutRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

// FailPayoutRequest carries the reason a payout was rejected or failed
type FailPayoutRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// UpdateFeeSettingsRequest replaces the global fee percentages
type UpdateFeeSettingsRequest struct {
	PlatformFeePercent  decimal.Decimal `json:"platform_fee_percent"`
	ProcessorFeePercent decimal.Decimal `json:"processor_fee_percent"`
}

// RevenueResponse lists an event's revenue per currency
type RevenueResponse struct {
	EventID   string                   `json:"event_id"`
	Summaries []*domain.RevenueSummary `json:"summaries"`
}

// ResendResponse acknowledges an enqueued resend
type ResendResponse struct {
	ReservationID string `json:"reservation_id"`
	MessageID     string `json:"message_id"`
}
