package domain

import (
	"github.com/shopspring/decimal"
)

// RevenueSummary aggregates an event's ledger in one currency from the
// snapshotted transaction rows
type RevenueSummary struct {
	EventID       string          `json:"event_id"`
	Currency      string          `json:"currency"`
	Transactions  int             `json:"transactions"`
	TicketsSold   int             `json:"tickets_sold"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	PlatformFees  decimal.Decimal `json:"platform_fees"`
	ProcessorFees decimal.Decimal `json:"processor_fees"`
	OrganizerNet  decimal.Decimal `json:"organizer_net"`
	// Committed is the sum of pending, processing and paid payouts
	Committed decimal.Decimal `json:"committed_payouts"`
	Available decimal.Decimal `json:"available_balance"`
}

// ApplyPayouts sets Committed and derives Available
func (s *RevenueSummary) ApplyPayouts(committed decimal.Decimal) {
	s.Committed = committed
	s.Available = s.OrganizerNet.Sub(committed)
	if s.Available.IsNegative() {
		s.Available = decimal.Zero
	}
}
