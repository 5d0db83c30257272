package domain

import (
	"time"
)

// SettlementState is a step of the settlement attempt state machine:
// RECEIVED -> VERIFIED -> LOCKED -> {ALREADY_SETTLED | INVENTORY_EXCEEDED | SETTLING -> SETTLED}
type SettlementState string

const (
	StateReceived          SettlementState = "RECEIVED"
	StateVerified          SettlementState = "VERIFIED"
	StateLocked            SettlementState = "LOCKED"
	StateAlreadySettled    SettlementState = "ALREADY_SETTLED"
	StateInventoryExceeded SettlementState = "INVENTORY_EXCEEDED"
	StateSettling          SettlementState = "SETTLING"
	StateSettled           SettlementState = "SETTLED"
	StateFailed            SettlementState = "FAILED"
)

// IsTerminal reports whether no further transition happens from s
func (s SettlementState) IsTerminal() bool {
	switch s {
	case StateAlreadySettled, StateInventoryExceeded, StateSettled, StateFailed:
		return true
	}
	return false
}

// SettlementSource identifies the entry point that triggered a settlement
type SettlementSource string

const (
	SourceClientVerify  SettlementSource = "client_verify"
	SourceWebhook       SettlementSource = "webhook"
	SourceLegacyWebhook SettlementSource = "legacy_webhook"
)

// ReservationFailure explains why one reservation of a batch did not settle
type ReservationFailure struct {
	ReservationID string          `json:"reservation_id"`
	State         SettlementState `json:"state"`
	Code          string          `json:"code"`
	Message       string          `json:"message"`
}

// SettlementResult is the outcome of one settle call
type SettlementResult struct {
	Reference string                `json:"reference"`
	Success   bool                  `json:"success"`
	State     SettlementState       `json:"state"`
	Tickets   []*Ticket             `json:"tickets"`
	Settled   []string              `json:"settled_reservation_ids,omitempty"`
	Failures  []*ReservationFailure `json:"failures,omitempty"`
}

// SettlementAttempt is the audit row written for every attempt
type SettlementAttempt struct {
	ID            string                `json:"id"`
	Reference     string                `json:"reference"`
	Source        SettlementSource      `json:"source"`
	Outcome       SettlementState       `json:"outcome"`
	TicketsIssued int                   `json:"tickets_issued"`
	Failures      []*ReservationFailure `json:"failures,omitempty"`
	Error         string                `json:"error,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}
