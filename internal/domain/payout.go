package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutStatus represents the status of a payout (matches DB CHECK)
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// IsActive reports whether the payout blocks a new request for its event
func (s PayoutStatus) IsActive() bool {
	return s == PayoutStatusPending || s == PayoutStatusProcessing
}

// Payout is an organizer's withdrawal request against an event's net revenue
type Payout struct {
	ID            string          `json:"id"`
	EventID       string          `json:"event_id"`
	OrganizerID   string          `json:"organizer_id"`
	RequestedBy   string          `json:"requested_by"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        PayoutStatus    `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
}

// NewPayout creates a pending payout request
func NewPayout(eventID, organizerID, requestedBy string, amount decimal.Decimal, currency string) (*Payout, error) {
	if eventID == "" {
		return nil, errors.New("event_id is required")
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidPayoutAmount
	}
	if currency == "" {
		return nil, errors.New("currency is required")
	}

	now := time.Now().UTC()
	return &Payout{
		ID:          uuid.New().String(),
		EventID:     eventID,
		OrganizerID: organizerID,
		RequestedBy: requestedBy,
		Amount:      amount,
		Currency:    strings.ToUpper(currency),
		Status:      PayoutStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanTransition reports whether from -> to is a legal payout transition
func CanTransition(from, to PayoutStatus) bool {
	switch from {
	case PayoutStatusPending:
		return to == PayoutStatusProcessing || to == PayoutStatusFailed
	case PayoutStatusProcessing:
		return to == PayoutStatusPaid || to == PayoutStatusFailed
	}
	return false
}

// Approve moves a pending payout to processing
func (p *Payout) Approve() error {
	return p.transition(PayoutStatusProcessing)
}

// MarkPaid completes a processing payout
func (p *Payout) MarkPaid() error {
	if err := p.transition(PayoutStatusPaid); err != nil {
		return err
	}
	now := p.UpdatedAt
	p.ProcessedAt = &now
	return nil
}

// Fail rejects a pending payout or fails a processing one
func (p *Payout) Fail(reason string) error {
	if err := p.transition(PayoutStatusFailed); err != nil {
		return err
	}
	p.FailureReason = reason
	now := p.UpdatedAt
	p.ProcessedAt = &now
	return nil
}

func (p *Payout) transition(to PayoutStatus) error {
	if !CanTransition(p.Status, to) {
		return ErrInvalidPayoutTransition
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	return nil
}
