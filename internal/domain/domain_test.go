package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketTier_CanSell(t *testing.T) {
	tier := &TicketTier{TotalQuantity: 10, QuantitySold: 8}

	assert.True(t, tier.CanSell(2))
	assert.False(t, tier.CanSell(3))
	assert.False(t, tier.CanSell(0))
	assert.Equal(t, 2, tier.Available())

	tier.QuantitySold = 12
	assert.Equal(t, 0, tier.Available())
}

func TestReservation_IsSettleable(t *testing.T) {
	tests := []struct {
		status ReservationStatus
		want   bool
	}{
		{ReservationStatusPending, true},
		{ReservationStatusExpired, true},
		{ReservationStatusConfirmed, false},
		{ReservationStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			r := &Reservation{Status: tt.status}
			assert.Equal(t, tt.want, r.IsSettleable())
		})
	}
}

func TestNewQRToken_UniqueAndLongEnough(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		token, err := NewQRToken()
		require.NoError(t, err)
		// 32 bytes base64url without padding
		assert.Len(t, token, 43)
		_, dup := seen[token]
		require.False(t, dup, "duplicate token generated")
		seen[token] = struct{}{}
	}
}

func TestNewTickets(t *testing.T) {
	res := &Reservation{ID: "res-1", TierID: "tier-1", EventID: "evt-1", Quantity: 3}

	tickets, err := NewTickets(res, "ref-1")
	require.NoError(t, err)
	require.Len(t, tickets, 3)

	for _, tk := range tickets {
		assert.Equal(t, "res-1", tk.ReservationID)
		assert.Equal(t, "tier-1", tk.TierID)
		assert.Equal(t, "ref-1", tk.OrderReference)
		assert.Equal(t, TicketStatusValid, tk.Status)
		assert.NotEmpty(t, tk.ID)
	}
	assert.NotEqual(t, tickets[0].QRToken, tickets[1].QRToken)
}

func TestPayout_Transitions(t *testing.T) {
	tests := []struct {
		from PayoutStatus
		to   PayoutStatus
		want bool
	}{
		{PayoutStatusPending, PayoutStatusProcessing, true},
		{PayoutStatusPending, PayoutStatusFailed, true},
		{PayoutStatusPending, PayoutStatusPaid, false},
		{PayoutStatusProcessing, PayoutStatusPaid, true},
		{PayoutStatusProcessing, PayoutStatusFailed, true},
		{PayoutStatusProcessing, PayoutStatusPending, false},
		{PayoutStatusPaid, PayoutStatusFailed, false},
		{PayoutStatusFailed, PayoutStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPayout_Lifecycle(t *testing.T) {
	p, err := NewPayout("evt-1", "org-1", "org-1", decimal.RequireFromString("50.00"), "ghs")
	require.NoError(t, err)
	assert.Equal(t, PayoutStatusPending, p.Status)
	assert.Equal(t, "GHS", p.Currency)

	assert.ErrorIs(t, p.MarkPaid(), ErrInvalidPayoutTransition)
	require.NoError(t, p.Approve())
	require.NoError(t, p.MarkPaid())
	assert.NotNil(t, p.ProcessedAt)
	assert.ErrorIs(t, p.Fail("late"), ErrInvalidPayoutTransition)

	rejected, err := NewPayout("evt-1", "org-1", "org-1", decimal.NewFromInt(5), "GHS")
	require.NoError(t, err)
	require.NoError(t, rejected.Fail("bank details missing"))
	assert.Equal(t, "bank details missing", rejected.FailureReason)

	_, err = NewPayout("evt-1", "org-1", "org-1", decimal.Zero, "GHS")
	assert.ErrorIs(t, err, ErrInvalidPayoutAmount)
}

func TestFeeSettings_Validate(t *testing.T) {
	ok := &FeeSettings{PlatformFeePercent: decimal.NewFromInt(4), ProcessorFeePercent: decimal.RequireFromString("1.95")}
	assert.NoError(t, ok.Validate())

	bad := &FeeSettings{PlatformFeePercent: decimal.NewFromInt(-1), ProcessorFeePercent: decimal.Zero}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidFeeSettings)

	bad = &FeeSettings{PlatformFeePercent: decimal.Zero, ProcessorFeePercent: decimal.NewFromInt(100)}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidFeeSettings)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&VerificationError{Reference: "r", Err: errors.New("timeout")}))
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", NewPersistenceError("insert", errors.New("conn reset")))))
	assert.False(t, IsRetryable(&VerificationFailed{Reference: "r", Status: "abandoned"}))
	assert.False(t, IsRetryable(ErrNoReservationsFound))
	assert.False(t, IsRetryable(ErrSignatureMismatch))
	assert.False(t, IsRetryable(nil))
}

func TestNewPersistenceError_DoesNotDoubleWrap(t *testing.T) {
	inner := NewPersistenceError("a", errors.New("x"))
	assert.Same(t, inner, NewPersistenceError("b", inner))
	assert.Nil(t, NewPersistenceError("c", nil))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "INVENTORY_EXCEEDED", ErrorCode(fmt.Errorf("tier: %w", ErrInventoryExceeded)))
	assert.Equal(t, "VERIFICATION_UNAVAILABLE", ErrorCode(&VerificationError{Err: errors.New("x")}))
	assert.Equal(t, "PAYMENT_NOT_SUCCESSFUL", ErrorCode(&VerificationFailed{Status: "failed"}))
	assert.Equal(t, "INTERNAL_ERROR", ErrorCode(errors.New("boom")))
	assert.Equal(t, "", ErrorCode(nil))
}

func TestOutboxMessage(t *testing.T) {
	res := &Reservation{ID: "res-1"}
	msg, err := NewTicketsIssuedMessage("settlement.tickets-issued", &TicketsIssuedEvent{
		Reference:   "ref-1",
		Reservation: res,
	})
	require.NoError(t, err)

	assert.Equal(t, "reservation", msg.AggregateType)
	assert.Equal(t, "res-1", msg.PartitionKey)
	assert.Equal(t, EventTypeTicketsIssued, msg.EventType)
	assert.Equal(t, OutboxStatusPending, msg.Status)
	assert.Equal(t, DefaultOutboxMaxRetries, msg.MaxRetries)

	var decoded TicketsIssuedEvent
	require.NoError(t, msg.GetPayload(&decoded))
	assert.Equal(t, "ref-1", decoded.Reference)
	assert.NotEmpty(t, decoded.MessageID)

	assert.False(t, msg.CanRetry())
	msg.Status = OutboxStatusFailed
	assert.True(t, msg.CanRetry())
	msg.RetryCount = msg.MaxRetries
	assert.False(t, msg.CanRetry())
}

func TestSettlementState_IsTerminal(t *testing.T) {
	assert.True(t, StateSettled.IsTerminal())
	assert.True(t, StateAlreadySettled.IsTerminal())
	assert.True(t, StateInventoryExceeded.IsTerminal())
	assert.False(t, StateLocked.IsTerminal())
	assert.False(t, StateVerified.IsTerminal())
}
