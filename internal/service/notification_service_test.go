package service

import (
	"context"
	"errors"
	"testing"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type spyReporter struct {
	ops []string
}

func (s *spyReporter) Report(ctx context.Context, op string, err error, fields ...zap.Field) {
	s.ops = append(s.ops, op)
}

func TestNotificationService_ResendTickets(t *testing.T) {
	f := newSettlementFixture(t, 10)
	res := f.reserve(2)
	ctx := context.Background()
	svc := NewNotificationService(f.store, f.store, f.store, nil, "test.tickets-issued")

	_, err := svc.ResendTickets(ctx, res.ID)
	assert.ErrorIs(t, err, domain.ErrTicketsNotFound)

	_, err = f.svc.Settle(ctx, settleReq("ref_resend", res.ID))
	require.NoError(t, err)
	writes := f.store.Writes()

	msg, err := svc.ResendTickets(ctx, res.ID)
	require.NoError(t, err)

	var evt domain.TicketsIssuedEvent
	require.NoError(t, msg.GetPayload(&evt))
	assert.True(t, evt.Resend)
	assert.Equal(t, "ref_resend", evt.Reference)
	assert.Len(t, evt.Tickets, 2)

	assert.Len(t, f.store.OutboxMessages(), 2)
	assert.Equal(t, writes, f.store.Writes(), "resend must not touch settlement state")

	_, err = svc.ResendTickets(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

// failingOutbox rejects every write
type failingOutbox struct{}

func (failingOutbox) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	return errors.New("disk full")
}
func (failingOutbox) GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	return nil, nil
}
func (failingOutbox) GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	return nil, nil
}
func (failingOutbox) MarkAsPublished(ctx context.Context, id string) error {
	return nil
}
func (failingOutbox) MarkAsFailed(ctx context.Context, id string, err string) error {
	return nil
}
func (failingOutbox) DeletePublished(ctx context.Context, olderThanDays int) (int64, error) {
	return 0, nil
}

func TestNotificationService_ReportsEnqueueFailure(t *testing.T) {
	f := newSettlementFixture(t, 10)
	res := f.reserve(1)
	ctx := context.Background()
	_, err := f.svc.Settle(ctx, settleReq("ref_r", res.ID))
	require.NoError(t, err)

	reporter := &spyReporter{}
	svc := NewNotificationService(f.store, f.store, failingOutbox{}, reporter, "")

	_, err = svc.ResendTickets(ctx, res.ID)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, []string{"enqueue ticket resend"}, reporter.ops)
}
