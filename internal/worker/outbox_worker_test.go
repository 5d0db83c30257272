package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/repository"
	"github.com/mcofie/gatepass-settlement/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	produced []*kafka.Message
}

func (p *fakePublisher) Produce(ctx context.Context, msg *kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.produced = append(p.produced, msg)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.produced)
}

func enqueue(t *testing.T, store *repository.MemoryStore, reservationID string) *domain.OutboxMessage {
	t.Helper()
	msg, err := domain.NewOutboxMessage("reservation", reservationID, domain.EventTypeTicketsIssued, "settlement.tickets-issued",
		map[string]string{"reservation_id": reservationID})
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), msg))
	return msg
}

func TestDefaultOutboxWorkerConfig(t *testing.T) {
	config := DefaultOutboxWorkerConfig()

	assert.Equal(t, 500*time.Millisecond, config.PollInterval)
	assert.Equal(t, 100, config.BatchSize)
	assert.Equal(t, 5*time.Second, config.RetryInterval)
	assert.Equal(t, time.Hour, config.CleanupInterval)
	assert.Equal(t, 7, config.CleanupRetentionDays)
}

func TestOutboxWorker_PublishesPending(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	pub := &fakePublisher{}
	msg := enqueue(t, store, "res-1")

	w := NewOutboxWorker(store, pub, nil)
	w.processPendingMessages(ctx)

	require.Equal(t, 1, pub.count())
	produced := pub.produced[0]
	assert.Equal(t, "settlement.tickets-issued", produced.Topic)
	assert.Equal(t, []byte("res-1"), produced.Key)
	assert.Equal(t, msg.Payload, produced.Value)
	assert.Equal(t, msg.ID, produced.Headers["message_id"])
	assert.Equal(t, domain.EventTypeTicketsIssued, produced.Headers["event_type"])

	pending, err := store.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// published messages are not sent again
	w.processPendingMessages(ctx)
	assert.Equal(t, 1, pub.count())
}

func TestOutboxWorker_RetriesFailed(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	pub := &fakePublisher{failures: 1}
	enqueue(t, store, "res-1")

	w := NewOutboxWorker(store, pub, nil)
	w.processPendingMessages(ctx)
	assert.Equal(t, 0, pub.count())

	failed, err := store.GetFailedMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].RetryCount)
	assert.Equal(t, "broker unavailable", failed[0].LastError)

	w.processFailedMessages(ctx)
	assert.Equal(t, 1, pub.count())

	failed, err = store.GetFailedMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestOutboxWorker_StopsRetryingAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	pub := &fakePublisher{failures: 100}
	enqueue(t, store, "res-1")

	w := NewOutboxWorker(store, pub, nil)
	w.processPendingMessages(ctx)
	for i := 0; i < domain.DefaultOutboxMaxRetries+2; i++ {
		w.processFailedMessages(ctx)
	}

	assert.Equal(t, 0, pub.count())
	assert.Equal(t, 100-domain.DefaultOutboxMaxRetries, pub.failures)

	messages := store.OutboxMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, domain.DefaultOutboxMaxRetries, messages[0].RetryCount)
	assert.False(t, messages[0].CanRetry())
}

func TestOutboxWorker_StartStop(t *testing.T) {
	store := repository.NewMemoryStore()
	pub := &fakePublisher{}
	enqueue(t, store, "res-1")
	enqueue(t, store, "res-2")

	w := NewOutboxWorker(store, pub, &OutboxWorkerConfig{
		PollInterval:         10 * time.Millisecond,
		BatchSize:            10,
		RetryInterval:        10 * time.Millisecond,
		CleanupInterval:      time.Hour,
		CleanupRetentionDays: 7,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	assert.Error(t, w.Start(ctx), "second start must fail")

	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop()
}
