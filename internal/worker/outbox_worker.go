package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/metrics"
	"github.com/mcofie/gatepass-settlement/internal/repository"
	"github.com/mcofie/gatepass-settlement/pkg/kafka"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"go.uber.org/zap"
)

// Publisher produces a single record. kafka.Producer satisfies it.
type Publisher interface {
	Produce(ctx context.Context, msg *kafka.Message) error
}

// OutboxWorkerConfig contains configuration for the outbox worker
type OutboxWorkerConfig struct {
	// PollInterval is the interval between polling for pending messages
	PollInterval time.Duration
	// BatchSize is the number of messages to fetch in each poll
	BatchSize int
	// RetryInterval is the interval between retrying failed messages
	RetryInterval time.Duration
	// CleanupInterval is the interval between cleanup of old published messages
	CleanupInterval time.Duration
	// CleanupRetentionDays is the number of days to retain published messages
	CleanupRetentionDays int
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() *OutboxWorkerConfig {
	return &OutboxWorkerConfig{
		PollInterval:         500 * time.Millisecond,
		BatchSize:            100,
		RetryInterval:        5 * time.Second,
		CleanupInterval:      1 * time.Hour,
		CleanupRetentionDays: 7,
	}
}

// OutboxWorker relays tickets-issued messages from the outbox table to Kafka.
// Delivery is at least once; consumers dedupe on message_id.
type OutboxWorker struct {
	outbox    repository.OutboxRepository
	publisher Publisher
	config    *OutboxWorkerConfig
	log       *logger.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(outbox repository.OutboxRepository, publisher Publisher, config *OutboxWorkerConfig) *OutboxWorker {
	if config == nil {
		config = DefaultOutboxWorkerConfig()
	}

	return &OutboxWorker{
		outbox:    outbox,
		publisher: publisher,
		config:    config,
		log:       logger.Get().With(zap.String("component", "outbox-worker")),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the poll, retry and cleanup loops
func (w *OutboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting outbox worker",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	w.wg.Add(3)
	go w.loop(ctx, w.config.PollInterval, w.processPendingMessages)
	go w.loop(ctx, w.config.RetryInterval, w.processFailedMessages)
	go w.loop(ctx, w.config.CleanupInterval, w.cleanup)

	return nil
}

// Stop stops the worker and waits for in-flight batches
func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("stopping outbox worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("outbox worker stopped")
}

func (w *OutboxWorker) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	defer w.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// processPendingMessages publishes one batch of pending messages
func (w *OutboxWorker) processPendingMessages(ctx context.Context) {
	messages, err := w.outbox.GetPendingMessages(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error("failed to get pending messages", zap.Error(err))
		return
	}
	w.publishBatch(ctx, messages, false)
}

// processFailedMessages retries one batch of failed messages under their retry budget
func (w *OutboxWorker) processFailedMessages(ctx context.Context) {
	messages, err := w.outbox.GetFailedMessages(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error("failed to get failed messages", zap.Error(err))
		return
	}
	w.publishBatch(ctx, messages, true)
}

func (w *OutboxWorker) publishBatch(ctx context.Context, messages []*domain.OutboxMessage, retry bool) {
	for _, msg := range messages {
		if err := w.publishMessage(ctx, msg); err != nil {
			metrics.RecordOutboxFailed(ctx, msg.EventType)
			w.log.Error("failed to publish outbox message",
				zap.String("message_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Int("attempt", msg.RetryCount+1),
				zap.Int("max_retries", msg.MaxRetries),
				zap.Error(err),
			)
			if markErr := w.outbox.MarkAsFailed(ctx, msg.ID, err.Error()); markErr != nil {
				w.log.Error("failed to mark message as failed", zap.String("message_id", msg.ID), zap.Error(markErr))
			}
			continue
		}

		metrics.RecordOutboxPublished(ctx, msg.EventType)
		if retry {
			w.log.Info("retried outbox message", zap.String("message_id", msg.ID), zap.Int("attempts", msg.RetryCount+1))
		}
		if markErr := w.outbox.MarkAsPublished(ctx, msg.ID); markErr != nil {
			w.log.Error("failed to mark message as published", zap.String("message_id", msg.ID), zap.Error(markErr))
		}
	}
}

func (w *OutboxWorker) cleanup(ctx context.Context) {
	deleted, err := w.outbox.DeletePublished(ctx, w.config.CleanupRetentionDays)
	if err != nil {
		w.log.Error("failed to clean up published messages", zap.Error(err))
		return
	}
	if deleted > 0 {
		w.log.Info("cleaned up published messages", zap.Int64("deleted", deleted))
	}
}

// publishMessage produces the stored payload as is, keyed by partition key
func (w *OutboxWorker) publishMessage(ctx context.Context, msg *domain.OutboxMessage) error {
	return w.publisher.Produce(ctx, &kafka.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.PartitionKey),
		Value: msg.Payload,
		Headers: map[string]string{
			"message_id":     msg.ID,
			"event_type":     msg.EventType,
			"aggregate_type": msg.AggregateType,
			"aggregate_id":   msg.AggregateID,
			"content_type":   "application/json",
			"source":         "outbox-worker",
		},
		Timestamp: time.Now(),
	})
}
