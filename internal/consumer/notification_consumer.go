package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/metrics"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/mcofie/gatepass-settlement/pkg/kafka"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"github.com/mcofie/gatepass-settlement/pkg/retry"
	"go.uber.org/zap"
)

// RecordSource is the consumer group side of Kafka. kafka.Consumer satisfies it.
type RecordSource interface {
	Poll(ctx context.Context) ([]*kafka.Record, error)
	CommitRecords(ctx context.Context, records []*kafka.Record) error
}

// NotificationConsumerConfig contains configuration for the notification consumer
type NotificationConsumerConfig struct {
	// Retry controls dispatch retries before a message is dead-lettered
	Retry *retry.Config
	// PollBackoff is the pause after a failed poll
	PollBackoff time.Duration
}

// DefaultNotificationConsumerConfig returns default configuration
func DefaultNotificationConsumerConfig() *NotificationConsumerConfig {
	return &NotificationConsumerConfig{
		Retry: &retry.Config{
			MaxRetries:      4,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
		PollBackoff: time.Second,
	}
}

// NotificationConsumer reads tickets-issued messages and hands them to the
// dispatcher. Dispatch failures are retried, then dead-lettered. Settlement
// state is never touched from here.
type NotificationConsumer struct {
	source     RecordSource
	dispatcher Dispatcher
	dlq        *retry.DLQHandler
	dedupe     Deduper
	reporter   service.ErrorReporter
	config     *NotificationConsumerConfig
	log        *logger.Logger
}

// NewNotificationConsumer creates a new notification consumer. dedupe may be nil.
func NewNotificationConsumer(
	source RecordSource,
	dispatcher Dispatcher,
	dlqPublisher retry.DLQPublisher,
	dedupe Deduper,
	reporter service.ErrorReporter,
	config *NotificationConsumerConfig,
) *NotificationConsumer {
	if config == nil {
		config = DefaultNotificationConsumerConfig()
	}
	log := logger.Get().With(zap.String("component", "notification-consumer"))

	onDLQ := func(msg *retry.DLQMessage) {
		metrics.RecordNotificationDLQ(context.Background(), msg.OriginalTopic)
		log.Warn("notification moved to dead letter queue",
			zap.String("message_id", msg.ID),
			zap.String("topic", msg.OriginalTopic),
			zap.Int("attempts", msg.Attempts),
			zap.String("error", msg.Error),
		)
	}

	return &NotificationConsumer{
		source:     source,
		dispatcher: dispatcher,
		dlq:        retry.NewDLQHandler(dlqPublisher, config.Retry, "notification-worker", onDLQ),
		dedupe:     dedupe,
		reporter:   reporter,
		config:     config,
		log:        log,
	}
}

// Run polls until ctx is done
func (c *NotificationConsumer) Run(ctx context.Context) error {
	c.log.Info("starting notification consumer")

	for {
		if ctx.Err() != nil {
			c.log.Info("notification consumer stopped")
			return nil
		}

		records, err := c.source.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.log.Error("failed to poll records", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(c.config.PollBackoff):
			}
			continue
		}

		if err := c.HandleBatch(ctx, records); err != nil && ctx.Err() == nil {
			c.log.Error("batch handling stopped", zap.Error(err))
		}
	}
}

// HandleBatch processes records in order and commits the ones that are done.
// It stops at the first record that could neither be dispatched nor
// dead-lettered, leaving it and the rest for redelivery.
func (c *NotificationConsumer) HandleBatch(ctx context.Context, records []*kafka.Record) error {
	done := make([]*kafka.Record, 0, len(records))
	var stopErr error
	for _, rec := range records {
		if err := c.handleRecord(ctx, rec); err != nil {
			stopErr = err
			break
		}
		done = append(done, rec)
	}

	if len(done) > 0 {
		if err := c.source.CommitRecords(ctx, done); err != nil {
			return fmt.Errorf("failed to commit records: %w", err)
		}
	}
	return stopErr
}

func (c *NotificationConsumer) handleRecord(ctx context.Context, rec *kafka.Record) error {
	var evt domain.TicketsIssuedEvent
	decodeErr := json.Unmarshal(rec.Value, &evt)

	messageID := evt.MessageID
	if messageID == "" {
		messageID = rec.Header("message_id")
	}

	claimed := false
	if decodeErr == nil && messageID != "" && c.dedupe != nil {
		ok, err := c.dedupe.Claim(ctx, messageID)
		switch {
		case err != nil:
			// dispatch anyway, the artifact service dedupes on Idempotency-Key
			c.log.Warn("dedupe claim failed", zap.String("message_id", messageID), zap.Error(err))
		case !ok:
			c.log.Debug("duplicate notification skipped", zap.String("message_id", messageID))
			return nil
		default:
			claimed = true
		}
	}

	err := c.dlq.ProcessWithDLQ(ctx, &retry.MessageContext{
		ID:             messageID,
		Topic:          rec.Topic,
		Key:            string(rec.Key),
		Payload:        json.RawMessage(rec.Value),
		Headers:        rec.Headers,
		FirstAttemptAt: rec.Timestamp,
	}, func(ctx context.Context) error {
		if decodeErr != nil {
			return retry.Permanent(fmt.Errorf("undecodable tickets-issued message: %w", decodeErr))
		}
		return c.dispatcher.Dispatch(ctx, &evt)
	})
	if err == nil {
		metrics.RecordNotificationDispatched(ctx, evt.Resend)
		c.log.Info("tickets handed off",
			zap.String("message_id", messageID),
			zap.String("reference", evt.Reference),
			zap.Int("tickets", len(evt.Tickets)),
			zap.Bool("resend", evt.Resend),
		)
		return nil
	}

	if claimed {
		if relErr := c.dedupe.Release(context.WithoutCancel(ctx), messageID); relErr != nil {
			c.log.Warn("dedupe release failed", zap.String("message_id", messageID), zap.Error(relErr))
		}
	}
	if errors.Is(err, retry.ErrDLQPublish) || errors.Is(err, retry.ErrContextCanceled) {
		return err
	}

	// dead-lettered, the offset can move on
	if c.reporter != nil {
		c.reporter.Report(ctx, "notification.dispatch", err,
			zap.String("message_id", messageID),
			zap.String("reference", evt.Reference),
		)
	}
	return nil
}
