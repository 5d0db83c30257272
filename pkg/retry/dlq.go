package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DLQSuffix is appended to the source topic to name its dead letter topic
const DLQSuffix = ".dlq"

// ErrDLQPublish means a message could not be dead-lettered and must not be committed
var ErrDLQPublish = errors.New("failed to publish to DLQ")

// DLQMessage represents a message in the dead letter queue
type DLQMessage struct {
	ID             string                 `json:"id"`
	OriginalTopic  string                 `json:"original_topic"`
	OriginalKey    string                 `json:"original_key"`
	Payload        json.RawMessage        `json:"payload"`
	Headers        map[string]string      `json:"headers,omitempty"`
	Error          string                 `json:"error"`
	ErrorCode      string                 `json:"error_code,omitempty"`
	Attempts       int                    `json:"attempts"`
	FirstAttemptAt time.Time              `json:"first_attempt_at"`
	LastAttemptAt  time.Time              `json:"last_attempt_at"`
	MovedToDLQAt   time.Time              `json:"moved_to_dlq_at"`
	Source         string                 `json:"source"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// DLQPublisher publishes failed messages to a dead letter queue
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg *DLQMessage) error
}

// JSONProducer is satisfied by kafka.Producer
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic string, key string, data interface{}, headers map[string]string) error
}

// KafkaDLQPublisher publishes failed messages to "<topic>.dlq"
type KafkaDLQPublisher struct {
	producer JSONProducer
	source   string
}

// NewKafkaDLQPublisher creates a new Kafka DLQ publisher
func NewKafkaDLQPublisher(producer JSONProducer, source string) *KafkaDLQPublisher {
	return &KafkaDLQPublisher{producer: producer, source: source}
}

// PublishToDLQ publishes a message to the dead letter queue
func (p *KafkaDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	if msg == nil {
		return fmt.Errorf("DLQ message cannot be nil")
	}

	msg.MovedToDLQAt = time.Now().UTC()
	msg.Source = p.source

	headers := map[string]string{
		"content_type":   "application/json",
		"original_topic": msg.OriginalTopic,
		"error":          msg.Error,
		"attempts":       fmt.Sprintf("%d", msg.Attempts),
		"source":         msg.Source,
	}
	if msg.ErrorCode != "" {
		headers["error_code"] = msg.ErrorCode
	}
	for k, v := range msg.Headers {
		headers["original_"+k] = v
	}

	return p.producer.ProduceJSON(ctx, DLQTopic(msg.OriginalTopic), msg.OriginalKey, msg, headers)
}

// DLQTopic returns the dead letter topic for a source topic
func DLQTopic(topic string) string {
	return topic + DLQSuffix
}

// MessageContext describes the message being processed
type MessageContext struct {
	ID             string
	Topic          string
	Key            string
	Payload        json.RawMessage
	Headers        map[string]string
	FirstAttemptAt time.Time
	Metadata       map[string]interface{}
}

// DLQHandler retries an operation and dead-letters the message when
// retries are exhausted or the error is permanent.
type DLQHandler struct {
	retrier   *Retrier
	publisher DLQPublisher
	source    string
	onDLQ     func(msg *DLQMessage)
}

// NewDLQHandler creates a new DLQ handler. onDLQ may be nil.
func NewDLQHandler(publisher DLQPublisher, retryCfg *Config, source string, onDLQ func(msg *DLQMessage)) *DLQHandler {
	return &DLQHandler{
		retrier:   New(retryCfg),
		publisher: publisher,
		source:    source,
		onDLQ:     onDLQ,
	}
}

// ProcessWithDLQ processes a message with retry and DLQ support. It returns
// the processing error after the message was dead-lettered, or the publish
// error if dead-lettering itself failed.
func (h *DLQHandler) ProcessWithDLQ(ctx context.Context, msgCtx *MessageContext, op Operation) error {
	if msgCtx.FirstAttemptAt.IsZero() {
		msgCtx.FirstAttemptAt = time.Now().UTC()
	}

	result := h.retrier.Do(ctx, op)
	if result.Err == nil {
		return nil
	}
	if result.Err == ErrContextCanceled {
		// shutting down, leave the message uncommitted
		return result.Err
	}

	errMsg := result.Err.Error()
	if result.LastError != nil {
		errMsg = result.LastError.Error()
	}

	dlqMsg := &DLQMessage{
		ID:             msgCtx.ID,
		OriginalTopic:  msgCtx.Topic,
		OriginalKey:    msgCtx.Key,
		Payload:        msgCtx.Payload,
		Headers:        msgCtx.Headers,
		Error:          errMsg,
		Attempts:       result.Attempts,
		FirstAttemptAt: msgCtx.FirstAttemptAt,
		LastAttemptAt:  time.Now().UTC(),
		Source:         h.source,
		Metadata:       msgCtx.Metadata,
	}

	if h.onDLQ != nil {
		h.onDLQ(dlqMsg)
	}

	if err := h.publisher.PublishToDLQ(ctx, dlqMsg); err != nil {
		return fmt.Errorf("%w: %w (original error: %s)", ErrDLQPublish, err, errMsg)
	}

	return result.Err
}
