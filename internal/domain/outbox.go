package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// EventTypeTicketsIssued is emitted once per settled reservation
const EventTypeTicketsIssued = "tickets.issued"

// DefaultOutboxMaxRetries bounds publish attempts per message
const DefaultOutboxMaxRetries = 5

// OutboxMessage is a row of the transactional outbox. It is written in the
// same database transaction as the state change it announces.
type OutboxMessage struct {
	ID            string       `json:"id"`
	AggregateType string       `json:"aggregate_type"`
	AggregateID   string       `json:"aggregate_id"`
	EventType     string       `json:"event_type"`
	Payload       []byte       `json:"payload"`
	Topic         string       `json:"topic"`
	PartitionKey  string       `json:"partition_key"`
	Status        OutboxStatus `json:"status"`
	RetryCount    int          `json:"retry_count"`
	MaxRetries    int          `json:"max_retries"`
	LastError     string       `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	PublishedAt   *time.Time   `json:"published_at,omitempty"`
}

// NewOutboxMessage creates a pending outbox message keyed by aggregate id
func NewOutboxMessage(aggregateType, aggregateID, eventType, topic string, payload interface{}) (*OutboxMessage, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payloadBytes,
		Topic:         topic,
		PartitionKey:  aggregateID,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultOutboxMaxRetries,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// CanRetry checks if the message can be retried
func (m *OutboxMessage) CanRetry() bool {
	return m.Status == OutboxStatusFailed && m.RetryCount < m.MaxRetries
}

// GetPayload unmarshals the payload into v
func (m *OutboxMessage) GetPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// TicketsIssuedEvent is the notification handoff payload: everything an
// artifact generator needs to render and send tickets.
type TicketsIssuedEvent struct {
	MessageID   string       `json:"message_id"`
	Reference   string       `json:"reference"`
	Reservation *Reservation `json:"reservation"`
	Tickets     []*Ticket    `json:"tickets"`
	Event       *Event       `json:"event"`
	Tier        *TicketTier  `json:"tier"`
	Resend      bool         `json:"resend,omitempty"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// NewTicketsIssuedMessage wraps a tickets-issued event for the outbox
func NewTicketsIssuedMessage(topic string, evt *TicketsIssuedEvent) (*OutboxMessage, error) {
	if evt.MessageID == "" {
		evt.MessageID = uuid.New().String()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	return NewOutboxMessage("reservation", evt.Reservation.ID, EventTypeTicketsIssued, topic, evt)
}
