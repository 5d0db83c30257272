package retry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) ProduceJSON(ctx context.Context, topic string, key string, data interface{}, headers map[string]string) error {
	args := m.Called(ctx, topic, key, data, headers)
	return args.Error(0)
}

type MockDLQPublisher struct {
	mock.Mock
}

func (m *MockDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func TestDLQTopic(t *testing.T) {
	assert.Equal(t, "settlement.tickets-issued.dlq", DLQTopic("settlement.tickets-issued"))
}

func TestKafkaDLQPublisher_PublishToDLQ(t *testing.T) {
	producer := new(MockProducer)
	pub := NewKafkaDLQPublisher(producer, "notification-worker")

	msg := &DLQMessage{
		ID:            "msg-1",
		OriginalTopic: "settlement.tickets-issued",
		OriginalKey:   "res-1",
		Payload:       json.RawMessage(`{"reservation_id":"res-1"}`),
		Headers:       map[string]string{"event_type": "tickets.issued"},
		Error:         "dispatch failed",
		Attempts:      4,
	}

	producer.On("ProduceJSON", mock.Anything, "settlement.tickets-issued.dlq", "res-1", msg,
		mock.MatchedBy(func(h map[string]string) bool {
			return h["original_event_type"] == "tickets.issued" && h["attempts"] == "4" && h["source"] == "notification-worker"
		})).Return(nil)

	assert.NoError(t, pub.PublishToDLQ(context.Background(), msg))
	assert.Equal(t, "notification-worker", msg.Source)
	assert.False(t, msg.MovedToDLQAt.IsZero())
	producer.AssertExpectations(t)

	assert.Error(t, pub.PublishToDLQ(context.Background(), nil))
}

func TestDLQHandler_SuccessSkipsDLQ(t *testing.T) {
	pub := new(MockDLQPublisher)
	h := NewDLQHandler(pub, fastConfig(2), "test", nil)

	err := h.ProcessWithDLQ(context.Background(), &MessageContext{ID: "1", Topic: "t"}, func(ctx context.Context) error {
		return nil
	})

	assert.NoError(t, err)
	pub.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything)
}

func TestDLQHandler_ExhaustedRetriesPublish(t *testing.T) {
	pub := new(MockDLQPublisher)
	var dead *DLQMessage
	h := NewDLQHandler(pub, fastConfig(2), "test", func(msg *DLQMessage) { dead = msg })

	pub.On("PublishToDLQ", mock.Anything, mock.MatchedBy(func(m *DLQMessage) bool {
		return m.ID == "1" && m.Attempts == 3 && m.Error == "dispatch failed"
	})).Return(nil)

	err := h.ProcessWithDLQ(context.Background(), &MessageContext{ID: "1", Topic: "t", Key: "k"}, func(ctx context.Context) error {
		return errors.New("dispatch failed")
	})

	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	if assert.NotNil(t, dead) {
		assert.Equal(t, "t", dead.OriginalTopic)
		assert.False(t, dead.FirstAttemptAt.IsZero())
	}
	pub.AssertExpectations(t)
}

func TestDLQHandler_PublishFailure(t *testing.T) {
	pub := new(MockDLQPublisher)
	h := NewDLQHandler(pub, fastConfig(0), "test", nil)

	pub.On("PublishToDLQ", mock.Anything, mock.Anything).Return(errors.New("kafka down"))

	err := h.ProcessWithDLQ(context.Background(), &MessageContext{ID: "1", Topic: "t"}, func(ctx context.Context) error {
		return Permanent(errors.New("bad payload"))
	})

	assert.ErrorIs(t, err, ErrDLQPublish)
	assert.ErrorContains(t, err, "failed to publish to DLQ")
	assert.ErrorContains(t, err, "bad payload")
}
