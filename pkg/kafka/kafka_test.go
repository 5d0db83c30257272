package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(context.Background(), &ProducerConfig{})
	assert.Error(t, err)

	_, err = NewProducer(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewConsumer_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewConsumer(ctx, &ConsumerConfig{Brokers: []string{"localhost:9092"}, Topics: []string{"t"}})
	assert.ErrorContains(t, err, "consumer group")

	_, err = NewConsumer(ctx, &ConsumerConfig{Brokers: []string{"localhost:9092"}, GroupID: "g"})
	assert.ErrorContains(t, err, "topic")
}

func TestFromKgo(t *testing.T) {
	ts := time.Now()
	raw := &kgo.Record{
		Topic:     "settlement.tickets-issued",
		Partition: 2,
		Offset:    41,
		Key:       []byte("res-1"),
		Value:     []byte(`{"ok":true}`),
		Timestamp: ts,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte("tickets.issued")},
		},
	}

	rec := fromKgo(raw)
	require.NotNil(t, rec)
	assert.Equal(t, "settlement.tickets-issued", rec.Topic)
	assert.Equal(t, int32(2), rec.Partition)
	assert.Equal(t, int64(41), rec.Offset)
	assert.Equal(t, "tickets.issued", rec.Header("event_type"))
	assert.Equal(t, "", rec.Header("missing"))
	assert.Same(t, raw, rec.raw)
}

func TestCommitRecords_NoRawRecordsIsNoop(t *testing.T) {
	c := &Consumer{}
	assert.NoError(t, c.CommitRecords(context.Background(), []*Record{{Topic: "x"}, nil}))
}
