package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisher_Publish(t *testing.T) {
	// GIVEN: a publisher over a recording writer
	w := &recordingWriter{}
	p := NewKafkaPublisher(w, zap.NewNop())

	// WHEN: an event is published
	err := p.Publish(context.Background(), Envelope{
		Topic:         CalendarTopic,
		Key:           "req-1",
		EventType:     "calendar_event_created",
		AggregateType: "leave_request",
		Payload:       map[string]string{"event_id": "evt-1"},
	})

	// THEN: one keyed JSON message with type headers is written
	require.NoError(t, err)
	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, CalendarTopic, msg.Topic)
	assert.Equal(t, "req-1", string(msg.Key))
	assert.Equal(t, "calendar_event_created", header(msg, "event_type"))
	assert.Equal(t, "leave_request", header(msg, "aggregate_type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "evt-1", body["event_id"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker unavailable")}
	p := NewKafkaPublisher(w, zap.NewNop())

	err := p.Publish(context.Background(), Envelope{Topic: NotificationTopic, EventType: "notification_requested"})

	assert.ErrorContains(t, err, "publish notification_requested")
	assert.ErrorContains(t, err, "broker unavailable")
}

func TestKafkaPublisher_UnencodablePayload(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisher(w, zap.NewNop())

	err := p.Publish(context.Background(), Envelope{EventType: "bad", Payload: make(chan int)})

	assert.ErrorContains(t, err, "encode bad")
	assert.Empty(t, w.messages)
}

func TestNoopPublisher(t *testing.T) {
	p := NewNoopPublisher()
	assert.NoError(t, p.Publish(context.Background(), Envelope{Payload: make(chan int)}))
	assert.NoError(t, p.Close())
}

func TestNewWriter(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"})
	assert.Equal(t, "localhost:9092", w.Addr.String())
	assert.Empty(t, w.Topic)
}
