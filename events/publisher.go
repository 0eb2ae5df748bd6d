/*
publisher.go - Kafka event publishing

PURPOSE:
  Carries calendar and notification traffic to downstream consumers.
  Payloads are JSON, keyed by the aggregate (request ID or recipient)
  so that events for one aggregate stay ordered within a partition.

HEADERS:
  event_type      e.g. calendar_event_created
  aggregate_type  e.g. leave_request

SEE ALSO:
  - calendar/kafka.go: CalendarSync on top of a Publisher
  - notify/kafka.go:   NotificationSender on top of a Publisher
*/
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	CalendarTopic     = "leave.calendar.v1"
	NotificationTopic = "leave.notification.v1"
)

// Envelope describes one event before encoding.
type Envelope struct {
	Topic         string
	Key           string
	EventType     string
	AggregateType string
	Payload       any
}

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type noopPublisher struct{}

func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(ctx context.Context, env Envelope) error {
	return nil
}

func (noopPublisher) Close() error { return nil }

type kafkaPublisher struct {
	writer MessageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(writer MessageWriter, logger ...*zap.Logger) Publisher {
	l := zap.L().Named("events.kafka")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("events.kafka")
	}
	return &kafkaPublisher{writer: writer, logger: l}
}

// NewWriter builds a writer for brokers. Topics are set per message.
func NewWriter(brokers []string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func (p *kafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.EventType, err)
	}

	msg := kafkago.Message{
		Topic: env.Topic,
		Key:   []byte(env.Key),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "aggregate_type", Value: []byte(env.AggregateType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("publish failed",
			zap.String("topic", env.Topic),
			zap.String("event_type", env.EventType),
			zap.String("key", env.Key),
			zap.Error(err),
		)
		return fmt.Errorf("publish %s: %w", env.EventType, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}
