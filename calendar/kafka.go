/*
Package calendar mirrors approved leave into a shared calendar.

KafkaSync hands each event to the calendar integration through the
calendar topic; the event ID it returns is minted here so the request
can be linked before the consumer has processed anything. Memory keeps
events in process for single-node setups and tests.
*/
package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/events"
	"github.com/warp/leave-engine/leave"
)

const (
	EventCreated = "calendar_event_created"
	EventDeleted = "calendar_event_deleted"

	aggregateType = "leave_request"
)

type EventCreatedPayload struct {
	EventType  string    `json:"event_type"`
	EventID    string    `json:"event_id"`
	RequestID  string    `json:"request_id"`
	OwnerEmail string    `json:"owner_email"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	AllDay     bool      `json:"all_day"`
	ShowAs     string    `json:"show_as"`
	Categories []string  `json:"categories"`
	OccurredAt time.Time `json:"occurred_at"`
}

type EventDeletedPayload struct {
	EventType  string    `json:"event_type"`
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type KafkaSync struct {
	publisher events.Publisher
	topic     string
	newID     func() string
	now       func() time.Time
}

var _ leave.CalendarSync = (*KafkaSync)(nil)

// NewKafkaSync publishes to topic, or events.CalendarTopic when empty.
func NewKafkaSync(publisher events.Publisher, topic string) *KafkaSync {
	if topic == "" {
		topic = events.CalendarTopic
	}
	return &KafkaSync{
		publisher: publisher,
		topic:     topic,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

func (s *KafkaSync) CreateEvent(ctx context.Context, event leave.CalendarEvent) (string, error) {
	id := s.newID()
	err := s.publisher.Publish(ctx, events.Envelope{
		Topic:         s.topic,
		Key:           event.RequestID,
		EventType:     EventCreated,
		AggregateType: aggregateType,
		Payload: EventCreatedPayload{
			EventType:  EventCreated,
			EventID:    id,
			RequestID:  event.RequestID,
			OwnerEmail: event.OwnerEmail,
			Subject:    event.Subject,
			Body:       event.Body,
			Start:      event.Start,
			End:        event.End,
			AllDay:     event.AllDay,
			ShowAs:     event.ShowAs,
			Categories: event.Categories,
			OccurredAt: s.now().UTC(),
		},
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *KafkaSync) DeleteEvent(ctx context.Context, eventID string) error {
	return s.publisher.Publish(ctx, events.Envelope{
		Topic:         s.topic,
		Key:           eventID,
		EventType:     EventDeleted,
		AggregateType: aggregateType,
		Payload: EventDeletedPayload{
			EventType:  EventDeleted,
			EventID:    eventID,
			OccurredAt: s.now().UTC(),
		},
	})
}
