package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/events"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

const EventNotificationRequested = "notification_requested"

type NotificationRequestedPayload struct {
	EventType      string    `json:"event_type"`
	NotificationID string    `json:"notification_id"`
	Recipients     []string  `json:"recipients"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// KafkaSender publishes one event per Send call.
type KafkaSender struct {
	publisher events.Publisher
	topic     string
	newID     func() string
	now       func() time.Time
}

var _ leave.NotificationSender = (*KafkaSender)(nil)

func NewKafkaSender(publisher events.Publisher, topic string) *KafkaSender {
	if topic == "" {
		topic = events.NotificationTopic
	}
	return &KafkaSender{
		publisher: publisher,
		topic:     topic,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

func (s *KafkaSender) Send(ctx context.Context, recipients []string, subject, body string) error {
	var to []string
	for _, r := range recipients {
		if strings.TrimSpace(r) != "" {
			to = append(to, r)
		}
	}
	if len(to) == 0 {
		return nil
	}

	id := s.newID()
	return s.publisher.Publish(ctx, events.Envelope{
		Topic:         s.topic,
		Key:           id,
		EventType:     EventNotificationRequested,
		AggregateType: "notification",
		Payload: NotificationRequestedPayload{
			EventType:      EventNotificationRequested,
			NotificationID: id,
			Recipients:     to,
			Subject:        subject,
			Body:           body,
			OccurredAt:     s.now().UTC(),
		},
	})
}

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

var _ leave.NotificationSender = (*LogSender)(nil)

func NewLogSender(logger ...*zap.Logger) *LogSender {
	l := zap.L().Named("notify")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("notify")
	}
	return &LogSender{logger: l}
}

func (s *LogSender) Send(ctx context.Context, recipients []string, subject, body string) error {
	s.logger.Info("notification",
		zap.Strings("recipients", recipients),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}
