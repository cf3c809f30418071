package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/avdeevlv/erp_backend/internal/logging"
	"github.com/avdeevlv/erp_backend/internal/mykafka"
)

const (
	TopicOrderEvents   = "order_events"
	TopicPaymentEvents = "payment_events"
	TopicProductEvents = "product_events"
	TopicUserEvents    = "user_events"
)

type Event struct {
	Type         string         `json:"type"`
	TargetUserID uint           `json:"target_user_id,omitempty"`
	Broadcast    bool           `json:"broadcast,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// Sink is the notification boundary. Delivery is fire-and-forget: an
// implementation must never fail the caller.
type Sink interface {
	Notify(ctx context.Context, topic string, event Event)
}

type KafkaSink struct {
	Producer *mykafka.Producer
}

func (s *KafkaSink) Notify(ctx context.Context, topic string, event Event) {
	l := logging.FromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := fmt.Sprint(event.TargetUserID)
	if event.Broadcast {
		key = "broadcast"
	}
	if err := s.Producer.PublishEvent(ctx, topic, key, event); err != nil {
		l.Warn("notify_failed", "topic", topic, "event", event.Type, "error", err)
	}
}

// NopSink drops every event. Used when no broker is configured.
type NopSink struct{}

func (NopSink) Notify(context.Context, string, Event) {}
