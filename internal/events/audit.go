package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// AuditSink stores consumed lifecycle events.
type AuditSink interface {
	RecordEvent(ctx context.Context, ev Lifecycle) error
}

// RunAudit consumes the topic until ctx is done. Malformed payloads are
// acked and skipped; sink failures are nacked for redelivery.
func RunAudit(ctx context.Context, sub message.Subscriber, topic string, sink AuditSink, log zerolog.Logger) error {
	if topic == "" {
		topic = DefaultTopic
	}
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	log = log.With().Str("component", "audit_consumer").Logger()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var ev Lifecycle
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Error().Err(err).Str("message_uuid", msg.UUID).Msg("discarding malformed lifecycle event")
				msg.Ack()
				continue
			}
			if err := sink.RecordEvent(ctx, ev); err != nil {
				log.Error().Err(err).Str("event_id", ev.ID).Msg("failed to record lifecycle event")
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}
