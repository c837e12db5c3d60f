package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/payloads"
)

const notificationConsumer = "review-notifications"

type decoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, ev Event) Summary
}

// Consumer reads review events from Pub/Sub and hands them to the dispatcher.
type Consumer struct {
	dispatcher   dispatcher
	decoders     decoder
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a notification consumer.
func NewConsumer(d dispatcher, decoders decoder, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if d == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if decoders == nil {
		return nil, fmt.Errorf("decoder registry required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		dispatcher:   d,
		decoders:     decoders,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process returns true when the message should be redelivered.
func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(attrs["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": string(eventType),
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return false
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return false
	}
	version := envelope.Version
	if version == 0 {
		version = 1
	}
	decoded, err := c.decoders.Decode(eventType, version, envelope.Data)
	if err != nil {
		c.logg.WarnErr(logCtx, "skipping undecodable event", err)
		return false
	}
	notifiable, ok := decoded.(payloads.Notifiable)
	if !ok {
		c.logg.Info(logCtx, "event carries no notification")
		return false
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, notificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return true
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return false
	}

	ev := EventFromPayload(eventType, decoded, notifiable.Review())
	summary := c.dispatcher.Dispatch(ctx, ev)
	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"in_app":   summary.InApp,
		"emailed":  summary.Emailed,
		"digested": summary.Digested,
		"skipped":  summary.Skipped,
	}), "notification event dispatched")
	return false
}

// EventFromPayload maps a decoded outbox payload onto a dispatcher event.
func EventFromPayload(eventType enums.OutboxEventType, decoded any, core payloads.ReviewEvent) Event {
	ev := Event{
		Type:            enums.NotificationType(eventType),
		ActorID:         core.ActorID,
		AssetID:         core.AssetID,
		Title:           core.Title,
		Message:         core.Message,
		AffectedUserIDs: core.AffectedUserIDs,
	}
	if core.ProjectID != uuid.Nil {
		projectID := core.ProjectID
		ev.ProjectID = &projectID
	}
	if added, ok := decoded.(*payloads.MemberAddedEvent); ok {
		teamID := added.TeamID
		ev.TeamID = &teamID
	}
	return ev
}
