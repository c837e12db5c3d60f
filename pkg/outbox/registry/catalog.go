package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/payloads"
)

// envelopeVersion is the only envelope layout the relay and consumers decode.
const envelopeVersion = 1

// EventDescriptor ties an event type to the aggregate it must carry, the
// topic it is relayed to and a constructor for its payload.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a validated outbox row with its decoded payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry knows every event type the review domain emits.
type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func reject(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		PayloadFactory: func() any { return new(T) },
	}
}

// reviewEvents lists every event relayed today. They all share the
// notification topic.
func reviewEvents() []EventDescriptor {
	return []EventDescriptor{
		describe[payloads.CommentAddedEvent](enums.EventCommentAdded, enums.AggregateComment),
		describe[payloads.CommentResolvedEvent](enums.EventCommentResolved, enums.AggregateComment),
		describe[payloads.VersionUploadedEvent](enums.EventVersionUploaded, enums.AggregateAsset),
		describe[payloads.ApprovalRequestedEvent](enums.EventApprovalRequested, enums.AggregateApprovalStep),
		describe[payloads.ApprovalDecidedEvent](enums.EventApprovalDecided, enums.AggregateApprovalStep),
		describe[payloads.ShareViewedEvent](enums.EventShareViewed, enums.AggregateReviewInvite),
		describe[payloads.MemberAddedEvent](enums.EventMemberAdded, enums.AggregateTeam),
	}
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.NotificationTopic)
	if topic == "" {
		return nil, errors.New("notification topic is required")
	}
	events := reviewEvents()
	reg := &EventRegistry{byType: make(map[enums.OutboxEventType]EventDescriptor, len(events))}
	for _, desc := range events {
		desc.Topic = topic
		reg.byType[desc.EventType] = desc
	}
	return reg, nil
}

// Descriptors returns the registered events ordered by type name.
func (r *EventRegistry) Descriptors() []EventDescriptor {
	out := make([]EventDescriptor, 0, len(r.byType))
	for _, desc := range r.byType {
		out = append(out, desc)
	}
	slices.SortFunc(out, func(a, b EventDescriptor) int {
		return strings.Compare(string(a.EventType), string(b.EventType))
	})
	return out
}

// Resolve checks a row against its descriptor and decodes the payload. Every
// failure is non-retryable: the row content never changes between attempts.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.byType[event.EventType]
	switch {
	case !ok:
		return nil, reject("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, reject("%s expects aggregate %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, reject("%s row has no aggregate id", event.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, reject("decode envelope: %w", err)
	}
	if envelope.Version != envelopeVersion {
		return nil, reject("envelope version %d not supported", envelope.Version)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, reject("%s envelope has no data", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, reject("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
