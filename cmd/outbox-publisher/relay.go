package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second
	maxRetryDelay  = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond
)

type txPinger interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(topic string) *gcppubsub.Publisher
}

// relayStore is the slice of outbox.Repository the relay drives.
type relayStore interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	Published(tx *gorm.DB, id uuid.UUID) error
	Retry(tx *gorm.DB, id uuid.UUID, cause error) error
	DeadLetter(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, attempts int) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type sender interface {
	Publish(context.Context, *gcppubsub.Message) pendingPublish
}

type pendingPublish interface {
	Get(context.Context) (string, error)
}

type RelayParams struct {
	Outbox config.OutboxConfig
	Logger *logger.Logger
	DB     txPinger
	PubSub topicSource
	Store  relayStore
	Events resolver
}

// Relay forwards committed outbox rows to Pub/Sub. Each batch is claimed,
// published and settled inside one transaction.
type Relay struct {
	logg      *logger.Logger
	db        txPinger
	pubsub    topicSource
	store     relayStore
	events    resolver
	senderFor func(topic string) sender
	topics    map[string]*gcppubsub.Publisher

	batch    int
	attempts int
	poll     time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	for _, dep := range []struct {
		name    string
		missing bool
	}{
		{"logger", p.Logger == nil},
		{"database", p.DB == nil},
		{"pubsub client", p.PubSub == nil},
		{"outbox store", p.Store == nil},
		{"event registry", p.Events == nil},
	} {
		if dep.missing {
			return nil, fmt.Errorf("outbox relay: %s is required", dep.name)
		}
	}
	r := &Relay{
		logg:     p.Logger,
		db:       p.DB,
		pubsub:   p.PubSub,
		store:    p.Store,
		events:   p.Events,
		topics:   make(map[string]*gcppubsub.Publisher),
		batch:    orDefault(p.Outbox.BatchSize, 50),
		attempts: orDefault(p.Outbox.MaxAttempts, 10),
		poll:     time.Duration(orDefault(p.Outbox.PollIntervalMS, 500)) * time.Millisecond,
	}
	r.senderFor = r.cachedSender
	return r, nil
}

// cachedSender keeps one client publisher per topic so messages bundle.
func (r *Relay) cachedSender(topic string) sender {
	pub, ok := r.topics[topic]
	if !ok {
		if pub = r.pubsub.Publisher(topic); pub == nil {
			return nil
		}
		r.topics[topic] = pub
	}
	return topicSender{pub}
}

// Stop flushes buffered messages on every topic publisher.
func (r *Relay) Stop() {
	for topic, pub := range r.topics {
		pub.Stop()
		delete(r.topics, topic)
	}
}

// Run relays until ctx ends. A full batch is followed immediately by the
// next one; an empty batch waits one poll interval and failed batches back
// off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if err := r.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub unreachable: %w", err)
	}

	failures := 0
	for ctx.Err() == nil {
		claimed, err := r.relayBatch(ctx)
		wait := r.poll
		switch {
		case err != nil:
			failures++
			wait = retryDelay(r.poll, failures)
			r.logg.Error(r.logg.WithField(ctx, "consecutive_failures", failures), "outbox relay batch failed", err)
		case claimed > 0:
			failures = 0
			continue
		default:
			failures = 0
		}
		if err := pause(ctx, wait+jitter()); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// delivery tracks one submitted row. err is set when the message never left
// the process.
type delivery struct {
	row    models.OutboxEvent
	fields map[string]any
	result pendingPublish
	err    error
}

func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.Claim(tx, r.batch, r.attempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(rows)

		sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		// Submit everything first; awaiting per row would serialize the batch.
		deliveries := make([]delivery, 0, len(rows))
		for _, row := range rows {
			deliveries = append(deliveries, r.send(sendCtx, row))
		}
		for _, d := range deliveries {
			if err := r.settle(ctx, sendCtx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) send(ctx context.Context, row models.OutboxEvent) delivery {
	d := delivery{row: row, fields: rowFields(row)}
	resolved, err := r.events.Resolve(row)
	if err != nil {
		d.err = err
		return d
	}
	topic := resolved.Descriptor.Topic
	d.fields["topic"] = topic
	d.fields["event_id"] = resolved.Envelope.EventID

	out := r.senderFor(topic)
	if out == nil {
		d.err = registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
		return d
	}
	d.result = out.Publish(ctx, &gcppubsub.Message{
		Data:       row.Payload,
		Attributes: messageAttributes(row, resolved),
	})
	if d.result == nil {
		d.err = registry.NewNonRetryableError(fmt.Errorf("publisher for %s returned no result", topic))
	}
	return d
}

func messageAttributes(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	return map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

// settle writes the outcome of one delivery back to its row.
func (r *Relay) settle(ctx, waitCtx context.Context, tx *gorm.DB, d delivery) error {
	sendErr := d.err
	if sendErr == nil {
		_, sendErr = d.result.Get(waitCtx)
	}
	logCtx := r.logg.WithFields(ctx, d.fields)
	id := d.row.ID

	if sendErr == nil {
		if err := r.store.Published(tx, id); err != nil {
			return fmt.Errorf("mark %s published: %w", id, err)
		}
		r.logg.Info(logCtx, "outbox event published")
		return nil
	}

	var permanent registry.NonRetryableError
	if errors.As(sendErr, &permanent) {
		return r.deadLetter(logCtx, tx, d.row, enums.OutboxDLQReasonNonRetryable, sendErr)
	}
	if attempt := d.row.AttemptCount + 1; attempt >= r.attempts {
		return r.deadLetter(logCtx, tx, d.row, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", attempt, sendErr))
	}

	r.logg.WarnErr(logCtx, "outbox publish failed, will retry", sendErr)
	if err := r.store.Retry(tx, id, sendErr); err != nil {
		return fmt.Errorf("record retry for %s: %w", id, err)
	}
	return nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	r.logg.WarnErr(r.logg.WithField(ctx, "dlq_reason", reason), "outbox event dead-lettered", cause)
	return r.store.DeadLetter(tx, row, reason, cause, r.attempts)
}

func rowFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

// retryDelay doubles base per consecutive failure, capped at maxRetryDelay.
func retryDelay(base time.Duration, failures int) time.Duration {
	delay := base
	for i := 0; i < failures && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func jitter() time.Duration {
	return rand.N(jitterWindow)
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

type topicSender struct {
	pub *gcppubsub.Publisher
}

func (s topicSender) Publish(ctx context.Context, msg *gcppubsub.Message) pendingPublish {
	return s.pub.Publish(ctx, msg)
}
