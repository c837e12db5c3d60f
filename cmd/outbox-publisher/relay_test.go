package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/registry"
)

func TestFailedPublishDoesNotBlockTheRestOfTheBatch(t *testing.T) {
	store := &memStore{rows: []models.OutboxEvent{commentRow(t, 0), commentRow(t, 0)}}
	out := &recordingSender{results: []pendingPublish{
		stubResult{err: errors.New("transient")},
		stubResult{},
	}}
	relay := newTestRelay(t, store, out, staticResolver{}, config.OutboxConfig{})

	claimed, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, claimed)
	require.Equal(t, []uuid.UUID{store.rows[0].ID}, store.retried)
	require.Equal(t, []uuid.UUID{store.rows[1].ID}, store.published)
}

func TestMessageCarriesRowAttributes(t *testing.T) {
	row := commentRow(t, 0)
	store := &memStore{rows: []models.OutboxEvent{row}}
	out := &recordingSender{results: []pendingPublish{stubResult{}}}
	relay := newTestRelay(t, store, out, staticResolver{}, config.OutboxConfig{})

	var topics []string
	relay.senderFor = func(topic string) sender {
		topics = append(topics, topic)
		return out
	}

	_, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"rv-notification-events"}, topics)
	require.Len(t, out.sent, 1)
	msg := out.sent[0]
	require.Equal(t, string(enums.EventCommentAdded), msg.Attributes["event_type"])
	require.Equal(t, row.AggregateID.String(), msg.Attributes["aggregate_id"])
	require.Equal(t, row.ID.String(), msg.Attributes["event_id"])
	require.NotEmpty(t, msg.Attributes["occurred_at"])
	require.Equal(t, []byte(row.Payload), msg.Data)
}

func TestWholeBatchIsSubmittedBeforeAwaiting(t *testing.T) {
	var steps []string
	store := &memStore{rows: []models.OutboxEvent{commentRow(t, 0), commentRow(t, 0)}}
	out := &recordingSender{
		onPublish: func() { steps = append(steps, "publish") },
		results: []pendingPublish{
			stubResult{onGet: func() { steps = append(steps, "get") }},
			stubResult{onGet: func() { steps = append(steps, "get") }},
		},
	}
	relay := newTestRelay(t, store, out, staticResolver{}, config.OutboxConfig{})

	_, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"publish", "publish", "get", "get"}, steps)
	require.Len(t, store.published, 2)
}

func TestUnresolvableRowIsDeadLettered(t *testing.T) {
	row := commentRow(t, 0)
	store := &memStore{rows: []models.OutboxEvent{row}}
	out := &recordingSender{}
	events := staticResolver{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	relay := newTestRelay(t, store, out, events, config.OutboxConfig{MaxAttempts: 4})

	_, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	require.Empty(t, out.sent)
	require.Len(t, store.dead, 1)
	require.Equal(t, row.ID, store.dead[0].row.ID)
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, store.dead[0].reason)
	require.EqualError(t, store.dead[0].cause, "invalid payload")
	require.Equal(t, 4, store.dead[0].attempts)
}

func TestLastAttemptIsDeadLetteredInsteadOfRetried(t *testing.T) {
	row := commentRow(t, 1)
	store := &memStore{rows: []models.OutboxEvent{row}}
	out := &recordingSender{results: []pendingPublish{stubResult{err: errors.New("transient")}}}
	relay := newTestRelay(t, store, out, staticResolver{}, config.OutboxConfig{MaxAttempts: 2})

	_, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	require.Empty(t, store.retried)
	require.Len(t, store.dead, 1)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, store.dead[0].reason)
	require.ErrorContains(t, store.dead[0].cause, "transient")
}

func TestMissingTopicPublisherIsPermanent(t *testing.T) {
	store := &memStore{rows: []models.OutboxEvent{commentRow(t, 0)}}
	relay := newTestRelay(t, store, nil, staticResolver{}, config.OutboxConfig{})
	relay.senderFor = func(string) sender { return nil }

	_, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, store.dead, 1)
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, store.dead[0].reason)
}

func TestClaimFailureRollsBackTheBatch(t *testing.T) {
	store := &memStore{claimErr: errors.New("deadlock")}
	relay := newTestRelay(t, store, &recordingSender{}, staticResolver{}, config.OutboxConfig{})

	claimed, err := relay.relayBatch(context.Background())
	require.ErrorContains(t, err, "deadlock")
	require.Zero(t, claimed)
}

func TestRetryDelayDoublesUpToCap(t *testing.T) {
	base := 500 * time.Millisecond
	require.Equal(t, time.Second, retryDelay(base, 1))
	require.Equal(t, 4*time.Second, retryDelay(base, 3))
	require.Equal(t, maxRetryDelay, retryDelay(base, 5))
	require.Equal(t, maxRetryDelay, retryDelay(base, 1000))

	for range 20 {
		j := jitter()
		require.GreaterOrEqual(t, j, time.Duration(0))
		require.Less(t, j, jitterWindow)
	}
}

func TestNewRelayNamesMissingDependency(t *testing.T) {
	_, err := NewRelay(RelayParams{Logger: testLogger()})
	require.EqualError(t, err, "outbox relay: database is required")
}

func TestNewRelayAppliesDefaults(t *testing.T) {
	relay := newTestRelay(t, &memStore{}, nil, staticResolver{}, config.OutboxConfig{})
	require.Equal(t, 50, relay.batch)
	require.Equal(t, 10, relay.attempts)
	require.Equal(t, 500*time.Millisecond, relay.poll)
}

func newTestRelay(t *testing.T, store relayStore, out sender, events resolver, cfg config.OutboxConfig) *Relay {
	t.Helper()
	relay, err := NewRelay(RelayParams{
		Outbox: cfg,
		Logger: testLogger(),
		DB:     inlineTx{},
		PubSub: idlePubSub{},
		Store:  store,
		Events: events,
	})
	require.NoError(t, err)
	relay.senderFor = func(string) sender { return out }
	return relay
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard})
}

func commentRow(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventCommentAdded,
		AggregateType: enums.AggregateComment,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type deadLetter struct {
	row      models.OutboxEvent
	reason   enums.OutboxDLQErrorReason
	cause    error
	attempts int
}

type memStore struct {
	rows      []models.OutboxEvent
	claimErr  error
	published []uuid.UUID
	retried   []uuid.UUID
	dead      []deadLetter
}

func (m *memStore) Claim(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return m.rows, m.claimErr
}

func (m *memStore) Published(_ *gorm.DB, id uuid.UUID) error {
	m.published = append(m.published, id)
	return nil
}

func (m *memStore) Retry(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.retried = append(m.retried, id)
	return nil
}

func (m *memStore) DeadLetter(_ *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, attempts int) error {
	m.dead = append(m.dead, deadLetter{row: row, reason: reason, cause: cause, attempts: attempts})
	return nil
}

type inlineTx struct{}

func (inlineTx) Ping(context.Context) error { return nil }

func (inlineTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type idlePubSub struct{}

func (idlePubSub) Ping(context.Context) error { return nil }

func (idlePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

type recordingSender struct {
	results   []pendingPublish
	sent      []*gcppubsub.Message
	onPublish func()
}

func (s *recordingSender) Publish(_ context.Context, msg *gcppubsub.Message) pendingPublish {
	s.sent = append(s.sent, msg)
	if s.onPublish != nil {
		s.onPublish()
	}
	if len(s.results) == 0 {
		return nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next
}

type stubResult struct {
	err   error
	onGet func()
}

func (r stubResult) Get(context.Context) (string, error) {
	if r.onGet != nil {
		r.onGet()
	}
	return "msg-id", r.err
}

// staticResolver resolves every row onto the notification topic unless err
// is set.
type staticResolver struct {
	err error
}

func (s staticResolver) Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			Topic:         "rv-notification-events",
		},
		Envelope: outbox.PayloadEnvelope{Version: 1, EventID: row.ID.String(), OccurredAt: time.Now()},
		Payload:  &payloads.CommentAddedEvent{},
	}, nil
}
