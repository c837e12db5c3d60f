// Package realtime pushes best-effort updates to connected clients over Redis
// pub/sub. Delivery is at-most-once; nothing is replayed for late subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

// Message is the JSON shape every channel carries.
type Message struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

// Publisher is what domain services call after their transaction commits.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg Message) error
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
}

// RedisPublisher publishes JSON-encoded messages with Redis PUBLISH.
type RedisPublisher struct {
	client redisPublisher
	logg   *logger.Logger
}

func NewRedisPublisher(client redisPublisher, logg *logger.Logger) (*RedisPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisPublisher{client: client, logg: logg}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, msg Message) error {
	if channel == "" {
		return fmt.Errorf("channel required")
	}
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode realtime message: %w", err)
	}
	receivers, err := p.client.Publish(ctx, channel, payload)
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	if p.logg != nil {
		p.logg.Debug(p.logg.WithFields(ctx, map[string]any{
			"channel":   channel,
			"type":      msg.Type,
			"receivers": receivers,
		}), "realtime message published")
	}
	return nil
}

// Noop drops every message. Used when realtime fan-out is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, string, Message) error { return nil }

func CommentsChannel(assetID uuid.UUID) string {
	return "comments:" + assetID.String()
}

func NotificationsChannel(userID uuid.UUID) string {
	return "notifications:" + userID.String()
}

// PublishAfterCommit publishes and only logs failures; callers have already
// committed and must not fail the request over a dropped push.
func PublishAfterCommit(ctx context.Context, pub Publisher, logg *logger.Logger, channel string, msg Message) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, channel, msg); err != nil && logg != nil {
		logg.WarnErr(logg.WithFields(ctx, map[string]any{"channel": channel, "type": msg.Type}), "realtime publish failed", err)
	}
}
