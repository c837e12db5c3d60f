package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	channel string
	payload []byte
	err     error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message any) (int64, error) {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return 1, f.err
}

func TestRedisPublisherEncodesMessage(t *testing.T) {
	fake := &fakeRedis{}
	pub, err := NewRedisPublisher(fake, nil)
	require.NoError(t, err)

	assetID := uuid.New()
	require.NoError(t, pub.Publish(context.Background(), CommentsChannel(assetID), Message{Type: "comment.created", Data: map[string]string{"body": "hi"}}))
	require.Equal(t, "comments:"+assetID.String(), fake.channel)

	var decoded Message
	require.NoError(t, json.Unmarshal(fake.payload, &decoded))
	require.Equal(t, "comment.created", decoded.Type)
	require.False(t, decoded.At.IsZero())
}

func TestRedisPublisherRejectsEmptyChannel(t *testing.T) {
	pub, _ := NewRedisPublisher(&fakeRedis{}, nil)
	require.Error(t, pub.Publish(context.Background(), "", Message{Type: "x"}))
}

func TestPublishAfterCommitSwallowsErrors(t *testing.T) {
	pub, _ := NewRedisPublisher(&fakeRedis{err: errors.New("down")}, nil)
	require.NotPanics(t, func() {
		PublishAfterCommit(context.Background(), pub, nil, NotificationsChannel(uuid.New()), Message{Type: "notification.created"})
	})
	PublishAfterCommit(context.Background(), nil, nil, "x", Message{})
}

func TestNewRedisPublisherRequiresClient(t *testing.T) {
	_, err := NewRedisPublisher(nil, nil)
	require.Error(t, err)
}
