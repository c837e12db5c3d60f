package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reviewhub-backend/pkg/config"
)

func TestIncrWithTTLExpiresOnFirstHit(t *testing.T) {
	ctx := context.Background()
	mock := newMemCommands()
	client := &Client{store: mock}

	for want := int64(1); want <= 3; want++ {
		count, err := client.IncrWithTTL(ctx, "rl:guest:ip:10.0.0.1", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, count)
	}
	require.Equal(t, []expireCall{{key: "rl:guest:ip:10.0.0.1", ttl: time.Minute}}, mock.expireCalls)

	_, err := client.IncrWithTTL(ctx, "no-ttl", 0)
	require.NoError(t, err)
	require.Len(t, mock.expireCalls, 1)
}

func TestSessionKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMemCommands()}

	key := client.AccessSessionKey("jti-1")
	require.NoError(t, client.Set(ctx, key, "refresh", 10*time.Minute))
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "refresh", got)

	taken, err := client.GetDel(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "refresh", taken)
	_, err = client.GetDel(ctx, key)
	require.ErrorIs(t, err, redis.Nil)

	require.NoError(t, client.Set(ctx, key, "again", time.Minute))
	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestPublishUsesRawChannel(t *testing.T) {
	mock := newMemCommands()
	client := &Client{store: mock}

	receivers, err := client.Publish(context.Background(), "comments:abc", `{"id":"1"}`)
	require.NoError(t, err)
	require.Equal(t, int64(1), receivers)
	require.Equal(t, []string{"comments:abc"}, mock.published)
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	_, err := client.Publish(context.Background(), "x", "y")
	require.Error(t, err)
	_, err = client.Subscribe(context.Background(), "x")
	require.ErrorIs(t, err, errNotInitialized)
	_, err = client.IncrWithTTL(context.Background(), "x", time.Second)
	require.ErrorIs(t, err, errNotInitialized)
	require.NoError(t, client.Close())

	var missing *Client
	require.ErrorIs(t, missing.Ping(context.Background()), errNotInitialized)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "rv:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "rv:lock:cron", client.LockKey("cron"))
	require.Equal(t, "rv:session:access:abc", client.AccessSessionKey("abc"))
	require.Equal(t, "rv:idempotency:scope", client.IdempotencyKey("scope", " "), "blank parts are skipped")
}

func TestDialOptionsFallBackToFields(t *testing.T) {
	_, err := dialOptions(config.RedisConfig{})
	require.Error(t, err)

	opts, err := dialOptions(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 7, opts.PoolSize)
	require.Equal(t, time.Second, opts.DialTimeout)

	opts, err = dialOptions(config.RedisConfig{Address: "cache:6379", DB: 3})
	require.NoError(t, err)
	require.Equal(t, "cache:6379", opts.Addr)
	require.Equal(t, 3, opts.DB)
}

type memCommands struct {
	redis.Scripter // unset; scripts are exercised against a real server only

	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
	published   []string
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMemCommands() *memCommands {
	return &memCommands{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *memCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *memCommands) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *memCommands) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memCommands) GetDel(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	delete(m.data, key)
	return redis.NewStringResult(v, nil)
}

func (m *memCommands) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *memCommands) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *memCommands) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *memCommands) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *memCommands) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	m.published = append(m.published, channel)
	return redis.NewIntResult(1, nil)
}
