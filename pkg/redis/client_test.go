package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestIncrWithTTLStartsWindowOnFirstHit(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	client := &Client{cmd: fake}

	for want := int64(1); want <= 3; want++ {
		got, err := client.IncrWithTTL(ctx, "rl:login:ip:10.0.0.1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, map[string]int64{"rl:login:ip:10.0.0.1": time.Minute.Milliseconds()}, fake.ttls)
}

func TestIncrWithTTLWithoutWindow(t *testing.T) {
	fake := newFakeCommands()
	client := &Client{cmd: fake}

	_, err := client.IncrWithTTL(context.Background(), "counter", 0)
	require.NoError(t, err)
	assert.Empty(t, fake.ttls)
}

func TestSetNXClaimsOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newFakeCommands()}
	key := client.StripeEventKey("evt_123")

	first, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.False(t, second)

	value, found, err := client.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", value)

	_, err = client.DeleteIfValue(ctx, key, "1")
	require.NoError(t, err)
	_, found, err = client.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSwapIfValue(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	client := &Client{cmd: fake}
	key := client.StripeEventKey("evt_9")

	swapped, err := client.SwapIfValue(ctx, key, "processing", "done", time.Hour)
	require.NoError(t, err)
	assert.False(t, swapped, "absent key is not swapped")

	_, err = client.SetNX(ctx, key, "processing", time.Minute)
	require.NoError(t, err)
	swapped, err = client.SwapIfValue(ctx, key, "other", "done", time.Hour)
	require.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = client.SwapIfValue(ctx, key, "processing", "done", time.Hour)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, "done", fake.data[key])
	assert.Equal(t, time.Hour.Milliseconds(), fake.ttls[key])
}

func TestDeleteIfValueChecksOwner(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newFakeCommands()}
	key := client.LockKey("cron-worker:prod")

	_, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)

	deleted, err := client.DeleteIfValue(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = client.DeleteIfValue(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, found, err := client.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUninitializedClient(t *testing.T) {
	var nilClient *Client
	client := &Client{}
	ctx := context.Background()

	assert.ErrorIs(t, client.Ping(ctx), errNotInitialized)
	assert.ErrorIs(t, nilClient.Ping(ctx), errNotInitialized)
	_, err := client.IncrWithTTL(ctx, "k", time.Second)
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
	assert.NoError(t, nilClient.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sf:idempotency:POST /api/order/place:abc", client.IdempotencyKey("POST /api/order/place", "abc"))
	assert.Equal(t, "sf:stripe_event:evt_1", client.StripeEventKey(" evt_1 "))
	assert.Equal(t, "sf:lock", client.LockKey(""))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 2, PoolSize: 10, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{URL: "redis://:secret@redis.internal:6380/4", Address: "ignored:1", PoolSize: 5})
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 4, opts.DB)
	assert.Equal(t, 5, opts.PoolSize)

	_, err = optionsFromConfig(config.RedisConfig{URL: "http://nope"})
	assert.Error(t, err)
}

// fakeCommands emulates the Lua scripts the client sends.
type fakeCommands struct {
	data     map[string]string
	counters map[string]int64
	ttls     map[string]int64
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{
		data:     map[string]string{},
		counters: map[string]int64{},
		ttls:     map[string]int64{},
	}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	switch script {
	case windowCounterScript:
		f.counters[key]++
		if ttl := args[0].(int64); f.counters[key] == 1 && ttl > 0 {
			f.ttls[key] = ttl
		}
		return redis.NewCmdResult(f.counters[key], nil)
	case swapIfValueScript:
		if v, ok := f.data[key]; ok && v == args[0].(string) {
			f.data[key] = args[1].(string)
			f.ttls[key] = args[2].(int64)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case deleteIfValueScript:
		if v, ok := f.data[key]; ok && v == args[0].(string) {
			delete(f.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
}
