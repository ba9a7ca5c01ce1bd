package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryLockStore) LockKey(name string) string { return "lock:" + name }

func TestRedisLockIsExclusiveAndOwnerScoped(t *testing.T) {
	store := newMemoryLockStore()
	ctx := context.Background()

	first, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// the loser never held the lock
	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "lock:cron")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockExpiredHolderCannotFreeSuccessor(t *testing.T) {
	store := newMemoryLockStore()
	ctx := context.Background()

	stale, _ := NewRedisLock(store, "cron", time.Minute)
	fresh, _ := NewRedisLock(store, "cron", time.Minute)

	ok, _ := stale.Acquire(ctx)
	require.True(t, ok)
	delete(store.values, "lock:cron") // ttl elapsed
	ok, _ = fresh.Acquire(ctx)
	require.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	assert.Equal(t, fresh.token, store.values["lock:cron"])
}

func TestRedisLockDefaultsAndErrors(t *testing.T) {
	_, err := NewRedisLock(nil, "cron", 0)
	require.Error(t, err)
	_, err = NewRedisLock(newMemoryLockStore(), "", 0)
	require.Error(t, err)

	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, "cron", 0)
	require.NoError(t, err)
	_, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, store.ttls["lock:cron"])

	store.err = errors.New("redis down")
	other, _ := NewRedisLock(store, "other", time.Second)
	_, err = other.Acquire(context.Background())
	assert.ErrorContains(t, err, "redis down")
}
