package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis_TryLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	a := NewRedis(client, "test:", nil)
	b := NewRedis(client, "test:", nil)

	unlock, ok, err := a.TryLock(ctx, "scheduler-pass", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("test:lock:scheduler-pass"))

	_, ok, err = b.TryLock(ctx, "scheduler-pass", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:scheduler-pass"))

	unlock, ok, err = b.TryLock(ctx, "scheduler-pass", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, unlock(ctx))
}

func TestRedis_ExpiredLockCanBeTaken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	l := NewRedis(client, "", nil)

	_, ok, err := l.TryLock(ctx, "pass", 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(3 * time.Second)

	_, ok, err = l.TryLock(ctx, "pass", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryLock_EmptyName(t *testing.T) {
	_, _, err := NewLocal().TryLock(context.Background(), " ", time.Second)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestLocal_TryLock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.now = func() time.Time { return now }

	unlock, ok, err := l.TryLock(ctx, "pass", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = l.TryLock(ctx, "pass", time.Minute)
	assert.False(t, ok)

	_, ok, _ = l.TryLock(ctx, "other", time.Minute)
	assert.True(t, ok, "names are independent")

	require.NoError(t, unlock(ctx))
	unlock, ok, _ = l.TryLock(ctx, "pass", time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	unlock2, ok, _ := l.TryLock(ctx, "pass", time.Minute)
	require.True(t, ok, "expired holder is superseded")
	assert.Error(t, unlock(ctx), "stale holder cannot release the new lock")
	require.NoError(t, unlock2(ctx))
}
