package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisBus(t *testing.T) (*RedisEventBus, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewWithRedisClient(client, &config.EventBus{
		TopicPrefix:  "test",
		DLQRetry:     2,
		DLQBatchSize: 10,
		BlockTimeout: 50 * time.Millisecond,
	}, nil)
	t.Cleanup(func() { _ = bus.Close() })
	return bus, client
}

func TestRedisBus_HandlerReceivesEvent(t *testing.T) {
	bus, _ := setupRedisBus(t)
	received := make(chan *events.TransactionCompleted, 1)
	bus.Register(events.EventTypeTransactionCompleted, func(_ context.Context, e events.Event) error {
		received <- e.(*events.TransactionCompleted)
		return nil
	})

	evt := completed()
	require.NoError(t, bus.Emit(context.Background(), evt))

	select {
	case got := <-received:
		assert.Equal(t, evt.TransactionID, got.TransactionID)
		assert.Equal(t, evt.Amount, got.Amount)
	case <-time.After(3 * time.Second):
		t.Fatal("handler did not receive event in time")
	}
}

func TestRedisBus_FailingHandlerDeadLetters(t *testing.T) {
	bus, client := setupRedisBus(t)
	ctx := context.Background()
	var attempts atomic.Int32
	var healthy atomic.Bool
	bus.Register(events.EventTypeTransactionCompleted, func(context.Context, events.Event) error {
		attempts.Add(1)
		if healthy.Load() {
			return nil
		}
		return errors.New("downstream unavailable")
	})

	require.NoError(t, bus.Emit(ctx, completed()))

	dlq := dlqStreamName("test", events.EventTypeTransactionCompleted)
	require.Eventually(t, func() bool {
		n, err := client.XLen(ctx, dlq).Result()
		return err == nil && n == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(2), attempts.Load())

	stream := streamNameFor("test", events.EventTypeTransactionCompleted)
	group := groupNameFor("test", events.EventTypeTransactionCompleted)
	require.Eventually(t, func() bool {
		p, err := client.XPending(ctx, stream, group).Result()
		return err == nil && p.Count == 0
	}, 3*time.Second, 20*time.Millisecond)

	healthy.Store(true)
	moved, err := bus.RetryDLQ(ctx, events.EventTypeTransactionCompleted)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	require.Eventually(t, func() bool { return attempts.Load() == 3 }, 3*time.Second, 20*time.Millisecond)
	n, err := client.XLen(ctx, dlq).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisBus_UndecodableMessageDeadLetters(t *testing.T) {
	bus, client := setupRedisBus(t)
	ctx := context.Background()
	bus.Register(events.EventTypeScheduleTick, func(context.Context, events.Event) error {
		t.Error("handler must not run for a poison message")
		return nil
	})

	stream := streamNameFor("test", events.EventTypeScheduleTick)
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{redisEventField: "{not json"},
	}).Err())

	dlq := dlqStreamName("test", events.EventTypeScheduleTick)
	require.Eventually(t, func() bool {
		n, err := client.XLen(ctx, dlq).Result()
		return err == nil && n == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestNewWithRedis_InvalidURL(t *testing.T) {
	_, err := NewWithRedis("", nil, nil)
	assert.Error(t, err)
	_, err = NewWithRedis("not-a-url", nil, nil)
	assert.Error(t, err)
}
