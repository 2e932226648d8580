package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completed() *events.TransactionCompleted {
	return events.NewTransactionCompleted(uuid.New(), uuid.New(), uuid.New(), 1500, account.KindIncome)
}

func TestMemoryEventBus_EmitDispatchesByType(t *testing.T) {
	bus := NewWithMemory(nil)
	var got []events.Event
	bus.Register(events.EventTypeTransactionCompleted, func(_ context.Context, e events.Event) error {
		got = append(got, e)
		return nil
	})
	bus.Register(events.EventTypeScheduleTick, func(context.Context, events.Event) error {
		t.Fatal("tick handler must not run")
		return nil
	})

	evt := completed()
	require.NoError(t, bus.Emit(context.Background(), evt))
	require.Len(t, got, 1)
	assert.Same(t, evt, got[0])
	assert.Len(t, bus.Published(), 1)

	bus.ClearPublished()
	assert.Empty(t, bus.Published())
}

func TestMemoryEventBus_JoinsHandlerErrorsAndRecoversPanics(t *testing.T) {
	bus := NewWithMemory(nil)
	boom := errors.New("boom")
	var ran atomic.Int32
	bus.Register(events.EventTypeTransactionCompleted, func(context.Context, events.Event) error {
		ran.Add(1)
		return boom
	})
	bus.Register(events.EventTypeTransactionCompleted, func(context.Context, events.Event) error {
		ran.Add(1)
		panic("handler exploded")
	})
	bus.Register(events.EventTypeTransactionCompleted, func(context.Context, events.Event) error {
		ran.Add(1)
		return nil
	})

	err := bus.Emit(context.Background(), completed())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "handler exploded")
	assert.Equal(t, int32(3), ran.Load())
}

func TestMemoryEventBus_PublishedIsBounded(t *testing.T) {
	bus := NewWithMemory(nil)
	ctx := context.Background()
	var last *events.TransactionCompleted
	for i := 0; i < maxPublished+10; i++ {
		last = completed()
		require.NoError(t, bus.Emit(ctx, last))
	}

	published := bus.Published()
	require.Len(t, published, maxPublished)
	assert.Same(t, last, published[len(published)-1])
}
