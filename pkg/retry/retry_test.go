package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/stretchr/testify/assert"
)

var fast = Policy{MaxAttempts: 4, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestDo_SucceedsAfterConflicts(t *testing.T) {
	calls := 0
	err := fast.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return domain.ErrConflict
		}
		return nil
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBoundedAttempts(t *testing.T) {
	calls := 0
	err := fast.Do(context.Background(), func() error {
		calls++
		return domain.ErrConflict
	}, nil)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 4, calls)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := fast.Do(context.Background(), func() error {
		calls++
		return boom
	}, nil)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomTransient(t *testing.T) {
	flaky := errors.New("flaky")
	calls := 0
	err := fast.Do(context.Background(), func() error {
		calls++
		return flaky
	}, func(err error) bool { return errors.Is(err, flaky) })
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxAttempts: 100, InitialInterval: 10 * time.Millisecond, MaxInterval: 10 * time.Millisecond}
	calls := 0
	err := p.Do(ctx, func() error {
		calls++
		return domain.ErrConflict
	}, nil)
	assert.Error(t, err)
	assert.Less(t, calls, 100)
}

func TestFromConfig(t *testing.T) {
	assert.Equal(t, DefaultPolicy, FromConfig(nil))
	p := FromConfig(&config.Retry{MaxAttempts: 9})
	assert.Equal(t, 9, p.MaxAttempts)
	assert.Equal(t, DefaultPolicy.InitialInterval, p.InitialInterval)
}
