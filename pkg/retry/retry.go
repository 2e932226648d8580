// Package retry runs operations under a bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted wraps the last transient error once every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds the number of attempts and the wait between them.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy is used when no configuration is supplied.
var DefaultPolicy = Policy{
	MaxAttempts:     5,
	InitialInterval: 20 * time.Millisecond,
	MaxInterval:     time.Second,
}

// FromConfig builds a Policy, falling back to DefaultPolicy for unset values.
func FromConfig(cfg *config.Retry) Policy {
	p := DefaultPolicy
	if cfg == nil {
		return p
	}
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		p.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		p.MaxInterval = cfg.MaxInterval
	}
	return p
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrConflict)
}

// Do calls op until it succeeds, returns a non-transient error, the context
// ends, or MaxAttempts is reached. A nil transient func means IsTransient.
func (p Policy) Do(ctx context.Context, op func() error, transient func(error) bool) error {
	if transient == nil {
		transient = IsTransient
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	err := backoff.Retry(func() error {
		err := op()
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	if err != nil && transient(err) {
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
	}
	return err
}
