package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/amirasaad/autotransfer/pkg/retry"
	"github.com/google/uuid"
)

// Decision is the answer of a reservation attempt.
type Decision int

const (
	// Reserved means the caller owns the (rule, event) pair and must finalize it.
	Reserved Decision = iota + 1
	// AlreadyExecuted means another evaluation owns or finished the pair.
	AlreadyExecuted
)

func (d Decision) String() string {
	switch d {
	case Reserved:
		return "reserved"
	case AlreadyExecuted:
		return "already_executed"
	}
	return "unknown"
}

// IdempotencyGuard records which (rule, event) pairs have been claimed. The
// unique key of the execution record store is the only serialization point,
// so it holds across processes.
type IdempotencyGuard struct {
	uow    repository.UnitOfWork
	policy retry.Policy
	logger *slog.Logger
	now    func() time.Time
}

// NewIdempotencyGuard creates a guard over the execution record store.
func NewIdempotencyGuard(
	uow repository.UnitOfWork,
	policy retry.Policy,
	logger *slog.Logger,
) *IdempotencyGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyGuard{
		uow:    uow,
		policy: policy,
		logger: logger.With("component", "idempotency_guard"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Reserve claims (ruleID, eventID). Exactly one concurrent caller observes
// Reserved. Store failures are retried; once attempts run out the error
// wraps rule.ErrExecutionFailed.
func (g *IdempotencyGuard) Reserve(
	ctx context.Context,
	ruleID, eventID uuid.UUID,
	triggerAmount int64,
	dueAt *time.Time,
) (Decision, error) {
	repo, err := g.uow.ExecutionRepository()
	if err != nil {
		return 0, err
	}
	rec := rule.NewReservation(ruleID, eventID, triggerAmount, dueAt, g.now())

	var created bool
	err = g.policy.Do(ctx, func() error {
		var opErr error
		created, opErr = repo.Insert(ctx, rec)
		return opErr
	}, storeTransient)
	if err != nil {
		g.logger.Error("❌ [ERROR] Reservation failed", "rule_id", ruleID, "event_id", eventID, "error", err)
		return 0, fmt.Errorf("reserve %s/%s: %w: %w", ruleID, eventID, rule.ErrExecutionFailed, err)
	}
	if !created {
		g.logger.Info("🔁 [SKIP] Already executed", "rule_id", ruleID, "event_id", eventID)
		return AlreadyExecuted, nil
	}
	return Reserved, nil
}

// Complete moves a reserved pair to its terminal outcome. It returns
// rule.ErrNotReserved when another writer already finalized it.
func (g *IdempotencyGuard) Complete(
	ctx context.Context,
	ruleID, eventID uuid.UUID,
	c rule.Completion,
) error {
	if !c.Outcome.Terminal() {
		return fmt.Errorf("outcome %q is not terminal: %w", c.Outcome, domain.ErrValidation)
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = g.now()
	}
	repo, err := g.uow.ExecutionRepository()
	if err != nil {
		return err
	}
	err = g.policy.Do(ctx, func() error {
		return repo.Complete(ctx, ruleID, eventID, c)
	}, storeTransient)
	if err != nil && !errors.Is(err, rule.ErrNotReserved) {
		return fmt.Errorf("complete %s/%s: %w: %w", ruleID, eventID, rule.ErrExecutionFailed, err)
	}
	return err
}

// RecordMissed writes a terminal missed entry for a superseded scheduled
// period. It reports false when the pair was already recorded.
func (g *IdempotencyGuard) RecordMissed(
	ctx context.Context,
	ruleID, eventID uuid.UUID,
	dueAt time.Time,
) (bool, error) {
	repo, err := g.uow.ExecutionRepository()
	if err != nil {
		return false, err
	}
	rec := rule.NewMissed(ruleID, eventID, dueAt, g.now())
	var created bool
	err = g.policy.Do(ctx, func() error {
		var opErr error
		created, opErr = repo.Insert(ctx, rec)
		return opErr
	}, storeTransient)
	if err != nil {
		return false, fmt.Errorf("record missed %s/%s: %w: %w", ruleID, eventID, rule.ErrExecutionFailed, err)
	}
	return created, nil
}

// Lookup returns the record of a pair, or domain.ErrNotFound.
func (g *IdempotencyGuard) Lookup(ctx context.Context, ruleID, eventID uuid.UUID) (*rule.ExecutionRecord, error) {
	repo, err := g.uow.ExecutionRepository()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, ruleID, eventID)
}

// storeTransient treats every store error as retryable except outcomes the
// store reports deliberately and context termination.
func storeTransient(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, rule.ErrNotReserved),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound):
		return false
	}
	return true
}
