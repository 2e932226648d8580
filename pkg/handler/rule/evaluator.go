// Package rule evaluates account rules against completed transactions and
// scheduler ticks.
package rule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/autotransfer/pkg/calculator"
	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/amirasaad/autotransfer/pkg/handler/common"
	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/amirasaad/autotransfer/pkg/service/transfer"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Executor applies a computed transfer for a reserved (rule, event) pair.
type Executor interface {
	Execute(ctx context.Context, r *rule.AccountRule, amount int64, eventID uuid.UUID) (*transfer.Result, error)
}

// Evaluation is what happened to one (rule, event) pair.
type Evaluation struct {
	RuleID        uuid.UUID
	EventID       uuid.UUID
	Decision      common.Decision
	Outcome       rule.Outcome
	Amount        int64
	TransactionID *uuid.UUID
	Err           error
}

// Options tune an Evaluator. Zero values fall back to defaults.
type Options struct {
	Workers     int
	PassTimeout time.Duration
	// RecoverBatch bounds how many stale reservations one Recover call handles.
	RecoverBatch int
}

// Evaluator selects matching active rules for an event, reserves each
// (rule, event) pair through the guard and drives it to a terminal outcome.
type Evaluator struct {
	uow      repository.UnitOfWork
	guard    *common.IdempotencyGuard
	executor Executor
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewEvaluator wires an Evaluator.
func NewEvaluator(
	uow repository.UnitOfWork,
	guard *common.IdempotencyGuard,
	executor Executor,
	opts Options,
	logger *slog.Logger,
) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = 30 * time.Second
	}
	if opts.RecoverBatch <= 0 {
		opts.RecoverBatch = 100
	}
	return &Evaluator{
		uow:      uow,
		guard:    guard,
		executor: executor,
		opts:     opts,
		logger:   logger.With("handler", "rule_evaluator"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Eligible reports whether a completed transaction may trigger rules.
// Entries written by a rule never do, so a transfer cannot cascade.
func Eligible(e *events.TransactionCompleted) bool {
	if e.Status != account.StatusCompleted || e.SourceRuleID != nil || e.Kind.IsTransfer() {
		return false
	}
	_, ok := rule.ForTransactionKind(e.Kind)
	return ok
}

// EvaluateTransaction evaluates every active rule watching the transaction's
// account for its kind. Rules are evaluated concurrently. The returned error
// joins store failures that left a pair without a terminal outcome.
func (ev *Evaluator) EvaluateTransaction(ctx context.Context, e *events.TransactionCompleted) ([]Evaluation, error) {
	logger := ev.logger.With("event_type", e.Type(), "transaction_id", e.TransactionID, "account_id", e.AccountID)
	if !Eligible(e) {
		logger.Debug("🔁 [SKIP] Transaction not eligible for rules",
			"kind", e.Kind, "status", e.Status, "engine_created", e.SourceRuleID != nil)
		return nil, nil
	}
	trigger, _ := rule.ForTransactionKind(e.Kind)

	ctx, cancel := context.WithTimeout(ctx, ev.opts.PassTimeout)
	defer cancel()

	ruleRepo, err := ev.uow.RuleRepository()
	if err != nil {
		return nil, err
	}
	candidates, err := ruleRepo.ListActiveBySource(ctx, e.AccountID, trigger)
	if err != nil {
		logger.Error("❌ [ERROR] Failed to list rules", "error", err)
		return nil, fmt.Errorf("list rules for account %s: %w", e.AccountID, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	logger.Info("🟢 [START] Evaluating rules", "rules", len(candidates))

	var (
		mu      sync.Mutex
		results = make([]Evaluation, 0, len(candidates))
		errs    []error
	)
	var g errgroup.Group
	g.SetLimit(ev.opts.Workers)
	for _, candidate := range candidates {
		ruleID := candidate.ID
		g.Go(func() error {
			res, err := ev.evaluate(ctx, ruleID, e.TransactionID, e.TriggerAmount(), nil, func(r *rule.AccountRule) bool {
				return r.MatchesTransaction(e.AccountID, e.Kind)
			})
			mu.Lock()
			defer mu.Unlock()
			if res != nil {
				results = append(results, *res)
			}
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// EvaluateTick evaluates the scheduled rule a tick belongs to. A nil
// Evaluation means the rule is gone or no longer eligible.
func (ev *Evaluator) EvaluateTick(ctx context.Context, t *events.ScheduleTick) (*Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, ev.opts.PassTimeout)
	defer cancel()
	due := t.DueAt
	return ev.evaluate(ctx, t.RuleID, t.EventID, 0, &due, func(r *rule.AccountRule) bool {
		return r.IsActive && r.Trigger == rule.TriggerScheduled
	})
}

// evaluate runs one (rule, event) pair. The rule is reloaded so that a
// deactivation made visible before this point is honored.
func (ev *Evaluator) evaluate(
	ctx context.Context,
	ruleID, eventID uuid.UUID,
	eventAmount int64,
	dueAt *time.Time,
	matches func(*rule.AccountRule) bool,
) (*Evaluation, error) {
	logger := ev.logger.With("rule_id", ruleID, "event_id", eventID)

	r, src, err := ev.load(ctx, ruleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Info("🔁 [SKIP] Rule or source account missing, treated as inactive", "error", err)
			return nil, nil
		}
		return nil, err
	}
	if !matches(r) {
		logger.Info("🔁 [SKIP] Rule inactive or no longer matching")
		return nil, nil
	}

	triggerAmount := calculator.TriggerAmount(r, eventAmount, src.Balance)
	decision, err := ev.guard.Reserve(ctx, r.ID, eventID, triggerAmount, dueAt)
	if err != nil {
		return nil, err
	}
	if decision == common.AlreadyExecuted {
		return &Evaluation{RuleID: r.ID, EventID: eventID, Decision: decision}, nil
	}
	return ev.drive(ctx, logger, r, eventID, triggerAmount, src.Balance)
}

// drive takes a reserved pair to a terminal outcome.
func (ev *Evaluator) drive(
	ctx context.Context,
	logger *slog.Logger,
	r *rule.AccountRule,
	eventID uuid.UUID,
	triggerAmount, available int64,
) (*Evaluation, error) {
	res := &Evaluation{RuleID: r.ID, EventID: eventID, Decision: common.Reserved}

	calc := calculator.Compute(r, triggerAmount, available)
	if calc.Skipped {
		return ev.finish(ctx, logger, res, calc.Reason.Outcome(), calc.Computed, string(calc.Reason))
	}

	out, err := ev.executor.Execute(ctx, r, calc.Amount, eventID)
	switch {
	case err == nil:
		txID := out.TransactionID()
		res.Outcome = rule.OutcomeSucceeded
		res.Amount = calc.Amount
		res.TransactionID = &txID
		logger.Info("✅ [SUCCESS] Rule executed", "amount", calc.Amount, "capped", calc.Capped)
		return res, nil
	case errors.Is(err, account.ErrInsufficientFunds):
		return ev.finish(ctx, logger, res, rule.OutcomeSkippedInsufficientFunds, calc.Amount, string(rule.SkipInsufficientFunds))
	case errors.Is(err, rule.ErrNotReserved):
		logger.Info("🔁 [SKIP] Pair finalized by another worker")
		res.Decision = common.AlreadyExecuted
		return res, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Left reserved; Recover picks it up.
		return nil, err
	}

	logger.Error("❌ [ERROR] Rule execution failed", "error", err)
	res.Err = err
	return ev.finish(ctx, logger, res, rule.OutcomeFailed, calc.Amount, err.Error())
}

func (ev *Evaluator) finish(
	ctx context.Context,
	logger *slog.Logger,
	res *Evaluation,
	outcome rule.Outcome,
	amount int64,
	reason string,
) (*Evaluation, error) {
	err := ev.guard.Complete(ctx, res.RuleID, res.EventID, rule.Completion{
		Outcome:     outcome,
		Amount:      amount,
		Reason:      reason,
		CompletedAt: ev.now(),
	})
	if errors.Is(err, rule.ErrNotReserved) {
		res.Decision = common.AlreadyExecuted
		return res, nil
	}
	if err != nil {
		logger.Error("❌ [ERROR] Failed to record outcome", "outcome", outcome, "error", err)
		return nil, err
	}
	if outcome != rule.OutcomeFailed {
		logger.Info("⏭️ [SKIP] Rule skipped", "outcome", outcome, "reason", reason, "amount", amount)
	}
	res.Outcome = outcome
	res.Amount = amount
	return res, nil
}

func (ev *Evaluator) load(ctx context.Context, ruleID uuid.UUID) (*rule.AccountRule, *account.Account, error) {
	ruleRepo, err := common.GetRuleRepository(ev.uow, ev.logger)
	if err != nil {
		return nil, nil, err
	}
	r, err := ruleRepo.Get(ctx, ruleID)
	if err != nil {
		return nil, nil, fmt.Errorf("rule %s: %w", ruleID, err)
	}
	accRepo, err := common.GetAccountRepository(ev.uow, ev.logger)
	if err != nil {
		return nil, nil, err
	}
	src, err := accRepo.Get(ctx, r.SourceAccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("source account %s: %w", r.SourceAccountID, err)
	}
	return r, src, nil
}

// Recover drives reservations older than olderThan to a terminal outcome.
// They are left behind when a process stops between reserving and
// finalizing. The executor finalizes conditionally, so a pair that finishes
// concurrently is never applied twice.
func (ev *Evaluator) Recover(ctx context.Context, olderThan time.Duration) ([]Evaluation, error) {
	execRepo, err := common.GetExecutionRepository(ev.uow, ev.logger)
	if err != nil {
		return nil, err
	}
	stale, err := execRepo.ListStale(ctx, ev.now().Add(-olderThan), ev.opts.RecoverBatch)
	if err != nil {
		return nil, fmt.Errorf("list stale reservations: %w", err)
	}
	if len(stale) == 0 {
		return nil, nil
	}
	ev.logger.Info("🟢 [START] Recovering stale reservations", "count", len(stale))

	var (
		results []Evaluation
		errs    []error
	)
	for _, rec := range stale {
		res, err := ev.recoverOne(ctx, rec)
		if res != nil {
			results = append(results, *res)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

func (ev *Evaluator) recoverOne(ctx context.Context, rec *rule.ExecutionRecord) (*Evaluation, error) {
	logger := ev.logger.With("rule_id", rec.RuleID, "event_id", rec.EventID, "recovery", true)
	res := &Evaluation{RuleID: rec.RuleID, EventID: rec.EventID, Decision: common.Reserved}

	r, src, err := ev.load(ctx, rec.RuleID)
	if errors.Is(err, domain.ErrNotFound) {
		return ev.finish(ctx, logger, res, rule.OutcomeFailed, 0, err.Error())
	}
	if err != nil {
		return nil, err
	}
	if !r.IsActive {
		return ev.finish(ctx, logger, res, rule.OutcomeFailed, 0, "rule deactivated before completion")
	}
	triggerAmount := calculator.TriggerAmount(r, rec.TriggerAmount, src.Balance)
	return ev.drive(ctx, logger, r, rec.EventID, triggerAmount, src.Balance)
}
