// Package transfer applies a rule's transfer to the ledger as one atomic unit.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/domain/outbox"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/amirasaad/autotransfer/pkg/eventbus"
	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/amirasaad/autotransfer/pkg/retry"
	outboxsvc "github.com/amirasaad/autotransfer/pkg/service/outbox"
	"github.com/google/uuid"
)

// Result carries the two ledger entries written for one transfer.
type Result struct {
	Out *account.Transaction
	In  *account.Transaction

	staged []*outbox.Message
}

// TransactionID is the id reported on the execution record: the transfer-out entry.
func (r *Result) TransactionID() uuid.UUID {
	return r.Out.ID
}

// Executor performs the double-entry mutation for a reserved (rule, event)
// pair. Balances move only through compare-and-swap; a conflict rolls the
// whole unit back and retries it.
type Executor struct {
	uow    repository.UnitOfWork
	relay  *outboxsvc.Relay
	policy retry.Policy
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Executor. The completion events of both entries are staged
// with the transfer and sent on bus after commit; with a nil bus they stay
// staged.
func New(
	uow repository.UnitOfWork,
	bus eventbus.Bus,
	policy retry.Policy,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		uow:    uow,
		relay:  outboxsvc.NewRelay(uow, bus, outboxsvc.Options{}, logger),
		policy: policy,
		logger: logger.With("service", "transfer_executor"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Execute moves amount from the rule's source to its destination and
// finalizes the (rule, event) record as succeeded in the same unit.
//
// account.ErrInsufficientFunds is authoritative here: the balance read
// inside the unit is the one the debit is conditioned on. Exhausted
// conflicts wrap rule.ErrExecutionFailed. rule.ErrNotReserved means another
// writer already finalized the pair and nothing was applied.
func (e *Executor) Execute(
	ctx context.Context,
	r *rule.AccountRule,
	amount int64,
	eventID uuid.UUID,
) (*Result, error) {
	logger := e.logger.With("rule_id", r.ID, "event_id", eventID, "amount", amount)
	if r.SourceAccountID == r.DestinationAccountID {
		return nil, fmt.Errorf("source and destination are the same account: %w", domain.ErrValidation)
	}

	var res *Result
	err := e.policy.Do(ctx, func() error {
		var attemptErr error
		res, attemptErr = e.apply(ctx, r, amount, eventID)
		if errors.Is(attemptErr, domain.ErrConflict) {
			logger.Warn("🔁 [RETRY] Balance moved during transfer", "error", attemptErr)
		}
		return attemptErr
	}, retry.IsTransient)
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			logger.Error("❌ [ERROR] Transfer retries exhausted", "error", err)
			return nil, fmt.Errorf("%w: %w", rule.ErrExecutionFailed, err)
		}
		logger.Info("⏭️ [SKIP] Transfer not applied", "reason", err)
		return nil, err
	}

	logger.Info("✅ [SUCCESS] Transfer applied",
		"transfer_out_id", res.Out.ID,
		"transfer_in_id", res.In.ID,
	)
	e.relay.Publish(ctx, res.staged)
	return res, nil
}

func (e *Executor) apply(
	ctx context.Context,
	r *rule.AccountRule,
	amount int64,
	eventID uuid.UUID,
) (*Result, error) {
	var res *Result
	err := e.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		accRepo, err := uow.AccountRepository()
		if err != nil {
			return err
		}
		txRepo, err := uow.TransactionRepository()
		if err != nil {
			return err
		}
		ruleRepo, err := uow.RuleRepository()
		if err != nil {
			return err
		}
		execRepo, err := uow.ExecutionRepository()
		if err != nil {
			return err
		}

		src, err := accRepo.Get(ctx, r.SourceAccountID)
		if err != nil {
			return fmt.Errorf("source account: %w", err)
		}
		dst, err := accRepo.Get(ctx, r.DestinationAccountID)
		if err != nil {
			return fmt.Errorf("destination account: %w", err)
		}

		now := e.now()
		out, in, err := account.NewTransferPair(src, dst, amount, r.ID, eventID, now)
		if err != nil {
			return err
		}
		srcNext, err := src.Debited(amount)
		if err != nil {
			return err
		}
		dstNext, err := dst.Credited(amount)
		if err != nil {
			return err
		}
		if err := accRepo.CompareAndSwapBalance(ctx, src.ID, src.Balance, srcNext, now); err != nil {
			return fmt.Errorf("debit source: %w", err)
		}
		if err := accRepo.CompareAndSwapBalance(ctx, dst.ID, dst.Balance, dstNext, now); err != nil {
			return fmt.Errorf("credit destination: %w", err)
		}
		if err := txRepo.Create(ctx, out); err != nil {
			return err
		}
		if err := txRepo.Create(ctx, in); err != nil {
			return err
		}
		if err := ruleRepo.MarkTriggered(ctx, r.ID, now); err != nil {
			return err
		}
		txID := out.ID
		if err := execRepo.Complete(ctx, r.ID, eventID, rule.Completion{
			Outcome:       rule.OutcomeSucceeded,
			TransactionID: &txID,
			Amount:        amount,
			CompletedAt:   now,
		}); err != nil {
			return err
		}
		staged, err := e.relay.Stage(ctx, uow, events.FromTransaction(out), events.FromTransaction(in))
		if err != nil {
			return err
		}
		res = &Result{Out: out, In: in, staged: staged}
		return nil
	})
	return res, err
}
