// Package ledger records user-entered income and expenses and announces
// completed entries to the rule engine.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/domain/outbox"
	"github.com/amirasaad/autotransfer/pkg/eventbus"
	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/amirasaad/autotransfer/pkg/retry"
	outboxsvc "github.com/amirasaad/autotransfer/pkg/service/outbox"
	"github.com/google/uuid"
)

// Service writes ledger entries. Balances change only through
// compare-and-swap, the same primitive the transfer executor uses.
type Service struct {
	uow    repository.UnitOfWork
	bus    eventbus.Bus
	relay  *outboxsvc.Relay
	policy retry.Policy
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new Service with the provided dependencies.
func NewService(deps config.Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var (
		retryCfg  *config.Retry
		outboxCfg *config.Outbox
	)
	if deps.Config != nil {
		retryCfg = deps.Config.Retry
		outboxCfg = deps.Config.Outbox
	}
	return &Service{
		uow:    deps.Uow,
		bus:    deps.EventBus,
		relay:  outboxsvc.NewRelay(deps.Uow, deps.EventBus, outboxsvc.OptionsFromConfig(outboxCfg), logger),
		policy: retry.FromConfig(retryCfg),
		logger: logger.With("service", "ledger"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateAccount opens an account for userID. A non-zero opening balance is
// recorded as a completed opening entry in the same unit, so the balance
// always equals the sum of the account's completed entries. Opening entries
// are not announced and never trigger rules.
func (s *Service) CreateAccount(
	ctx context.Context,
	userID uuid.UUID,
	currency string,
	openingBalance int64,
) (*account.Account, error) {
	now := s.now()
	acc, err := account.New().
		WithUserID(userID).
		WithCurrency(currency).
		WithBalance(openingBalance).
		WithCreatedAt(now).
		Build()
	if err != nil {
		return nil, err
	}
	if err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.AccountRepository()
		if err != nil {
			return err
		}
		if err := repo.Create(ctx, acc); err != nil {
			return err
		}
		if openingBalance == 0 {
			return nil
		}
		txRepo, err := uow.TransactionRepository()
		if err != nil {
			return err
		}
		entry := account.NewTransactionFromData(
			uuid.New(), userID, acc.ID, openingBalance, acc.Currency,
			account.KindOpening, account.StatusCompleted, now,
		)
		entry.Description = "opening balance"
		return txRepo.Create(ctx, entry)
	}); err != nil {
		return nil, err
	}
	s.logger.Info("✅ [SUCCESS] Account created", "account_id", acc.ID, "user_id", userID, "currency", currency)
	return acc, nil
}

// GetAccount returns an account owned by userID.
func (s *Service) GetAccount(ctx context.Context, userID, accountID uuid.UUID) (*account.Account, error) {
	repo, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	acc, err := repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acc.IsOwnedBy(userID) {
		return nil, domain.ErrForbidden
	}
	return acc, nil
}

// ListAccounts returns the accounts of userID.
func (s *Service) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*account.Account, error) {
	repo, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	return repo.ListByUser(ctx, userID)
}

// ListTransactions returns the entries of an owned account.
func (s *Service) ListTransactions(ctx context.Context, userID, accountID uuid.UUID) ([]*account.Transaction, error) {
	if _, err := s.GetAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	repo, err := s.uow.TransactionRepository()
	if err != nil {
		return nil, err
	}
	return repo.ListByAccount(ctx, accountID)
}

// Post records an income or expense of amount minor units on an owned
// account. The entry is written pending, the balance is swapped, and the
// entry is completed in one unit together with its staged
// TransactionCompleted, which is published after commit.
func (s *Service) Post(
	ctx context.Context,
	userID, accountID uuid.UUID,
	amount int64,
	kind account.Kind,
	description string,
) (*account.Transaction, error) {
	if kind != account.KindIncome && kind != account.KindExpense {
		return nil, fmt.Errorf("kind %q cannot be posted directly: %w", kind, domain.ErrValidation)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %w", account.ErrInvalidAmount)
	}
	logger := s.logger.With("account_id", accountID, "kind", kind, "amount", amount)

	var (
		tx   *account.Transaction
		msgs []*outbox.Message
	)
	err := s.policy.Do(ctx, func() error {
		var attemptErr error
		tx, msgs, attemptErr = s.post(ctx, userID, accountID, amount, kind, description)
		return attemptErr
	}, retry.IsTransient)
	if err != nil {
		logger.Warn("❌ [ERROR] Posting failed", "error", err)
		return nil, err
	}
	logger.Info("✅ [SUCCESS] Transaction posted", "transaction_id", tx.ID)
	s.relay.Publish(ctx, msgs)
	return tx, nil
}

func (s *Service) post(
	ctx context.Context,
	userID, accountID uuid.UUID,
	amount int64,
	kind account.Kind,
	description string,
) (*account.Transaction, []*outbox.Message, error) {
	var (
		tx   *account.Transaction
		msgs []*outbox.Message
	)
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		accRepo, err := uow.AccountRepository()
		if err != nil {
			return err
		}
		txRepo, err := uow.TransactionRepository()
		if err != nil {
			return err
		}
		acc, err := accRepo.Get(ctx, accountID)
		if err != nil {
			return err
		}
		if !acc.IsOwnedBy(userID) {
			return domain.ErrForbidden
		}

		now := s.now()
		signed, next := amount, int64(0)
		switch kind {
		case account.KindExpense:
			signed = -amount
			next, err = acc.Debited(amount)
		default:
			next, err = acc.Credited(amount)
		}
		if err != nil {
			return err
		}

		entry := account.NewTransactionFromData(uuid.New(), userID, accountID, signed, acc.Currency, kind, account.StatusPending, now)
		entry.Description = description
		if err := txRepo.Create(ctx, entry); err != nil {
			return err
		}
		if err := accRepo.CompareAndSwapBalance(ctx, acc.ID, acc.Balance, next, now); err != nil {
			return err
		}
		if err := entry.Transition(account.StatusCompleted, now); err != nil {
			return err
		}
		if err := txRepo.UpdateStatus(ctx, entry.ID, account.StatusPending, account.StatusCompleted, now); err != nil {
			return err
		}
		staged, err := s.relay.Stage(ctx, uow, events.FromTransaction(entry))
		if err != nil {
			return err
		}
		tx, msgs = entry, staged
		return nil
	})
	return tx, msgs, err
}

// Cancel moves a pending entry to cancelled. Completed entries are immutable.
func (s *Service) Cancel(ctx context.Context, userID, transactionID uuid.UUID) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.TransactionRepository()
		if err != nil {
			return err
		}
		tx, err := repo.Get(ctx, transactionID)
		if err != nil {
			return err
		}
		if tx.UserID != userID {
			return domain.ErrForbidden
		}
		now := s.now()
		if err := tx.Transition(account.StatusCancelled, now); err != nil {
			return err
		}
		return repo.UpdateStatus(ctx, tx.ID, account.StatusPending, account.StatusCancelled, now)
	})
}

// Publish announces a transaction completed by an external ledger writer.
// The rule engine treats it like any locally posted entry.
func (s *Service) Publish(ctx context.Context, e *events.TransactionCompleted) error {
	if e.TransactionID == uuid.Nil || e.AccountID == uuid.Nil {
		return fmt.Errorf("transaction_id and account_id are required: %w", domain.ErrValidation)
	}
	if !e.Kind.Valid() || e.Kind == account.KindOpening {
		return fmt.Errorf("kind %q cannot be ingested: %w", e.Kind, domain.ErrValidation)
	}
	if e.Status == "" {
		e.Status = account.StatusCompleted
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now()
	}
	if s.bus == nil {
		return nil
	}
	if err := s.bus.Emit(ctx, e); err != nil {
		return fmt.Errorf("publish transaction %s: %w", e.TransactionID, err)
	}
	s.logger.Info("📤 [EMIT] TransactionCompleted", "transaction_id", e.TransactionID, "source", "ingest")
	return nil
}
