package repository

import (
	"context"
	"fmt"
	"reflect"

	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/amirasaad/autotransfer/pkg/repository/account"
	"github.com/amirasaad/autotransfer/pkg/repository/execution"
	"github.com/amirasaad/autotransfer/pkg/repository/outbox"
	"github.com/amirasaad/autotransfer/pkg/repository/rule"
	"github.com/amirasaad/autotransfer/pkg/repository/transaction"
	"gorm.io/gorm"
)

// UoW provides transaction boundary and repository access in one abstraction.
// All repositories handed out inside Do share the same *gorm.DB transaction.
type UoW struct {
	db           *gorm.DB
	tx           *gorm.DB
	repoRegistry map[reflect.Type]func(*gorm.DB) any
}

// NewUoW creates a new UoW for the given *gorm.DB.
func NewUoW(db *gorm.DB) *UoW {
	return &UoW{
		db: db,
		repoRegistry: map[reflect.Type]func(*gorm.DB) any{
			repository.AccountRepositoryType:     func(db *gorm.DB) any { return NewAccountRepository(db) },
			repository.TransactionRepositoryType: func(db *gorm.DB) any { return NewTransactionRepository(db) },
			repository.RuleRepositoryType:        func(db *gorm.DB) any { return NewRuleRepository(db) },
			repository.ExecutionRepositoryType:   func(db *gorm.DB) any { return NewExecutionRepository(db) },
			repository.OutboxRepositoryType:      func(db *gorm.DB) any { return NewOutboxRepository(db) },
		},
	}
}

// Do runs fn in a database transaction. A UoW already bound to a transaction
// runs fn inside it.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	if u.tx != nil {
		return fn(u)
	}
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UoW{db: u.db, tx: tx, repoRegistry: u.repoRegistry})
	})
}

// GetRepository returns the repository registered for repoType bound to the
// current session.
func (u *UoW) GetRepository(repoType reflect.Type) (any, error) {
	constructor, ok := u.repoRegistry[repoType]
	if !ok {
		return nil, fmt.Errorf("unsupported repository type: %v", repoType)
	}
	return constructor(u.session()), nil
}

func (u *UoW) session() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

func (u *UoW) AccountRepository() (account.Repository, error) {
	return typed[account.Repository](u, repository.AccountRepositoryType)
}

func (u *UoW) TransactionRepository() (transaction.Repository, error) {
	return typed[transaction.Repository](u, repository.TransactionRepositoryType)
}

func (u *UoW) RuleRepository() (rule.Repository, error) {
	return typed[rule.Repository](u, repository.RuleRepositoryType)
}

func (u *UoW) ExecutionRepository() (execution.Repository, error) {
	return typed[execution.Repository](u, repository.ExecutionRepositoryType)
}

func (u *UoW) OutboxRepository() (outbox.Repository, error) {
	return typed[outbox.Repository](u, repository.OutboxRepositoryType)
}

func typed[T any](u *UoW, t reflect.Type) (T, error) {
	var zero T
	repoAny, err := u.GetRepository(t)
	if err != nil {
		return zero, err
	}
	repo, ok := repoAny.(T)
	if !ok {
		return zero, fmt.Errorf("repository for %v has unexpected type %T", t, repoAny)
	}
	return repo, nil
}

var _ repository.UnitOfWork = (*UoW)(nil)
