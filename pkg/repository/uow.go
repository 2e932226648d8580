package repository

import (
	"context"
	"reflect"

	"github.com/amirasaad/autotransfer/pkg/repository/account"
	"github.com/amirasaad/autotransfer/pkg/repository/execution"
	"github.com/amirasaad/autotransfer/pkg/repository/outbox"
	"github.com/amirasaad/autotransfer/pkg/repository/rule"
	"github.com/amirasaad/autotransfer/pkg/repository/transaction"
)

// UnitOfWork defines the contract for transactional work and type-safe repository access.
//
// Repositories obtained inside Do share the transaction. Repositories
// obtained outside Do run each call on its own.
type UnitOfWork interface {
	// Do executes fn within a transaction boundary. If fn returns an error,
	// every write made through the provided UnitOfWork is rolled back.
	// Calling Do on a UnitOfWork that is already inside a transaction joins it.
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error

	// GetRepository returns a repository of the requested interface type,
	// bound to the current session.
	//   repoAny, err := uow.GetRepository(reflect.TypeOf((*rule.Repository)(nil)).Elem())
	GetRepository(repoType reflect.Type) (any, error)

	AccountRepository() (account.Repository, error)
	TransactionRepository() (transaction.Repository, error)
	RuleRepository() (rule.Repository, error)
	ExecutionRepository() (execution.Repository, error)
	OutboxRepository() (outbox.Repository, error)
}

var (
	AccountRepositoryType     = reflect.TypeOf((*account.Repository)(nil)).Elem()
	TransactionRepositoryType = reflect.TypeOf((*transaction.Repository)(nil)).Elem()
	RuleRepositoryType        = reflect.TypeOf((*rule.Repository)(nil)).Elem()
	ExecutionRepositoryType   = reflect.TypeOf((*execution.Repository)(nil)).Elem()
	OutboxRepositoryType      = reflect.TypeOf((*outbox.Repository)(nil)).Elem()
)
