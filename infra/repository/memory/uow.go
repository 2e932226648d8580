// Package memory is an in-process implementation of the repository
// interfaces. A transaction works on a copy of the store that replaces the
// committed state when fn succeeds; transactions are serialized.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/outbox"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/amirasaad/autotransfer/pkg/repository"
	repoaccount "github.com/amirasaad/autotransfer/pkg/repository/account"
	repoexec "github.com/amirasaad/autotransfer/pkg/repository/execution"
	repooutbox "github.com/amirasaad/autotransfer/pkg/repository/outbox"
	reporule "github.com/amirasaad/autotransfer/pkg/repository/rule"
	repotx "github.com/amirasaad/autotransfer/pkg/repository/transaction"
	"github.com/google/uuid"
)

type execKey struct {
	ruleID  uuid.UUID
	eventID uuid.UUID
}

type state struct {
	accounts  map[uuid.UUID]account.Account
	txs       map[uuid.UUID]account.Transaction
	txOrder   []uuid.UUID
	rules     map[uuid.UUID]rule.AccountRule
	execs     map[execKey]rule.ExecutionRecord
	execOrder []execKey
	outbox    map[uuid.UUID]outbox.Message
	outOrder  []uuid.UUID
}

func newState() *state {
	return &state{
		accounts: map[uuid.UUID]account.Account{},
		txs:      map[uuid.UUID]account.Transaction{},
		rules:    map[uuid.UUID]rule.AccountRule{},
		execs:    map[execKey]rule.ExecutionRecord{},
		outbox:   map[uuid.UUID]outbox.Message{},
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:  make(map[uuid.UUID]account.Account, len(s.accounts)),
		txs:       make(map[uuid.UUID]account.Transaction, len(s.txs)),
		txOrder:   append([]uuid.UUID(nil), s.txOrder...),
		rules:     make(map[uuid.UUID]rule.AccountRule, len(s.rules)),
		execs:     make(map[execKey]rule.ExecutionRecord, len(s.execs)),
		execOrder: append([]execKey(nil), s.execOrder...),
		outbox:    make(map[uuid.UUID]outbox.Message, len(s.outbox)),
		outOrder:  append([]uuid.UUID(nil), s.outOrder...),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.txs {
		c.txs[k] = v
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.execs {
		c.execs[k] = v
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	return c
}

// Store holds the committed state shared by every UoW created from it.
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// UoW implements repository.UnitOfWork over a Store.
type UoW struct {
	store        *Store
	tx           *state
	repoRegistry map[reflect.Type]func(*UoW) any
}

// NewUoW returns a UoW over a fresh Store.
func NewUoW() *UoW {
	return NewUoWWithStore(NewStore())
}

func NewUoWWithStore(store *Store) *UoW {
	return &UoW{
		store: store,
		repoRegistry: map[reflect.Type]func(*UoW) any{
			repository.AccountRepositoryType:     func(u *UoW) any { return &accountRepository{u: u} },
			repository.TransactionRepositoryType: func(u *UoW) any { return &transactionRepository{u: u} },
			repository.RuleRepositoryType:        func(u *UoW) any { return &ruleRepository{u: u} },
			repository.ExecutionRepositoryType:   func(u *UoW) any { return &executionRepository{u: u} },
			repository.OutboxRepositoryType:      func(u *UoW) any { return &outboxRepository{u: u} },
		},
	}
}

func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	if u.tx != nil {
		return fn(u)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	work := u.store.st.clone()
	if err := fn(&UoW{store: u.store, tx: work, repoRegistry: u.repoRegistry}); err != nil {
		return err
	}
	u.store.st = work
	return nil
}

func (u *UoW) GetRepository(repoType reflect.Type) (any, error) {
	constructor, ok := u.repoRegistry[repoType]
	if !ok {
		return nil, fmt.Errorf("unsupported repository type: %v", repoType)
	}
	return constructor(u), nil
}

func (u *UoW) AccountRepository() (repoaccount.Repository, error) {
	return &accountRepository{u: u}, nil
}

func (u *UoW) TransactionRepository() (repotx.Repository, error) {
	return &transactionRepository{u: u}, nil
}

func (u *UoW) RuleRepository() (reporule.Repository, error) {
	return &ruleRepository{u: u}, nil
}

func (u *UoW) ExecutionRepository() (repoexec.Repository, error) {
	return &executionRepository{u: u}, nil
}

func (u *UoW) OutboxRepository() (repooutbox.Repository, error) {
	return &outboxRepository{u: u}, nil
}

// with runs fn against the transaction copy, or against the committed state
// under the store lock when called outside Do.
func (u *UoW) with(ctx context.Context, fn func(s *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.tx != nil {
		return fn(u.tx)
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return fn(u.store.st)
}

var _ repository.UnitOfWork = (*UoW)(nil)
