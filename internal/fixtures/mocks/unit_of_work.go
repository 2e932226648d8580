package mocks

import (
	"context"
	"reflect"

	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/amirasaad/autotransfer/pkg/repository/account"
	"github.com/amirasaad/autotransfer/pkg/repository/execution"
	"github.com/amirasaad/autotransfer/pkg/repository/outbox"
	"github.com/amirasaad/autotransfer/pkg/repository/rule"
	"github.com/amirasaad/autotransfer/pkg/repository/transaction"
	"github.com/stretchr/testify/mock"
)

// UnitOfWork is a mock repository.UnitOfWork. Do runs fn against the mock
// itself unless a return value is configured.
type UnitOfWork struct {
	mock.Mock
}

func (_m *UnitOfWork) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	ret := _m.Called(ctx, fn)
	if rf, ok := ret.Get(0).(func(context.Context, func(repository.UnitOfWork) error) error); ok {
		return rf(ctx, fn)
	}
	if err := ret.Error(0); err != nil {
		return err
	}
	return fn(_m)
}

func (_m *UnitOfWork) GetRepository(repoType reflect.Type) (any, error) {
	ret := _m.Called(repoType)
	return ret.Get(0), ret.Error(1)
}

func (_m *UnitOfWork) AccountRepository() (account.Repository, error) {
	ret := _m.Called()
	var r0 account.Repository
	if v := ret.Get(0); v != nil {
		r0 = v.(account.Repository)
	}
	return r0, ret.Error(1)
}

func (_m *UnitOfWork) TransactionRepository() (transaction.Repository, error) {
	ret := _m.Called()
	var r0 transaction.Repository
	if v := ret.Get(0); v != nil {
		r0 = v.(transaction.Repository)
	}
	return r0, ret.Error(1)
}

func (_m *UnitOfWork) RuleRepository() (rule.Repository, error) {
	ret := _m.Called()
	var r0 rule.Repository
	if v := ret.Get(0); v != nil {
		r0 = v.(rule.Repository)
	}
	return r0, ret.Error(1)
}

func (_m *UnitOfWork) ExecutionRepository() (execution.Repository, error) {
	ret := _m.Called()
	var r0 execution.Repository
	if v := ret.Get(0); v != nil {
		r0 = v.(execution.Repository)
	}
	return r0, ret.Error(1)
}

func (_m *UnitOfWork) OutboxRepository() (outbox.Repository, error) {
	ret := _m.Called()
	var r0 outbox.Repository
	if v := ret.Get(0); v != nil {
		r0 = v.(outbox.Repository)
	}
	return r0, ret.Error(1)
}

func NewUnitOfWork(t interface {
	mock.TestingT
	Cleanup(func())
}) *UnitOfWork {
	m := &UnitOfWork{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ repository.UnitOfWork = (*UnitOfWork)(nil)
