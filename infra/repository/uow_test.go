package repository

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUoW_DoAndGetRepository(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUoW(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := uow.Do(context.Background(), func(txUow repository.UnitOfWork) error {
		repoAny, err := txUow.GetRepository(repository.RuleRepositoryType)
		require.NoError(t, err)
		_, ok := repoAny.(*ruleRepository)
		assert.True(t, ok)

		accRepo, err := txUow.AccountRepository()
		require.NoError(t, err)
		assert.IsType(t, &accountRepository{}, accRepo)

		txRepo, err := txUow.TransactionRepository()
		require.NoError(t, err)
		assert.IsType(t, &transactionRepository{}, txRepo)

		execRepo, err := txUow.ExecutionRepository()
		require.NoError(t, err)
		assert.IsType(t, &executionRepository{}, execRepo)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUoW(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := uow.Do(context.Background(), func(repository.UnitOfWork) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_NestedDoJoinsTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUoW(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	inner := false
	err := uow.Do(context.Background(), func(txUow repository.UnitOfWork) error {
		return txUow.Do(context.Background(), func(repository.UnitOfWork) error {
			inner = true
			return nil
		})
	})
	require.NoError(t, err)
	assert.True(t, inner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_OutsideTransaction(t *testing.T) {
	db, _ := newMockDB(t)
	uow := NewUoW(db)

	ruleRepo, err := uow.RuleRepository()
	require.NoError(t, err)
	assert.NotNil(t, ruleRepo)

	_, err = uow.GetRepository(reflect.TypeOf(""))
	assert.Error(t, err)
}
