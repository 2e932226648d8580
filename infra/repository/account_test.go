package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepository_CompareAndSwapBalance(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()

	t.Run("swaps when balance matches", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(`UPDATE "accounts" SET .* WHERE id = \$\d+ AND balance = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := NewAccountRepository(db).CompareAndSwapBalance(context.Background(), id, 1000, 700, now)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict when balance moved", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(`UPDATE "accounts" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "accounts"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		err := NewAccountRepository(db).CompareAndSwapBalance(context.Background(), id, 1000, 700, now)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found when account missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(`UPDATE "accounts" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "accounts"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		err := NewAccountRepository(db).CompareAndSwapBalance(context.Background(), id, 1000, 700, now)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestAccountRepository_CreateAndGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)
	acc, err := account.New().WithUserID(uuid.New()).WithBalance(500).WithCurrency("EUR").Build()
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO "accounts"`).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), acc))

	cols := []string{"id", "user_id", "balance", "currency", "active", "version", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT \* FROM "accounts" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(acc.ID.String(), acc.UserID.String(), 500, "EUR", true, 3, acc.CreatedAt, acc.CreatedAt))

	got, err := repo.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, int64(500), got.Balance)
	assert.Equal(t, "EUR", got.Currency)
	assert.Equal(t, int64(3), got.Version)

	mock.ExpectQuery(`SELECT \* FROM "accounts"`).WillReturnRows(sqlmock.NewRows(cols))
	_, err = repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
