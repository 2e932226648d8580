package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/domain/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepository_Add(t *testing.T) {
	now := time.Now().UTC()
	evt := events.NewTransactionCompleted(uuid.New(), uuid.New(), uuid.New(), 500, account.KindIncome)
	msg, err := outbox.New(evt, now)
	require.NoError(t, err)

	db, mock := newMockDB(t)
	mock.ExpectExec(`INSERT INTO "outbox_messages"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewOutboxRepository(db).Add(context.Background(), msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_ListPending(t *testing.T) {
	now := time.Now().UTC()
	id, agg := uuid.New(), uuid.New()
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM "outbox_messages" WHERE status = \$1 AND created_at < \$2 ORDER BY created_at, id LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "aggregate_id", "payload", "status", "attempts", "last_error", "created_at", "updated_at"}).
			AddRow(id, "Schedule.Tick", agg, []byte(`{}`), "pending", 2, "bus down", now, now))

	msgs, err := NewOutboxRepository(db).ListPending(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, outbox.StatusPending, msgs[0].Status)
	assert.Equal(t, 2, msgs[0].Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_TransitionsArePendingOnly(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("published", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(`UPDATE "outbox_messages" SET .*"status"=.* WHERE id = \$\d+ AND status = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.NoError(t, NewOutboxRepository(db).MarkPublished(ctx, uuid.New(), now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed attempt", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(`UPDATE "outbox_messages" SET "attempts"=attempts \+ 1,.* WHERE id = \$\d+ AND status = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, NewOutboxRepository(db).MarkAttemptFailed(ctx, uuid.New(), "boom", now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
