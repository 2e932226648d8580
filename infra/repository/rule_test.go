package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ruleCols = []string{
	"id", "user_id", "name", "source_account_id", "destination_account_id", "computation", "value",
	"trigger_type", "frequency", "min_amount", "max_amount", "is_active", "last_triggered_at",
	"schedule_anchor", "last_scheduled_at", "created_at", "updated_at",
}

func TestRuleRepository_Get(t *testing.T) {
	db, mock := newMockDB(t)
	id, owner := uuid.New(), uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT \* FROM "account_rules" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(ruleCols).AddRow(
			id.String(), owner.String(), "save", uuid.NewString(), uuid.NewString(), "percentage", "12.500000",
			"scheduled", "monthly", int64(100), nil, true, nil, now, nil, now, now,
		))

	got, err := NewRuleRepository(db).Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, rule.ComputationPercentage, got.Computation)
	assert.True(t, got.Value.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, rule.FrequencyMonthly, got.Frequency)
	require.NotNil(t, got.MinAmount)
	assert.Equal(t, int64(100), *got.MinAmount)
	assert.Nil(t, got.MaxAmount)
	assert.NotNil(t, got.ScheduleAnchor)
}

func TestRuleRepository_ListActiveBySource(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM "account_rules" WHERE source_account_id = \$1 AND trigger_type = \$2 AND is_active = \$3`).
		WithArgs(sqlmock.AnyArg(), "on_income", true).
		WillReturnRows(sqlmock.NewRows(ruleCols))

	rules, err := NewRuleRepository(db).ListActiveBySource(context.Background(), uuid.New(), rule.TriggerOnIncome)
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepository_SetActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRuleRepository(db)

	mock.ExpectExec(`UPDATE "account_rules" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.SetActive(context.Background(), uuid.New(), false, time.Now()))

	mock.ExpectExec(`UPDATE "account_rules" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SetActive(context.Background(), uuid.New(), false, time.Now()), domain.ErrNotFound)
}

func TestRuleRepository_SetScheduleAnchorOnlyWhenUnset(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE "account_rules" SET "schedule_anchor"=\$1 WHERE id = \$\d+ AND schedule_anchor IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewRuleRepository(db).SetScheduleAnchor(context.Background(), uuid.New(), time.Now())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepository_AdvanceScheduleIsMonotonic(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE "account_rules" SET "last_scheduled_at"=\$1 WHERE id = \$\d+ AND \(last_scheduled_at IS NULL OR last_scheduled_at < \$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewRuleRepository(db).AdvanceSchedule(context.Background(), uuid.New(), time.Now())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
