package rule

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amirasaad/autotransfer/infra/repository/memory"
	"github.com/amirasaad/autotransfer/internal/fixtures"
	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	svc      *Service
	uow      *memory.UoW
	owner    uuid.UUID
	src, dst *account.Account
}

func newEnv(t *testing.T) *env {
	t.Helper()
	uow := memory.NewUoW()
	owner := uuid.New()
	svc := NewService(config.Deps{
		Uow:    uow,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: &config.App{Scheduler: &config.Scheduler{AnchorHour: 0, AnchorMinute: 5, TimeZone: "UTC"}},
	})
	svc.now = func() time.Time { return time.Date(2024, 1, 30, 12, 0, 0, 0, time.UTC) }
	return &env{
		svc:   svc,
		uow:   uow,
		owner: owner,
		src:   fixtures.Account(t, uow, owner, "USD", 1_000),
		dst:   fixtures.Account(t, uow, owner, "USD", 0),
	}
}

func (e *env) draft() rule.Draft {
	return rule.Draft{
		UserID:               e.owner,
		Name:                 "save half",
		SourceAccountID:      e.src.ID,
		DestinationAccountID: e.dst.ID,
		Computation:          rule.ComputationPercentage,
		Value:                decimal.NewFromInt(50),
		Trigger:              rule.TriggerOnIncome,
	}
}

func TestCreateRule(t *testing.T) {
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		e := newEnv(t)
		r, err := e.svc.CreateRule(ctx, e.draft())
		require.NoError(t, err)
		assert.True(t, r.IsActive)
		assert.Nil(t, r.ScheduleAnchor)

		got, err := e.svc.GetRule(ctx, e.owner, r.ID)
		require.NoError(t, err)
		assert.Equal(t, "save half", got.Name)
	})

	t.Run("scheduled rule is anchored", func(t *testing.T) {
		e := newEnv(t)
		d := e.draft()
		d.Trigger = rule.TriggerScheduled
		d.Frequency = rule.FrequencyMonthly
		r, err := e.svc.CreateRule(ctx, d)
		require.NoError(t, err)
		require.NotNil(t, r.ScheduleAnchor)
		assert.Equal(t, time.Date(2024, 1, 31, 0, 5, 0, 0, time.UTC), *r.ScheduleAnchor)
	})

	tests := []struct {
		name  string
		edit  func(*env, *rule.Draft)
		field string
	}{
		{"same account", func(e *env, d *rule.Draft) { d.DestinationAccountID = e.src.ID }, "destination_account_id"},
		{"percentage above 100", func(_ *env, d *rule.Draft) { d.Value = decimal.NewFromInt(101) }, "value"},
		{"missing frequency", func(_ *env, d *rule.Draft) { d.Trigger = rule.TriggerScheduled }, "frequency"},
		{"min above max", func(_ *env, d *rule.Draft) {
			d.MinAmount, d.MaxAmount = fixtures.Int64(10), fixtures.Int64(5)
		}, "min_amount"},
		{"unknown source account", func(_ *env, d *rule.Draft) { d.SourceAccountID = uuid.New() }, "source_account_id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			d := e.draft()
			tc.edit(e, &d)
			_, err := e.svc.CreateRule(ctx, d)
			require.ErrorIs(t, err, domain.ErrValidation)
			assert.Contains(t, rule.FieldErrors(err), tc.field)

			rules, err := e.svc.ListRules(ctx, e.owner)
			require.NoError(t, err)
			assert.Empty(t, rules, "no partial writes")
		})
	}

	t.Run("currency mismatch", func(t *testing.T) {
		e := newEnv(t)
		eur := fixtures.Account(t, e.uow, e.owner, "EUR", 0)
		d := e.draft()
		d.DestinationAccountID = eur.ID
		_, err := e.svc.CreateRule(ctx, d)
		require.ErrorIs(t, err, domain.ErrValidation)
		assert.Contains(t, rule.FieldErrors(err), "destination_account_id")
	})

	t.Run("foreign account", func(t *testing.T) {
		e := newEnv(t)
		foreign := fixtures.Account(t, e.uow, uuid.New(), "USD", 0)
		d := e.draft()
		d.DestinationAccountID = foreign.ID
		_, err := e.svc.CreateRule(ctx, d)
		require.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestUpdateRule(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	r, err := e.svc.CreateRule(ctx, e.draft())
	require.NoError(t, err)

	d := e.draft()
	d.Name = "save a quarter"
	d.Value = decimal.NewFromInt(25)
	updated, err := e.svc.UpdateRule(ctx, e.owner, r.ID, d)
	require.NoError(t, err)
	assert.True(t, updated.Value.Equal(decimal.NewFromInt(25)))

	t.Run("switching to scheduled anchors", func(t *testing.T) {
		d := e.draft()
		d.Trigger = rule.TriggerScheduled
		d.Frequency = rule.FrequencyWeekly
		updated, err := e.svc.UpdateRule(ctx, e.owner, r.ID, d)
		require.NoError(t, err)
		assert.NotNil(t, updated.ScheduleAnchor)
	})

	t.Run("other owner is forbidden", func(t *testing.T) {
		_, err := e.svc.UpdateRule(ctx, uuid.New(), r.ID, e.draft())
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("invalid edit keeps the stored rule", func(t *testing.T) {
		d := e.draft()
		d.Value = decimal.Zero
		_, err := e.svc.UpdateRule(ctx, e.owner, r.ID, d)
		require.ErrorIs(t, err, domain.ErrValidation)

		got, err := e.svc.GetRule(ctx, e.owner, r.ID)
		require.NoError(t, err)
		assert.Equal(t, rule.TriggerScheduled, got.Trigger)
	})

	t.Run("missing rule", func(t *testing.T) {
		_, err := e.svc.UpdateRule(ctx, e.owner, uuid.New(), e.draft())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDeleteAndActivate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	d := e.draft()
	d.Trigger = rule.TriggerScheduled
	d.Frequency = rule.FrequencyDaily
	r, err := e.svc.CreateRule(ctx, d)
	require.NoError(t, err)

	require.NoError(t, e.svc.DeleteRule(ctx, e.owner, r.ID))
	active, err := e.svc.ListActive(ctx, e.owner, nil)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := e.svc.ListRules(ctx, e.owner)
	require.NoError(t, err)
	assert.Len(t, all, 1, "soft delete keeps the rule")

	later := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	e.svc.now = func() time.Time { return later }
	require.NoError(t, e.svc.SetActive(ctx, e.owner, r.ID, true))

	scheduled := rule.TriggerScheduled
	active, err = e.svc.ListActive(ctx, e.owner, &scheduled)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.NotNil(t, active[0].LastScheduledAt)
	assert.Equal(t, later, *active[0].LastScheduledAt, "inactive periods are not caught up")

	assert.ErrorIs(t, e.svc.SetActive(ctx, uuid.New(), r.ID, false), domain.ErrForbidden)

	bogus := rule.TriggerType("hourly")
	_, err = e.svc.ListActive(ctx, e.owner, &bogus)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListExecutions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	r, err := e.svc.CreateRule(ctx, e.draft())
	require.NoError(t, err)

	repo, err := e.uow.ExecutionRepository()
	require.NoError(t, err)
	_, err = repo.Insert(ctx, rule.NewReservation(r.ID, uuid.New(), 10, nil, time.Now().UTC()))
	require.NoError(t, err)

	recs, err := e.svc.ListExecutions(ctx, e.owner, r.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = e.svc.ListExecutions(ctx, uuid.New(), r.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
