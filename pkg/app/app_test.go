package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	infra_eventbus "github.com/amirasaad/autotransfer/infra/eventbus"
	"github.com/amirasaad/autotransfer/infra/repository/memory"
	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, *infra_eventbus.MemoryEventBus) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := infra_eventbus.NewWithMemory(logger)
	a := New(&config.Deps{
		Uow:      memory.NewUoW(),
		EventBus: bus,
		Logger:   logger,
		Config: &config.App{
			Retry:     &config.Retry{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
			Scheduler: &config.Scheduler{Enabled: true, Interval: time.Hour, TimeZone: "UTC"},
			Evaluator: &config.Evaluator{Workers: 2, RecoverEnabled: true, RecoverEvery: time.Hour},
		},
	}, nil)
	return a, bus
}

func completedSum(t *testing.T, a *App, owner, accountID uuid.UUID) int64 {
	t.Helper()
	txs, err := a.LedgerService.ListTransactions(context.Background(), owner, accountID)
	require.NoError(t, err)
	var sum int64
	for _, tx := range txs {
		if tx.Status == account.StatusCompleted {
			sum += tx.Amount
		}
	}
	return sum
}

func TestIncomeTriggersRuleEndToEnd(t *testing.T) {
	ctx := context.Background()
	a, bus := newTestApp(t)
	owner := uuid.New()

	src, err := a.LedgerService.CreateAccount(ctx, owner, "USD", 10_000)
	require.NoError(t, err)
	dst, err := a.LedgerService.CreateAccount(ctx, owner, "USD", 0)
	require.NoError(t, err)

	r, err := a.RuleService.CreateRule(ctx, rule.Draft{
		UserID:               owner,
		Name:                 "save a tenth",
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		Computation:          rule.ComputationPercentage,
		Value:                decimal.NewFromInt(10),
		Trigger:              rule.TriggerOnIncome,
	})
	require.NoError(t, err)

	income, err := a.LedgerService.Post(ctx, owner, src.ID, 5_000, account.KindIncome, "salary")
	require.NoError(t, err)

	gotSrc, err := a.LedgerService.GetAccount(ctx, owner, src.ID)
	require.NoError(t, err)
	gotDst, err := a.LedgerService.GetAccount(ctx, owner, dst.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(14_500), gotSrc.Balance)
	assert.Equal(t, int64(500), gotDst.Balance)

	// income plus the two transfer legs
	assert.Len(t, bus.Published(), 3)
	for _, acc := range []*account.Account{gotSrc, gotDst} {
		assert.Equal(t, acc.Balance, completedSum(t, a, owner, acc.ID), "balance of %s matches its entries", acc.ID)
	}

	execs, err := a.RuleService.ListExecutions(ctx, owner, r.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, rule.OutcomeSucceeded, execs[0].Outcome)
	assert.Equal(t, income.ID, execs[0].EventID)

	// redelivery of the same event moves nothing
	redelivered := events.FromTransaction(income)
	require.NoError(t, a.LedgerService.Publish(ctx, redelivered))

	gotDst, err = a.LedgerService.GetAccount(ctx, owner, dst.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), gotDst.Balance)
	execs, err = a.RuleService.ListExecutions(ctx, owner, r.ID)
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}

func TestScheduledRuleWaitsForAnchor(t *testing.T) {
	ctx := context.Background()
	a, bus := newTestApp(t)
	owner := uuid.New()
	src, err := a.LedgerService.CreateAccount(ctx, owner, "USD", 10_000)
	require.NoError(t, err)
	dst, err := a.LedgerService.CreateAccount(ctx, owner, "USD", 0)
	require.NoError(t, err)

	_, err = a.RuleService.CreateRule(ctx, rule.Draft{
		UserID:               owner,
		Name:                 "weekly sweep",
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		Computation:          rule.ComputationFixedAmount,
		Value:                decimal.NewFromInt(1_000),
		Trigger:              rule.TriggerScheduled,
		Frequency:            rule.FrequencyWeekly,
	})
	require.NoError(t, err)

	rep, err := a.Scheduler.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rules)
	assert.Zero(t, rep.Emitted)
	assert.Empty(t, bus.Published())
}

func TestStartStopsWithContext(t *testing.T) {
	a, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
