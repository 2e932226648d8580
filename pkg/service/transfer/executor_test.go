package transfer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amirasaad/autotransfer/infra/repository/memory"
	"github.com/amirasaad/autotransfer/internal/fixtures"
	"github.com/amirasaad/autotransfer/internal/fixtures/mocks"
	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/amirasaad/autotransfer/pkg/retry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	testPolicy = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
)

type ledger struct {
	uow      *memory.UoW
	src, dst *account.Account
	rule     *rule.AccountRule
	eventID  uuid.UUID
}

func newLedger(t *testing.T, srcBalance int64) *ledger {
	t.Helper()
	uow := memory.NewUoW()
	owner := uuid.New()
	src := fixtures.Account(t, uow, owner, "USD", srcBalance)
	dst := fixtures.Account(t, uow, owner, "USD", 250)
	r := fixtures.Rule(t, uow, src, dst)
	eventID := uuid.New()

	repo, err := uow.ExecutionRepository()
	require.NoError(t, err)
	created, err := repo.Insert(context.Background(), rule.NewReservation(r.ID, eventID, 0, nil, time.Now().UTC()))
	require.NoError(t, err)
	require.True(t, created)

	return &ledger{uow: uow, src: src, dst: dst, rule: r, eventID: eventID}
}

func TestExecutor_Execute(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 10_000)
	bus := mocks.NewBus(t)
	bus.On("Emit", mock.Anything, mock.AnythingOfType("*events.TransactionCompleted")).Return(nil).Twice()

	res, err := New(l.uow, bus, testPolicy, testLogger).Execute(ctx, l.rule, 1_500, l.eventID)
	require.NoError(t, err)

	t.Run("balance conservation", func(t *testing.T) {
		srcAfter := fixtures.Balance(t, l.uow, l.src.ID)
		dstAfter := fixtures.Balance(t, l.uow, l.dst.ID)
		assert.Equal(t, int64(1_500), l.src.Balance-srcAfter)
		assert.Equal(t, int64(1_500), dstAfter-l.dst.Balance)
	})

	t.Run("ledger entries carry the rule", func(t *testing.T) {
		assert.Equal(t, account.KindTransferOut, res.Out.Kind)
		assert.Equal(t, int64(-1_500), res.Out.Amount)
		assert.Equal(t, account.KindTransferIn, res.In.Kind)
		assert.Equal(t, int64(1_500), res.In.Amount)
		for _, tx := range []*account.Transaction{res.Out, res.In} {
			require.NotNil(t, tx.SourceRuleID)
			assert.Equal(t, l.rule.ID, *tx.SourceRuleID)
			assert.Equal(t, account.StatusCompleted, tx.Status)
		}

		txRepo, err := l.uow.TransactionRepository()
		require.NoError(t, err)
		stored, err := txRepo.ListByAccount(ctx, l.src.ID)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, res.Out.ID, stored[0].ID)
	})

	t.Run("record finalized and rule marked", func(t *testing.T) {
		execRepo, err := l.uow.ExecutionRepository()
		require.NoError(t, err)
		rec, err := execRepo.Get(ctx, l.rule.ID, l.eventID)
		require.NoError(t, err)
		assert.Equal(t, rule.OutcomeSucceeded, rec.Outcome)
		require.NotNil(t, rec.TransactionID)
		assert.Equal(t, res.TransactionID(), *rec.TransactionID)
		assert.Equal(t, int64(1_500), rec.Amount)

		ruleRepo, err := l.uow.RuleRepository()
		require.NoError(t, err)
		stored, err := ruleRepo.Get(ctx, l.rule.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.LastTriggeredAt)
	})
}

func TestExecutor_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 300)

	_, err := New(l.uow, nil, testPolicy, testLogger).Execute(ctx, l.rule, 500, l.eventID)
	require.ErrorIs(t, err, account.ErrInsufficientFunds)

	assert.Equal(t, int64(300), fixtures.Balance(t, l.uow, l.src.ID))
	assert.Equal(t, int64(250), fixtures.Balance(t, l.uow, l.dst.ID))

	execRepo, err := l.uow.ExecutionRepository()
	require.NoError(t, err)
	rec, err := execRepo.Get(ctx, l.rule.ID, l.eventID)
	require.NoError(t, err)
	assert.Equal(t, rule.OutcomeReserved, rec.Outcome, "the caller records the skip")
}

func TestExecutor_NotReservedRollsBack(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 10_000)

	_, err := New(l.uow, nil, testPolicy, testLogger).Execute(ctx, l.rule, 100, uuid.New())
	require.ErrorIs(t, err, rule.ErrNotReserved)

	assert.Equal(t, int64(10_000), fixtures.Balance(t, l.uow, l.src.ID))
	txRepo, err := l.uow.TransactionRepository()
	require.NoError(t, err)
	stored, err := txRepo.ListByAccount(ctx, l.src.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestExecutor_SecondExecutionIsRejected(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 10_000)
	exec := New(l.uow, nil, testPolicy, testLogger)

	_, err := exec.Execute(ctx, l.rule, 100, l.eventID)
	require.NoError(t, err)
	_, err = exec.Execute(ctx, l.rule, 100, l.eventID)
	require.ErrorIs(t, err, rule.ErrNotReserved)

	assert.Equal(t, int64(9_900), fixtures.Balance(t, l.uow, l.src.ID))
}

func TestExecutor_RetriesConflicts(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 10_000)

	uow := mocks.NewUnitOfWork(t)
	uow.On("Do", mock.Anything, mock.Anything).Return(domain.ErrConflict).Once()
	uow.On("Do", mock.Anything, mock.Anything).Return(
		func(ctx context.Context, fn func(repository.UnitOfWork) error) error {
			return l.uow.Do(ctx, fn)
		},
	).Once()

	_, err := New(uow, nil, testPolicy, testLogger).Execute(ctx, l.rule, 700, l.eventID)
	require.NoError(t, err)
	assert.Equal(t, int64(9_300), fixtures.Balance(t, l.uow, l.src.ID))
}

func TestExecutor_ConflictsExhausted(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 10_000)

	uow := mocks.NewUnitOfWork(t)
	uow.On("Do", mock.Anything, mock.Anything).Return(domain.ErrConflict).Times(3)

	_, err := New(uow, nil, testPolicy, testLogger).Execute(ctx, l.rule, 700, l.eventID)
	require.ErrorIs(t, err, rule.ErrExecutionFailed)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestExecutor_EmitFailureDoesNotFailTransfer(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 10_000)
	bus := mocks.NewBus(t)
	bus.On("Emit", mock.Anything, mock.MatchedBy(func(e *events.TransactionCompleted) bool {
		return e.SourceRuleID != nil && *e.SourceRuleID == l.rule.ID
	})).Return(assert.AnError).Twice()

	res, err := New(l.uow, bus, testPolicy, testLogger).Execute(ctx, l.rule, 100, l.eventID)
	require.NoError(t, err)

	outboxRepo, err := l.uow.OutboxRepository()
	require.NoError(t, err)
	pending, err := outboxRepo.ListPending(ctx, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, pending, 2, "both completion events wait for redelivery")
	for _, m := range pending {
		assert.Equal(t, 1, m.Attempts)
		evt, err := m.Event()
		require.NoError(t, err)
		tc := evt.(*events.TransactionCompleted)
		assert.Contains(t, []uuid.UUID{res.Out.ID, res.In.ID}, tc.TransactionID)
	}
}
