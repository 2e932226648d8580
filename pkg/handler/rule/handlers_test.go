package rule

import (
	"context"
	"testing"

	"github.com/amirasaad/autotransfer/infra/repository/memory"
	"github.com/amirasaad/autotransfer/internal/fixtures"
	"github.com/amirasaad/autotransfer/internal/fixtures/mocks"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHandleTransactionCompleted(t *testing.T) {
	ctx := context.Background()
	uow := memory.NewUoW()
	owner := uuid.New()
	src := fixtures.Account(t, uow, owner, "USD", 1_000)
	dst := fixtures.Account(t, uow, owner, "USD", 0)
	fixtures.Rule(t, uow, src, dst, fixtures.Fixed(100))
	handler := HandleTransactionCompleted(newEvaluator(uow), testLogger)

	t.Run("wrong event type", func(t *testing.T) {
		err := handler(ctx, events.NewScheduleTick(uuid.New(), uuid.New(), src.CreatedAt, src.CreatedAt))
		assert.Error(t, err)
	})

	t.Run("evaluates rules", func(t *testing.T) {
		require.NoError(t, handler(ctx, income(src, 1_000)))
		assert.Equal(t, int64(900), fixtures.Balance(t, uow, src.ID))
	})
}

func TestHandleScheduleTick_WrongType(t *testing.T) {
	handler := HandleScheduleTick(newEvaluator(memory.NewUoW()), testLogger)
	err := handler(context.Background(), &events.TransactionCompleted{})
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	bus := mocks.NewBus(t)
	bus.On("Register", events.EventTypeTransactionCompleted, mock.Anything).Once()
	bus.On("Register", events.EventTypeScheduleTick, mock.Anything).Once()

	Register(bus, newEvaluator(memory.NewUoW()), testLogger)
}
