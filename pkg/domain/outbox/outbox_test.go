package outbox

import (
	"testing"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RoundTripsEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	evt := events.NewTransactionCompleted(uuid.New(), uuid.New(), uuid.New(), 900, account.KindExpense)

	m, err := New(evt, at)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, m.Status)
	assert.Equal(t, evt.AccountID, m.AggregateID)
	assert.Equal(t, at, m.CreatedAt)

	back, err := m.Event()
	require.NoError(t, err)
	got, ok := back.(*events.TransactionCompleted)
	require.True(t, ok)
	assert.Equal(t, evt.TransactionID, got.TransactionID)
	assert.Equal(t, int64(900), got.Amount)
}

func TestNew_TickAggregateIsRule(t *testing.T) {
	ruleID := uuid.New()
	m, err := New(events.NewScheduleTick(uuid.New(), ruleID, time.Now(), time.Now()), time.Now())
	require.NoError(t, err)
	assert.Equal(t, ruleID, m.AggregateID)
}

func TestEvent_UnknownTypeIsInvalid(t *testing.T) {
	m := &Message{EventType: "Account.Renamed", Payload: []byte(`{}`)}
	_, err := m.Event()
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
