package events

import (
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/google/uuid"
)

// TransactionCompleted announces a completed ledger entry. TransactionID is
// the triggering event id for rule evaluation.
type TransactionCompleted struct {
	TransactionID uuid.UUID      `json:"transaction_id"`
	UserID        uuid.UUID      `json:"user_id"`
	AccountID     uuid.UUID      `json:"account_id"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Kind          account.Kind   `json:"kind"`
	Status        account.Status `json:"status"`
	SourceRuleID  *uuid.UUID     `json:"source_rule_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

func (e TransactionCompleted) Type() string { return EventTypeTransactionCompleted.String() }

type TransactionCompletedOpt func(*TransactionCompleted)

func WithTransactionCurrency(code string) TransactionCompletedOpt {
	return func(e *TransactionCompleted) { e.Currency = code }
}

func WithSourceRuleID(id uuid.UUID) TransactionCompletedOpt {
	return func(e *TransactionCompleted) { e.SourceRuleID = &id }
}

func WithOccurredAt(t time.Time) TransactionCompletedOpt {
	return func(e *TransactionCompleted) { e.OccurredAt = t }
}

// NewTransactionCompleted builds a completed-transaction event.
func NewTransactionCompleted(
	txID, userID, accountID uuid.UUID,
	amount int64,
	kind account.Kind,
	opts ...TransactionCompletedOpt,
) *TransactionCompleted {
	e := &TransactionCompleted{
		TransactionID: txID,
		UserID:        userID,
		AccountID:     accountID,
		Amount:        amount,
		Currency:      "USD",
		Kind:          kind,
		Status:        account.StatusCompleted,
		OccurredAt:    time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromTransaction converts a stored transaction into its completion event.
func FromTransaction(tx *account.Transaction) *TransactionCompleted {
	e := &TransactionCompleted{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		AccountID:     tx.AccountID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Kind:          tx.Kind,
		Status:        tx.Status,
		OccurredAt:    tx.UpdatedAt,
	}
	if tx.SourceRuleID != nil {
		id := *tx.SourceRuleID
		e.SourceRuleID = &id
	}
	return e
}

// TriggerAmount is the absolute amount used as input to percentage rules.
func (e TransactionCompleted) TriggerAmount() int64 {
	if e.Amount < 0 {
		return -e.Amount
	}
	return e.Amount
}
