package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidStatusTransition is returned for any status change other than
// pending to completed or pending to cancelled.
var ErrInvalidStatusTransition = errors.New("invalid transaction status transition")

// Kind classifies a ledger entry.
type Kind string

const (
	KindIncome      Kind = "income"
	KindExpense     Kind = "expense"
	KindTransferIn  Kind = "transfer_in"
	KindTransferOut Kind = "transfer_out"
	// KindOpening carries the balance an account was opened with. It never
	// triggers rules.
	KindOpening Kind = "opening"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindIncome, KindExpense, KindTransferIn, KindTransferOut, KindOpening:
		return true
	}
	return false
}

// IsTransfer reports whether k is one half of an account-to-account transfer.
func (k Kind) IsTransfer() bool {
	return k == KindTransferIn || k == KindTransferOut
}

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Transaction is a signed ledger entry on one account. Income and
// transfer_in amounts are positive; expense and transfer_out are negative.
type Transaction struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	AccountID    uuid.UUID
	Amount       int64
	Currency     string
	Kind         Kind
	Status       Status
	SourceRuleID *uuid.UUID
	EventID      *uuid.UUID
	Description  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewTransactionFromData creates a Transaction from raw data (used for DB hydration or test fixtures).
func NewTransactionFromData(
	id, userID, accountID uuid.UUID,
	amount int64,
	currency string,
	kind Kind,
	status Status,
	created time.Time,
) *Transaction {
	return &Transaction{
		ID:        id,
		UserID:    userID,
		AccountID: accountID,
		Amount:    amount,
		Currency:  currency,
		Kind:      kind,
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// NewTransferPair builds the completed transfer_out and transfer_in entries
// for moving amount from src to dst on behalf of ruleID.
func NewTransferPair(
	src, dst *Account,
	amount int64,
	ruleID, eventID uuid.UUID,
	at time.Time,
) (out, in *Transaction, err error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if src.Currency != dst.Currency {
		return nil, nil, fmt.Errorf("%s -> %s: %w", src.Currency, dst.Currency, ErrCurrencyMismatch)
	}
	rid, eid := ruleID, eventID
	out = &Transaction{
		ID:           uuid.New(),
		UserID:       src.UserID,
		AccountID:    src.ID,
		Amount:       -amount,
		Currency:     src.Currency,
		Kind:         KindTransferOut,
		Status:       StatusCompleted,
		SourceRuleID: &rid,
		EventID:      &eid,
		Description:  "automatic transfer",
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	in = &Transaction{
		ID:           uuid.New(),
		UserID:       dst.UserID,
		AccountID:    dst.ID,
		Amount:       amount,
		Currency:     dst.Currency,
		Kind:         KindTransferIn,
		Status:       StatusCompleted,
		SourceRuleID: &rid,
		EventID:      &eid,
		Description:  "automatic transfer",
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	return out, in, nil
}

// IsEngineCreated reports whether the transaction was written by a rule.
func (t *Transaction) IsEngineCreated() bool {
	return t.SourceRuleID != nil
}

// AbsAmount returns |Amount|.
func (t *Transaction) AbsAmount() int64 {
	if t.Amount < 0 {
		return -t.Amount
	}
	return t.Amount
}

// Transition moves a pending transaction to completed or cancelled.
func (t *Transaction) Transition(to Status, at time.Time) error {
	if t.Status != StatusPending || (to != StatusCompleted && to != StatusCancelled) {
		return fmt.Errorf("%s -> %s: %w", t.Status, to, ErrInvalidStatusTransition)
	}
	t.Status = to
	t.UpdatedAt = at
	return nil
}
