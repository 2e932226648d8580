package ledger

import (
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/google/uuid"
)

// CreateAccountRequest opens an account. Amounts are minor units.
type CreateAccountRequest struct {
	Currency       string `json:"currency" validate:"required,len=3,uppercase"`
	OpeningBalance int64  `json:"opening_balance" validate:"gte=0"`
}

// PostTransactionRequest records an income or an expense.
type PostTransactionRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Kind        string `json:"kind" validate:"required,oneof=income expense"`
	Description string `json:"description" validate:"max=255"`
}

// TransactionEventRequest is a completed entry reported by an external
// ledger writer.
type TransactionEventRequest struct {
	TransactionID string     `json:"transaction_id" validate:"required,uuid"`
	UserID        string     `json:"user_id" validate:"required,uuid"`
	AccountID     string     `json:"account_id" validate:"required,uuid"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency" validate:"omitempty,len=3"`
	Kind          string     `json:"kind" validate:"required,oneof=income expense transfer_in transfer_out"`
	OccurredAt    *time.Time `json:"occurred_at"`
}

func (r *TransactionEventRequest) toEvent() *events.TransactionCompleted {
	var opts []events.TransactionCompletedOpt
	if r.Currency != "" {
		opts = append(opts, events.WithTransactionCurrency(r.Currency))
	}
	if r.OccurredAt != nil {
		opts = append(opts, events.WithOccurredAt(r.OccurredAt.UTC()))
	}
	return events.NewTransactionCompleted(
		uuid.MustParse(r.TransactionID),
		uuid.MustParse(r.UserID),
		uuid.MustParse(r.AccountID),
		r.Amount,
		account.Kind(r.Kind),
		opts...,
	)
}

type AccountDTO struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAccountDTO(a *account.Account) AccountDTO {
	return AccountDTO{
		ID:        a.ID,
		UserID:    a.UserID,
		Balance:   a.Balance,
		Currency:  a.Currency,
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type TransactionDTO struct {
	ID           uuid.UUID  `json:"id"`
	AccountID    uuid.UUID  `json:"account_id"`
	Amount       int64      `json:"amount"`
	Currency     string     `json:"currency"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	SourceRuleID *uuid.UUID `json:"source_rule_id,omitempty"`
	Description  string     `json:"description,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toTransactionDTO(t *account.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:           t.ID,
		AccountID:    t.AccountID,
		Amount:       t.Amount,
		Currency:     t.Currency,
		Kind:         string(t.Kind),
		Status:       string(t.Status),
		SourceRuleID: t.SourceRuleID,
		Description:  t.Description,
		CreatedAt:    t.CreatedAt,
	}
}
