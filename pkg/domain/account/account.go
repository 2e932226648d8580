package account

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/google/uuid"
)

var (
	// ErrInsufficientFunds is returned when a debit would take the balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrCurrencyMismatch is returned when two accounts or an account and a rule disagree on currency.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrInactiveAccount is returned when an inactive account takes part in a transfer.
	ErrInactiveAccount = errors.New("account is inactive")
	// ErrInvalidAmount is returned for non-positive transfer amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Account holds a balance in integer minor units of a single currency.
//
// Version is incremented on every balance write and is informational; the
// conditional update is keyed on the prior balance.
type Account struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Balance   int64
	Currency  string
	Active    bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Builder provides a fluent API for constructing Account instances.
type Builder struct {
	id        uuid.UUID
	userID    uuid.UUID
	balance   int64
	currency  string
	active    bool
	createdAt time.Time
	updatedAt time.Time
}

// New creates a Builder with a fresh id, USD and an active flag.
func New() *Builder {
	now := time.Now().UTC()
	return &Builder{
		id:        uuid.New(),
		currency:  "USD",
		active:    true,
		createdAt: now,
		updatedAt: now,
	}
}

func (b *Builder) WithID(id uuid.UUID) *Builder {
	b.id = id
	return b
}

func (b *Builder) WithUserID(userID uuid.UUID) *Builder {
	b.userID = userID
	return b
}

func (b *Builder) WithCurrency(code string) *Builder {
	b.currency = code
	return b
}

// WithBalance sets the opening balance. Used for hydration and test setup.
func (b *Builder) WithBalance(balance int64) *Builder {
	b.balance = balance
	return b
}

func (b *Builder) WithActive(active bool) *Builder {
	b.active = active
	return b
}

func (b *Builder) WithCreatedAt(t time.Time) *Builder {
	b.createdAt = t
	return b
}

// Build validates the owner and currency and returns the Account.
func (b *Builder) Build() (*Account, error) {
	if b.userID == uuid.Nil {
		return nil, fmt.Errorf("userID is required: %w", domain.ErrValidation)
	}
	if !IsValidCurrency(b.currency) {
		return nil, fmt.Errorf("invalid currency %q: %w", b.currency, domain.ErrValidation)
	}
	if b.balance < 0 {
		return nil, fmt.Errorf("negative opening balance: %w", domain.ErrValidation)
	}
	return &Account{
		ID:        b.id,
		UserID:    b.userID,
		Balance:   b.balance,
		Currency:  b.currency,
		Active:    b.active,
		CreatedAt: b.createdAt,
		UpdatedAt: b.updatedAt,
	}, nil
}

// IsValidCurrency reports whether code looks like an ISO 4217 alphabetic code.
func IsValidCurrency(code string) bool {
	return currencyPattern.MatchString(code)
}

// IsOwnedBy reports whether userID owns the account.
func (a *Account) IsOwnedBy(userID uuid.UUID) bool {
	return a.UserID == userID
}

// CanDebit reports whether amount can leave the account without going negative.
func (a *Account) CanDebit(amount int64) bool {
	return amount > 0 && a.Balance >= amount
}

// Debited returns the balance after removing amount, or ErrInsufficientFunds.
func (a *Account) Debited(amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !a.Active {
		return 0, ErrInactiveAccount
	}
	if a.Balance < amount {
		return 0, ErrInsufficientFunds
	}
	return a.Balance - amount, nil
}

// Credited returns the balance after adding amount.
func (a *Account) Credited(amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !a.Active {
		return 0, ErrInactiveAccount
	}
	if a.Balance > maxBalance-amount {
		return 0, fmt.Errorf("balance overflow: %w", domain.ErrValidation)
	}
	return a.Balance + amount, nil
}

const maxBalance = int64(^uint64(0) >> 1)
