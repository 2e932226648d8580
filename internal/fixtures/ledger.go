// Package fixtures seeds stores with accounts and rules for tests.
package fixtures

import (
	"context"
	"testing"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Account stores an active account with the given balance.
func Account(t testing.TB, uow repository.UnitOfWork, userID uuid.UUID, currency string, balance int64) *account.Account {
	t.Helper()
	acc, err := account.New().
		WithUserID(userID).
		WithCurrency(currency).
		WithBalance(balance).
		Build()
	require.NoError(t, err)
	repo, err := uow.AccountRepository()
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), acc))
	return acc
}

// Balance reads the current balance of an account.
func Balance(t testing.TB, uow repository.UnitOfWork, id uuid.UUID) int64 {
	t.Helper()
	repo, err := uow.AccountRepository()
	require.NoError(t, err)
	acc, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

// RuleOpt adjusts a draft before the rule is built.
type RuleOpt func(*rule.Draft)

func Percentage(pct string) RuleOpt {
	return func(d *rule.Draft) {
		d.Computation = rule.ComputationPercentage
		d.Value = decimal.RequireFromString(pct)
	}
}

func Fixed(amount int64) RuleOpt {
	return func(d *rule.Draft) {
		d.Computation = rule.ComputationFixedAmount
		d.Value = decimal.NewFromInt(amount)
	}
}

func Trigger(tt rule.TriggerType) RuleOpt {
	return func(d *rule.Draft) {
		d.Trigger = tt
		if tt != rule.TriggerScheduled {
			d.Frequency = ""
		}
	}
}

func Scheduled(f rule.Frequency) RuleOpt {
	return func(d *rule.Draft) {
		d.Trigger = rule.TriggerScheduled
		d.Frequency = f
	}
}

func Bounds(minAmount, maxAmount *int64) RuleOpt {
	return func(d *rule.Draft) {
		d.MinAmount = minAmount
		d.MaxAmount = maxAmount
	}
}

func Inactive() RuleOpt {
	return func(d *rule.Draft) {
		off := false
		d.IsActive = &off
	}
}

// BuildRule returns a valid rule between src and dst without storing it.
// The default is an active on_income rule moving 10%.
func BuildRule(t testing.TB, src, dst *account.Account, createdAt time.Time, opts ...RuleOpt) *rule.AccountRule {
	t.Helper()
	d := rule.Draft{
		UserID:               src.UserID,
		Name:                 "fixture rule",
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		Computation:          rule.ComputationPercentage,
		Value:                decimal.NewFromInt(10),
		Trigger:              rule.TriggerOnIncome,
	}
	for _, opt := range opts {
		opt(&d)
	}
	r, err := rule.New(d, createdAt)
	require.NoError(t, err)
	return r
}

// Rule builds and stores a rule.
func Rule(t testing.TB, uow repository.UnitOfWork, src, dst *account.Account, opts ...RuleOpt) *rule.AccountRule {
	t.Helper()
	r := BuildRule(t, src, dst, time.Now().UTC(), opts...)
	StoreRule(t, uow, r)
	return r
}

// StoreRule persists an already built rule.
func StoreRule(t testing.TB, uow repository.UnitOfWork, r *rule.AccountRule) {
	t.Helper()
	repo, err := uow.RuleRepository()
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), r))
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
