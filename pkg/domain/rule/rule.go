package rule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ComputationKind selects how a rule derives its transfer amount.
type ComputationKind string

const (
	ComputationPercentage  ComputationKind = "percentage"
	ComputationFixedAmount ComputationKind = "fixed_amount"
)

func (c ComputationKind) Valid() bool {
	switch c {
	case ComputationPercentage, ComputationFixedAmount:
		return true
	}
	return false
}

// TriggerType selects the event stream a rule listens to.
type TriggerType string

const (
	TriggerOnIncome  TriggerType = "on_income"
	TriggerOnExpense TriggerType = "on_expense"
	TriggerScheduled TriggerType = "scheduled"
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerOnIncome, TriggerOnExpense, TriggerScheduled:
		return true
	}
	return false
}

// ForTransactionKind returns the trigger fired by a completed transaction of
// kind k. Transfers fire nothing.
func ForTransactionKind(k account.Kind) (TriggerType, bool) {
	switch k {
	case account.KindIncome:
		return TriggerOnIncome, true
	case account.KindExpense:
		return TriggerOnExpense, true
	case account.KindTransferIn, account.KindTransferOut:
		return "", false
	}
	return "", false
}

// Frequency is the period of a scheduled rule.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

var hundred = decimal.NewFromInt(100)

// AccountRule is a user-defined automatic transfer between two accounts of
// the same owner.
type AccountRule struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	Name                 string
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Computation          ComputationKind
	Value                decimal.Decimal
	Trigger              TriggerType
	Frequency            Frequency
	MinAmount            *int64
	MaxAmount            *int64
	IsActive             bool
	LastTriggeredAt      *time.Time
	// ScheduleAnchor is the first due instant of a scheduled rule. Later due
	// instants are derived from it so day-of-month and time-of-day never drift.
	ScheduleAnchor *time.Time
	// LastScheduledAt is the due instant of the last tick the scheduler emitted.
	LastScheduledAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Draft carries the user-editable fields of a rule.
type Draft struct {
	UserID               uuid.UUID
	Name                 string
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Computation          ComputationKind
	Value                decimal.Decimal
	Trigger              TriggerType
	Frequency            Frequency
	MinAmount            *int64
	MaxAmount            *int64
	IsActive             *bool
}

// New validates d and returns a new active rule.
func New(d Draft, now time.Time) (*AccountRule, error) {
	r := &AccountRule{
		ID:        uuid.New(),
		IsActive:  true,
		CreatedAt: now,
	}
	r.assign(d, now)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Apply returns a copy of r updated with d. The original is left untouched
// when validation fails. The schedule anchor is cleared when the trigger or
// frequency changes so a new one can be set.
func (r *AccountRule) Apply(d Draft, now time.Time) (*AccountRule, error) {
	next := *r
	next.assign(d, now)
	if next.Trigger != r.Trigger || next.Frequency != r.Frequency {
		next.ScheduleAnchor = nil
		next.LastScheduledAt = nil
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}

func (r *AccountRule) assign(d Draft, now time.Time) {
	r.UserID = d.UserID
	r.Name = strings.TrimSpace(d.Name)
	r.SourceAccountID = d.SourceAccountID
	r.DestinationAccountID = d.DestinationAccountID
	r.Computation = d.Computation
	r.Value = d.Value
	r.Trigger = d.Trigger
	r.Frequency = d.Frequency
	r.MinAmount = d.MinAmount
	r.MaxAmount = d.MaxAmount
	if d.IsActive != nil {
		r.IsActive = *d.IsActive
	}
	r.UpdatedAt = now
}

// Validate checks every field and reports all failures at once.
func (r *AccountRule) Validate() error {
	var errs []error
	fail := func(field, reason string) {
		errs = append(errs, &InvalidRuleError{Field: field, Reason: reason})
	}

	if r.UserID == uuid.Nil {
		fail("user_id", "is required")
	}
	if r.SourceAccountID == uuid.Nil {
		fail("source_account_id", "is required")
	}
	if r.DestinationAccountID == uuid.Nil {
		fail("destination_account_id", "is required")
	}
	if r.SourceAccountID != uuid.Nil && r.SourceAccountID == r.DestinationAccountID {
		fail("destination_account_id", "must differ from source_account_id")
	}

	switch r.Computation {
	case ComputationPercentage:
		if !r.Value.IsPositive() || r.Value.GreaterThan(hundred) {
			fail("value", "percentage must be greater than 0 and at most 100")
		}
	case ComputationFixedAmount:
		if !r.Value.IsPositive() {
			fail("value", "fixed amount must be greater than 0")
		} else if !r.Value.IsInteger() || !r.Value.BigInt().IsInt64() {
			fail("value", "fixed amount must be a whole number of minor units")
		}
	default:
		fail("computation", fmt.Sprintf("unknown computation kind %q", r.Computation))
	}

	switch r.Trigger {
	case TriggerScheduled:
		if r.Frequency == "" {
			fail("frequency", "is required for scheduled rules")
		} else if !r.Frequency.Valid() {
			fail("frequency", fmt.Sprintf("unknown frequency %q", r.Frequency))
		}
	case TriggerOnIncome, TriggerOnExpense:
		if r.Frequency != "" {
			fail("frequency", "only applies to scheduled rules")
		}
	default:
		fail("trigger_type", fmt.Sprintf("unknown trigger type %q", r.Trigger))
	}

	if r.MinAmount != nil && *r.MinAmount <= 0 {
		fail("min_amount", "must be greater than 0")
	}
	if r.MaxAmount != nil && *r.MaxAmount <= 0 {
		fail("max_amount", "must be greater than 0")
	}
	if r.MinAmount != nil && r.MaxAmount != nil && *r.MinAmount > *r.MaxAmount {
		fail("min_amount", "must not exceed max_amount")
	}

	return errors.Join(errs...)
}

// FixedAmount returns Value as minor units. Only meaningful for fixed_amount rules.
func (r *AccountRule) FixedAmount() int64 {
	return r.Value.IntPart()
}

// MatchesTransaction reports whether a completed transaction on accountID of
// kind k should be evaluated against the rule.
func (r *AccountRule) MatchesTransaction(accountID uuid.UUID, k account.Kind) bool {
	trigger, ok := ForTransactionKind(k)
	return ok && r.IsActive && r.Trigger == trigger && r.SourceAccountID == accountID
}

// ScheduleReference is the instant after which the next due occurrence is
// searched. Once the scheduler has emitted a tick its cursor is used alone,
// since a late execution must not hide the period that follows. Before that
// it is the latest of creation and last trigger.
func (r *AccountRule) ScheduleReference() time.Time {
	if r.LastScheduledAt != nil {
		return *r.LastScheduledAt
	}
	ref := r.CreatedAt
	if r.LastTriggeredAt != nil && r.LastTriggeredAt.After(ref) {
		ref = *r.LastTriggeredAt
	}
	return ref
}

// InvalidRuleError reports a single rejected field.
type InvalidRuleError struct {
	Field  string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid rule: %s %s", e.Field, e.Reason)
}

func (e *InvalidRuleError) Unwrap() error { return domain.ErrValidation }

// FieldErrors flattens err into field to reason pairs. It returns nil when err
// carries no InvalidRuleError.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if ire, ok := e.(*InvalidRuleError); ok {
			if _, seen := out[ire.Field]; !seen {
				out[ire.Field] = ire.Reason
			}
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	if len(out) == 0 {
		return nil
	}
	return out
}
