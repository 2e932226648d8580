package rule

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyExecuted means a record for the (rule, event) pair exists.
	// It signals an idempotent no-op, not a failure.
	ErrAlreadyExecuted = errors.New("rule already executed for event")
	// ErrExecutionFailed is returned once bounded retries are exhausted.
	ErrExecutionFailed = errors.New("rule execution failed")
	// ErrNotReserved is returned when finalizing a record that is no longer reserved.
	ErrNotReserved = errors.New("execution record is not reserved")
)

// Outcome is the state of an execution record. Reserved is the only
// non-terminal value.
type Outcome string

const (
	OutcomeReserved                 Outcome = "reserved"
	OutcomeSucceeded                Outcome = "succeeded"
	OutcomeSkippedInsufficientFunds Outcome = "skipped_insufficient_funds"
	OutcomeSkippedBelowMin          Outcome = "skipped_below_min"
	OutcomeMissed                   Outcome = "missed"
	OutcomeFailed                   Outcome = "failed"
)

func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeSucceeded, OutcomeSkippedInsufficientFunds, OutcomeSkippedBelowMin,
		OutcomeMissed, OutcomeFailed:
		return true
	case OutcomeReserved:
		return false
	}
	return false
}

// SkipReason explains why a computed transfer was not executed.
type SkipReason string

const (
	SkipBelowMin          SkipReason = "below-min"
	SkipInsufficientFunds SkipReason = "insufficient-funds"
)

// Outcome maps the reason to the terminal outcome recorded for it.
func (s SkipReason) Outcome() Outcome {
	switch s {
	case SkipBelowMin:
		return OutcomeSkippedBelowMin
	case SkipInsufficientFunds:
		return OutcomeSkippedInsufficientFunds
	}
	return OutcomeFailed
}

// ExecutionRecord is the audit entry and idempotency fact for one
// (RuleID, EventID) pair.
type ExecutionRecord struct {
	ID            uuid.UUID
	RuleID        uuid.UUID
	EventID       uuid.UUID
	Outcome       Outcome
	TransactionID *uuid.UUID
	Amount        int64
	TriggerAmount int64
	DueAt         *time.Time
	Reason        string
	ReservedAt    time.Time
	CompletedAt   *time.Time
}

// NewReservation returns a record in the reserved state.
func NewReservation(ruleID, eventID uuid.UUID, triggerAmount int64, dueAt *time.Time, now time.Time) *ExecutionRecord {
	return &ExecutionRecord{
		ID:            uuid.New(),
		RuleID:        ruleID,
		EventID:       eventID,
		Outcome:       OutcomeReserved,
		TriggerAmount: triggerAmount,
		DueAt:         dueAt,
		ReservedAt:    now,
	}
}

// NewMissed returns a terminal record for a scheduled period that was not
// executed because a later one superseded it.
func NewMissed(ruleID, eventID uuid.UUID, dueAt time.Time, now time.Time) *ExecutionRecord {
	due := dueAt
	done := now
	return &ExecutionRecord{
		ID:          uuid.New(),
		RuleID:      ruleID,
		EventID:     eventID,
		Outcome:     OutcomeMissed,
		DueAt:       &due,
		Reason:      "superseded by a later period during catch-up",
		ReservedAt:  now,
		CompletedAt: &done,
	}
}

// Completion describes the terminal state written over a reserved record.
type Completion struct {
	Outcome       Outcome
	TransactionID *uuid.UUID
	Amount        int64
	Reason        string
	CompletedAt   time.Time
}
