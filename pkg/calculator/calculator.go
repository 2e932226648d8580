// Package calculator derives the amount a rule moves for one trigger.
package calculator

import (
	"math"

	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Result is the bounded transfer amount, or a skip with its reason.
// Computed keeps the pre-bounds amount for audit.
type Result struct {
	Amount   int64
	Computed int64
	Capped   bool
	Skipped  bool
	Reason   rule.SkipReason
}

// TriggerAmount picks the input for a rule: the event amount for event
// rules, the source balance at evaluation time for scheduled rules.
func TriggerAmount(r *rule.AccountRule, eventAmount, sourceBalance int64) int64 {
	switch r.Trigger {
	case rule.TriggerScheduled:
		return abs(sourceBalance)
	case rule.TriggerOnIncome, rule.TriggerOnExpense:
		return abs(eventAmount)
	}
	return 0
}

// Compute applies the rule's computation and bounds. available is the source
// account balance; an amount above it is skipped as insufficient funds.
func Compute(r *rule.AccountRule, triggerAmount, available int64) Result {
	amount := raw(r, abs(triggerAmount))
	res := Result{Amount: amount, Computed: amount}

	if amount <= 0 || (r.MinAmount != nil && amount < *r.MinAmount) {
		return skip(res, rule.SkipBelowMin)
	}
	if r.MaxAmount != nil && amount > *r.MaxAmount {
		res.Amount = *r.MaxAmount
		res.Capped = true
	}
	if res.Amount > available {
		return skip(res, rule.SkipInsufficientFunds)
	}
	return res
}

func raw(r *rule.AccountRule, trigger int64) int64 {
	switch r.Computation {
	case rule.ComputationFixedAmount:
		return r.FixedAmount()
	case rule.ComputationPercentage:
		if trigger == 0 || !r.Value.IsPositive() {
			return 0
		}
		// Round is half away from zero, which is half-up for positive amounts.
		amt := decimal.NewFromInt(trigger).Mul(r.Value).Div(hundred).Round(0)
		if !amt.BigInt().IsInt64() {
			return math.MaxInt64
		}
		if v := amt.IntPart(); v > 0 {
			return v
		}
		return 1
	}
	return 0
}

func skip(res Result, reason rule.SkipReason) Result {
	res.Amount = 0
	res.Skipped = true
	res.Reason = reason
	return res
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
