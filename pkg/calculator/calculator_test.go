package calculator

import (
	"math"
	"testing"

	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func ptr(v int64) *int64 { return &v }

func percentRule(value string, min, max *int64) *rule.AccountRule {
	return &rule.AccountRule{
		Computation: rule.ComputationPercentage,
		Value:       decimal.RequireFromString(value),
		Trigger:     rule.TriggerOnIncome,
		MinAmount:   min,
		MaxAmount:   max,
	}
}

func fixedRule(value int64) *rule.AccountRule {
	return &rule.AccountRule{
		Computation: rule.ComputationFixedAmount,
		Value:       decimal.NewFromInt(value),
		Trigger:     rule.TriggerOnIncome,
	}
}

func TestCompute_Percentage(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		trigger int64
		want    int64
	}{
		{"plain", "10", 12345, 1235},
		{"half rounds up", "50", 3, 2},
		{"below half rounds down", "10", 14, 1},
		{"fractional percentage", "12.5", 1000, 125},
		{"never rounds to zero", "1", 10, 1},
		{"whole amount", "100", 999, 999},
		{"negative trigger uses magnitude", "10", -500, 50},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Compute(percentRule(tc.value, nil, nil), tc.trigger, math.MaxInt64)
			assert.False(t, res.Skipped)
			assert.Equal(t, tc.want, res.Amount)
		})
	}
}

func TestCompute_ZeroTriggerSkips(t *testing.T) {
	res := Compute(percentRule("10", nil, nil), 0, 1000)
	assert.True(t, res.Skipped)
	assert.Equal(t, rule.SkipBelowMin, res.Reason)
}

func TestCompute_FixedIgnoresTrigger(t *testing.T) {
	for _, trigger := range []int64{0, 1, 1_000_000} {
		res := Compute(fixedRule(2500), trigger, 10_000)
		assert.False(t, res.Skipped)
		assert.Equal(t, int64(2500), res.Amount)
	}
}

func TestCompute_Bounds(t *testing.T) {
	r := percentRule("50", ptr(1000), ptr(5000))

	res := Compute(r, 1000, 1_000_000)
	assert.True(t, res.Skipped)
	assert.Equal(t, rule.SkipBelowMin, res.Reason)
	assert.Equal(t, int64(500), res.Computed)
	assert.Zero(t, res.Amount)

	res = Compute(r, 20000, 1_000_000)
	assert.False(t, res.Skipped)
	assert.True(t, res.Capped)
	assert.Equal(t, int64(10000), res.Computed)
	assert.Equal(t, int64(5000), res.Amount)

	res = Compute(r, 2000, 1_000_000)
	assert.False(t, res.Skipped)
	assert.False(t, res.Capped)
	assert.Equal(t, int64(1000), res.Amount)
}

func TestCompute_InsufficientFunds(t *testing.T) {
	res := Compute(fixedRule(500), 0, 300)
	assert.True(t, res.Skipped)
	assert.Equal(t, rule.SkipInsufficientFunds, res.Reason)

	res = Compute(fixedRule(300), 0, 300)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(300), res.Amount)
}

func TestCompute_CapCheckedBeforeFunds(t *testing.T) {
	r := percentRule("100", nil, ptr(400))
	res := Compute(r, 10_000, 500)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(400), res.Amount)
}

func TestTriggerAmount(t *testing.T) {
	scheduled := percentRule("10", nil, nil)
	scheduled.Trigger = rule.TriggerScheduled
	assert.Equal(t, int64(7000), TriggerAmount(scheduled, 0, 7000))

	income := percentRule("10", nil, nil)
	assert.Equal(t, int64(1200), TriggerAmount(income, -1200, 7000))
}
