// Package schedule computes due instants for scheduled rules.
//
// Every due instant is derived from the anchor by counting periods, so a
// monthly rule anchored on the 31st lands on the last day of shorter months
// and returns to the 31st afterwards.
package schedule

import (
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/google/uuid"
)

// tickNamespace scopes deterministic tick ids.
var tickNamespace = uuid.MustParse("6f1c1a52-8f0e-4c7b-9a54-2d0f4c3b7e11")

// Schedule is the recurrence of one rule in a wall-clock location.
type Schedule struct {
	Anchor    time.Time
	Frequency rule.Frequency
	Location  *time.Location
}

// New returns the schedule of a scheduled rule. ok is false when the rule is
// not scheduled or has no anchor yet.
func New(r *rule.AccountRule, loc *time.Location) (Schedule, bool) {
	if r.Trigger != rule.TriggerScheduled || r.ScheduleAnchor == nil || !r.Frequency.Valid() {
		return Schedule{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	return Schedule{Anchor: r.ScheduleAnchor.In(loc), Frequency: r.Frequency, Location: loc}, true
}

// FirstAnchor returns the first hour:minute in loc strictly after t.
func FirstAnchor(t time.Time, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	first := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !first.After(t) {
		first = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return first
}

// At returns the n-th due instant, n = 0 being the anchor.
func (s Schedule) At(n int) time.Time {
	a := s.Anchor.In(s.loc())
	switch s.Frequency {
	case rule.FrequencyDaily:
		return a.AddDate(0, 0, n)
	case rule.FrequencyWeekly:
		return a.AddDate(0, 0, 7*n)
	case rule.FrequencyMonthly:
		first := time.Date(a.Year(), a.Month()+time.Month(n), 1, a.Hour(), a.Minute(), a.Second(), a.Nanosecond(), a.Location())
		day := a.Day()
		if last := daysIn(first.Year(), first.Month()); day > last {
			day = last
		}
		return first.AddDate(0, 0, day-1)
	}
	return a
}

// Next returns the first due instant strictly after t.
func (s Schedule) Next(t time.Time) time.Time {
	return s.At(s.indexAfter(t))
}

// Between returns the due instants in (after, until], oldest first.
func (s Schedule) Between(after, until time.Time) []time.Time {
	var out []time.Time
	for n := s.indexAfter(after); ; n++ {
		due := s.At(n)
		if due.After(until) {
			return out
		}
		out = append(out, due)
	}
}

func (s Schedule) indexAfter(t time.Time) int {
	a := s.Anchor.In(s.loc())
	if t.Before(a) {
		return 0
	}
	var n int
	switch s.Frequency {
	case rule.FrequencyDaily:
		n = int(t.Sub(a) / (24 * time.Hour))
	case rule.FrequencyWeekly:
		n = int(t.Sub(a) / (7 * 24 * time.Hour))
	case rule.FrequencyMonthly:
		lt := t.In(s.loc())
		n = (lt.Year()-a.Year())*12 + int(lt.Month()-a.Month())
	default:
		return 0
	}
	if n > 0 {
		n--
	}
	for !s.At(n).After(t) {
		n++
	}
	return n
}

func (s Schedule) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// TickID derives the event id of the tick for ruleID due at dueAt. Equal
// inputs always give the same id, across processes and restarts.
func TickID(ruleID uuid.UUID, dueAt time.Time) uuid.UUID {
	key := ruleID.String() + "|" + dueAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(tickNamespace, []byte(key))
}
