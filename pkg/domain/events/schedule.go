package events

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleTick is one due period of a scheduled rule. EventID is derived
// from (RuleID, DueAt) so re-emitting the same period yields the same id.
type ScheduleTick struct {
	EventID   uuid.UUID `json:"event_id"`
	RuleID    uuid.UUID `json:"rule_id"`
	DueAt     time.Time `json:"due_at"`
	EmittedAt time.Time `json:"emitted_at"`
}

func (e ScheduleTick) Type() string { return EventTypeScheduleTick.String() }

func NewScheduleTick(eventID, ruleID uuid.UUID, dueAt, emittedAt time.Time) *ScheduleTick {
	return &ScheduleTick{
		EventID:   eventID,
		RuleID:    ruleID,
		DueAt:     dueAt,
		EmittedAt: emittedAt,
	}
}
