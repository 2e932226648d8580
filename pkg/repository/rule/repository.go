package rule

import (
	"context"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/google/uuid"
)

// Repository defines rule data access.
type Repository interface {
	Create(ctx context.Context, r *rule.AccountRule) error
	// Update overwrites the user-editable fields and the schedule anchor.
	Update(ctx context.Context, r *rule.AccountRule) error
	Get(ctx context.Context, id uuid.UUID) (*rule.AccountRule, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*rule.AccountRule, error)
	// ListActive returns the user's active rules, optionally filtered by trigger.
	ListActive(ctx context.Context, userID uuid.UUID, trigger *rule.TriggerType) ([]*rule.AccountRule, error)
	ListActiveBySource(ctx context.Context, accountID uuid.UUID, trigger rule.TriggerType) ([]*rule.AccountRule, error)
	ListActiveScheduled(ctx context.Context) ([]*rule.AccountRule, error)

	SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error
	MarkTriggered(ctx context.Context, id uuid.UUID, at time.Time) error
	// SetScheduleAnchor stores the first due instant of a rule that has
	// none. A rule that already has an anchor is left unchanged.
	SetScheduleAnchor(ctx context.Context, id uuid.UUID, at time.Time) error
	// AdvanceSchedule moves the scheduler cursor forward to dueAt. It never
	// moves it backwards.
	AdvanceSchedule(ctx context.Context, id uuid.UUID, dueAt time.Time) error
}
