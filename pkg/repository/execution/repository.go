package execution

import (
	"context"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/google/uuid"
)

// Repository stores rule execution records, unique per (rule id, event id).
type Repository interface {
	// Insert stores rec unless a record for the same pair exists. It reports
	// whether this call created the record.
	Insert(ctx context.Context, rec *rule.ExecutionRecord) (bool, error)
	// Complete moves a reserved record to a terminal outcome. It returns
	// rule.ErrNotReserved when the record is missing or already terminal.
	Complete(ctx context.Context, ruleID, eventID uuid.UUID, c rule.Completion) error
	Get(ctx context.Context, ruleID, eventID uuid.UUID) (*rule.ExecutionRecord, error)
	ListByRule(ctx context.Context, ruleID uuid.UUID) ([]*rule.ExecutionRecord, error)
	// ListStale returns reserved records older than before, oldest first.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*rule.ExecutionRecord, error)
}
