package repository

import (
	"context"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	repoexec "github.com/amirasaad/autotransfer/pkg/repository/execution"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type executionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository returns a GORM-backed execution record repository.
// The unique (rule_id, event_id) constraint is what makes Insert an atomic
// reservation across processes.
func NewExecutionRepository(db *gorm.DB) repoexec.Repository {
	return &executionRepository{db: db}
}

func (r *executionRepository) Insert(ctx context.Context, rec *rule.ExecutionRecord) (bool, error) {
	m := toExecutionModel(rec)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "rule_id"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&m)
	if res.Error != nil {
		return false, MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *executionRepository) Complete(
	ctx context.Context,
	ruleID, eventID uuid.UUID,
	c rule.Completion,
) error {
	res := r.db.WithContext(ctx).
		Model(&ExecutionRecord{}).
		Where("rule_id = ? AND event_id = ? AND outcome = ?", ruleID, eventID, string(rule.OutcomeReserved)).
		Updates(map[string]any{
			"outcome":        string(c.Outcome),
			"transaction_id": c.TransactionID,
			"amount":         c.Amount,
			"reason":         c.Reason,
			"completed_at":   c.CompletedAt,
		})
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return rule.ErrNotReserved
	}
	return nil
}

func (r *executionRepository) Get(ctx context.Context, ruleID, eventID uuid.UUID) (*rule.ExecutionRecord, error) {
	var m ExecutionRecord
	if err := r.db.WithContext(ctx).
		Where("rule_id = ? AND event_id = ?", ruleID, eventID).
		First(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toExecutionDomain(&m), nil
}

func (r *executionRepository) ListByRule(ctx context.Context, ruleID uuid.UUID) ([]*rule.ExecutionRecord, error) {
	var rows []ExecutionRecord
	if err := r.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("reserved_at, id").
		Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toExecutionDomains(rows), nil
}

func (r *executionRepository) ListStale(
	ctx context.Context,
	before time.Time,
	limit int,
) ([]*rule.ExecutionRecord, error) {
	var rows []ExecutionRecord
	q := r.db.WithContext(ctx).
		Where("outcome = ? AND reserved_at < ?", string(rule.OutcomeReserved), before).
		Order("reserved_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toExecutionDomains(rows), nil
}

func toExecutionModel(r *rule.ExecutionRecord) ExecutionRecord {
	return ExecutionRecord{
		ID:            r.ID,
		RuleID:        r.RuleID,
		EventID:       r.EventID,
		Outcome:       string(r.Outcome),
		TransactionID: r.TransactionID,
		Amount:        r.Amount,
		TriggerAmount: r.TriggerAmount,
		DueAt:         r.DueAt,
		Reason:        r.Reason,
		ReservedAt:    r.ReservedAt,
		CompletedAt:   r.CompletedAt,
	}
}

func toExecutionDomain(m *ExecutionRecord) *rule.ExecutionRecord {
	return &rule.ExecutionRecord{
		ID:            m.ID,
		RuleID:        m.RuleID,
		EventID:       m.EventID,
		Outcome:       rule.Outcome(m.Outcome),
		TransactionID: m.TransactionID,
		Amount:        m.Amount,
		TriggerAmount: m.TriggerAmount,
		DueAt:         m.DueAt,
		Reason:        m.Reason,
		ReservedAt:    m.ReservedAt,
		CompletedAt:   m.CompletedAt,
	}
}

func toExecutionDomains(rows []ExecutionRecord) []*rule.ExecutionRecord {
	out := make([]*rule.ExecutionRecord, 0, len(rows))
	for i := range rows {
		out = append(out, toExecutionDomain(&rows[i]))
	}
	return out
}
