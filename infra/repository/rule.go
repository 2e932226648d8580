package repository

import (
	"context"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	reporule "github.com/amirasaad/autotransfer/pkg/repository/rule"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository returns a GORM-backed rule repository.
func NewRuleRepository(db *gorm.DB) reporule.Repository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) Create(ctx context.Context, ar *rule.AccountRule) error {
	m := toRuleModel(ar)
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *ruleRepository) Update(ctx context.Context, ar *rule.AccountRule) error {
	res := r.db.WithContext(ctx).
		Model(&AccountRule{}).
		Where("id = ?", ar.ID).
		Updates(map[string]any{
			"name":                   ar.Name,
			"source_account_id":      ar.SourceAccountID,
			"destination_account_id": ar.DestinationAccountID,
			"computation":            string(ar.Computation),
			"value":                  ar.Value,
			"trigger_type":           string(ar.Trigger),
			"frequency":              string(ar.Frequency),
			"min_amount":             ar.MinAmount,
			"max_amount":             ar.MaxAmount,
			"is_active":              ar.IsActive,
			"schedule_anchor":        ar.ScheduleAnchor,
			"last_scheduled_at":      ar.LastScheduledAt,
			"updated_at":             ar.UpdatedAt,
		})
	return rowsOrNotFound(res)
}

func (r *ruleRepository) Get(ctx context.Context, id uuid.UUID) (*rule.AccountRule, error) {
	var m AccountRule
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toRuleDomain(&m), nil
}

func (r *ruleRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*rule.AccountRule, error) {
	return r.find(r.db.WithContext(ctx).Where("user_id = ?", userID))
}

func (r *ruleRepository) ListActive(
	ctx context.Context,
	userID uuid.UUID,
	trigger *rule.TriggerType,
) ([]*rule.AccountRule, error) {
	q := r.db.WithContext(ctx).Where("user_id = ? AND is_active = ?", userID, true)
	if trigger != nil {
		q = q.Where("trigger_type = ?", string(*trigger))
	}
	return r.find(q)
}

func (r *ruleRepository) ListActiveBySource(
	ctx context.Context,
	accountID uuid.UUID,
	trigger rule.TriggerType,
) ([]*rule.AccountRule, error) {
	return r.find(r.db.WithContext(ctx).
		Where("source_account_id = ? AND trigger_type = ? AND is_active = ?", accountID, string(trigger), true))
}

func (r *ruleRepository) ListActiveScheduled(ctx context.Context) ([]*rule.AccountRule, error) {
	return r.find(r.db.WithContext(ctx).
		Where("trigger_type = ? AND is_active = ?", string(rule.TriggerScheduled), true))
}

func (r *ruleRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&AccountRule{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": active, "updated_at": at})
	return rowsOrNotFound(res)
}

func (r *ruleRepository) MarkTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&AccountRule{}).
		Where("id = ? AND (last_triggered_at IS NULL OR last_triggered_at < ?)", id, at).
		UpdateColumn("last_triggered_at", at)
	return MapGormErrorToDomain(res.Error)
}

func (r *ruleRepository) SetScheduleAnchor(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&AccountRule{}).
		Where("id = ? AND schedule_anchor IS NULL", id).
		UpdateColumn("schedule_anchor", at)
	return MapGormErrorToDomain(res.Error)
}

func (r *ruleRepository) AdvanceSchedule(ctx context.Context, id uuid.UUID, dueAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&AccountRule{}).
		Where("id = ? AND (last_scheduled_at IS NULL OR last_scheduled_at < ?)", id, dueAt).
		UpdateColumn("last_scheduled_at", dueAt)
	return MapGormErrorToDomain(res.Error)
}

func (r *ruleRepository) find(q *gorm.DB) ([]*rule.AccountRule, error) {
	var rows []AccountRule
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]*rule.AccountRule, 0, len(rows))
	for i := range rows {
		out = append(out, toRuleDomain(&rows[i]))
	}
	return out, nil
}

func rowsOrNotFound(res *gorm.DB) error {
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func toRuleModel(r *rule.AccountRule) AccountRule {
	return AccountRule{
		ID:                   r.ID,
		UserID:               r.UserID,
		Name:                 r.Name,
		SourceAccountID:      r.SourceAccountID,
		DestinationAccountID: r.DestinationAccountID,
		Computation:          string(r.Computation),
		Value:                r.Value,
		TriggerType:          string(r.Trigger),
		Frequency:            string(r.Frequency),
		MinAmount:            r.MinAmount,
		MaxAmount:            r.MaxAmount,
		IsActive:             r.IsActive,
		LastTriggeredAt:      r.LastTriggeredAt,
		ScheduleAnchor:       r.ScheduleAnchor,
		LastScheduledAt:      r.LastScheduledAt,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func toRuleDomain(m *AccountRule) *rule.AccountRule {
	return &rule.AccountRule{
		ID:                   m.ID,
		UserID:               m.UserID,
		Name:                 m.Name,
		SourceAccountID:      m.SourceAccountID,
		DestinationAccountID: m.DestinationAccountID,
		Computation:          rule.ComputationKind(m.Computation),
		Value:                m.Value,
		Trigger:              rule.TriggerType(m.TriggerType),
		Frequency:            rule.Frequency(m.Frequency),
		MinAmount:            m.MinAmount,
		MaxAmount:            m.MaxAmount,
		IsActive:             m.IsActive,
		LastTriggeredAt:      m.LastTriggeredAt,
		ScheduleAnchor:       m.ScheduleAnchor,
		LastScheduledAt:      m.LastScheduledAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}
