package rule

import (
	"time"

	domainrule "github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/amirasaad/autotransfer/pkg/schedule"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleRequest is the body of POST /rules and PUT /rules/:id. Value is a
// percentage for percentage rules and minor units for fixed_amount rules.
type RuleRequest struct {
	Name                 string          `json:"name" validate:"required,max=100"`
	SourceAccountID      string          `json:"source_account_id" validate:"required,uuid"`
	DestinationAccountID string          `json:"destination_account_id" validate:"required,uuid"`
	ComputationKind      string          `json:"computation_kind" validate:"required,oneof=percentage fixed_amount"`
	Value                decimal.Decimal `json:"value" swaggertype:"string" example:"10"`
	TriggerType          string          `json:"trigger_type" validate:"required,oneof=on_income on_expense scheduled"`
	Frequency            string          `json:"frequency" validate:"omitempty,oneof=daily weekly monthly"`
	MinAmount            *int64          `json:"min_amount" validate:"omitempty,gte=0"`
	MaxAmount            *int64          `json:"max_amount" validate:"omitempty,gte=0"`
	IsActive             *bool           `json:"is_active"`
}

func (r *RuleRequest) toDraft(owner uuid.UUID) domainrule.Draft {
	return domainrule.Draft{
		UserID:               owner,
		Name:                 r.Name,
		SourceAccountID:      uuid.MustParse(r.SourceAccountID),
		DestinationAccountID: uuid.MustParse(r.DestinationAccountID),
		Computation:          domainrule.ComputationKind(r.ComputationKind),
		Value:                r.Value,
		Trigger:              domainrule.TriggerType(r.TriggerType),
		Frequency:            domainrule.Frequency(r.Frequency),
		MinAmount:            r.MinAmount,
		MaxAmount:            r.MaxAmount,
		IsActive:             r.IsActive,
	}
}

type RuleDTO struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               uuid.UUID  `json:"user_id"`
	Name                 string     `json:"name"`
	SourceAccountID      uuid.UUID  `json:"source_account_id"`
	DestinationAccountID uuid.UUID  `json:"destination_account_id"`
	ComputationKind      string     `json:"computation_kind"`
	Value                string     `json:"value"`
	TriggerType          string     `json:"trigger_type"`
	Frequency            string     `json:"frequency,omitempty"`
	MinAmount            *int64     `json:"min_amount,omitempty"`
	MaxAmount            *int64     `json:"max_amount,omitempty"`
	IsActive             bool       `json:"is_active"`
	LastTriggeredAt      *time.Time `json:"last_triggered_at,omitempty"`
	NextDueAt            *time.Time `json:"next_due_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func toRuleDTO(r *domainrule.AccountRule, loc *time.Location) RuleDTO {
	dto := RuleDTO{
		ID:                   r.ID,
		UserID:               r.UserID,
		Name:                 r.Name,
		SourceAccountID:      r.SourceAccountID,
		DestinationAccountID: r.DestinationAccountID,
		ComputationKind:      string(r.Computation),
		Value:                r.Value.String(),
		TriggerType:          string(r.Trigger),
		Frequency:            string(r.Frequency),
		MinAmount:            r.MinAmount,
		MaxAmount:            r.MaxAmount,
		IsActive:             r.IsActive,
		LastTriggeredAt:      r.LastTriggeredAt,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if sched, ok := schedule.New(r, loc); ok && r.IsActive {
		next := sched.Next(r.ScheduleReference()).UTC()
		dto.NextDueAt = &next
	}
	return dto
}

func toRuleDTOs(rules []*domainrule.AccountRule, loc *time.Location) []RuleDTO {
	out := make([]RuleDTO, 0, len(rules))
	for _, r := range rules {
		out = append(out, toRuleDTO(r, loc))
	}
	return out
}

type ExecutionDTO struct {
	ID            uuid.UUID  `json:"id"`
	RuleID        uuid.UUID  `json:"rule_id"`
	EventID       uuid.UUID  `json:"event_id"`
	Outcome       string     `json:"outcome"`
	Amount        int64      `json:"amount"`
	TriggerAmount int64      `json:"trigger_amount"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	DueAt         *time.Time `json:"due_at,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	ReservedAt    time.Time  `json:"reserved_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toExecutionDTOs(recs []*domainrule.ExecutionRecord) []ExecutionDTO {
	out := make([]ExecutionDTO, 0, len(recs))
	for _, r := range recs {
		out = append(out, ExecutionDTO{
			ID:            r.ID,
			RuleID:        r.RuleID,
			EventID:       r.EventID,
			Outcome:       string(r.Outcome),
			Amount:        r.Amount,
			TriggerAmount: r.TriggerAmount,
			TransactionID: r.TransactionID,
			DueAt:         r.DueAt,
			Reason:        r.Reason,
			ReservedAt:    r.ReservedAt,
			CompletedAt:   r.CompletedAt,
		})
	}
	return out
}
