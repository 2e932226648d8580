// Package rule provides the rule store: validated creation and editing of
// account rules and read access to their execution history.
package rule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/amirasaad/autotransfer/pkg/schedule"
	"github.com/google/uuid"
)

// Service owns the rule definitions of every user.
type Service struct {
	uow    repository.UnitOfWork
	sched  *config.Scheduler
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new Service with the provided dependencies.
func NewService(deps config.Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var sched *config.Scheduler
	if deps.Config != nil {
		sched = deps.Config.Scheduler
	}
	return &Service{
		uow:    deps.Uow,
		sched:  sched,
		logger: logger.With("service", "rule"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateRule validates d and stores a new active rule. Scheduled rules get
// their first due instant here.
func (s *Service) CreateRule(ctx context.Context, d rule.Draft) (*rule.AccountRule, error) {
	now := s.now()
	r, err := rule.New(d, now)
	if err != nil {
		return nil, err
	}
	s.anchor(r, now)

	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if err := checkAccounts(ctx, uow, r); err != nil {
			return err
		}
		repo, err := uow.RuleRepository()
		if err != nil {
			return err
		}
		return repo.Create(ctx, r)
	})
	if err != nil {
		s.logger.Warn("rule not created", "user_id", d.UserID, "error", err)
		return nil, err
	}
	s.logger.Info("✅ [SUCCESS] Rule created", "rule_id", r.ID, "user_id", r.UserID, "trigger", r.Trigger)
	return r, nil
}

// UpdateRule replaces the editable fields of an owned rule.
func (s *Service) UpdateRule(ctx context.Context, owner, id uuid.UUID, d rule.Draft) (*rule.AccountRule, error) {
	var updated *rule.AccountRule
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.RuleRepository()
		if err != nil {
			return err
		}
		cur, err := owned(ctx, repo, owner, id)
		if err != nil {
			return err
		}
		d.UserID = owner
		now := s.now()
		next, err := cur.Apply(d, now)
		if err != nil {
			return err
		}
		if err := checkAccounts(ctx, uow, next); err != nil {
			return err
		}
		s.anchor(next, now)
		if err := repo.Update(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("✅ [SUCCESS] Rule updated", "rule_id", id, "user_id", owner)
	return updated, nil
}

// DeleteRule soft-deletes a rule by deactivating it. Execution history is kept.
func (s *Service) DeleteRule(ctx context.Context, owner, id uuid.UUID) error {
	return s.SetActive(ctx, owner, id, false)
}

// SetActive turns a rule on or off. Evaluations that reserved before the
// change is visible may still finish. Reactivating a scheduled rule moves
// its cursor to now so the inactive period is not caught up.
func (s *Service) SetActive(ctx context.Context, owner, id uuid.UUID, active bool) error {
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.RuleRepository()
		if err != nil {
			return err
		}
		cur, err := owned(ctx, repo, owner, id)
		if err != nil {
			return err
		}
		now := s.now()
		if err := repo.SetActive(ctx, id, active, now); err != nil {
			return err
		}
		if active && !cur.IsActive && cur.Trigger == rule.TriggerScheduled {
			return repo.AdvanceSchedule(ctx, id, now)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("✅ [SUCCESS] Rule activation changed", "rule_id", id, "active", active)
	return nil
}

// GetRule returns an owned rule.
func (s *Service) GetRule(ctx context.Context, owner, id uuid.UUID) (*rule.AccountRule, error) {
	repo, err := s.uow.RuleRepository()
	if err != nil {
		return nil, err
	}
	return owned(ctx, repo, owner, id)
}

// ListRules returns every rule of owner, active or not.
func (s *Service) ListRules(ctx context.Context, owner uuid.UUID) ([]*rule.AccountRule, error) {
	repo, err := s.uow.RuleRepository()
	if err != nil {
		return nil, err
	}
	return repo.ListByUser(ctx, owner)
}

// ListActive returns owner's active rules, optionally of one trigger type.
func (s *Service) ListActive(ctx context.Context, owner uuid.UUID, trigger *rule.TriggerType) ([]*rule.AccountRule, error) {
	if trigger != nil && !trigger.Valid() {
		return nil, &rule.InvalidRuleError{Field: "trigger_type", Reason: fmt.Sprintf("unknown trigger type %q", *trigger)}
	}
	repo, err := s.uow.RuleRepository()
	if err != nil {
		return nil, err
	}
	return repo.ListActive(ctx, owner, trigger)
}

// ListExecutions returns the audit trail of an owned rule, oldest first.
func (s *Service) ListExecutions(ctx context.Context, owner, ruleID uuid.UUID) ([]*rule.ExecutionRecord, error) {
	ruleRepo, err := s.uow.RuleRepository()
	if err != nil {
		return nil, err
	}
	if _, err := owned(ctx, ruleRepo, owner, ruleID); err != nil {
		return nil, err
	}
	execRepo, err := s.uow.ExecutionRepository()
	if err != nil {
		return nil, err
	}
	return execRepo.ListByRule(ctx, ruleID)
}

// anchor sets the first due instant of a scheduled rule that has none.
func (s *Service) anchor(r *rule.AccountRule, now time.Time) {
	if r.Trigger != rule.TriggerScheduled || r.ScheduleAnchor != nil {
		return
	}
	hour, minute := 0, 5
	if s.sched != nil {
		hour, minute = s.sched.AnchorHour, s.sched.AnchorMinute
	}
	first := schedule.FirstAnchor(now, hour, minute, s.sched.Location()).UTC()
	r.ScheduleAnchor = &first
}

type ruleGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*rule.AccountRule, error)
}

func owned(ctx context.Context, repo ruleGetter, owner, id uuid.UUID) (*rule.AccountRule, error) {
	r, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != owner {
		return nil, domain.ErrForbidden
	}
	return r, nil
}

// checkAccounts verifies both accounts exist, belong to the rule owner and
// share a currency.
func checkAccounts(ctx context.Context, uow repository.UnitOfWork, r *rule.AccountRule) error {
	repo, err := uow.AccountRepository()
	if err != nil {
		return err
	}
	load := func(field string, id uuid.UUID) (*account.Account, error) {
		acc, err := repo.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &rule.InvalidRuleError{Field: field, Reason: "account does not exist"}
		}
		if err != nil {
			return nil, err
		}
		if !acc.IsOwnedBy(r.UserID) {
			return nil, fmt.Errorf("%s: %w", field, domain.ErrForbidden)
		}
		return acc, nil
	}
	src, err := load("source_account_id", r.SourceAccountID)
	if err != nil {
		return err
	}
	dst, err := load("destination_account_id", r.DestinationAccountID)
	if err != nil {
		return err
	}
	if src.Currency != dst.Currency {
		return &rule.InvalidRuleError{
			Field:  "destination_account_id",
			Reason: fmt.Sprintf("currency %s differs from source currency %s", dst.Currency, src.Currency),
		}
	}
	return nil
}
