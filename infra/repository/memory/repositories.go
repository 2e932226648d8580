package memory

import (
	"context"
	"sort"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/google/uuid"
)

type accountRepository struct{ u *UoW }

func (r *accountRepository) Create(ctx context.Context, acc *account.Account) error {
	return r.u.with(ctx, func(s *state) error {
		if _, ok := s.accounts[acc.ID]; ok {
			return domain.ErrAlreadyExists
		}
		s.accounts[acc.ID] = *acc
		return nil
	})
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	var out *account.Account
	err := r.u.with(ctx, func(s *state) error {
		acc, ok := s.accounts[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &acc
		return nil
	})
	return out, err
}

func (r *accountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*account.Account, error) {
	var out []*account.Account
	err := r.u.with(ctx, func(s *state) error {
		for _, acc := range s.accounts {
			if acc.UserID == userID {
				a := acc
				out = append(out, &a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (r *accountRepository) CompareAndSwapBalance(
	ctx context.Context,
	id uuid.UUID,
	expected, next int64,
	at time.Time,
) error {
	return r.u.with(ctx, func(s *state) error {
		acc, ok := s.accounts[id]
		if !ok {
			return domain.ErrNotFound
		}
		if acc.Balance != expected {
			return domain.ErrConflict
		}
		acc.Balance = next
		acc.Version++
		acc.UpdatedAt = at
		s.accounts[id] = acc
		return nil
	})
}

type transactionRepository struct{ u *UoW }

func (r *transactionRepository) Create(ctx context.Context, tx *account.Transaction) error {
	return r.u.with(ctx, func(s *state) error {
		if _, ok := s.txs[tx.ID]; ok {
			return domain.ErrAlreadyExists
		}
		s.txs[tx.ID] = *tx
		s.txOrder = append(s.txOrder, tx.ID)
		return nil
	})
}

func (r *transactionRepository) Get(ctx context.Context, id uuid.UUID) (*account.Transaction, error) {
	var out *account.Transaction
	err := r.u.with(ctx, func(s *state) error {
		tx, ok := s.txs[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &tx
		return nil
	})
	return out, err
}

func (r *transactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*account.Transaction, error) {
	var out []*account.Transaction
	err := r.u.with(ctx, func(s *state) error {
		for i := len(s.txOrder) - 1; i >= 0; i-- {
			tx := s.txs[s.txOrder[i]]
			if tx.AccountID == accountID {
				t := tx
				out = append(out, &t)
			}
		}
		return nil
	})
	return out, err
}

func (r *transactionRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to account.Status,
	at time.Time,
) error {
	return r.u.with(ctx, func(s *state) error {
		tx, ok := s.txs[id]
		if !ok {
			return domain.ErrNotFound
		}
		if tx.Status != from {
			return domain.ErrConflict
		}
		tx.Status = to
		tx.UpdatedAt = at
		s.txs[id] = tx
		return nil
	})
}

type ruleRepository struct{ u *UoW }

func (r *ruleRepository) Create(ctx context.Context, ar *rule.AccountRule) error {
	return r.u.with(ctx, func(s *state) error {
		if _, ok := s.rules[ar.ID]; ok {
			return domain.ErrAlreadyExists
		}
		s.rules[ar.ID] = copyRule(*ar)
		return nil
	})
}

func (r *ruleRepository) Update(ctx context.Context, ar *rule.AccountRule) error {
	return r.u.with(ctx, func(s *state) error {
		cur, ok := s.rules[ar.ID]
		if !ok {
			return domain.ErrNotFound
		}
		next := copyRule(*ar)
		next.UserID = cur.UserID
		next.CreatedAt = cur.CreatedAt
		next.LastTriggeredAt = cur.LastTriggeredAt
		s.rules[ar.ID] = next
		return nil
	})
}

func (r *ruleRepository) Get(ctx context.Context, id uuid.UUID) (*rule.AccountRule, error) {
	var out *rule.AccountRule
	err := r.u.with(ctx, func(s *state) error {
		ar, ok := s.rules[id]
		if !ok {
			return domain.ErrNotFound
		}
		c := copyRule(ar)
		out = &c
		return nil
	})
	return out, err
}

func (r *ruleRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*rule.AccountRule, error) {
	return r.filter(ctx, func(ar *rule.AccountRule) bool { return ar.UserID == userID })
}

func (r *ruleRepository) ListActive(
	ctx context.Context,
	userID uuid.UUID,
	trigger *rule.TriggerType,
) ([]*rule.AccountRule, error) {
	return r.filter(ctx, func(ar *rule.AccountRule) bool {
		return ar.UserID == userID && ar.IsActive && (trigger == nil || ar.Trigger == *trigger)
	})
}

func (r *ruleRepository) ListActiveBySource(
	ctx context.Context,
	accountID uuid.UUID,
	trigger rule.TriggerType,
) ([]*rule.AccountRule, error) {
	return r.filter(ctx, func(ar *rule.AccountRule) bool {
		return ar.IsActive && ar.SourceAccountID == accountID && ar.Trigger == trigger
	})
}

func (r *ruleRepository) ListActiveScheduled(ctx context.Context) ([]*rule.AccountRule, error) {
	return r.filter(ctx, func(ar *rule.AccountRule) bool {
		return ar.IsActive && ar.Trigger == rule.TriggerScheduled
	})
}

func (r *ruleRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error {
	return r.mutate(ctx, id, func(ar *rule.AccountRule) {
		ar.IsActive = active
		ar.UpdatedAt = at
	}, true)
}

func (r *ruleRepository) MarkTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.mutate(ctx, id, func(ar *rule.AccountRule) {
		if ar.LastTriggeredAt == nil || ar.LastTriggeredAt.Before(at) {
			t := at
			ar.LastTriggeredAt = &t
		}
	}, false)
}

func (r *ruleRepository) SetScheduleAnchor(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.mutate(ctx, id, func(ar *rule.AccountRule) {
		if ar.ScheduleAnchor == nil {
			t := at
			ar.ScheduleAnchor = &t
		}
	}, false)
}

func (r *ruleRepository) AdvanceSchedule(ctx context.Context, id uuid.UUID, dueAt time.Time) error {
	return r.mutate(ctx, id, func(ar *rule.AccountRule) {
		if ar.LastScheduledAt == nil || ar.LastScheduledAt.Before(dueAt) {
			t := dueAt
			ar.LastScheduledAt = &t
		}
	}, false)
}

func (r *ruleRepository) mutate(ctx context.Context, id uuid.UUID, fn func(*rule.AccountRule), mustExist bool) error {
	return r.u.with(ctx, func(s *state) error {
		ar, ok := s.rules[id]
		if !ok {
			if mustExist {
				return domain.ErrNotFound
			}
			return nil
		}
		ar = copyRule(ar)
		fn(&ar)
		s.rules[id] = ar
		return nil
	})
}

func (r *ruleRepository) filter(ctx context.Context, keep func(*rule.AccountRule) bool) ([]*rule.AccountRule, error) {
	var out []*rule.AccountRule
	err := r.u.with(ctx, func(s *state) error {
		for _, ar := range s.rules {
			c := copyRule(ar)
			if keep(&c) {
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

type executionRepository struct{ u *UoW }

func (r *executionRepository) Insert(ctx context.Context, rec *rule.ExecutionRecord) (bool, error) {
	created := false
	err := r.u.with(ctx, func(s *state) error {
		key := execKey{rec.RuleID, rec.EventID}
		if _, ok := s.execs[key]; ok {
			return nil
		}
		s.execs[key] = copyRecord(*rec)
		s.execOrder = append(s.execOrder, key)
		created = true
		return nil
	})
	return created, err
}

func (r *executionRepository) Complete(ctx context.Context, ruleID, eventID uuid.UUID, c rule.Completion) error {
	return r.u.with(ctx, func(s *state) error {
		key := execKey{ruleID, eventID}
		rec, ok := s.execs[key]
		if !ok || rec.Outcome != rule.OutcomeReserved {
			return rule.ErrNotReserved
		}
		rec.Outcome = c.Outcome
		rec.TransactionID = c.TransactionID
		rec.Amount = c.Amount
		rec.Reason = c.Reason
		done := c.CompletedAt
		rec.CompletedAt = &done
		s.execs[key] = copyRecord(rec)
		return nil
	})
}

func (r *executionRepository) Get(ctx context.Context, ruleID, eventID uuid.UUID) (*rule.ExecutionRecord, error) {
	var out *rule.ExecutionRecord
	err := r.u.with(ctx, func(s *state) error {
		rec, ok := s.execs[execKey{ruleID, eventID}]
		if !ok {
			return domain.ErrNotFound
		}
		c := copyRecord(rec)
		out = &c
		return nil
	})
	return out, err
}

func (r *executionRepository) ListByRule(ctx context.Context, ruleID uuid.UUID) ([]*rule.ExecutionRecord, error) {
	var out []*rule.ExecutionRecord
	err := r.u.with(ctx, func(s *state) error {
		for _, key := range s.execOrder {
			if key.ruleID == ruleID {
				c := copyRecord(s.execs[key])
				out = append(out, &c)
			}
		}
		return nil
	})
	return out, err
}

func (r *executionRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*rule.ExecutionRecord, error) {
	var out []*rule.ExecutionRecord
	err := r.u.with(ctx, func(s *state) error {
		for _, key := range s.execOrder {
			rec := s.execs[key]
			if rec.Outcome == rule.OutcomeReserved && rec.ReservedAt.Before(before) {
				c := copyRecord(rec)
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReservedAt.Before(out[j].ReservedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func copyRule(ar rule.AccountRule) rule.AccountRule {
	ar.MinAmount = clonePtr(ar.MinAmount)
	ar.MaxAmount = clonePtr(ar.MaxAmount)
	ar.LastTriggeredAt = clonePtr(ar.LastTriggeredAt)
	ar.ScheduleAnchor = clonePtr(ar.ScheduleAnchor)
	ar.LastScheduledAt = clonePtr(ar.LastScheduledAt)
	return ar
}

func copyRecord(rec rule.ExecutionRecord) rule.ExecutionRecord {
	rec.TransactionID = clonePtr(rec.TransactionID)
	rec.DueAt = clonePtr(rec.DueAt)
	rec.CompletedAt = clonePtr(rec.CompletedAt)
	return rec
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
