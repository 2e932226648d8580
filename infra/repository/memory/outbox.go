package memory

import (
	"context"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/outbox"
	"github.com/google/uuid"
)

type outboxRepository struct{ u *UoW }

func (r *outboxRepository) Add(ctx context.Context, msgs ...*outbox.Message) error {
	return r.u.with(ctx, func(s *state) error {
		for _, m := range msgs {
			if _, ok := s.outbox[m.ID]; ok {
				return domain.ErrAlreadyExists
			}
		}
		for _, m := range msgs {
			s.outbox[m.ID] = copyMessage(*m)
			s.outOrder = append(s.outOrder, m.ID)
		}
		return nil
	})
}

func (r *outboxRepository) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*outbox.Message, error) {
	var out []*outbox.Message
	err := r.u.with(ctx, func(s *state) error {
		for _, id := range s.outOrder {
			m := s.outbox[id]
			if m.Status != outbox.StatusPending || !m.CreatedAt.Before(cutoff) {
				continue
			}
			c := copyMessage(m)
			out = append(out, &c)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.pending(ctx, id, func(m *outbox.Message) {
		m.Status = outbox.StatusPublished
		t := at
		m.PublishedAt = &t
		m.UpdatedAt = at
	})
}

func (r *outboxRepository) MarkAttemptFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	return r.pending(ctx, id, func(m *outbox.Message) {
		m.Attempts++
		m.LastError = reason
		m.UpdatedAt = at
	})
}

func (r *outboxRepository) MarkInvalid(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	return r.pending(ctx, id, func(m *outbox.Message) {
		m.Status = outbox.StatusInvalid
		m.LastError = reason
		m.UpdatedAt = at
	})
}

func (r *outboxRepository) pending(ctx context.Context, id uuid.UUID, fn func(*outbox.Message)) error {
	return r.u.with(ctx, func(s *state) error {
		m, ok := s.outbox[id]
		if !ok || m.Status != outbox.StatusPending {
			return nil
		}
		m = copyMessage(m)
		fn(&m)
		s.outbox[id] = m
		return nil
	})
}

func copyMessage(m outbox.Message) outbox.Message {
	m.Payload = append([]byte(nil), m.Payload...)
	m.PublishedAt = clonePtr(m.PublishedAt)
	return m
}
