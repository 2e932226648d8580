package repository

import (
	"context"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/outbox"
	repooutbox "github.com/amirasaad/autotransfer/pkg/repository/outbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type outboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository returns a GORM-backed outbox. Add must run on the
// transaction that writes the state the messages announce.
func NewOutboxRepository(db *gorm.DB) repooutbox.Repository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Add(ctx context.Context, msgs ...*outbox.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]OutboxMessage, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, toOutboxModel(m))
	}
	return MapGormErrorToDomain(r.db.WithContext(ctx).Create(&rows).Error)
}

func (r *outboxRepository) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*outbox.Message, error) {
	var rows []OutboxMessage
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(outbox.StatusPending), cutoff).
		Order("created_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]*outbox.Message, 0, len(rows))
	for i := range rows {
		out = append(out, toOutboxDomain(&rows[i]))
	}
	return out, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.pending(ctx, id).Updates(map[string]any{
		"status":       string(outbox.StatusPublished),
		"published_at": at,
		"updated_at":   at,
	}).Error
}

func (r *outboxRepository) MarkAttemptFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	return r.pending(ctx, id).Updates(map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": reason,
		"updated_at": at,
	}).Error
}

func (r *outboxRepository) MarkInvalid(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	return r.pending(ctx, id).Updates(map[string]any{
		"status":     string(outbox.StatusInvalid),
		"last_error": reason,
		"updated_at": at,
	}).Error
}

func (r *outboxRepository) pending(ctx context.Context, id uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&OutboxMessage{}).
		Where("id = ? AND status = ?", id, string(outbox.StatusPending))
}

func toOutboxModel(m *outbox.Message) OutboxMessage {
	return OutboxMessage{
		ID:          m.ID,
		EventType:   m.EventType,
		AggregateID: m.AggregateID,
		Payload:     m.Payload,
		Status:      string(m.Status),
		Attempts:    m.Attempts,
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		PublishedAt: m.PublishedAt,
	}
}

func toOutboxDomain(m *OutboxMessage) *outbox.Message {
	return &outbox.Message{
		ID:          m.ID,
		EventType:   m.EventType,
		AggregateID: m.AggregateID,
		Payload:     m.Payload,
		Status:      outbox.Status(m.Status),
		Attempts:    m.Attempts,
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		PublishedAt: m.PublishedAt,
	}
}
