package outbox

import (
	"context"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/outbox"
	"github.com/google/uuid"
)

// Repository stores staged events until they are published.
type Repository interface {
	Add(ctx context.Context, msgs ...*outbox.Message) error
	// ListPending returns pending messages created before cutoff, oldest first.
	ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*outbox.Message, error)
	// MarkPublished is a no-op for a message that is no longer pending.
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkAttemptFailed counts a failed delivery and keeps the message pending.
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	MarkInvalid(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
}
