package transaction

import (
	"context"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/google/uuid"
)

// Repository defines ledger entry data access. Entries are append-only;
// only a pending entry's status may change.
type Repository interface {
	Create(ctx context.Context, tx *account.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (*account.Transaction, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*account.Transaction, error)

	// UpdateStatus moves the entry from one status to another, returning
	// domain.ErrConflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to account.Status, at time.Time) error
}
