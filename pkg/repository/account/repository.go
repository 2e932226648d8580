package account

import (
	"context"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/google/uuid"
)

// Repository defines account data access. Balances change only through
// CompareAndSwapBalance.
type Repository interface {
	Create(ctx context.Context, acc *account.Account) error
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*account.Account, error)

	// CompareAndSwapBalance sets the balance to next only if it still equals
	// expected. It returns domain.ErrConflict when the balance moved and
	// domain.ErrNotFound when the account does not exist.
	CompareAndSwapBalance(ctx context.Context, id uuid.UUID, expected, next int64, at time.Time) error
}
