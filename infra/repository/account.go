package repository

import (
	"context"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	repoaccount "github.com/amirasaad/autotransfer/pkg/repository/account"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository returns a GORM-backed account repository.
func NewAccountRepository(db *gorm.DB) repoaccount.Repository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, acc *account.Account) error {
	m := toAccountModel(acc)
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	var m Account
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toAccountDomain(&m), nil
}

func (r *accountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*account.Account, error) {
	var rows []Account
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at").
		Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]*account.Account, 0, len(rows))
	for i := range rows {
		out = append(out, toAccountDomain(&rows[i]))
	}
	return out, nil
}

func (r *accountRepository) CompareAndSwapBalance(
	ctx context.Context,
	id uuid.UUID,
	expected, next int64,
	at time.Time,
) error {
	res := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("id = ? AND balance = ?", id, expected).
		Updates(map[string]any{
			"balance":    next,
			"version":    gorm.Expr("version + 1"),
			"updated_at": at,
		})
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return MapGormErrorToDomain(err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func toAccountModel(a *account.Account) Account {
	return Account{
		ID:        a.ID,
		UserID:    a.UserID,
		Balance:   a.Balance,
		Currency:  a.Currency,
		Active:    a.Active,
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAccountDomain(m *Account) *account.Account {
	return &account.Account{
		ID:        m.ID,
		UserID:    m.UserID,
		Balance:   m.Balance,
		Currency:  m.Currency,
		Active:    m.Active,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
