package repository

import (
	"context"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	repotx "github.com/amirasaad/autotransfer/pkg/repository/transaction"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository returns a GORM-backed ledger entry repository.
func NewTransactionRepository(db *gorm.DB) repotx.Repository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *account.Transaction) error {
	m := toTransactionModel(tx)
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *transactionRepository) Get(ctx context.Context, id uuid.UUID) (*account.Transaction, error) {
	var m Transaction
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toTransactionDomain(&m), nil
}

func (r *transactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*account.Transaction, error) {
	var rows []Transaction
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]*account.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, toTransactionDomain(&rows[i]))
	}
	return out, nil
}

func (r *transactionRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to account.Status,
	at time.Time,
) error {
	res := r.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": at})
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&Transaction{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return MapGormErrorToDomain(err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func toTransactionModel(t *account.Transaction) Transaction {
	return Transaction{
		ID:           t.ID,
		UserID:       t.UserID,
		AccountID:    t.AccountID,
		Amount:       t.Amount,
		Currency:     t.Currency,
		Kind:         string(t.Kind),
		Status:       string(t.Status),
		SourceRuleID: t.SourceRuleID,
		EventID:      t.EventID,
		Description:  t.Description,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func toTransactionDomain(m *Transaction) *account.Transaction {
	return &account.Transaction{
		ID:           m.ID,
		UserID:       m.UserID,
		AccountID:    m.AccountID,
		Amount:       m.Amount,
		Currency:     m.Currency,
		Kind:         account.Kind(m.Kind),
		Status:       account.Status(m.Status),
		SourceRuleID: m.SourceRuleID,
		EventID:      m.EventID,
		Description:  m.Description,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
