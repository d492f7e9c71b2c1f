package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/posync/pkg/db/models"
	"github.com/angelmondragon/posync/pkg/enums"
	"gorm.io/gorm"
)

// Repository persists pending transactions.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Insert(ctx context.Context, tx *models.PendingTransaction) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return r.db.WithContext(ctx).Create(tx).Error
}

// FindByID returns nil, nil when the transaction does not exist.
func (r *Repository) FindByID(ctx context.Context, offlineID string) (*models.PendingTransaction, error) {
	var row models.PendingTransaction
	err := r.db.WithContext(ctx).Where("offline_id = ?", offlineID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListByStatus returns transactions with the given status in replay order.
func (r *Repository) ListByStatus(ctx context.Context, status enums.TransactionStatus) ([]models.PendingTransaction, error) {
	var rows []models.PendingTransaction
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Order("offline_id ASC").
		Find(&rows).Error
	return rows, err
}

// ListAll returns every stored transaction in replay order.
func (r *Repository) ListAll(ctx context.Context) ([]models.PendingTransaction, error) {
	var rows []models.PendingTransaction
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("offline_id ASC").
		Find(&rows).Error
	return rows, err
}

// Delete removes an acknowledged transaction.
func (r *Repository) Delete(ctx context.Context, offlineID string) error {
	return r.db.WithContext(ctx).
		Where("offline_id = ?", offlineID).
		Delete(&models.PendingTransaction{}).Error
}

// RecordFailure charges one attempt and records the error in a single
// statement; the row flips to failed once attempts reach maxAttempts.
func (r *Repository) RecordFailure(ctx context.Context, offlineID string, message string, code string, maxAttempts int) (*models.PendingTransaction, error) {
	err := r.db.WithContext(ctx).
		Model(&models.PendingTransaction{}).
		Where("offline_id = ?", offlineID).
		Updates(map[string]any{
			"sync_attempts":   gorm.Expr("sync_attempts + 1"),
			"last_sync_error": message,
			"last_error_code": code,
			"status": gorm.Expr("CASE WHEN sync_attempts + 1 >= ? THEN ? ELSE status END",
				maxAttempts, enums.TransactionStatusFailed),
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, offlineID)
}

// ResetFailed moves every failed transaction back to pending with a fresh
// attempt budget and returns how many rows were reset.
func (r *Repository) ResetFailed(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PendingTransaction{}).
		Where("status = ?", enums.TransactionStatusFailed).
		Updates(map[string]any{
			"status":          enums.TransactionStatusPending,
			"sync_attempts":   0,
			"last_sync_error": nil,
			"last_error_code": nil,
			"updated_at":      time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// CountByStatus returns the number of transactions in the given status.
func (r *Repository) CountByStatus(ctx context.Context, status enums.TransactionStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PendingTransaction{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
