package mutations

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/posync/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists the mutation queue.
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

func (r *Repository) Insert(ctx context.Context, item *models.MutationQueueItem) error {
	if item == nil {
		return errors.New("mutation required")
	}
	return r.db.WithContext(ctx).Create(item).Error
}

// InsertTx enqueues within the caller's transaction.
func (r *Repository) InsertTx(tx *gorm.DB, item *models.MutationQueueItem) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(item).Error
}

// ListOrdered returns the whole queue in replay order.
func (r *Repository) ListOrdered(ctx context.Context) ([]models.MutationQueueItem, error) {
	var rows []models.MutationQueueItem
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// FindByID returns nil, nil when the item does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MutationQueueItem, error) {
	var row models.MutationQueueItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.MutationQueueItem{}).Error
}

func (r *Repository) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Where("id = ?", id).Delete(&models.MutationQueueItem{}).Error
}

// RecordFailure charges one attempt and stores the last error.
func (r *Repository) RecordFailure(ctx context.Context, id uuid.UUID, message string) error {
	return r.db.WithContext(ctx).
		Model(&models.MutationQueueItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": message,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.MutationQueueItem{}).Count(&count).Error
	return count, err
}
