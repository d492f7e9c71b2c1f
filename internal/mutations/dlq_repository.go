package mutations

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/angelmondragon/posync/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxDeadLetterErrorLen = 1024

// DeadLetterRepository stores mutations that exhausted their attempts.
type DeadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) InsertTx(tx *gorm.DB, entry models.MutationDeadLetter) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := truncateError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

func (r *DeadLetterRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.MutationDeadLetter, error) {
	var row models.MutationDeadLetter
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// List returns the most recent dead letters first.
func (r *DeadLetterRepository) List(ctx context.Context, limit int) ([]models.MutationDeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.MutationDeadLetter
	err := r.db.WithContext(ctx).
		Order("failed_at DESC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *DeadLetterRepository) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Where("id = ?", id).Delete(&models.MutationDeadLetter{}).Error
}

func (r *DeadLetterRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.MutationDeadLetter{}).Count(&count).Error
	return count, err
}

func truncateError(message string) string {
	if len(message) <= maxDeadLetterErrorLen {
		return message
	}
	cut := maxDeadLetterErrorLen
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}

// DeleteFailedBeforeTx removes dead letters that failed before cutoff.
func (r *DeadLetterRepository) DeleteFailedBeforeTx(tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	res := tx.Where("failed_at < ?", cutoff).Delete(&models.MutationDeadLetter{})
	return res.RowsAffected, res.Error
}
