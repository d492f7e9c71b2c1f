package settings

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/posync/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KeyLastSyncAt           = "lastSyncAt"
	KeyLastSyncError        = "lastSyncError"
	KeyProductsRefreshedAt  = "cache.products.refreshedAt"
	KeyCustomersRefreshedAt = "cache.customers.refreshedAt"
	timestampLayout         = time.RFC3339Nano
)

// Repository persists scalar settings.
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

// Get returns the value for key and whether it was present.
func (r *Repository) Get(ctx context.Context, key string) (string, bool, error) {
	var row models.Setting
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return row.Value, true, nil
}

// Set upserts key.
func (r *Repository) Set(ctx context.Context, key, value string) error {
	row := models.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// Delete removes key; missing keys are not an error.
func (r *Repository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("key = ?", key).Delete(&models.Setting{}).Error
}

// SetTime stores t in RFC3339 with nanoseconds, normalized to UTC.
func (r *Repository) SetTime(ctx context.Context, key string, t time.Time) error {
	return r.Set(ctx, key, t.UTC().Format(timestampLayout))
}

// GetTime parses a timestamp setting. Missing or unparsable values yield nil.
func (r *Repository) GetTime(ctx context.Context, key string) (*time.Time, error) {
	raw, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	t, parseErr := time.Parse(timestampLayout, raw)
	if parseErr != nil {
		return nil, nil
	}
	return &t, nil
}

// GetString returns a pointer to the stored value, or nil when absent.
func (r *Repository) GetString(ctx context.Context, key string) (*string, error) {
	raw, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	return &raw, nil
}
