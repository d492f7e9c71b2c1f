package refcache

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/posync/pkg/db/models"
	"github.com/angelmondragon/posync/pkg/pagination"
	"gorm.io/gorm"
)

const insertBatchSize = 200

// Repository stores the product and customer projections.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ReplaceProductsTx drops every cached product and inserts rows in their place.
func (r *Repository) ReplaceProductsTx(tx *gorm.DB, rows []models.CachedProduct) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.CachedProduct{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(rows, insertBatchSize).Error
}

// ReplaceCustomersTx drops every cached customer and inserts rows in their place.
func (r *Repository) ReplaceCustomersTx(tx *gorm.DB, rows []models.CachedCustomer) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.CachedCustomer{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(rows, insertBatchSize).Error
}

// ProductQuery filters cached products.
type ProductQuery struct {
	Search  string
	Barcode string
	Page    pagination.Params
}

// ListProducts returns one page ordered by id and the cursor of the next page.
func (r *Repository) ListProducts(ctx context.Context, q ProductQuery) ([]models.CachedProduct, string, error) {
	after, err := pagination.ParseCursor(q.Page.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).Model(&models.CachedProduct{})
	if q.Barcode != "" {
		query = query.Where("barcode = ?", q.Barcode)
	}
	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		like := "%" + term + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
	}
	if after != "" {
		query = query.Where("id > ?", after)
	}

	limit := pagination.NormalizeLimit(q.Page.Limit)
	var rows []models.CachedProduct
	if err := query.Order("id ASC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	return pageOf(rows, limit, func(p models.CachedProduct) string { return p.ID })
}

// CustomerQuery filters cached customers.
type CustomerQuery struct {
	Search string
	Page   pagination.Params
}

func (r *Repository) ListCustomers(ctx context.Context, q CustomerQuery) ([]models.CachedCustomer, string, error) {
	after, err := pagination.ParseCursor(q.Page.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).Model(&models.CachedCustomer{})
	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		like := "%" + term + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?", like, like, like)
	}
	if after != "" {
		query = query.Where("id > ?", after)
	}

	limit := pagination.NormalizeLimit(q.Page.Limit)
	var rows []models.CachedCustomer
	if err := query.Order("id ASC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	return pageOf(rows, limit, func(c models.CachedCustomer) string { return c.ID })
}

func (r *Repository) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.CachedProduct{}).Count(&n).Error
	return n, err
}

func (r *Repository) CountCustomers(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.CachedCustomer{}).Count(&n).Error
	return n, err
}

func pageOf[T any](rows []T, limit int, key func(T) string) ([]T, string, error) {
	if len(rows) <= limit {
		return rows, "", nil
	}
	rows = rows[:limit]
	return rows, pagination.EncodeCursor(key(rows[len(rows)-1])), nil
}
