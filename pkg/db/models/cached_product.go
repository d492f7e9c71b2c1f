package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CachedProduct is the read-only local projection of a backend product.
type CachedProduct struct {
	ID          string          `gorm:"column:id;primaryKey" json:"id"`
	Name        string          `gorm:"column:name;not null" json:"name"`
	SKU         string          `gorm:"column:sku" json:"sku"`
	Barcode     string          `gorm:"column:barcode" json:"barcode"`
	Category    string          `gorm:"column:category" json:"category"`
	Price       decimal.Decimal `gorm:"column:price;not null" json:"price"`
	TaxRate     decimal.Decimal `gorm:"column:tax_rate;not null" json:"taxRate"`
	Stock       int             `gorm:"column:stock;not null;default:0" json:"stock"`
	Active      bool            `gorm:"column:active;not null" json:"active"`
	RefreshedAt time.Time       `gorm:"column:refreshed_at;not null" json:"refreshedAt"`
}

func (CachedProduct) TableName() string { return "cached_products" }
