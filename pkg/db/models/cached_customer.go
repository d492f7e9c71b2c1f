package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CachedCustomer is the read-only local projection of a backend customer.
type CachedCustomer struct {
	ID            string          `gorm:"column:id;primaryKey" json:"id"`
	Name          string          `gorm:"column:name;not null" json:"name"`
	Email         string          `gorm:"column:email" json:"email"`
	Phone         string          `gorm:"column:phone" json:"phone"`
	LoyaltyPoints int             `gorm:"column:loyalty_points;not null;default:0" json:"loyaltyPoints"`
	Balance       decimal.Decimal `gorm:"column:balance;not null" json:"balance"`
	RefreshedAt   time.Time       `gorm:"column:refreshed_at;not null" json:"refreshedAt"`
}

func (CachedCustomer) TableName() string { return "cached_customers" }
