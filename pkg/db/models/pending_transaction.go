package models

import (
	"encoding/json"
	"time"

	dbtypes "github.com/angelmondragon/posync/pkg/db/types"
	"github.com/angelmondragon/posync/pkg/enums"
)

// PendingTransaction is a sale captured while the backend may be unreachable.
// OfflineID doubles as the idempotency key sent on every push attempt.
type PendingTransaction struct {
	OfflineID     string                  `gorm:"column:offline_id;primaryKey"`
	SessionID     string                  `gorm:"column:session_id;not null"`
	Items         dbtypes.JSONText        `gorm:"column:items;not null"`
	Subtotal      json.Number             `gorm:"column:subtotal;not null"`
	TaxTotal      json.Number             `gorm:"column:tax_total;not null"`
	DiscountTotal json.Number             `gorm:"column:discount_total;not null"`
	Total         json.Number             `gorm:"column:total;not null"`
	Payments      dbtypes.JSONText        `gorm:"column:payments;not null"`
	CustomerID    *string                 `gorm:"column:customer_id"`
	Status        enums.TransactionStatus `gorm:"column:status;not null;default:pending"`
	SyncAttempts  int                     `gorm:"column:sync_attempts;not null;default:0"`
	LastSyncError *string                 `gorm:"column:last_sync_error"`
	LastErrorCode *string                 `gorm:"column:last_error_code"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (PendingTransaction) TableName() string { return "pending_transactions" }
