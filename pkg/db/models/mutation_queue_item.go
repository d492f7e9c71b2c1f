package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/posync/pkg/db/types"
	"github.com/angelmondragon/posync/pkg/enums"
)

// MutationQueueItem is a deferred create/update/delete against a backend resource.
type MutationQueueItem struct {
	ID         uuid.UUID            `gorm:"column:id;primaryKey"`
	EntityKind enums.EntityKind     `gorm:"column:entity_kind;not null"`
	EntityID   *string              `gorm:"column:entity_id"`
	Action     enums.MutationAction `gorm:"column:action;not null"`
	Payload    dbtypes.JSONText     `gorm:"column:payload"`
	Attempts   int                  `gorm:"column:attempts;not null;default:0"`
	LastError  *string              `gorm:"column:last_error"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (MutationQueueItem) TableName() string { return "mutation_queue" }
