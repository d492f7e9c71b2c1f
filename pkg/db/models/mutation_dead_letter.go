package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/posync/pkg/db/types"
	"github.com/angelmondragon/posync/pkg/enums"
)

// MutationDeadLetter captures mutations that exhausted their attempts.
type MutationDeadLetter struct {
	ID           uuid.UUID              `gorm:"column:id;primaryKey"`
	MutationID   uuid.UUID              `gorm:"column:mutation_id;not null"`
	EntityKind   enums.EntityKind       `gorm:"column:entity_kind;not null"`
	EntityID     *string                `gorm:"column:entity_id"`
	Action       enums.MutationAction   `gorm:"column:action;not null"`
	Payload      dbtypes.JSONText       `gorm:"column:payload"`
	ErrorReason  enums.DeadLetterReason `gorm:"column:error_reason;not null"`
	ErrorMessage *string                `gorm:"column:error_message"`
	ErrorCode    *string                `gorm:"column:error_code"`
	AttemptCount int                    `gorm:"column:attempt_count;not null;default:0"`
	QueuedAt     time.Time              `gorm:"column:queued_at;not null"`
	FailedAt     time.Time              `gorm:"column:failed_at;autoCreateTime"`
}

func (MutationDeadLetter) TableName() string { return "mutation_dead_letters" }
