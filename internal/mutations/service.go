package mutations

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/angelmondragon/posync/pkg/db"
	"github.com/angelmondragon/posync/pkg/db/models"
	dbtypes "github.com/angelmondragon/posync/pkg/db/types"
	"github.com/angelmondragon/posync/pkg/enums"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
	"github.com/angelmondragon/posync/pkg/validate"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EnqueueInput is a local write to a secondary entity that must be replayed
// against the backend.
type EnqueueInput struct {
	EntityKind string          `json:"entityKind" validate:"required,max=64"`
	Action     string          `json:"action" validate:"required,oneof=create update delete"`
	EntityID   *string         `json:"entityId" validate:"omitempty,min=1,max=128"`
	Payload    json.RawMessage `json:"payload" validate:"omitempty,jsondoc"`
}

type ServiceParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Queue       *Repository
	DeadLetters *DeadLetterRepository
}

// Service is the ingress for the mutation queue and its dead letters.
type Service struct {
	logg  *logger.Logger
	db    txRunner
	queue *Repository
	dlq   *DeadLetterRepository
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Queue == nil {
		return nil, errors.New("mutation repository is required")
	}
	if params.DeadLetters == nil {
		return nil, errors.New("dead letter repository is required")
	}
	return &Service{logg: params.Logger, db: params.DB, queue: params.Queue, dlq: params.DeadLetters}, nil
}

// Enqueue stores a mutation for replay. Only kinds this build can route are accepted.
func (s *Service) Enqueue(ctx context.Context, in EnqueueInput) (*models.MutationQueueItem, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	kind, err := enums.ParseEntityKind(strings.TrimSpace(in.EntityKind))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"entityKind": "is not a supported entity kind"})
	}
	action, err := enums.ParseMutationAction(in.Action)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"action": "must be one of [create update delete]"})
	}
	if action.RequiresEntityID() && (in.EntityID == nil || strings.TrimSpace(*in.EntityID) == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"entityId": "is required for " + string(action)})
	}

	item := &models.MutationQueueItem{
		ID:         uuid.New(),
		EntityKind: kind,
		EntityID:   in.EntityID,
		Action:     action,
	}
	if len(in.Payload) > 0 && action != enums.MutationActionDelete {
		item.Payload = dbtypes.JSONText(in.Payload)
	}
	if err := s.queue.Insert(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "enqueue mutation")
	}

	s.logg.Info(s.logg.WithMutationID(ctx, item.ID.String()), "mutation enqueued")
	return item, nil
}

// List returns the current queue in replay order.
func (s *Service) List(ctx context.Context) ([]models.MutationQueueItem, error) {
	rows, err := s.queue.ListOrdered(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "list mutations")
	}
	return rows, nil
}

func (s *Service) ListDeadLetters(ctx context.Context, limit int) ([]models.MutationDeadLetter, error) {
	rows, err := s.dlq.List(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "list dead letters")
	}
	return rows, nil
}

// RequeueDeadLetter moves a dead letter back onto the queue under its
// original mutation id with a fresh attempt budget.
func (s *Service) RequeueDeadLetter(ctx context.Context, id uuid.UUID) (*models.MutationQueueItem, error) {
	entry, err := s.dlq.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "lookup dead letter")
	}
	if entry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
	}

	item := &models.MutationQueueItem{
		ID:         entry.MutationID,
		EntityKind: entry.EntityKind,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Payload:    entry.Payload,
		CreatedAt:  entry.QueuedAt,
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.queue.InsertTx(tx, item); err != nil {
			return err
		}
		return s.dlq.DeleteTx(tx, entry.ID)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "mutation is already queued")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "requeue dead letter")
	}

	s.logg.Info(s.logg.WithMutationID(ctx, item.ID.String()), "dead letter requeued")
	return item, nil
}
