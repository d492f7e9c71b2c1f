package mutations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/posync/pkg/backend"
	"github.com/angelmondragon/posync/pkg/db/models"
	"github.com/angelmondragon/posync/pkg/enums"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultMaxAttempts is the attempt ceiling after which a mutation is dead-lettered.
const DefaultMaxAttempts = 5

// Sender issues a replay request against the backend.
type Sender interface {
	Do(ctx context.Context, req backend.Request) (*backend.Response, error)
}

type queueStore interface {
	ListOrdered(ctx context.Context) ([]models.MutationQueueItem, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteTx(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, message string) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.MutationDeadLetter) error
}

type ReconcilerParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Queue       queueStore
	DeadLetters deadLetterStore
	Sender      Sender
	MaxAttempts int
}

// Reconciler replays queued mutations through the route table.
type Reconciler struct {
	logg        *logger.Logger
	db          txRunner
	queue       queueStore
	dlq         deadLetterStore
	sender      Sender
	maxAttempts int
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Queue == nil {
		return nil, errors.New("mutation store is required")
	}
	if params.DeadLetters == nil {
		return nil, errors.New("dead letter store is required")
	}
	if params.Sender == nil {
		return nil, errors.New("sender is required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Reconciler{
		logg:        params.Logger,
		db:          params.DB,
		queue:       params.Queue,
		dlq:         params.DeadLetters,
		sender:      params.Sender,
		maxAttempts: maxAttempts,
	}, nil
}

// ItemError describes one mutation that did not replay during a pass.
type ItemError struct {
	MutationID string `json:"mutationId"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	Attempts   int    `json:"attempts"`
	// DeadLettered is set when this failure removed the mutation from the queue.
	DeadLettered bool `json:"deadLettered"`
}

func (e ItemError) String() string {
	return fmt.Sprintf("mutation %s: %s", e.MutationID, e.Message)
}

// PassResult aggregates one reconciler pass.
type PassResult struct {
	Synced       int         `json:"synced"`
	Failed       int         `json:"failed"`
	Skipped      int         `json:"skipped"`
	DeadLettered int         `json:"deadLettered"`
	Errors       []ItemError `json:"errors,omitempty"`
}

// Run snapshots the queue and replays each routable item once. Items the
// route table does not know are left untouched.
func (r *Reconciler) Run(ctx context.Context) (PassResult, error) {
	var result PassResult

	items, err := r.queue.ListOrdered(ctx)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeStore, err, "load mutation queue")
	}

	for _, item := range items {
		itemCtx := r.logg.WithMutationID(ctx, item.ID.String())

		req, ok := resolve(item)
		if !ok {
			result.Skipped++
			r.logg.Debug(r.logg.WithFields(itemCtx, map[string]any{
				"entity_kind": item.EntityKind,
				"action":      item.Action,
			}), "mutation not routable; skipped")
			continue
		}

		if _, sendErr := r.sender.Do(itemCtx, req); sendErr != nil {
			result.Failed++
			itemErr, err := r.handleFailure(itemCtx, item, sendErr)
			if err != nil {
				r.logg.Error(itemCtx, "failed to record mutation failure", err)
				itemErr.Message = fmt.Sprintf("%s (recording failure: %v)", itemErr.Message, err)
			}
			if itemErr.DeadLettered {
				result.DeadLettered++
			}
			result.Errors = append(result.Errors, itemErr)
			continue
		}

		result.Synced++
		if err := r.queue.Delete(itemCtx, item.ID); err != nil {
			r.logg.Error(itemCtx, "failed to remove replayed mutation", err)
			result.Errors = append(result.Errors, ItemError{
				MutationID: item.ID.String(),
				Message:    "replayed but local delete failed: " + err.Error(),
				Code:       string(pkgerrors.CodeStore),
				Attempts:   item.Attempts,
			})
			continue
		}
		r.logg.Info(itemCtx, "mutation replayed")
	}

	return result, nil
}

func (r *Reconciler) handleFailure(ctx context.Context, item models.MutationQueueItem, sendErr error) (ItemError, error) {
	nextAttempt := item.Attempts + 1
	code := string(pkgerrors.CodeOf(sendErr))
	itemErr := ItemError{
		MutationID: item.ID.String(),
		Message:    sendErr.Error(),
		Code:       code,
		Attempts:   nextAttempt,
	}
	fields := map[string]any{
		"entity_kind": item.EntityKind,
		"action":      item.Action,
		"attempt":     nextAttempt,
		"error_code":  code,
		"error":       sendErr.Error(),
	}

	if nextAttempt < r.maxAttempts {
		r.logg.Warn(r.logg.WithFields(ctx, fields), "mutation replay failed")
		return itemErr, r.queue.RecordFailure(ctx, item.ID, sendErr.Error())
	}

	fields["error_reason"] = enums.DeadLetterReasonMaxAttempts
	r.logg.Warn(r.logg.WithFields(ctx, fields), "mutation exhausted replay attempts; dead-lettered")

	msg := sendErr.Error()
	entry := models.MutationDeadLetter{
		ID:           uuid.New(),
		MutationID:   item.ID,
		EntityKind:   item.EntityKind,
		EntityID:     item.EntityID,
		Action:       item.Action,
		Payload:      item.Payload,
		ErrorReason:  enums.DeadLetterReasonMaxAttempts,
		ErrorMessage: &msg,
		ErrorCode:    &code,
		AttemptCount: nextAttempt,
		QueuedAt:     item.CreatedAt,
		FailedAt:     time.Now().UTC(),
	}
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := r.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dead letter %s: %w", item.ID, err)
		}
		if err := r.queue.DeleteTx(tx, item.ID); err != nil {
			return fmt.Errorf("dequeue %s: %w", item.ID, err)
		}
		return nil
	})
	if err != nil {
		return itemErr, err
	}
	itemErr.DeadLettered = true
	return itemErr, nil
}
