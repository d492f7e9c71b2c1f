package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/posync/api/responses"
	"github.com/angelmondragon/posync/api/validators"
	"github.com/angelmondragon/posync/internal/mutations"
	"github.com/angelmondragon/posync/pkg/db/models"
	"github.com/angelmondragon/posync/pkg/enums"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
	"github.com/angelmondragon/posync/pkg/pagination"
)

type MutationService interface {
	Enqueue(ctx context.Context, in mutations.EnqueueInput) (*models.MutationQueueItem, error)
	List(ctx context.Context) ([]models.MutationQueueItem, error)
	ListDeadLetters(ctx context.Context, limit int) ([]models.MutationDeadLetter, error)
	RequeueDeadLetter(ctx context.Context, id uuid.UUID) (*models.MutationQueueItem, error)
}

func MutationEnqueue(svc MutationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mutation service unavailable"))
			return
		}

		var payload mutations.EnqueueInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Enqueue(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newMutationResponse(*item))
	}
}

func MutationList(svc MutationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mutation service unavailable"))
			return
		}

		items, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]mutationResponse, 0, len(items))
		for _, item := range items {
			out = append(out, newMutationResponse(item))
		}
		responses.WriteSuccess(w, out)
	}
}

func DeadLetterList(svc MutationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mutation service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListDeadLetters(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]deadLetterResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, newDeadLetterResponse(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// DeadLetterRequeue moves a dead letter back onto the queue under its
// original mutation id.
func DeadLetterRequeue(svc MutationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mutation service unavailable"))
			return
		}

		id, err := validators.ParseURLUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.RequeueDeadLetter(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newMutationResponse(*item))
	}
}

type mutationResponse struct {
	ID         uuid.UUID            `json:"id"`
	EntityKind enums.EntityKind     `json:"entityKind"`
	EntityID   *string              `json:"entityId,omitempty"`
	Action     enums.MutationAction `json:"action"`
	Payload    json.RawMessage      `json:"payload,omitempty"`
	Attempts   int                  `json:"attempts"`
	LastError  *string              `json:"lastError,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
}

func newMutationResponse(item models.MutationQueueItem) mutationResponse {
	return mutationResponse{
		ID:         item.ID,
		EntityKind: item.EntityKind,
		EntityID:   item.EntityID,
		Action:     item.Action,
		Payload:    json.RawMessage(item.Payload),
		Attempts:   item.Attempts,
		LastError:  item.LastError,
		CreatedAt:  item.CreatedAt,
	}
}

type deadLetterResponse struct {
	ID           uuid.UUID              `json:"id"`
	MutationID   uuid.UUID              `json:"mutationId"`
	EntityKind   enums.EntityKind       `json:"entityKind"`
	EntityID     *string                `json:"entityId,omitempty"`
	Action       enums.MutationAction   `json:"action"`
	Payload      json.RawMessage        `json:"payload,omitempty"`
	Reason       enums.DeadLetterReason `json:"reason"`
	ErrorMessage *string                `json:"errorMessage,omitempty"`
	ErrorCode    *string                `json:"errorCode,omitempty"`
	AttemptCount int                    `json:"attemptCount"`
	QueuedAt     time.Time              `json:"queuedAt"`
	FailedAt     time.Time              `json:"failedAt"`
}

func newDeadLetterResponse(row models.MutationDeadLetter) deadLetterResponse {
	return deadLetterResponse{
		ID:           row.ID,
		MutationID:   row.MutationID,
		EntityKind:   row.EntityKind,
		EntityID:     row.EntityID,
		Action:       row.Action,
		Payload:      json.RawMessage(row.Payload),
		Reason:       row.ErrorReason,
		ErrorMessage: row.ErrorMessage,
		ErrorCode:    row.ErrorCode,
		AttemptCount: row.AttemptCount,
		QueuedAt:     row.QueuedAt,
		FailedAt:     row.FailedAt,
	}
}
