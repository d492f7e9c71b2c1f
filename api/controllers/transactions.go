package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/posync/api/responses"
	"github.com/angelmondragon/posync/api/validators"
	"github.com/angelmondragon/posync/internal/transactions"
	"github.com/angelmondragon/posync/pkg/db/models"
	"github.com/angelmondragon/posync/pkg/enums"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
)

// TransactionCreator records a sale. The orchestrator implements it so a
// connected device pushes right away.
type TransactionCreator interface {
	CreateOfflineTransaction(ctx context.Context, in transactions.CreateInput) (*models.PendingTransaction, bool, error)
}

type TransactionReader interface {
	Get(ctx context.Context, offlineID string) (*models.PendingTransaction, error)
	List(ctx context.Context, status *enums.TransactionStatus) ([]models.PendingTransaction, error)
}

// TransactionCreate returns 201 for a new sale and 200 when the offlineId was
// already recorded.
func TransactionCreate(svc TransactionCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}

		var payload transactions.CreateInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, created, err := svc.CreateOfflineTransaction(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, newTransactionResponse(*row))
	}
}

func TransactionList(svc TransactionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}

		var filter *enums.TransactionStatus
		if raw := validators.ParseQueryString(r, "status"); raw != "" {
			status, err := enums.ParseTransactionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(map[string]string{"status": "must be pending or failed"}))
				return
			}
			filter = &status
		}

		rows, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]transactionResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, newTransactionResponse(row))
		}
		responses.WriteSuccess(w, out)
	}
}

func TransactionGet(svc TransactionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}

		row, err := svc.Get(r.Context(), chi.URLParam(r, "offlineId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionResponse(*row))
	}
}

type transactionResponse struct {
	OfflineID     string                  `json:"offlineId"`
	SessionID     string                  `json:"sessionId"`
	Items         json.RawMessage         `json:"items"`
	Subtotal      json.Number             `json:"subtotal"`
	TaxTotal      json.Number             `json:"taxTotal"`
	DiscountTotal json.Number             `json:"discountTotal"`
	Total         json.Number             `json:"total"`
	Payments      json.RawMessage         `json:"payments"`
	CustomerID    *string                 `json:"customerId,omitempty"`
	Status        enums.TransactionStatus `json:"status"`
	SyncAttempts  int                     `json:"syncAttempts"`
	LastSyncError *string                 `json:"lastSyncError,omitempty"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

func newTransactionResponse(row models.PendingTransaction) transactionResponse {
	return transactionResponse{
		OfflineID:     row.OfflineID,
		SessionID:     row.SessionID,
		Items:         json.RawMessage(row.Items),
		Subtotal:      row.Subtotal,
		TaxTotal:      row.TaxTotal,
		DiscountTotal: row.DiscountTotal,
		Total:         row.Total,
		Payments:      json.RawMessage(row.Payments),
		CustomerID:    row.CustomerID,
		Status:        row.Status,
		SyncAttempts:  row.SyncAttempts,
		LastSyncError: row.LastSyncError,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}
