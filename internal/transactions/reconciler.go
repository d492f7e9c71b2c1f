package transactions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/posync/pkg/backend"
	"github.com/angelmondragon/posync/pkg/db/models"
	"github.com/angelmondragon/posync/pkg/enums"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
)

// DefaultMaxAttempts is the attempt ceiling after which a transaction is parked as failed.
const DefaultMaxAttempts = 5

// Pusher submits a transaction to the backend.
type Pusher interface {
	PushTransaction(ctx context.Context, tx backend.OfflineTransaction) error
}

type store interface {
	ListByStatus(ctx context.Context, status enums.TransactionStatus) ([]models.PendingTransaction, error)
	Delete(ctx context.Context, offlineID string) error
	RecordFailure(ctx context.Context, offlineID, message, code string, maxAttempts int) (*models.PendingTransaction, error)
}

type ReconcilerParams struct {
	Logger      *logger.Logger
	Store       store
	Pusher      Pusher
	MaxAttempts int
}

// Reconciler pushes pending transactions and applies the retry ceiling.
type Reconciler struct {
	logg        *logger.Logger
	store       store
	pusher      Pusher
	maxAttempts int
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Store == nil {
		return nil, errors.New("transaction store is required")
	}
	if params.Pusher == nil {
		return nil, errors.New("pusher is required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Reconciler{
		logg:        params.Logger,
		store:       params.Store,
		pusher:      params.Pusher,
		maxAttempts: maxAttempts,
	}, nil
}

// ItemError describes one transaction that did not sync during a pass.
type ItemError struct {
	OfflineID string `json:"offlineId"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	Attempts  int    `json:"attempts"`
	// Terminal is set when this failure moved the transaction to failed.
	Terminal bool `json:"terminal"`
}

func (e ItemError) String() string {
	return fmt.Sprintf("transaction %s: %s", e.OfflineID, e.Message)
}

// PassResult aggregates one reconciler pass.
type PassResult struct {
	Synced int         `json:"synced"`
	Failed int         `json:"failed"`
	Errors []ItemError `json:"errors,omitempty"`
}

// Run snapshots pending transactions and attempts each one exactly once.
// Per-item failures are recorded and collected; only a snapshot read failure
// is returned as an error.
func (r *Reconciler) Run(ctx context.Context) (PassResult, error) {
	var result PassResult

	pending, err := r.store.ListByStatus(ctx, enums.TransactionStatusPending)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeStore, err, "load pending transactions")
	}

	for _, tx := range pending {
		itemCtx := r.logg.WithOfflineID(ctx, tx.OfflineID)

		pushErr := r.pusher.PushTransaction(itemCtx, toPayload(tx))
		if pushErr == nil {
			result.Synced++
			if err := r.store.Delete(itemCtx, tx.OfflineID); err != nil {
				// Acknowledged remotely; the next pass re-pushes under the same key.
				r.logg.Error(itemCtx, "failed to remove acknowledged transaction", err)
				result.Errors = append(result.Errors, ItemError{
					OfflineID: tx.OfflineID,
					Message:   "acknowledged but local delete failed: " + err.Error(),
					Code:      string(pkgerrors.CodeStore),
					Attempts:  tx.SyncAttempts,
				})
				continue
			}
			r.logg.Info(itemCtx, "transaction synced")
			continue
		}

		result.Failed++
		result.Errors = append(result.Errors, r.recordFailure(itemCtx, tx, pushErr))
	}

	return result, nil
}

func (r *Reconciler) recordFailure(ctx context.Context, tx models.PendingTransaction, pushErr error) ItemError {
	code := string(pkgerrors.CodeOf(pushErr))
	item := ItemError{
		OfflineID: tx.OfflineID,
		Message:   pushErr.Error(),
		Code:      code,
		Attempts:  tx.SyncAttempts + 1,
	}

	updated, err := r.store.RecordFailure(ctx, tx.OfflineID, pushErr.Error(), code, r.maxAttempts)
	if err != nil {
		r.logg.Error(ctx, "failed to record transaction sync failure", err)
		item.Message = fmt.Sprintf("%s (recording failure: %v)", item.Message, err)
		return item
	}
	if updated != nil {
		item.Attempts = updated.SyncAttempts
		item.Terminal = updated.Status == enums.TransactionStatusFailed
	}

	fields := map[string]any{
		"attempt":    item.Attempts,
		"error_code": code,
		"retryable":  pkgerrors.IsRetryable(pushErr),
		"error":      pushErr.Error(),
	}
	if item.Terminal {
		r.logg.Warn(r.logg.WithFields(ctx, fields), "transaction exhausted sync attempts; marked failed")
	} else {
		r.logg.Warn(r.logg.WithFields(ctx, fields), "transaction sync failed")
	}
	return item
}

func toPayload(tx models.PendingTransaction) backend.OfflineTransaction {
	return backend.OfflineTransaction{
		OfflineID:     tx.OfflineID,
		SessionID:     tx.SessionID,
		Items:         json.RawMessage(tx.Items),
		Subtotal:      tx.Subtotal,
		TaxTotal:      tx.TaxTotal,
		DiscountTotal: tx.DiscountTotal,
		Total:         tx.Total,
		Payments:      json.RawMessage(tx.Payments),
		CustomerID:    tx.CustomerID,
		CreatedAt:     tx.CreatedAt.UTC(),
	}
}
