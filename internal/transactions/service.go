package transactions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/posync/pkg/db"
	"github.com/angelmondragon/posync/pkg/db/models"
	dbtypes "github.com/angelmondragon/posync/pkg/db/types"
	"github.com/angelmondragon/posync/pkg/enums"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
	"github.com/angelmondragon/posync/pkg/validate"
	"github.com/google/uuid"
)

// CreateInput captures a completed sale. OfflineID is optional; when the
// caller supplies one it is stored and pushed exactly as given, and repeating
// the call returns the stored record.
type CreateInput struct {
	OfflineID     string          `json:"offlineId" validate:"omitempty,uuid"`
	SessionID     string          `json:"sessionId" validate:"required,max=128"`
	Items         json.RawMessage `json:"items" validate:"required,jsondoc"`
	Subtotal      json.Number     `json:"subtotal" validate:"required,decimal"`
	TaxTotal      json.Number     `json:"taxTotal" validate:"required,decimal"`
	DiscountTotal json.Number     `json:"discountTotal" validate:"required,decimal"`
	Total         json.Number     `json:"total" validate:"required,decimal"`
	Payments      json.RawMessage `json:"payments" validate:"required,jsondoc"`
	CustomerID    *string         `json:"customerId" validate:"omitempty,min=1,max=128"`
	CreatedAt     *time.Time      `json:"createdAt"`
}

// Service is the ingress for sales captured on the device.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("transaction repository required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Service{repo: repo, logg: logg, now: time.Now}, nil
}

// Create persists a pending transaction. created is false when a transaction
// with the same OfflineID already exists; the stored record is returned as is.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.PendingTransaction, bool, error) {
	if err := validate.Struct(in); err != nil {
		return nil, false, err
	}

	offlineID := in.OfflineID
	if offlineID != "" {
		existing, err := s.repo.FindByID(ctx, offlineID)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeStore, err, "lookup transaction")
		}
		if existing != nil {
			return existing, false, nil
		}
	} else {
		offlineID = uuid.NewString()
	}

	createdAt := s.now().UTC()
	if in.CreatedAt != nil && !in.CreatedAt.IsZero() {
		createdAt = in.CreatedAt.UTC()
	}

	row := &models.PendingTransaction{
		OfflineID:     offlineID,
		SessionID:     strings.TrimSpace(in.SessionID),
		Items:         dbtypes.JSONText(in.Items),
		Subtotal:      in.Subtotal,
		TaxTotal:      in.TaxTotal,
		DiscountTotal: in.DiscountTotal,
		Total:         in.Total,
		Payments:      dbtypes.JSONText(in.Payments),
		CustomerID:    in.CustomerID,
		Status:        enums.TransactionStatusPending,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}

	if err := s.repo.Insert(ctx, row); err != nil {
		if db.IsUniqueViolation(err, "") {
			existing, findErr := s.repo.FindByID(ctx, offlineID)
			if findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeStore, err, "insert transaction")
	}

	s.logg.Info(s.logg.WithOfflineID(ctx, offlineID), "offline transaction recorded")
	return row, true, nil
}

// Get returns a stored transaction or a not-found error.
func (s *Service) Get(ctx context.Context, offlineID string) (*models.PendingTransaction, error) {
	row, err := s.repo.FindByID(ctx, offlineID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "lookup transaction")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return row, nil
}

// List returns stored transactions, optionally filtered by status.
func (s *Service) List(ctx context.Context, status *enums.TransactionStatus) ([]models.PendingTransaction, error) {
	var (
		rows []models.PendingTransaction
		err  error
	)
	if status != nil {
		rows, err = s.repo.ListByStatus(ctx, *status)
	} else {
		rows, err = s.repo.ListAll(ctx)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "list transactions")
	}
	return rows, nil
}
