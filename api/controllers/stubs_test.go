package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/posync/internal/mutations"
	"github.com/angelmondragon/posync/internal/refcache"
	"github.com/angelmondragon/posync/internal/syncer"
	"github.com/angelmondragon/posync/internal/transactions"
	"github.com/angelmondragon/posync/pkg/db/models"
	"github.com/angelmondragon/posync/pkg/enums"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
)

type stubTransactions struct {
	rows    map[string]models.PendingTransaction
	lastIn  transactions.CreateInput
	lastFil *enums.TransactionStatus
}

func newStubTransactions() *stubTransactions {
	return &stubTransactions{rows: map[string]models.PendingTransaction{}}
}

func (s *stubTransactions) CreateOfflineTransaction(_ context.Context, in transactions.CreateInput) (*models.PendingTransaction, bool, error) {
	s.lastIn = in
	if row, ok := s.rows[in.OfflineID]; ok && in.OfflineID != "" {
		return &row, false, nil
	}
	id := in.OfflineID
	if id == "" {
		id = uuid.NewString()
	}
	row := models.PendingTransaction{
		OfflineID: id,
		SessionID: in.SessionID,
		Items:     []byte(in.Items),
		Total:     in.Total,
		Payments:  []byte(in.Payments),
		Status:    enums.TransactionStatusPending,
	}
	s.rows[id] = row
	return &row, true, nil
}

func (s *stubTransactions) Get(_ context.Context, offlineID string) (*models.PendingTransaction, error) {
	row, ok := s.rows[offlineID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return &row, nil
}

func (s *stubTransactions) List(_ context.Context, status *enums.TransactionStatus) ([]models.PendingTransaction, error) {
	s.lastFil = status
	out := make([]models.PendingTransaction, 0, len(s.rows))
	for _, row := range s.rows {
		if status == nil || row.Status == *status {
			out = append(out, row)
		}
	}
	return out, nil
}

type stubMutations struct {
	queued      []models.MutationQueueItem
	deadLetters []models.MutationDeadLetter
	lastLimit   int
	enqueueErr  error
}

func (s *stubMutations) Enqueue(_ context.Context, in mutations.EnqueueInput) (*models.MutationQueueItem, error) {
	if s.enqueueErr != nil {
		return nil, s.enqueueErr
	}
	item := models.MutationQueueItem{
		ID:         uuid.New(),
		EntityKind: enums.EntityKind(in.EntityKind),
		EntityID:   in.EntityID,
		Action:     enums.MutationAction(in.Action),
		Payload:    []byte(in.Payload),
		CreatedAt:  time.Now().UTC(),
	}
	s.queued = append(s.queued, item)
	return &item, nil
}

func (s *stubMutations) List(context.Context) ([]models.MutationQueueItem, error) {
	return s.queued, nil
}

func (s *stubMutations) ListDeadLetters(_ context.Context, limit int) ([]models.MutationDeadLetter, error) {
	s.lastLimit = limit
	return s.deadLetters, nil
}

func (s *stubMutations) RequeueDeadLetter(_ context.Context, id uuid.UUID) (*models.MutationQueueItem, error) {
	for i, dl := range s.deadLetters {
		if dl.ID != id {
			continue
		}
		s.deadLetters = append(s.deadLetters[:i], s.deadLetters[i+1:]...)
		item := models.MutationQueueItem{ID: dl.MutationID, EntityKind: dl.EntityKind, Action: dl.Action, CreatedAt: dl.QueuedAt}
		s.queued = append(s.queued, item)
		return &item, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
}

type stubSync struct {
	status  syncer.Status
	result  syncer.Result
	err     error
	retried int
	synced  int
}

func (s *stubSync) Status(context.Context) (syncer.Status, error) { return s.status, s.err }

func (s *stubSync) SyncAll(context.Context) (syncer.Result, error) {
	s.synced++
	return s.result, s.err
}

func (s *stubSync) RetryFailedTransactions(context.Context) (syncer.Result, error) {
	s.retried++
	return s.result, s.err
}

type stubMonitor struct {
	online bool
}

func (m *stubMonitor) IsOnline() bool        { return m.online }
func (m *stubMonitor) SetOnline(online bool) { m.online = online }

type stubCache struct {
	online       bool
	products     []models.CachedProduct
	customers    []models.CachedCustomer
	lastProducts refcache.ProductQuery
	refreshedAt  time.Time
	refreshed    []string
}

func (s *stubCache) FetchAndCacheProducts(context.Context) (int, error) {
	if !s.online {
		return 0, pkgerrors.New(pkgerrors.CodeOffline, "cannot refresh products while offline")
	}
	s.refreshed = append(s.refreshed, "products")
	return len(s.products), nil
}

func (s *stubCache) FetchAndCacheCustomers(context.Context) (int, error) {
	if !s.online {
		return 0, pkgerrors.New(pkgerrors.CodeOffline, "cannot refresh customers while offline")
	}
	s.refreshed = append(s.refreshed, "customers")
	return len(s.customers), nil
}

func (s *stubCache) InitialSync(ctx context.Context) (refcache.InitialCounts, error) {
	p, perr := s.FetchAndCacheProducts(ctx)
	c, cerr := s.FetchAndCacheCustomers(ctx)
	return refcache.InitialCounts{Products: p, Customers: c}, errors.Join(perr, cerr)
}

func (s *stubCache) RefreshTimes(context.Context) (*time.Time, *time.Time, error) {
	if s.refreshedAt.IsZero() {
		return nil, nil, nil
	}
	t := s.refreshedAt
	return &t, &t, nil
}

func (s *stubCache) ListProducts(_ context.Context, q refcache.ProductQuery) ([]models.CachedProduct, string, error) {
	s.lastProducts = q
	return s.products, "", nil
}

func (s *stubCache) ListCustomers(context.Context, refcache.CustomerQuery) ([]models.CachedCustomer, string, error) {
	return s.customers, "", nil
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func decodeErrorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return envelope.Error.Code
}
