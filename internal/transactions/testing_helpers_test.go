package transactions

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/posync/pkg/backend"
	"github.com/angelmondragon/posync/pkg/db/dbtest"
	"github.com/angelmondragon/posync/pkg/logger"
)

type fakePusher struct {
	mu    sync.Mutex
	calls []backend.OfflineTransaction
	errFn func(backend.OfflineTransaction) error
}

func (f *fakePusher) PushTransaction(ctx context.Context, tx backend.OfflineTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tx)
	if f.errFn != nil {
		return f.errFn(tx)
	}
	return nil
}

func (f *fakePusher) callsFor(offlineID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.OfflineID == offlineID {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T) (*Service, *Repository) {
	t.Helper()
	client := dbtest.NewSQLite(t)
	repo := NewRepository(client.DB())
	svc, err := NewService(repo, logger.Nop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo
}

func sampleInput(offlineID string, createdAt time.Time) CreateInput {
	return CreateInput{
		OfflineID:     offlineID,
		SessionID:     "session-1",
		Items:         json.RawMessage(`[{"productId":"p-1","quantity":2,"unitPrice":5.25}]`),
		Subtotal:      json.Number("10.50"),
		TaxTotal:      json.Number("0.84"),
		DiscountTotal: json.Number("0"),
		Total:         json.Number("11.34"),
		Payments:      json.RawMessage(`[{"method":"cash","amount":11.34}]`),
		CreatedAt:     &createdAt,
	}
}
