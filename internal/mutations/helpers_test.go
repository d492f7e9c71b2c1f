package mutations

import (
	"context"
	"sync"
	"testing"

	"github.com/angelmondragon/posync/pkg/backend"
	"github.com/angelmondragon/posync/pkg/db"
	"github.com/angelmondragon/posync/pkg/db/dbtest"
	"github.com/angelmondragon/posync/pkg/logger"
)

type fakeSender struct {
	mu    sync.Mutex
	reqs  []backend.Request
	errFn func(backend.Request) error
}

func (f *fakeSender) Do(ctx context.Context, req backend.Request) (*backend.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.errFn != nil {
		if err := f.errFn(req); err != nil {
			return nil, err
		}
	}
	return &backend.Response{StatusCode: 200}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type testDeps struct {
	client *db.Client
	queue  *Repository
	dlq    *DeadLetterRepository
	svc    *Service
}

func newTestDeps(t *testing.T) testDeps {
	t.Helper()
	client := dbtest.NewSQLite(t)
	queue := NewRepository(client.DB())
	dlq := NewDeadLetterRepository(client.DB())
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), DB: client, Queue: queue, DeadLetters: dlq})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return testDeps{client: client, queue: queue, dlq: dlq, svc: svc}
}

func (d testDeps) reconciler(t *testing.T, sender Sender) *Reconciler {
	t.Helper()
	r, err := NewReconciler(ReconcilerParams{
		Logger:      logger.Nop(),
		DB:          d.client,
		Queue:       d.queue,
		DeadLetters: d.dlq,
		Sender:      sender,
	})
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	return r
}
