package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/posync/internal/connectivity"
	"github.com/angelmondragon/posync/internal/mutations"
	"github.com/angelmondragon/posync/internal/settings"
	"github.com/angelmondragon/posync/internal/transactions"
	"github.com/angelmondragon/posync/pkg/backend"
	"github.com/angelmondragon/posync/pkg/db"
	"github.com/angelmondragon/posync/pkg/db/dbtest"
	"github.com/angelmondragon/posync/pkg/logger"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	mu    sync.Mutex
	calls []string
	fn    func(backend.OfflineTransaction) error
}

func (f *fakePusher) PushTransaction(ctx context.Context, tx backend.OfflineTransaction) error {
	f.mu.Lock()
	f.calls = append(f.calls, tx.OfflineID)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(tx)
	}
	return nil
}

func (f *fakePusher) setFn(fn func(backend.OfflineTransaction) error) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

func (f *fakePusher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type okSender struct {
	mu    sync.Mutex
	calls int
}

func (s *okSender) Do(ctx context.Context, req backend.Request) (*backend.Response, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return &backend.Response{StatusCode: 204}, nil
}

type harness struct {
	client   *db.Client
	monitor  *connectivity.Monitor
	pusher   *fakePusher
	sender   *okSender
	txRepo   *transactions.Repository
	mutRepo  *mutations.Repository
	settings *settings.Repository
	orch     *Orchestrator
}

type harnessOption func(*OrchestratorParams)

func newHarness(t *testing.T, online bool, opts ...harnessOption) *harness {
	t.Helper()
	return newHarnessOn(t, dbtest.NewSQLite(t), online, opts...)
}

// newHarnessOn builds an orchestrator over an existing store, standing in for
// a second agent process pointed at the same database.
func newHarnessOn(t *testing.T, client *db.Client, online bool, opts ...harnessOption) *harness {
	t.Helper()
	logg := logger.Nop()

	h := &harness{
		client:   client,
		monitor:  connectivity.NewMonitor(online),
		pusher:   &fakePusher{},
		sender:   &okSender{},
		txRepo:   transactions.NewRepository(client.DB()),
		mutRepo:  mutations.NewRepository(client.DB()),
		settings: settings.NewRepository(client.DB()),
	}
	dlq := mutations.NewDeadLetterRepository(client.DB())

	txSvc, err := transactions.NewService(h.txRepo, logg)
	require.NoError(t, err)
	txPass, err := transactions.NewReconciler(transactions.ReconcilerParams{Logger: logg, Store: h.txRepo, Pusher: h.pusher})
	require.NoError(t, err)
	mutPass, err := mutations.NewReconciler(mutations.ReconcilerParams{
		Logger:      logg,
		DB:          client,
		Queue:       h.mutRepo,
		DeadLetters: dlq,
		Sender:      h.sender,
	})
	require.NoError(t, err)

	params := OrchestratorParams{
		Logger:             logg,
		Monitor:            h.monitor,
		Transactions:       h.txRepo,
		TransactionService: txSvc,
		TransactionPass:    txPass,
		Mutations:          h.mutRepo,
		DeadLetters:        dlq,
		MutationPass:       mutPass,
		Settings:           h.settings,
		Interval:           time.Hour,
	}
	for _, opt := range opts {
		opt(&params)
	}
	h.orch, err = NewOrchestrator(params)
	require.NoError(t, err)
	t.Cleanup(h.orch.Close)
	return h
}

func saleInput() transactions.CreateInput {
	return transactions.CreateInput{
		SessionID:     "till-1",
		Items:         []byte(`[{"productId":"p-1","quantity":1}]`),
		Subtotal:      "4.00",
		TaxTotal:      "0.32",
		DiscountTotal: "0",
		Total:         "4.32",
		Payments:      []byte(`[{"method":"card","amount":4.32}]`),
	}
}
