package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/posync/internal/mutations"
	"github.com/angelmondragon/posync/internal/settings"
	"github.com/angelmondragon/posync/internal/transactions"
	"github.com/angelmondragon/posync/pkg/db/models"
	"github.com/angelmondragon/posync/pkg/enums"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
	"github.com/angelmondragon/posync/pkg/metrics"
	"github.com/google/uuid"
)

// DefaultInterval is the auto-sync cadence.
const DefaultInterval = 30 * time.Second

const offlineError = "offline"

type connectivityMonitor interface {
	IsOnline() bool
	OnChange(fn func(online bool)) (unsubscribe func())
}

type transactionPass interface {
	Run(ctx context.Context) (transactions.PassResult, error)
}

type mutationPass interface {
	Run(ctx context.Context) (mutations.PassResult, error)
}

type OrchestratorParams struct {
	Logger             *logger.Logger
	Monitor            connectivityMonitor
	Transactions       *transactions.Repository
	TransactionService *transactions.Service
	TransactionPass    transactionPass
	Mutations          *mutations.Repository
	DeadLetters        *mutations.DeadLetterRepository
	MutationPass       mutationPass
	Settings           *settings.Repository
	// Lock is optional; when set, a pass also needs the cross-process lock.
	Lock                 Lock
	Metrics              *metrics.SyncMetrics
	Interval             time.Duration
	DisableOpportunistic bool
}

// Result aggregates one SyncAll call.
type Result struct {
	Skipped       enums.SyncSkipReason    `json:"skipped,omitempty"`
	Synced        int                     `json:"synced"`
	Failed        int                     `json:"failed"`
	Errors        []string                `json:"errors"`
	Transactions  transactions.PassResult `json:"transactions"`
	Mutations     mutations.PassResult    `json:"mutations"`
	RetriedFailed int64                   `json:"retriedFailed,omitempty"`
	StartedAt     time.Time               `json:"startedAt"`
	Duration      time.Duration           `json:"duration"`
}

// Orchestrator owns the sync state machine: one pass at a time per store,
// transactions before mutations, status broadcast around every pass.
type Orchestrator struct {
	logg          *logger.Logger
	monitor       connectivityMonitor
	txRepo        *transactions.Repository
	txSvc         *transactions.Service
	txPass        transactionPass
	mutRepo       *mutations.Repository
	dlqRepo       *mutations.DeadLetterRepository
	mutPass       mutationPass
	settings      *settings.Repository
	lock          Lock
	metrics       *metrics.SyncMetrics
	interval      time.Duration
	opportunistic bool
	now           func() time.Time

	syncing atomic.Bool

	subsMu  sync.Mutex
	subs    map[int]func(Status)
	nextSub int

	autoMu      sync.Mutex
	stopAuto    chan struct{}
	autoDone    chan struct{}
	unsubscribe func()

	bgMu   sync.Mutex
	bg     sync.WaitGroup
	closed bool
}

func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.Monitor == nil:
		return nil, errors.New("connectivity monitor is required")
	case params.Transactions == nil:
		return nil, errors.New("transaction repository is required")
	case params.TransactionService == nil:
		return nil, errors.New("transaction service is required")
	case params.TransactionPass == nil:
		return nil, errors.New("transaction reconciler is required")
	case params.Mutations == nil:
		return nil, errors.New("mutation repository is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dead letter repository is required")
	case params.MutationPass == nil:
		return nil, errors.New("mutation reconciler is required")
	case params.Settings == nil:
		return nil, errors.New("settings repository is required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Orchestrator{
		logg:          params.Logger,
		monitor:       params.Monitor,
		txRepo:        params.Transactions,
		txSvc:         params.TransactionService,
		txPass:        params.TransactionPass,
		mutRepo:       params.Mutations,
		dlqRepo:       params.DeadLetters,
		mutPass:       params.MutationPass,
		settings:      params.Settings,
		lock:          params.Lock,
		metrics:       params.Metrics,
		interval:      interval,
		opportunistic: !params.DisableOpportunistic,
		now:           func() time.Time { return time.Now().UTC() },
		subs:          make(map[int]func(Status)),
	}, nil
}

// IsSyncing reports whether a pass is running in this process.
func (o *Orchestrator) IsSyncing() bool {
	return o.syncing.Load()
}

// SyncAll runs one reconciliation pass. Per-item failures are reported in the
// result; the returned error is reserved for orchestration failures such as an
// unavailable store. Once started, the pass ignores cancellation of ctx.
func (o *Orchestrator) SyncAll(ctx context.Context) (Result, error) {
	ctx = context.WithoutCancel(ctx)

	if !o.monitor.IsOnline() {
		o.metrics.IncSkipped(string(enums.SyncSkipOffline))
		o.broadcast(ctx)
		return Result{Skipped: enums.SyncSkipOffline, Errors: []string{offlineError}}, nil
	}

	if !o.syncing.CompareAndSwap(false, true) {
		o.metrics.IncSkipped(string(enums.SyncSkipAlreadySyncing))
		return alreadySyncing(), nil
	}
	defer func() {
		o.syncing.Store(false)
		o.broadcast(ctx)
	}()

	if o.lock != nil {
		locked, err := o.lock.Acquire(ctx)
		if err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire sync lock")
		}
		if !locked {
			o.logg.Info(ctx, "another agent holds the sync lock; skipping this pass")
			o.metrics.IncSkipped(string(enums.SyncSkipAlreadySyncing))
			return alreadySyncing(), nil
		}
		defer func() {
			if err := o.lock.Release(ctx); err != nil {
				o.logg.Error(ctx, "failed to release sync lock", err)
			}
		}()
	}

	return o.runPass(o.logg.WithPassID(ctx, uuid.NewString()))
}

func alreadySyncing() Result {
	return Result{
		Skipped: enums.SyncSkipAlreadySyncing,
		Errors:  []string{pkgerrors.MetadataFor(pkgerrors.CodeSyncInProgress).PublicMessage},
	}
}

func (o *Orchestrator) runPass(ctx context.Context) (Result, error) {
	result := Result{StartedAt: o.now(), Errors: []string{}}
	o.broadcast(ctx)
	o.logg.Info(ctx, "sync pass starting")

	txResult, err := o.txPass.Run(ctx)
	if err != nil {
		o.logg.Error(ctx, "transaction pass aborted", err)
		return result, err
	}
	result.Transactions = txResult

	mutResult, err := o.mutPass.Run(ctx)
	if err != nil {
		o.logg.Error(ctx, "mutation pass aborted", err)
		return result, err
	}
	result.Mutations = mutResult

	result.Synced = txResult.Synced + mutResult.Synced
	result.Failed = txResult.Failed + mutResult.Failed
	for _, itemErr := range txResult.Errors {
		result.Errors = append(result.Errors, itemErr.String())
	}
	for _, itemErr := range mutResult.Errors {
		result.Errors = append(result.Errors, itemErr.String())
	}
	result.Duration = o.now().Sub(result.StartedAt)

	if err := o.recordOutcome(ctx, result); err != nil {
		return result, err
	}

	o.observe(result)
	o.logg.Info(o.logg.WithFields(ctx, map[string]any{
		"synced":      result.Synced,
		"failed":      result.Failed,
		"duration_ms": result.Duration.Milliseconds(),
	}), "sync pass complete")
	return result, nil
}

// recordOutcome writes lastSyncAt always and sets or clears lastSyncError.
func (o *Orchestrator) recordOutcome(ctx context.Context, result Result) error {
	if err := o.settings.SetTime(ctx, settings.KeyLastSyncAt, o.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStore, err, "write last sync time")
	}
	if n := len(result.Errors); n > 0 {
		if err := o.settings.Set(ctx, settings.KeyLastSyncError, result.Errors[n-1]); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStore, err, "write last sync error")
		}
		return nil
	}
	if err := o.settings.Delete(ctx, settings.KeyLastSyncError); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStore, err, "clear last sync error")
	}
	return nil
}

func (o *Orchestrator) observe(result Result) {
	o.metrics.ObservePass(result.Duration, len(result.Errors) == 0)
	o.metrics.AddItems("transactions", "synced", result.Transactions.Synced)
	o.metrics.AddItems("transactions", "failed", result.Transactions.Failed)
	o.metrics.AddItems("mutations", "synced", result.Mutations.Synced)
	o.metrics.AddItems("mutations", "failed", result.Mutations.Failed)
	o.metrics.AddItems("mutations", "skipped", result.Mutations.Skipped)
	o.metrics.AddItems("mutations", "dead_lettered", result.Mutations.DeadLettered)
}

// Status computes a snapshot from the store and in-memory state.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	status := Status{
		Online:  o.monitor.IsOnline(),
		Syncing: o.syncing.Load(),
	}

	var err error
	if status.PendingCount, err = o.txRepo.CountByStatus(ctx, enums.TransactionStatusPending); err != nil {
		return status, pkgerrors.Wrap(pkgerrors.CodeStore, err, "count pending transactions")
	}
	if status.FailedCount, err = o.txRepo.CountByStatus(ctx, enums.TransactionStatusFailed); err != nil {
		return status, pkgerrors.Wrap(pkgerrors.CodeStore, err, "count failed transactions")
	}
	if status.QueuedMutations, err = o.mutRepo.Count(ctx); err != nil {
		return status, pkgerrors.Wrap(pkgerrors.CodeStore, err, "count queued mutations")
	}
	if status.DeadLetters, err = o.dlqRepo.Count(ctx); err != nil {
		return status, pkgerrors.Wrap(pkgerrors.CodeStore, err, "count dead letters")
	}
	if status.LastSyncAt, err = o.settings.GetTime(ctx, settings.KeyLastSyncAt); err != nil {
		return status, pkgerrors.Wrap(pkgerrors.CodeStore, err, "read last sync time")
	}
	if status.LastError, err = o.settings.GetString(ctx, settings.KeyLastSyncError); err != nil {
		return status, pkgerrors.Wrap(pkgerrors.CodeStore, err, "read last sync error")
	}

	o.metrics.SetQueueDepth("transactions_pending", status.PendingCount)
	o.metrics.SetQueueDepth("transactions_failed", status.FailedCount)
	o.metrics.SetQueueDepth("mutations", status.QueuedMutations)
	o.metrics.SetQueueDepth("dead_letters", status.DeadLetters)
	return status, nil
}

// Subscribe registers fn for status snapshots. Subscribers run synchronously
// on the goroutine that triggered the broadcast.
func (o *Orchestrator) Subscribe(fn func(Status)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	o.subsMu.Lock()
	o.nextSub++
	id := o.nextSub
	o.subs[id] = fn
	o.subsMu.Unlock()

	return func() {
		o.subsMu.Lock()
		delete(o.subs, id)
		o.subsMu.Unlock()
	}
}

func (o *Orchestrator) broadcast(ctx context.Context) {
	status, err := o.Status(ctx)
	if err != nil {
		o.logg.Error(ctx, "failed to compute sync status", err)
		return
	}

	o.subsMu.Lock()
	subs := make([]func(Status), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.subsMu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

// CreateOfflineTransaction records a sale, broadcasts status and, when online,
// starts a sync pass in the background. created is false when the OfflineID
// was already stored.
func (o *Orchestrator) CreateOfflineTransaction(ctx context.Context, in transactions.CreateInput) (*models.PendingTransaction, bool, error) {
	row, created, err := o.txSvc.Create(ctx, in)
	if err != nil {
		return nil, false, err
	}
	o.broadcast(ctx)

	if created && o.opportunistic && o.monitor.IsOnline() {
		o.goSync(context.WithoutCancel(ctx), "opportunistic")
	}
	return row, created, nil
}

// RetryFailedTransactions returns every failed transaction to pending with a
// fresh attempt budget, then runs a pass.
func (o *Orchestrator) RetryFailedTransactions(ctx context.Context) (Result, error) {
	n, err := o.txRepo.ResetFailed(ctx)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeStore, err, "reset failed transactions")
	}
	o.logg.Info(o.logg.WithField(ctx, "reset", n), "failed transactions reset for retry")

	result, err := o.SyncAll(ctx)
	result.RetriedFailed = n
	return result, err
}

func (o *Orchestrator) goSync(ctx context.Context, trigger string) {
	o.bgMu.Lock()
	defer o.bgMu.Unlock()
	if o.closed {
		return
	}
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		o.runTriggered(ctx, trigger)
	}()
}

func (o *Orchestrator) runTriggered(ctx context.Context, trigger string) {
	if !o.monitor.IsOnline() || o.syncing.Load() {
		return
	}
	ctx = o.logg.WithField(ctx, "trigger", trigger)
	result, err := o.SyncAll(ctx)
	if err != nil {
		o.logg.Error(ctx, "triggered sync failed", err)
		return
	}
	if result.Skipped != enums.SyncSkipNone {
		o.logg.Debug(o.logg.WithField(ctx, "skipped", result.Skipped), "triggered sync skipped")
	}
}

// StartAutoSync starts the periodic loop. A pass runs immediately when online
// and again on every offline to online transition. Calling it while running
// has no effect.
func (o *Orchestrator) StartAutoSync() {
	o.autoMu.Lock()
	defer o.autoMu.Unlock()
	if o.stopAuto != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	wake := make(chan struct{}, 1)

	o.stopAuto = stop
	o.autoDone = done
	o.unsubscribe = o.monitor.OnChange(func(online bool) {
		if !online {
			return
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	go o.autoLoop(stop, done, wake)
	o.logg.Info(o.logg.WithField(context.Background(), "interval", o.interval.String()), "auto sync started")
}

func (o *Orchestrator) autoLoop(stop <-chan struct{}, done chan<- struct{}, wake <-chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.runTriggered(ctx, "timer")
		case <-wake:
			o.runTriggered(ctx, "online")
		}
	}
}

// StopAutoSync stops the periodic loop and waits for it to exit. A pass that
// is already running completes first. Safe to call when not running.
func (o *Orchestrator) StopAutoSync() {
	o.autoMu.Lock()
	if o.stopAuto == nil {
		o.autoMu.Unlock()
		return
	}
	o.unsubscribe()
	close(o.stopAuto)
	done := o.autoDone
	o.stopAuto, o.autoDone, o.unsubscribe = nil, nil, nil
	o.autoMu.Unlock()

	<-done
	o.logg.Info(context.Background(), "auto sync stopped")
}

// Close stops auto sync and waits for background passes to finish.
func (o *Orchestrator) Close() {
	o.StopAutoSync()
	o.bgMu.Lock()
	o.closed = true
	o.bgMu.Unlock()
	o.bg.Wait()
}
