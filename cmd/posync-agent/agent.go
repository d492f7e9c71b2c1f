package main

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/posync/api/controllers"
	"github.com/angelmondragon/posync/api/routes"
	"github.com/angelmondragon/posync/internal/connectivity"
	"github.com/angelmondragon/posync/internal/cron"
	"github.com/angelmondragon/posync/internal/mutations"
	"github.com/angelmondragon/posync/internal/refcache"
	"github.com/angelmondragon/posync/internal/settings"
	"github.com/angelmondragon/posync/internal/syncer"
	"github.com/angelmondragon/posync/internal/transactions"
	"github.com/angelmondragon/posync/pkg/backend"
	"github.com/angelmondragon/posync/pkg/config"
	"github.com/angelmondragon/posync/pkg/db"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/instance"
	"github.com/angelmondragon/posync/pkg/logger"
	"github.com/angelmondragon/posync/pkg/metrics"
	"github.com/angelmondragon/posync/pkg/redis"
)

// agent holds the wired sync engine for one device.
type agent struct {
	cfg      *config.Config
	logg     *logger.Logger
	deviceID string

	db       *db.Client
	redis    *redis.Client
	registry *prometheus.Registry

	monitor      *connectivity.Monitor
	prober       *connectivity.Prober
	txService    *transactions.Service
	mutService   *mutations.Service
	cacheRepo    *refcache.Repository
	loader       *refcache.Loader
	orchestrator *syncer.Orchestrator
	maintenance  *cron.Service
}

func newAgent(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*agent, error) {
	a := &agent{
		cfg:      cfg,
		logg:     logg,
		deviceID: instance.DeviceID(cfg.App.DeviceID),
		db:       dbClient,
		redis:    redisClient,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	syncMetrics := metrics.NewSyncMetrics(a.registry)

	backendClient, err := backend.NewFromConfig(cfg.Backend, a.deviceID)
	if err != nil {
		return nil, err
	}

	a.monitor = connectivity.NewMonitor(cfg.Connectivity.InitialOnline)
	if cfg.Connectivity.ProbeEnabled {
		a.prober, err = connectivity.NewProber(connectivity.ProberParams{
			Logger:   logg,
			Monitor:  a.monitor,
			Checker:  backendClient,
			Interval: cfg.Connectivity.ProbeInterval,
			Timeout:  cfg.Connectivity.ProbeTimeout,
		})
		if err != nil {
			return nil, err
		}
	}

	gdb := dbClient.DB()
	txRepo := transactions.NewRepository(gdb)
	mutRepo := mutations.NewRepository(gdb)
	dlqRepo := mutations.NewDeadLetterRepository(gdb)
	settingsRepo := settings.NewRepository(gdb)
	a.cacheRepo = refcache.NewRepository(gdb)

	if a.txService, err = transactions.NewService(txRepo, logg); err != nil {
		return nil, err
	}
	if a.mutService, err = mutations.NewService(mutations.ServiceParams{
		Logger:      logg,
		DB:          dbClient,
		Queue:       mutRepo,
		DeadLetters: dlqRepo,
	}); err != nil {
		return nil, err
	}

	txPass, err := transactions.NewReconciler(transactions.ReconcilerParams{
		Logger:      logg,
		Store:       txRepo,
		Pusher:      backendClient,
		MaxAttempts: cfg.Sync.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	mutPass, err := mutations.NewReconciler(mutations.ReconcilerParams{
		Logger:      logg,
		DB:          dbClient,
		Queue:       mutRepo,
		DeadLetters: dlqRepo,
		Sender:      backendClient,
		MaxAttempts: cfg.Sync.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	var lock syncer.Lock
	if redisClient != nil && cfg.Sync.LockEnabled {
		if lock, err = syncer.NewRedisLock(redisClient, redisClient.LockKey("sync", cfg.SyncLockScope(a.deviceID)), cfg.Sync.LockTTL); err != nil {
			return nil, err
		}
	}

	if a.orchestrator, err = syncer.NewOrchestrator(syncer.OrchestratorParams{
		Logger:               logg,
		Monitor:              a.monitor,
		Transactions:         txRepo,
		TransactionService:   a.txService,
		TransactionPass:      txPass,
		Mutations:            mutRepo,
		DeadLetters:          dlqRepo,
		MutationPass:         mutPass,
		Settings:             settingsRepo,
		Lock:                 lock,
		Metrics:              syncMetrics,
		Interval:             cfg.Sync.Interval,
		DisableOpportunistic: !cfg.Sync.Opportunistic,
	}); err != nil {
		return nil, err
	}

	if redisClient != nil {
		publisher, err := syncer.NewRedisStatusPublisher(redisClient, redisClient.StatusKey(a.deviceID), a.deviceID, 0, logg)
		if err != nil {
			return nil, err
		}
		a.orchestrator.Subscribe(publisher.Publish)
	}

	if a.loader, err = refcache.NewLoader(refcache.LoaderParams{
		Logger:    logg,
		DB:        dbClient,
		Cache:     a.cacheRepo,
		Settings:  settingsRepo,
		Fetcher:   backendClient,
		Online:    a.monitor,
		Metrics:   syncMetrics,
		PageLimit: cfg.Cache.PageLimit,
	}); err != nil {
		return nil, err
	}

	if cfg.Maintenance.Enabled {
		if a.maintenance, err = a.newMaintenance(dlqRepo); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// newMaintenance registers the periodic cache refresh and dead-letter
// retention jobs.
func (a *agent) newMaintenance(dlqRepo *mutations.DeadLetterRepository) (*cron.Service, error) {
	mcfg := a.cfg.Maintenance
	registry := cron.NewRegistry()

	refresh, err := cron.NewCacheRefreshJob(cron.CacheRefreshJobParams{Logger: a.logg, Refresher: a.loader})
	if err != nil {
		return nil, err
	}
	registry.Register(refresh, mcfg.CacheRefreshInterval)

	retention, err := cron.NewDeadLetterRetentionJob(cron.DeadLetterRetentionJobParams{
		Logger:     a.logg,
		DB:         a.db,
		Repository: dlqRepo,
		Retention:  mcfg.DeadLetterRetention,
	})
	if err != nil {
		return nil, err
	}
	registry.Register(retention, mcfg.RetentionInterval)

	var lock cron.Lock
	if a.redis != nil {
		if lock, err = syncer.NewRedisLock(a.redis, a.redis.LockKey("maintenance", a.cfg.SyncLockScope(a.deviceID)), 0); err != nil {
			return nil, err
		}
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   a.logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(a.registry),
		Tick:     mcfg.Tick,
	})
}

// start launches the background work: connectivity probing, the auto-sync
// loop, the startup cache warm and the maintenance scheduler.
func (a *agent) start(ctx context.Context) {
	if a.prober != nil {
		go func() {
			_ = a.prober.Run(ctx)
		}()
	}
	if a.cfg.Sync.AutoStart {
		a.orchestrator.StartAutoSync()
	}
	if a.cfg.Cache.SyncOnStartup {
		a.warmCache(ctx)
	}
	if a.maintenance != nil {
		go func() {
			_ = a.maintenance.Run(ctx)
		}()
	}
}

// warmCache refreshes the reference caches the first time the device is
// online. An offline start waits for the first reconnect.
func (a *agent) warmCache(ctx context.Context) {
	var (
		running atomic.Bool
		warmed  atomic.Bool
	)
	a.monitor.OnChange(func(online bool) {
		if !online || warmed.Load() || !running.CompareAndSwap(false, true) {
			return
		}
		go func() {
			defer running.Store(false)
			counts, err := a.loader.InitialSync(context.WithoutCancel(ctx))
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeOffline) {
					a.logg.Warn(ctx, "startup cache refresh deferred until online")
					return
				}
				a.logg.Error(ctx, "startup cache refresh failed", err)
				return
			}
			warmed.Store(true)
			a.logg.Info(a.logg.WithFields(ctx, map[string]any{
				"products":  counts.Products,
				"customers": counts.Customers,
			}), "startup cache refresh complete")
		}()
	})
}

func (a *agent) router() http.Handler {
	ready := map[string]controllers.Pinger{"db": a.db}
	params := routes.Params{
		Ready:        ready,
		Metrics:      promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		Transactions: a.orchestrator,
		TxReader:     a.txService,
		Mutations:    a.mutService,
		Sync:         a.orchestrator,
		Connectivity: a.monitor,
		CacheLoader:  a.loader,
		CacheReader:  a.cacheRepo,
	}
	if a.redis != nil {
		ready["redis"] = a.redis
		params.Idempotency = a.redis
	}
	return routes.NewRouter(a.cfg, a.logg, params)
}
