package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/posync/api/controllers"
	"github.com/angelmondragon/posync/api/middleware"
	"github.com/angelmondragon/posync/pkg/config"
	"github.com/angelmondragon/posync/pkg/logger"
	"github.com/angelmondragon/posync/pkg/redis"
)

// Params carries everything the agent API serves. Nil services produce
// 500s on their routes rather than a panic; nil Idempotency disables replay.
type Params struct {
	Ready        map[string]controllers.Pinger
	Idempotency  redis.IdempotencyStore
	Metrics      http.Handler
	Transactions controllers.TransactionCreator
	TxReader     controllers.TransactionReader
	Mutations    controllers.MutationService
	Sync         controllers.SyncService
	Connectivity controllers.ConnectivitySetter
	CacheLoader  controllers.CacheRefresher
	CacheReader  controllers.CacheReader
}

func NewRouter(cfg *config.Config, logg *logger.Logger, p Params) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Ready))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(p.Idempotency, logg))

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", controllers.TransactionCreate(p.Transactions, logg))
			r.Get("/", controllers.TransactionList(p.TxReader, logg))
			r.Get("/{offlineId}", controllers.TransactionGet(p.TxReader, logg))
		})

		r.Route("/mutations", func(r chi.Router) {
			r.Post("/", controllers.MutationEnqueue(p.Mutations, logg))
			r.Get("/", controllers.MutationList(p.Mutations, logg))
			r.Get("/dead-letters", controllers.DeadLetterList(p.Mutations, logg))
			r.Post("/dead-letters/{id}/requeue", controllers.DeadLetterRequeue(p.Mutations, logg))
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/", controllers.SyncTrigger(p.Sync, logg))
			r.Get("/status", controllers.SyncStatus(p.Sync, logg))
			r.Post("/retry-failed", controllers.SyncRetryFailed(p.Sync, logg))
		})

		r.Post("/connectivity", controllers.ConnectivitySet(p.Connectivity, logg))

		r.Route("/cache", func(r chi.Router) {
			r.Post("/refresh", controllers.CacheRefresh(p.CacheLoader, logg))
			r.Get("/products", controllers.CacheProducts(p.CacheReader, logg))
			r.Get("/customers", controllers.CacheCustomers(p.CacheReader, logg))
		})
	})

	return r
}
