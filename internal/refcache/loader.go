package refcache

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/posync/internal/settings"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
	"github.com/angelmondragon/posync/pkg/metrics"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// DefaultPageLimit bounds how many records one refresh pulls per entity.
const DefaultPageLimit = 1000

const (
	entityProducts  = "products"
	entityCustomers = "customers"
)

// Fetcher reads canonical reference records from the backend.
type Fetcher interface {
	ListProducts(ctx context.Context, limit int) ([]map[string]any, error)
	ListCustomers(ctx context.Context, limit int) ([]map[string]any, error)
}

type onlineChecker interface {
	IsOnline() bool
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type LoaderParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Cache     *Repository
	Settings  *settings.Repository
	Fetcher   Fetcher
	Online    onlineChecker
	Metrics   *metrics.SyncMetrics
	PageLimit int
}

// Loader refreshes the local product and customer caches.
type Loader struct {
	logg      *logger.Logger
	db        txRunner
	cache     *Repository
	settings  *settings.Repository
	fetcher   Fetcher
	online    onlineChecker
	metrics   *metrics.SyncMetrics
	pageLimit int
	now       func() time.Time
}

func NewLoader(params LoaderParams) (*Loader, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Cache == nil {
		return nil, errors.New("cache repository is required")
	}
	if params.Settings == nil {
		return nil, errors.New("settings repository is required")
	}
	if params.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if params.Online == nil {
		return nil, errors.New("connectivity monitor is required")
	}
	limit := params.PageLimit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	return &Loader{
		logg:      params.Logger,
		db:        params.DB,
		cache:     params.Cache,
		settings:  params.Settings,
		fetcher:   params.Fetcher,
		online:    params.Online,
		metrics:   params.Metrics,
		pageLimit: limit,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// InitialCounts reports how many records each refresh stored.
type InitialCounts struct {
	Products  int `json:"products"`
	Customers int `json:"customers"`
}

// FetchAndCacheProducts replaces the product cache with the backend's current page.
func (l *Loader) FetchAndCacheProducts(ctx context.Context) (int, error) {
	if !l.online.IsOnline() {
		return 0, pkgerrors.New(pkgerrors.CodeOffline, "cannot refresh products while offline")
	}
	records, err := l.fetcher.ListProducts(ctx, l.pageLimit)
	if err != nil {
		return 0, l.fail(ctx, entityProducts, err)
	}

	now := l.now()
	rows := normalizeProducts(records, now)
	err = l.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := l.cache.ReplaceProductsTx(tx, rows); err != nil {
			return err
		}
		return l.settings.WithTx(tx).SetTime(ctx, settings.KeyProductsRefreshedAt, now)
	})
	if err != nil {
		return 0, l.fail(ctx, entityProducts, pkgerrors.Wrap(pkgerrors.CodeStore, err, "replace product cache"))
	}
	return l.done(ctx, entityProducts, len(records), len(rows)), nil
}

// FetchAndCacheCustomers replaces the customer cache with the backend's current page.
func (l *Loader) FetchAndCacheCustomers(ctx context.Context) (int, error) {
	if !l.online.IsOnline() {
		return 0, pkgerrors.New(pkgerrors.CodeOffline, "cannot refresh customers while offline")
	}
	records, err := l.fetcher.ListCustomers(ctx, l.pageLimit)
	if err != nil {
		return 0, l.fail(ctx, entityCustomers, err)
	}

	now := l.now()
	rows := normalizeCustomers(records, now)
	err = l.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := l.cache.ReplaceCustomersTx(tx, rows); err != nil {
			return err
		}
		return l.settings.WithTx(tx).SetTime(ctx, settings.KeyCustomersRefreshedAt, now)
	})
	if err != nil {
		return 0, l.fail(ctx, entityCustomers, pkgerrors.Wrap(pkgerrors.CodeStore, err, "replace customer cache"))
	}
	return l.done(ctx, entityCustomers, len(records), len(rows)), nil
}

// InitialSync refreshes both caches concurrently. Each refresh runs to
// completion regardless of the other; errors are combined.
func (l *Loader) InitialSync(ctx context.Context) (InitialCounts, error) {
	var (
		counts      InitialCounts
		productErr  error
		customerErr error
		g           errgroup.Group
	)
	g.Go(func() error {
		counts.Products, productErr = l.FetchAndCacheProducts(ctx)
		return productErr
	})
	g.Go(func() error {
		counts.Customers, customerErr = l.FetchAndCacheCustomers(ctx)
		return customerErr
	})
	_ = g.Wait()

	return counts, multierr.Combine(productErr, customerErr)
}

func (l *Loader) fail(ctx context.Context, entity string, err error) error {
	l.metrics.IncCacheRefresh(entity, false)
	l.logg.Error(l.logg.WithField(ctx, "entity", entity), "cache refresh failed", err)
	return err
}

func (l *Loader) done(ctx context.Context, entity string, fetched, stored int) int {
	l.metrics.IncCacheRefresh(entity, true)
	l.logg.Info(l.logg.WithFields(ctx, map[string]any{
		"entity":  entity,
		"fetched": fetched,
		"stored":  stored,
	}), "cache refreshed")
	return stored
}

// RefreshTimes returns the last successful refresh per entity, nil when never refreshed.
func (l *Loader) RefreshTimes(ctx context.Context) (products, customers *time.Time, err error) {
	if products, err = l.settings.GetTime(ctx, settings.KeyProductsRefreshedAt); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "read product refresh time")
	}
	if customers, err = l.settings.GetTime(ctx, settings.KeyCustomersRefreshedAt); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "read customer refresh time")
	}
	return products, customers, nil
}
