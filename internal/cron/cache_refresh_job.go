package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/posync/internal/refcache"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
)

type cacheRefresher interface {
	InitialSync(ctx context.Context) (refcache.InitialCounts, error)
}

type CacheRefreshJobParams struct {
	Logger    *logger.Logger
	Refresher cacheRefresher
}

func NewCacheRefreshJob(params CacheRefreshJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Refresher == nil {
		return nil, fmt.Errorf("cache refresher required")
	}
	return &cacheRefreshJob{logg: params.Logger, refresher: params.Refresher}, nil
}

// cacheRefreshJob keeps the product and customer caches current while the
// device is connected. Offline runs are skipped, not failed.
type cacheRefreshJob struct {
	logg      *logger.Logger
	refresher cacheRefresher
}

func (j *cacheRefreshJob) Name() string { return "cache-refresh" }

func (j *cacheRefreshJob) Run(ctx context.Context) error {
	counts, err := j.refresher.InitialSync(ctx)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeOffline) {
			j.logg.Debug(ctx, "cache refresh skipped while offline")
			return nil
		}
		return fmt.Errorf("cache refresh: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"products":  counts.Products,
		"customers": counts.Customers,
	}), "reference caches refreshed")
	return nil
}
