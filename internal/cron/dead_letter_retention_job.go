package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/posync/pkg/logger"
	"gorm.io/gorm"
)

const deadLetterRetention = 30 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type deadLetterPruner interface {
	DeleteFailedBeforeTx(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type DeadLetterRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository deadLetterPruner
	Retention  time.Duration
}

func NewDeadLetterRetentionJob(params DeadLetterRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("dead letter repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = deadLetterRetention
	}
	return &deadLetterRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

// deadLetterRetentionJob drops dead letters nobody requeued within the
// retention window.
type deadLetterRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      deadLetterPruner
	retention time.Duration
	now       func() time.Time
}

func (j *deadLetterRetentionJob) Name() string { return "dead-letter-retention" }

func (j *deadLetterRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteFailedBeforeTx(tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead letter retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention_h":  int(j.retention.Hours()),
		"rows_deleted": deleted,
	}), "dead letter retention cleanup complete")
	return nil
}
