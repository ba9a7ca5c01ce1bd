package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultOutboxRetentionDays = 30
	defaultOutboxMaxAttempts   = 10
	defaultPruneBatch          = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error)
	CountPending(tx *gorm.DB, maxAttempts int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxRetentionRepo
	Metrics       *metrics.OutboxBacklog
	RetentionDays int
	MaxAttempts   int
	BatchSize     int
}

// NewOutboxRetentionJob prunes published outbox rows, and rows parked after
// MaxAttempts failures (those already have a DLQ copy). Pending rows are
// never touched; their count is exported after each run.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		backlog:     params.Metrics,
		retention:   orDefault(params.RetentionDays, defaultOutboxRetentionDays),
		maxAttempts: orDefault(params.MaxAttempts, defaultOutboxMaxAttempts),
		batch:       orDefault(params.BatchSize, defaultPruneBatch),
		now:         time.Now,
	}, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRetentionRepo
	backlog     *metrics.OutboxBacklog
	retention   int
	maxAttempts int
	batch       int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes in batches, one transaction each, so a large backlog never
// holds locks for the whole pass.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retention)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
			n, err = j.repo.DeletePublishedBefore(tx, cutoff, j.maxAttempts, j.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("outbox retention after %d rows: %w", total, err)
		}
		total += n
		j.backlog.AddPruned(n)
		if n < int64(j.batch) {
			break
		}
	}

	var pending int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		pending, err = j.repo.CountPending(tx, j.maxAttempts)
		return err
	})
	if err != nil {
		return fmt.Errorf("count pending outbox rows: %w", err)
	}
	j.backlog.SetPending(pending)

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   total,
		"rows_pending":   pending,
	}), "outbox retention pass complete")
	return nil
}
