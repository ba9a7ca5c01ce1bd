package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultInterval   = 5 * time.Minute
	defaultJobTimeout = 2 * time.Minute
	releaseTimeout    = 5 * time.Second
)

// ServiceParams configure the cron service. JobTimeout bounds each job and
// must stay below the lock TTL.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs every registered job once per tick, but only on the instance
// that wins the lock for that cycle.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if s.registry == nil {
		s.registry = &Registry{}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run executes a cycle immediately and then once per interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":     s.registry.Names(),
		"interval": s.interval.String(),
	}), "cron service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.metrics.IncSkippedCycle()
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		// the lock must be freed even when shutdown cancelled ctx
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := s.lock.Release(releaseCtx); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	cycleCtx := s.logg.WithField(ctx, "cycle_id", uuid.NewString())
	start := time.Now()
	failed := 0
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			break
		}
		if err := s.runJob(cycleCtx, job); err != nil {
			failed++
		}
	}
	s.logg.Info(s.logg.WithFields(cycleCtx, map[string]any{
		"failed_jobs": failed,
		"duration_ms": time.Since(start).Milliseconds(),
	}), "cron cycle complete")
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	jobCtx, cancel := context.WithTimeout(s.logg.WithField(ctx, "job", job.Name()), s.jobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			jobCtx = s.logg.WithField(jobCtx, "stack", string(debug.Stack()))
		}
		took := time.Since(start)
		s.metrics.ObserveRun(job.Name(), took, err)
		logCtx := s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
		if err != nil {
			s.logg.Error(logCtx, "cron job failed", err)
			return
		}
		s.logg.Info(logCtx, "cron job completed")
	}()

	return job.Run(jobCtx)
}
