package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

func TestOutboxRetentionJobUsesConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{RetentionDays: 7, MaxAttempts: 4})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), repo.cutoff)
	assert.Equal(t, 4, repo.minAttempts)
	assert.Equal(t, 4, repo.pendingAttempts)
}

func TestOutboxRetentionJobDefaults(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxRetentionRepo{}, OutboxRetentionJobParams{})
	assert.Equal(t, defaultOutboxRetentionDays, job.retention)
	assert.Equal(t, defaultOutboxMaxAttempts, job.maxAttempts)
	assert.Equal(t, defaultPruneBatch, job.batch)
}

func TestOutboxRetentionJobDrainsInBatches(t *testing.T) {
	reg := prometheus.NewRegistry()
	backlog := metrics.NewOutboxBacklog(reg)
	repo := &fakeOutboxRetentionRepo{eligible: 7, pending: 3}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{BatchSize: 3, Metrics: backlog})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []int64{3, 3, 1}, repo.passes)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		m := mf.GetMetric()[0]
		if g := m.GetGauge(); g != nil {
			values[mf.GetName()] = g.GetValue()
		}
		if c := m.GetCounter(); c != nil {
			values[mf.GetName()] = c.GetValue()
		}
	}
	assert.Equal(t, 3.0, values["storefront_outbox_pending_events"])
	assert.Equal(t, 7.0, values["storefront_outbox_pruned_total"])
}

func TestOutboxRetentionJobStopsOnError(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{eligible: 10, failOnPass: 2}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{BatchSize: 4})

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "after 4 rows")
	assert.Len(t, repo.passes, 1)
}

func TestOutboxRetentionJobHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := &fakeOutboxRetentionRepo{eligible: 10}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{})

	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Empty(t, repo.passes)
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.Nop()
	params.DB = passthroughTx{}
	params.Repository = repo
	job, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	return job.(*outboxRetentionJob)
}

type fakeOutboxRetentionRepo struct {
	eligible        int64
	pending         int64
	failOnPass      int
	passes          []int64
	cutoff          time.Time
	minAttempts     int
	pendingAttempts int
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error) {
	f.cutoff, f.minAttempts = cutoff, minAttemptCount
	if f.failOnPass == len(f.passes)+1 {
		return 0, errors.New("boom")
	}
	n := min(f.eligible, int64(limit))
	f.eligible -= n
	f.passes = append(f.passes, n)
	return n, nil
}

func (f *fakeOutboxRetentionRepo) CountPending(_ *gorm.DB, maxAttempts int) (int64, error) {
	f.pendingAttempts = maxAttempts
	return f.pending, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
