package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	ledgerSavepoint       = "outbox_ledger"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
	Ordered() bool
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ledgerRecorder interface {
	RecordTx(ctx context.Context, tx *gorm.DB, sourceEventID uuid.UUID, entry payloads.InventoryLedgerEntry) (bool, error)
}

// ServiceParams wires the publisher. PubSub may be nil, in which case events
// are only materialized locally and then marked published.
type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	Ledger           ledgerRecorder
	Metrics          *metrics.OutboxMetrics
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
}

type Service struct {
	logg       *logger.Logger
	db         dbClient
	repo       outboxRepository
	pubsub     pubSubClient
	registry   registryResolver
	ledger     ledgerRecorder
	metrics    *metrics.OutboxMetrics
	dlq        dlqRepository
	publishers *topicPublishers

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Ledger == nil:
		return nil, errors.New("ledger recorder is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil && params.PubSub != nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic), params.PubSub.Ordered())
		}
	}

	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		ledger:       params.Ledger,
		metrics:      params.Metrics,
		dlq:          params.DLQRepository,
		publishers:   newTopicPublishers(factory),
		batchSize:    params.Config.Outbox.BatchSize,
		maxAttempts:  params.Config.Outbox.MaxAttempts,
		pollInterval: time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	return s, nil
}

func (s *Service) checkDependencies(ctx context.Context) error {
	type dep struct {
		name string
		ping func(context.Context) error
	}
	deps := []dep{{"database", s.db.Ping}}
	if s.pubsub != nil {
		deps = append(deps, dep{"pubsub", s.pubsub.Ping})
	}
	for _, d := range deps {
		if err := d.ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", d.name), "dependency ping failed", err)
			return fmt.Errorf("%s ping failed: %w", d.name, err)
		}
	}
	return nil
}

// Run drains the outbox until ctx is cancelled. A full batch is followed
// immediately by the next one; an empty batch waits one poll interval and a
// failed batch backs off.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}
	defer s.publishers.stopAll()

	wait := newBackoff(s.pollInterval, maxBackoff)
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		var pause time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			pause = wait.fail()
		case processed:
			wait.ok()
			continue
		default:
			pause = wait.ok()
		}
		if err := sleepCtx(ctx, pause); err != nil {
			return err
		}
	}
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		// Once an event goes back for retry, later events of the same
		// aggregate wait for the next batch so they stay in commit order.
		held := map[uuid.UUID]bool{}
		for _, event := range events {
			if held[event.AggregateID] {
				s.logg.Info(s.logg.WithFields(ctx, eventFields(event, outbox.PayloadEnvelope{}, "")), "outbox event held behind failed aggregate")
				continue
			}
			outcome, err := s.processEvent(ctx, tx, event)
			if err != nil {
				return err
			}
			if outcome == verdictRetry {
				held[event.AggregateID] = true
			}
		}
		return nil
	})
	return processed, err
}

type verdict int

const (
	verdictDelivered verdict = iota
	verdictRetry
	verdictDeadLetter
)

// classify decides what happens to a row after one delivery attempt.
func classify(err error, attemptCount, maxAttempts int) (verdict, enums.OutboxDLQErrorReason) {
	if err == nil {
		return verdictDelivered, ""
	}
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return verdictDeadLetter, enums.OutboxDLQReasonNonRetryable
	}
	if attemptCount+1 >= maxAttempts {
		return verdictDeadLetter, enums.OutboxDLQReasonMaxAttempts
	}
	return verdictRetry, ""
}

// processEvent only returns errors from bookkeeping writes; delivery failures
// are recorded on the row and show up in the verdict.
func (s *Service) processEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (verdict, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return verdictDeadLetter, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonUnresolvable, err, eventFields(event, outbox.PayloadEnvelope{}, ""))
	}

	fields := eventFields(event, resolved.Envelope, resolved.Descriptor.Topic)
	err = s.materialize(ctx, tx, event, resolved)
	if err == nil {
		err = s.publish(ctx, event, resolved)
	}

	outcome, reason := classify(err, event.AttemptCount, s.maxAttempts)
	switch outcome {
	case verdictDeadLetter:
		if reason == enums.OutboxDLQReasonMaxAttempts {
			err = fmt.Errorf("max publish attempts reached: %w", err)
		}
		return outcome, s.deadLetter(ctx, tx, event, reason, err, fields)
	case verdictRetry:
		fields["attempt_count"] = event.AttemptCount + 1
		s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error()), "outbox delivery failed, will retry")
		if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
			return outcome, fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		s.metrics.IncRetried(string(event.EventType))
		return outcome, nil
	}

	if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
		return outcome, fmt.Errorf("mark published %s: %w", event.ID, markErr)
	}
	s.metrics.IncPublished(string(event.EventType))
	s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event delivered")
	return outcome, nil
}

// materialize writes ledger entries into inventory_transactions. The insert
// runs under a savepoint so a failed row does not poison the batch tx.
func (s *Service) materialize(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	entry, ok := resolved.Payload.(*payloads.InventoryLedgerEntry)
	if !ok {
		return nil
	}
	if tx != nil {
		if err := tx.SavePoint(ledgerSavepoint).Error; err != nil {
			return fmt.Errorf("savepoint: %w", err)
		}
	}
	inserted, err := s.ledger.RecordTx(ctx, tx, event.ID, *entry)
	if err != nil {
		if tx != nil {
			if rbErr := tx.RollbackTo(ledgerSavepoint).Error; rbErr != nil {
				return fmt.Errorf("rollback savepoint: %w", rbErr)
			}
		}
		return fmt.Errorf("record ledger entry %s: %w", entry.EntryID, err)
	}
	if !inserted {
		s.logg.Info(s.logg.WithField(ctx, "entry_id", entry.EntryID.String()), "ledger entry already recorded")
	}
	return nil
}

// publish is a no-op when Pub/Sub is disabled; the row still counts as
// delivered once materialized.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	if s.publishers == nil {
		return nil
	}
	topic := resolved.Descriptor.Topic
	pub := s.publishers.forTopic(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, outboxMessage(event, resolved.Envelope))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event moved to dlq")

	entry := event.Park(reason, cause, time.Now())
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLetter(string(event.EventType), string(reason))
	return nil
}

func eventFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
