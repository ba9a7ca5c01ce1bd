package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			orderEvent(t, "event-one", 0),
			orderEvent(t, "event-two", 0),
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderResolved()}, &fakeDLQRepo{}, &fakeRecorder{}, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
}

func TestServiceProcessBatchHoldsAggregateAfterRetry(t *testing.T) {
	first := orderEvent(t, "order-created", 0)
	second := orderEvent(t, "order-paid", 0)
	second.AggregateID = first.AggregateID
	other := orderEvent(t, "other-order", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second, other}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("ordering key paused")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderResolved()}, &fakeDLQRepo{}, &fakeRecorder{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if pub.calls != 2 {
		t.Fatalf("expected held event not to be published, got %d publishes", pub.calls)
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("expected only the first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != other.ID {
		t.Fatalf("expected only the other aggregate published, got %v", repo.published)
	}
}

func TestServiceProcessBatchParksUnresolvableEvents(t *testing.T) {
	event := orderEvent(t, "nonretryable", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, reg, dlqRepo, &fakeRecorder{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq entry does not mirror the event")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonUnresolvable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := orderEvent(t, "max-attempts", 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderResolved()}, dlqRepo, &fakeRecorder{}, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	if dlqRepo.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", dlqRepo.entries[0].ErrorReason)
	}
}

func TestServiceLedgerFailureIsRetried(t *testing.T) {
	event := orderEvent(t, "ledger", 0)
	event.EventType = enums.EventInventoryLedgerEntry
	event.AggregateType = enums.AggregateInventoryVariant
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	resolved := orderResolved()
	resolved.Payload = &payloads.InventoryLedgerEntry{EntryID: uuid.New()}
	pub := &fakePublisher{}
	recorder := &fakeRecorder{err: errors.New("insert failed")}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolved}, &fakeDLQRepo{}, recorder, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if recorder.calls != 1 {
		t.Fatalf("expected recorder call, got %d", recorder.calls)
	}
	if len(repo.failed) != 1 || len(repo.published) != 0 {
		t.Fatalf("ledger failure must leave the event pending")
	}
	if pub.calls != 0 {
		t.Fatalf("event must not be published before its ledger row exists")
	}
}

func TestServiceMaterializesLedgerRowsOnce(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logger.Nop())

	orderID := uuid.New()
	entry := payloads.InventoryLedgerEntry{
		EntryID:       uuid.New(),
		ProductID:     uuid.New(),
		VariantID:     uuid.New(),
		Size:          "M",
		QuantityDelta: -2,
		StockAfter:    3,
		Kind:          enums.InventoryKindOrderDecrement,
		OrderID:       &orderID,
		OccurredAt:    time.Now().UTC(),
	}
	err := conn.Transaction(func(tx *gorm.DB) error {
		return emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInventoryLedgerEntry,
			AggregateType: enums.AggregateInventoryVariant,
			AggregateID:   entry.VariantID,
			Data:          entry,
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	eventRegistry, err := registry.NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders", InventoryTopic: "inventory"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	service, err := NewService(ServiceParams{
		Config:        &config.Config{Outbox: config.OutboxConfig{BatchSize: 10, MaxAttempts: 3}},
		Logger:        logger.Nop(),
		DB:            gormTx{conn: conn},
		Repository:    outboxRepo,
		Registry:      eventRegistry,
		Ledger:        ledgerSvc,
		DLQRepository: outbox.NewDLQRepository(conn),
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	processed, err := service.processBatch(ctx)
	if err != nil || !processed {
		t.Fatalf("first batch processed=%v err=%v", processed, err)
	}

	// simulate a redelivery after a crash between insert and ack
	if err := conn.Model(&models.OutboxEvent{}).Where("1 = 1").Update("published_at", nil).Error; err != nil {
		t.Fatalf("reset outbox: %v", err)
	}
	if _, err := service.processBatch(ctx); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	var rows []models.InventoryTransaction
	if err := conn.Find(&rows).Error; err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(rows))
	}
	if rows[0].ID != entry.EntryID || rows[0].StockAfter != 3 || rows[0].Kind != enums.InventoryKindOrderDecrement {
		t.Fatalf("unexpected ledger row %+v", rows[0])
	}

	var pending int64
	if err := conn.Model(&models.OutboxEvent{}).Where("published_at IS NULL").Count(&pending).Error; err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected outbox drained, %d pending", pending)
	}
}

func TestBackoffDoublesToCapAndResets(t *testing.T) {
	b := newBackoff(100*time.Millisecond, time.Second)

	if got := b.fail(); got < 200*time.Millisecond || got >= 200*time.Millisecond+jitterWindow {
		t.Fatalf("unexpected first backoff %s", got)
	}
	for range 5 {
		b.fail()
	}
	if b.cur != time.Second {
		t.Fatalf("expected cap, got %s", b.cur)
	}
	b.ok()
	if b.cur != 100*time.Millisecond {
		t.Fatalf("expected reset to base, got %s", b.cur)
	}
}

func TestClassify(t *testing.T) {
	transient := errors.New("deadline exceeded")
	cases := []struct {
		name     string
		err      error
		attempts int
		want     verdict
		reason   enums.OutboxDLQErrorReason
	}{
		{name: "delivered", want: verdictDelivered},
		{name: "transient", err: transient, attempts: 1, want: verdictRetry},
		{name: "last attempt", err: transient, attempts: 4, want: verdictDeadLetter, reason: enums.OutboxDLQReasonMaxAttempts},
		{name: "non retryable", err: fmt.Errorf("wrapped: %w", registry.NewNonRetryableError(transient)), want: verdictDeadLetter, reason: enums.OutboxDLQReasonNonRetryable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := classify(tc.err, tc.attempts, 5)
			if got != tc.want || reason != tc.reason {
				t.Fatalf("classify = %v/%q, want %v/%q", got, reason, tc.want, tc.reason)
			}
		})
	}
}

func TestPublishersAreReusedPerTopicAndStopped(t *testing.T) {
	created := map[string]*fakePublisher{}
	pubs := newTopicPublishers(func(topic string) publisher {
		p := &fakePublisher{}
		created[topic] = p
		return p
	})

	first := pubs.forTopic("orders")
	if pubs.forTopic("orders") != first {
		t.Fatalf("expected cached publisher")
	}
	pubs.forTopic("inventory")
	if len(created) != 2 {
		t.Fatalf("expected one publisher per topic, got %d", len(created))
	}

	pubs.stopAll()
	for topic, p := range created {
		if !p.stopped {
			t.Fatalf("publisher for %s not stopped", topic)
		}
	}
	var none *topicPublishers
	none.stopAll()
}

func TestOutboxMessageAttributes(t *testing.T) {
	event := orderEvent(t, "attrs", 0)
	env := outbox.PayloadEnvelope{Version: 1, EventID: "evt-1"}

	msg := outboxMessage(event, env)
	if !bytes.Equal(msg.Data, event.Payload) {
		t.Fatalf("payload must be forwarded unchanged")
	}
	if msg.Attributes["event_id"] != "evt-1" || msg.Attributes["envelope_version"] != "1" {
		t.Fatalf("unexpected attributes %v", msg.Attributes)
	}
	if msg.Attributes["aggregate_id"] != event.AggregateID.String() {
		t.Fatalf("aggregate id attribute missing")
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, reg registryResolver, dlq dlqRepository, recorder ledgerRecorder, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	service, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         reg,
		Ledger:           recorder,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func orderEvent(tb testing.TB, eventID string, attempts int) models.OutboxEvent {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

func orderResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "orders-topic", AggregateType: enums.AggregateOrder},
		Envelope:   outbox.PayloadEnvelope{EventID: uuid.NewString(), OccurredAt: time.Now()},
		Payload:    &payloads.OrderCreatedEvent{},
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type gormTx struct {
	conn *gorm.DB
}

func (g gormTx) Ping(context.Context) error { return nil }

func (g gormTx) WithTx(ctx context.Context, fn func(*gorm.DB) error) error {
	return g.conn.WithContext(ctx).Transaction(fn)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error { return nil }

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher { return nil }

func (f *fakePubSubClient) Ordered() bool { return false }

type fakePublisher struct {
	results []publishResult
	calls   int
	stopped bool
}

func (f *fakePublisher) Stop() { f.stopped = true }

func (f *fakePublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	f.calls++
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeRecorder struct {
	calls int
	err   error
}

func (f *fakeRecorder) RecordTx(ctx context.Context, tx *gorm.DB, sourceEventID uuid.UUID, entry payloads.InventoryLedgerEntry) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return true, nil
}
