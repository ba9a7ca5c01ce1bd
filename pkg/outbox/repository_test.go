package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func newOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:outbox_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return conn
}

func TestServiceEmitWritesEnvelope(t *testing.T) {
	conn := newOutboxTestDB(t)
	svc := NewService(NewRepository(conn), logger.Nop())
	orderID := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Role: "staff"}

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderStateChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor,
		Data:          map[string]string{"to": "Packing"},
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, orderID, rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor.UserID, envelope.Actor.UserID)
	assert.JSONEq(t, `{"to":"Packing"}`, string(envelope.Data))
}

func TestServiceEmitValidation(t *testing.T) {
	conn := newOutboxTestDB(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder})
	assert.Error(t, err)

	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: "bogus", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()})
	assert.Error(t, err)

	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder})
	assert.ErrorContains(t, err, "aggregate id required")

	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateInventoryVariant, AggregateID: uuid.New()})
	assert.ErrorContains(t, err, "belong to order aggregates")

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestServiceEmitKeepsCallerTimestamp(t *testing.T) {
	conn := newOutboxTestDB(t)
	svc := NewService(NewRepository(conn), nil)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600))

	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          map[string]string{"source": "stripe_webhook"},
		OccurredAt:    at,
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.True(t, envelope.OccurredAt.Equal(at))
	assert.Equal(t, time.UTC, envelope.OccurredAt.Location())
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)

	first := seedEvent(t, conn, repo, time.Now().Add(-2*time.Minute))
	second := seedEvent(t, conn, repo, time.Now().Add(-time.Minute))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID, "oldest event first")

	require.NoError(t, repo.MarkPublishedTx(conn, first.ID))
	require.NoError(t, repo.MarkFailedTx(conn, second.ID, errors.New("topic missing")))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "topic missing", *rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(conn, second.ID, errors.New("gave up"), 3))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows, "terminal rows are parked")

	pending, err := repo.CountPending(conn, 3)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)
	now := time.Now().UTC()

	old := seedEvent(t, conn, repo, now.Add(-48*time.Hour))
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", old.ID).Update("published_at", now.Add(-47*time.Hour)).Error)
	fresh := seedEvent(t, conn, repo, now)
	require.NoError(t, repo.MarkPublishedTx(conn, fresh.ID))
	parked := seedEvent(t, conn, repo, now.Add(-72*time.Hour))
	require.NoError(t, repo.MarkTerminalTx(conn, parked.ID, errors.New("dead"), 10))
	pending := seedEvent(t, conn, repo, now.Add(-72*time.Hour))

	deleted, err := repo.DeletePublishedBefore(conn, now.Add(-24*time.Hour), 5, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted, "limit bounds a single pass")
	deleted, err = repo.DeletePublishedBefore(conn, now.Add(-24*time.Hour), 5, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Order("created_at").Find(&remaining).Error)
	ids := []uuid.UUID{}
	for _, row := range remaining {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{fresh.ID, pending.ID}, ids)
}

func TestDLQRepositoryTruncatesMessage(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewDLQRepository(conn)
	eventID := uuid.New()
	// odd byte count so the cut lands inside a two-byte rune
	msg := "x" + strings.Repeat("é", maxDLQErrorLen)

	require.NoError(t, repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventInventoryLedgerEntry,
		AggregateType: enums.AggregateInventoryVariant,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
	}))

	var found models.OutboxDLQ
	require.NoError(t, conn.Where("event_id = ?", eventID).First(&found).Error)
	assert.Len(t, *found.ErrorMessage, maxDLQErrorLen-1)
	assert.True(t, utf8.ValidString(*found.ErrorMessage))

	assert.ErrorContains(t, repo.InsertTx(conn, models.OutboxDLQ{ErrorReason: enums.OutboxDLQReasonMaxAttempts}), "source event id")
}

func seedEvent(t *testing.T, conn *gorm.DB, repo *Repository, createdAt time.Time) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		CreatedAt:     createdAt.UTC(),
	}
	require.NoError(t, repo.Insert(conn, row))
	return row
}
