package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OutboxEvent is written in the same transaction as the order or stock change
// it announces. A row is pending until PublishedAt is set or the publisher
// parks it in OutboxDLQ.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
	PublishedAt   *time.Time                `gorm:"column:published_at;index"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

// Park copies the event into a dead-letter row.
func (e OutboxEvent) Park(reason enums.OutboxDLQErrorReason, cause error, at time.Time) OutboxDLQ {
	parked := OutboxDLQ{
		EventID:       e.ID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       e.Payload,
		ErrorReason:   reason,
		AttemptCount:  e.AttemptCount,
		FailedAt:      at.UTC(),
	}
	if cause != nil {
		msg := cause.Error()
		parked.ErrorMessage = &msg
	}
	return parked
}
