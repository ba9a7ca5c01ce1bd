package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload type.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a decoded outbox row ready for delivery.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

func describe[T any](eventType enums.OutboxEventType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  eventType.Aggregate(),
		Topic:          topic,
		PayloadFactory: func() any { return new(T) },
	}
}

// EventRegistry maps each supported event type to its descriptor. Order
// events go to the orders topic; ledger entries go to the inventory topic.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	var missing []error
	if cfg.OrdersTopic == "" {
		missing = append(missing, errors.New("orders topic is required"))
	}
	if cfg.InventoryTopic == "" {
		missing = append(missing, errors.New("inventory topic is required"))
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}

	orders, inventory := cfg.OrdersTopic, cfg.InventoryTopic
	descriptors := []EventDescriptor{
		describe[payloads.OrderCreatedEvent](enums.EventOrderCreated, orders),
		describe[payloads.OrderPaidEvent](enums.EventOrderPaid, orders),
		describe[payloads.OrderStateChangedEvent](enums.EventOrderStateChanged, orders),
		describe[payloads.OrderCanceledEvent](enums.EventOrderCanceled, orders),
		describe[payloads.InventoryLedgerEntry](enums.EventInventoryLedgerEntry, inventory),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve validates the row and decodes its typed payload. Every error it
// returns is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, permanent("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	envelope, err := outbox.OpenEnvelope(event.Payload)
	if err != nil {
		return nil, permanent("%s: %w", event.EventType, err)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
