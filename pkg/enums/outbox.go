package enums

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder            OutboxAggregateType = "order"
	AggregateInventoryVariant OutboxAggregateType = "inventory_variant"
)

var aggregateTypes = closed[OutboxAggregateType]{"aggregate type", []OutboxAggregateType{
	AggregateOrder,
	AggregateInventoryVariant,
}}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType names the domain event stored in the outbox.
type OutboxEventType string

const (
	EventOrderCreated         OutboxEventType = "order_created"
	EventOrderPaid            OutboxEventType = "order_paid"
	EventOrderStateChanged    OutboxEventType = "order_state_changed"
	EventOrderCanceled        OutboxEventType = "order_canceled"
	EventInventoryLedgerEntry OutboxEventType = "inventory_ledger_entry"
)

var eventTypes = closed[OutboxEventType]{"event type", []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderStateChanged,
	EventOrderCanceled,
	EventInventoryLedgerEntry,
}}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

// Aggregate is the aggregate type every event of this kind is written against.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	if e == EventInventoryLedgerEntry {
		return AggregateInventoryVariant
	}
	return AggregateOrder
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse(value)
}
