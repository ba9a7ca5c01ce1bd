package payloads

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted when checkout persists a new order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	AmountCents   int64               `json:"amount_cents"`
	Currency      string              `json:"currency"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	ItemCount     int                 `json:"item_count"`
}

// OrderPaidEvent is emitted once per order when payment is first confirmed.
type OrderPaidEvent struct {
	OrderID           uuid.UUID `json:"order_id"`
	UserID            uuid.UUID `json:"user_id"`
	AmountCents       int64     `json:"amount_cents"`
	Source            string    `json:"source"`
	PaidAt            time.Time `json:"paid_at"`
	InventoryAdjusted bool      `json:"inventory_adjusted"`
	RefundRequired    bool      `json:"refund_required,omitempty"`
}

// OrderStateChangedEvent records a fulfillment status change.
type OrderStateChangedEvent struct {
	OrderID      uuid.UUID         `json:"order_id"`
	From         enums.OrderStatus `json:"from"`
	To           enums.OrderStatus `json:"to"`
	TrackingCode *string           `json:"tracking_code,omitempty"`
	Carrier      *string           `json:"carrier,omitempty"`
	ChangedAt    time.Time         `json:"changed_at"`
}

// OrderCanceledEvent is emitted when an order is cancelled by a customer,
// staff or a failed payment.
type OrderCanceledEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	UserID         uuid.UUID         `json:"user_id"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Reason         string            `json:"reason,omitempty"`
	StockReverted  bool              `json:"stock_reverted"`
	RefundRequired bool              `json:"refund_required,omitempty"`
	CanceledAt     time.Time         `json:"canceled_at"`
}

// InventoryLedgerEntry describes one applied stock delta. EntryID becomes the
// inventory_transactions primary key.
type InventoryLedgerEntry struct {
	EntryID       uuid.UUID                      `json:"entry_id"`
	ProductID     uuid.UUID                      `json:"product_id"`
	VariantID     uuid.UUID                      `json:"variant_id"`
	Size          string                         `json:"size"`
	QuantityDelta int                            `json:"quantity_delta"`
	StockAfter    int                            `json:"stock_after"`
	Kind          enums.InventoryTransactionKind `json:"kind"`
	OrderID       *uuid.UUID                     `json:"order_id,omitempty"`
	ActorID       *uuid.UUID                     `json:"actor_id,omitempty"`
	Reason        *string                        `json:"reason,omitempty"`
	OccurredAt    time.Time                      `json:"occurred_at"`
}
