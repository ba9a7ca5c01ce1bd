package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
)

// InventoryTransaction is a write-once ledger row. ID is the ledger entry id
// minted when stock was mutated, so redelivered outbox events collapse onto it.
type InventoryTransaction struct {
	ID            uuid.UUID                      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID     uuid.UUID                      `gorm:"column:product_id;type:uuid;not null;index:ix_inventory_transactions_variant,priority:1" json:"productId"`
	VariantID     uuid.UUID                      `gorm:"column:variant_id;type:uuid;not null" json:"variantId"`
	Size          string                         `gorm:"column:size;not null;index:ix_inventory_transactions_variant,priority:2" json:"size"`
	QuantityDelta int                            `gorm:"column:quantity_delta;not null" json:"quantityDelta"`
	StockAfter    int                            `gorm:"column:stock_after;not null" json:"stockAfter"`
	Kind          enums.InventoryTransactionKind `gorm:"column:kind;type:text;not null" json:"kind"`
	OrderID       *uuid.UUID                     `gorm:"column:order_id;type:uuid;index" json:"orderId"`
	ActorID       *uuid.UUID                     `gorm:"column:actor_id;type:uuid" json:"actorId"`
	Reason        *string                        `gorm:"column:reason" json:"reason"`
	SourceEventID uuid.UUID                      `gorm:"column:source_event_id;type:uuid;not null" json:"sourceEventId"`
	OccurredAt    time.Time                      `gorm:"column:occurred_at;not null" json:"occurredAt"`
	CreatedAt     time.Time                      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
