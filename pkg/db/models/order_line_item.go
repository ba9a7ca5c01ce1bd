package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineItem snapshots one cart entry at placement time.
type OrderLineItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index" json:"orderId"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null" json:"productId"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null" json:"variantId"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	Size           string    `gorm:"column:size;not null" json:"size"`
	Quantity       int       `gorm:"column:quantity;not null" json:"quantity"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null" json:"unitPriceCents"`
	TotalCents     int64     `gorm:"column:total_cents;not null" json:"totalCents"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
