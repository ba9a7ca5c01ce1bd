package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductVariant is a (product, size) pair with its own stock. Active is kept
// equal to Stock > 0 by the inventory repository.
type ProductVariant struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_product_variants_product_size,priority:1" json:"productId"`
	Size      string    `gorm:"column:size;not null;uniqueIndex:ux_product_variants_product_size,priority:2" json:"size"`
	SKU       *string   `gorm:"column:sku" json:"sku"`
	Stock     int       `gorm:"column:stock;not null;default:0" json:"stock"`
	Active    bool      `gorm:"column:active;not null;default:false" json:"active"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
