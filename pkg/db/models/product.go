package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog entry; sellable stock lives on its variants.
type Product struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name        string           `gorm:"column:name;not null" json:"name"`
	Description string           `gorm:"column:description;not null;default:''" json:"description"`
	Category    string           `gorm:"column:category;not null" json:"category"`
	SubCategory *string          `gorm:"column:sub_category" json:"subCategory"`
	PriceCents  int64            `gorm:"column:price_cents;not null" json:"priceCents"`
	Bestseller  bool             `gorm:"column:bestseller;not null;default:false" json:"bestseller"`
	Variants    []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"variants"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Variant returns the variant for size, or nil.
func (p Product) Variant(size string) *ProductVariant {
	for i := range p.Variants {
		if p.Variants[i].Size == size {
			return &p.Variants[i]
		}
	}
	return nil
}
