package product

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CreateProductInput is the staff payload for a new catalog entry.
type CreateProductInput struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Category    string          `json:"category" validate:"required"`
	SubCategory *string         `json:"subCategory,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Bestseller  bool            `json:"bestseller"`
	Variants    []VariantInput  `json:"variants" validate:"required,min=1,dive"`
}

// VariantInput describes one size. Stock is booked through a manual
// adjustment so it shows up in the ledger.
type VariantInput struct {
	Size  string  `json:"size" validate:"required"`
	SKU   *string `json:"sku,omitempty"`
	Stock int     `json:"stock" validate:"gte=0"`
}

// UpdatePriceInput changes the catalog price of a product.
type UpdatePriceInput struct {
	ProductID string          `json:"productId" validate:"required,uuid"`
	Price     decimal.Decimal `json:"price"`
}

// ListQuery narrows the public product list.
type ListQuery struct {
	Category       string
	BestsellerOnly bool
}

func normalizeSize(size string) string {
	return strings.TrimSpace(size)
}
