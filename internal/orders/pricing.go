package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type lineKey struct {
	productID uuid.UUID
	size      string
}

// mergeItems validates the cart and folds repeated (product, size) lines
// into one, keeping first-seen order.
func mergeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	merged := make([]ItemInput, 0, len(items))
	index := make(map[lineKey]int, len(items))
	for i, item := range items {
		size := strings.TrimSpace(item.Size)
		if item.ProductID == uuid.Nil || size == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "each item needs a productId and size").
				WithDetails(map[string]any{"index": i})
		}
		if item.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"index": i})
		}
		key := lineKey{productID: item.ProductID, size: size}
		if pos, ok := index[key]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, ItemInput{ProductID: item.ProductID, Size: size, Quantity: item.Quantity})
	}
	return merged, nil
}

// priceLines snapshots catalog prices into order line items. Availability is
// checked against current stock but nothing is reserved; stock is consumed
// only once the payment is confirmed.
func (s *service) priceLines(ctx context.Context, items []ItemInput) ([]models.OrderLineItem, int64, error) {
	products := make(map[uuid.UUID]*models.Product, len(items))
	lines := make([]models.OrderLineItem, 0, len(items))
	var subtotal int64

	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			var err error
			product, err = s.catalog.GetProduct(ctx, item.ProductID)
			if err != nil {
				return nil, 0, err
			}
			products[item.ProductID] = product
		}
		variant := product.Variant(item.Size)
		if variant == nil {
			return nil, 0, pkgerrors.NotFound("variant").
				WithDetails(map[string]any{"productId": item.ProductID, "size": item.Size})
		}
		if !variant.Active {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "variant is unavailable").
				WithDetails(map[string]any{"productId": item.ProductID, "size": item.Size})
		}
		if item.Quantity > variant.Stock {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
				WithDetails(map[string]any{"productId": item.ProductID, "size": item.Size, "available": variant.Stock})
		}

		total := product.PriceCents * int64(item.Quantity)
		subtotal += total
		lines = append(lines, models.OrderLineItem{
			ProductID:      product.ID,
			VariantID:      variant.ID,
			Name:           product.Name,
			Size:           variant.Size,
			Quantity:       item.Quantity,
			UnitPriceCents: product.PriceCents,
			TotalCents:     total,
		})
	}
	return lines, subtotal, nil
}
