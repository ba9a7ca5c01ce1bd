package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// ItemInput is one cart line as sent by the client.
type ItemInput struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Size      string    `json:"size" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// PlaceOrderInput carries a checkout submission. Amount is optional; when
// present it must match the server-side total.
type PlaceOrderInput struct {
	UserID        uuid.UUID
	Items         []ItemInput
	Address       types.Address
	PaymentMethod enums.PaymentMethod
	Amount        *decimal.Decimal
	CouponCode    string
}

// PlacedOrder is the result of PlaceOrder. SessionURL is set for card orders.
type PlacedOrder struct {
	Order      *models.Order
	SessionURL string
}

// TransitionInput is a staff status change.
type TransitionInput struct {
	OrderID      uuid.UUID
	Target       string
	TrackingCode *string
	Carrier      *string
	Actor        *outbox.ActorRef
}

// CancelInput cancels an order. Staff may cancel any non-terminal order;
// customers only their own orders that are still Placed.
type CancelInput struct {
	OrderID uuid.UUID
	Actor   *outbox.ActorRef
	Staff   bool
	Reason  string
}

// ListFilter narrows order listings.
type ListFilter struct {
	UserID *uuid.UUID
	Status *enums.OrderStatus
	Limit  int
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

func orderCursor(order models.Order) pagination.Cursor {
	return pagination.Cursor{CreatedAt: order.CreatedAt, ID: order.ID}
}
