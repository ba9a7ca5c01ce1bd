package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
)

// Order is the aggregate created at checkout. Amounts are snapshots taken at
// placement and never recomputed.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index" json:"userId"`
	Items             []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	SubtotalCents     int64               `gorm:"column:subtotal_cents;not null" json:"subtotalCents"`
	DeliveryFeeCents  int64               `gorm:"column:delivery_fee_cents;not null;default:0" json:"deliveryFeeCents"`
	DiscountCents     int64               `gorm:"column:discount_cents;not null;default:0" json:"discountCents"`
	AmountCents       int64               `gorm:"column:amount_cents;not null" json:"amountCents"`
	Currency          string              `gorm:"column:currency;not null" json:"currency"`
	CouponCode        *string             `gorm:"column:coupon_code" json:"couponCode"`
	Address           types.Address       `gorm:"column:address;type:jsonb;not null" json:"address"`
	PaymentMethod     enums.PaymentMethod `gorm:"column:payment_method;type:text;not null" json:"paymentMethod"`
	Payment           bool                `gorm:"column:payment;not null;default:false" json:"payment"`
	PaidAt            *time.Time          `gorm:"column:paid_at" json:"paidAt"`
	Status            enums.OrderStatus   `gorm:"column:status;type:text;not null;index" json:"status"`
	InventoryAdjusted bool                `gorm:"column:inventory_adjusted;not null;default:false" json:"inventoryAdjusted"`
	InventoryReverted bool                `gorm:"column:inventory_reverted;not null;default:false" json:"inventoryReverted"`
	TrackingCode      *string             `gorm:"column:tracking_code" json:"trackingCode"`
	Carrier           *string             `gorm:"column:carrier" json:"carrier"`
	CheckoutSessionID *string             `gorm:"column:checkout_session_id;index" json:"checkoutSessionId"`
	CancelReason      *string             `gorm:"column:cancel_reason" json:"cancelReason"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
