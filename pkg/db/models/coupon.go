package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Coupon grants either a percentage or a fixed discount.
type Coupon struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Code             string              `gorm:"column:code;not null;uniqueIndex:ux_coupons_code" json:"code"`
	PercentOff       decimal.NullDecimal `gorm:"column:percent_off;type:numeric(5,2)" json:"percentOff"`
	AmountOffCents   *int64              `gorm:"column:amount_off_cents" json:"amountOffCents"`
	MinSubtotalCents int64               `gorm:"column:min_subtotal_cents;not null;default:0" json:"minSubtotalCents"`
	Active           bool                `gorm:"column:active;not null;default:true" json:"active"`
	ExpiresAt        *time.Time          `gorm:"column:expires_at" json:"expiresAt"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
