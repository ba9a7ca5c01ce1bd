package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

var maxPercent = decimal.NewFromInt(100)

// Service manages coupons and prices them against a subtotal.
type Service interface {
	Create(ctx context.Context, input CreateCouponInput) (*models.Coupon, error)
	Resolve(ctx context.Context, code string, subtotalCents int64) (*Discount, error)
}

// CreateCouponInput is the staff payload for a new coupon. Exactly one of
// PercentOff and AmountOff must be set.
type CreateCouponInput struct {
	Code        string           `json:"code" validate:"required"`
	PercentOff  *decimal.Decimal `json:"percentOff,omitempty"`
	AmountOff   *decimal.Decimal `json:"amountOff,omitempty"`
	MinSubtotal *decimal.Decimal `json:"minSubtotal,omitempty"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"`
}

// Discount is a coupon priced against one subtotal.
type Discount struct {
	Code          string
	DiscountCents int64
}

type repository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
}

type service struct {
	repo repository
	now  func() time.Time
}

func NewService(repo repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *service) Create(ctx context.Context, input CreateCouponInput) (*models.Coupon, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	if (input.PercentOff == nil) == (input.AmountOff == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "exactly one of percentOff or amountOff is required")
	}

	coupon := &models.Coupon{Code: code, Active: true, ExpiresAt: input.ExpiresAt}
	if input.PercentOff != nil {
		pct := *input.PercentOff
		if !pct.IsPositive() || pct.GreaterThan(maxPercent) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentOff must be between 0 and 100")
		}
		coupon.PercentOff = decimal.NewNullDecimal(pct)
	}
	if input.AmountOff != nil {
		cents, err := money.ToCents(*input.AmountOff)
		if err != nil || cents <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "amountOff must be a positive amount")
		}
		coupon.AmountOffCents = &cents
	}
	if input.MinSubtotal != nil {
		cents, err := money.ToCents(*input.MinSubtotal)
		if err != nil || cents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "minSubtotal must be a non-negative amount")
		}
		coupon.MinSubtotalCents = cents
	}

	if err := s.repo.Create(ctx, coupon); err != nil {
		if db.IsUniqueViolation(err, "ux_coupons_code") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create coupon")
	}
	return coupon, nil
}

// Resolve prices code against subtotalCents. The discount never exceeds the
// subtotal.
func (s *service) Resolve(ctx context.Context, code string, subtotalCents int64) (*Discount, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon code")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load coupon")
	}
	if !coupon.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon is no longer active")
	}
	if coupon.ExpiresAt != nil && !s.now().Before(*coupon.ExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon has expired")
	}
	if subtotalCents < coupon.MinSubtotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subtotal below coupon minimum").
			WithDetails(map[string]any{"minSubtotal": money.Format(coupon.MinSubtotalCents)})
	}

	var discount int64
	switch {
	case coupon.PercentOff.Valid:
		discount = money.Percent(subtotalCents, coupon.PercentOff.Decimal)
	case coupon.AmountOffCents != nil:
		discount = *coupon.AmountOffCents
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	return &Discount{Code: coupon.Code, DiscountCents: discount}, nil
}
