package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository persists variant stock and the per-order inventory guards.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindVariant(ctx context.Context, productID uuid.UUID, size string) (*models.ProductVariant, error)
	ApplyDelta(ctx context.Context, productID uuid.UUID, size string, delta int, allowNegative bool) (*models.ProductVariant, bool, error)
	ClaimOrderAdjustment(ctx context.Context, orderID uuid.UUID) (bool, error)
	ClaimOrderRevert(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindVariant(ctx context.Context, productID uuid.UUID, size string) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND size = ?", productID, size).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// ApplyDelta adds delta to the variant stock and derives active from the new
// value in the same UPDATE. Unless allowNegative is set the update only
// matches when the result stays >= 0. The bool result is false when no row
// matched; callers tell a missing variant from a refused one with FindVariant.
func (r *repository) ApplyDelta(ctx context.Context, productID uuid.UUID, size string, delta int, allowNegative bool) (*models.ProductVariant, bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("product_id = ? AND size = ?", productID, size)
	if !allowNegative {
		query = query.Where("stock + ? >= 0", delta)
	}
	res := query.Updates(map[string]any{
		"stock":      gorm.Expr("stock + ?", delta),
		"active":     gorm.Expr("stock + ? > 0", delta),
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	variant, err := r.FindVariant(ctx, productID, size)
	if err != nil {
		return nil, false, err
	}
	return variant, true, nil
}

// ClaimOrderAdjustment flips inventory_adjusted false->true. Only the caller
// that wins the flip may decrement stock for the order.
func (r *repository) ClaimOrderAdjustment(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND inventory_adjusted = ?", orderID, false).
		Updates(map[string]any{
			"inventory_adjusted": true,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClaimOrderRevert flips inventory_reverted for an adjusted order, once.
func (r *repository) ClaimOrderRevert(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND inventory_adjusted = ? AND inventory_reverted = ?", orderID, true, false).
		Updates(map[string]any{
			"inventory_reverted": true,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
