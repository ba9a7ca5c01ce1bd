package product

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository persists catalog products and their variants. Variant stock is
// written by the inventory package only.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a product repository to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads a product with its variants.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("size ASC") }).
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct inserts the product and its variants in one statement batch.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// UpdatePrice changes the catalog price. Orders keep their own snapshots.
func (r *Repository) UpdatePrice(ctx context.Context, id uuid.UUID, priceCents int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"price_cents": priceCents,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// List returns products newest first, optionally narrowed by category.
func (r *Repository) List(ctx context.Context, query ListQuery) ([]models.Product, error) {
	tx := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("size ASC") })
	if query.Category != "" {
		tx = tx.Where("category = ?", query.Category)
	}
	if query.BestsellerOnly {
		tx = tx.Where("bestseller = ?", true)
	}
	var products []models.Product
	if err := tx.Order("created_at DESC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
