package ledger

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository manages persistence for inventory transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, row *models.InventoryTransaction) (bool, error)
	List(ctx context.Context, filter Filter, cursor *pagination.Cursor) ([]models.InventoryTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Insert writes row unless an entry with the same id exists. It reports
// whether a new row was written.
func (r *repository) Insert(ctx context.Context, row *models.InventoryTransaction) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, filter Filter, cursor *pagination.Cursor) ([]models.InventoryTransaction, error) {
	query := r.db.WithContext(ctx).Model(&models.InventoryTransaction{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.Size != "" {
		query = query.Where("size = ?", filter.Size)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}

	var rows []models.InventoryTransaction
	if err := pagination.Apply(query, cursor, filter.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
