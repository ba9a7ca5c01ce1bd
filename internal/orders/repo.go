package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error)
	SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error
	List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor) ([]models.Order, error)
	ListPendingPayments(ctx context.Context, createdBefore time.Time, after *pagination.Cursor, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its line items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate holds the order row until the surrounding transaction
// ends. SQLite has no row locks; its single writer serializes instead.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := r.db.WithContext(ctx)
	if query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.find(query, id)
}

func (r *repository) find(query *gorm.DB, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := query.
		Preload("Items", withItemOrder).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkPaid flips payment false->true; false means someone else already did.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment = ?", id, false).
		Updates(map[string]any{
			"payment":    true,
			"paid_at":    paidAt,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateStatus applies updates only while the order is still in status from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"checkout_session_id": sessionID,
			"updated_at":          time.Now().UTC(),
		}).Error
}

// List returns one page (plus a lookahead row) of orders, newest first.
func (r *repository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Items", withItemOrder)
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var rows []models.Order
	if err := pagination.Apply(query, cursor, filter.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPendingPayments finds card orders still waiting on Stripe, oldest first,
// starting after the given position when after is set.
func (r *repository) ListPendingPayments(ctx context.Context, createdBefore time.Time, after *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Where("payment_method = ?", enums.PaymentMethodStripe).
		Where("payment = ?", false).
		Where("status = ?", enums.OrderStatusPlaced).
		Where("checkout_session_id IS NOT NULL").
		Where("created_at < ?", createdBefore)
	if after != nil {
		query = query.Where("(created_at, id) > (?, ?)", after.CreatedAt, after.ID)
	}
	var rows []models.Order
	err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func withItemOrder(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}
