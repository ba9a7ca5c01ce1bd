package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

const emailIndex = "ux_users_email"

// Repository persists accounts. Bind it to a transaction handle to take part
// in a caller's unit of work.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// Create inserts u. A concurrent signup with the same address surfaces as
// ErrEmailTaken.
func (r *Repository) Create(ctx context.Context, u NewUser) (*models.User, error) {
	user := u.model()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if db.IsUniqueViolation(err, emailIndex) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", NormalizeEmail(email))
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *Repository) first(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin leaves updated_at alone; a login is not a profile edit.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.update(ctx, id, map[string]any{"password_hash": passwordHash})
}

// PromoteToStaff grants the staff role and replaces the password in one write.
func (r *Repository) PromoteToStaff(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.update(ctx, id, map[string]any{
		"role":          enums.UserRoleStaff,
		"password_hash": passwordHash,
	})
}

func (r *Repository) update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
