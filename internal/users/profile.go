package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Profile is what clients see of an account. The password hash never leaves
// this package's callers.
type Profile struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Role        enums.UserRole `json:"role"`
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func ProfileOf(u *models.User) *Profile {
	if u == nil {
		return nil
	}
	return &Profile{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

// NewUser is an account about to be inserted. PasswordHash is already
// encoded by the caller's hasher.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	Role         enums.UserRole
}

func (n NewUser) model() *models.User {
	role := n.Role
	if !role.IsValid() {
		role = enums.UserRoleCustomer
	}
	return &models.User{
		Name:         strings.TrimSpace(n.Name),
		Email:        NormalizeEmail(n.Email),
		PasswordHash: n.PasswordHash,
		Role:         role,
	}
}

// NormalizeEmail is the stored form of an address; lookups go through it
// too, matching the lower(email) unique index.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
