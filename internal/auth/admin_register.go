package auth

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

// EnsureStaff makes sure the configured admin account exists with the staff
// role and the configured password. It is a no-op when no admin is configured.
func EnsureStaff(ctx context.Context, db txRunner, admin config.AdminConfig, passwordCfg config.PasswordConfig, logg *logger.Logger) (*users.Profile, error) {
	if !admin.Configured() {
		return nil, nil
	}
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	email := strings.ToLower(strings.TrimSpace(admin.Email))
	name := strings.TrimSpace(admin.Name)
	if name == "" {
		name = "Store Admin"
	}

	hasher := security.NewHasher(passwordCfg)
	passwordHash, err := hasher.Hash(admin.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var seeded *users.Profile
	err = db.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := users.NewRepository(tx)

		existing, err := userRepo.FindByEmail(ctx, email)
		switch {
		case err == nil:
			if existing.Role == enums.UserRoleStaff && !hasher.Stale(existing.PasswordHash) {
				if ok, _, _ := hasher.Verify(admin.Password, existing.PasswordHash); ok {
					seeded = users.ProfileOf(existing)
					return nil
				}
			}
			if err := userRepo.PromoteToStaff(ctx, existing.ID, passwordHash); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "promote staff user")
			}
			existing.Role = enums.UserRoleStaff
			seeded = users.ProfileOf(existing)
			return nil
		case !errors.Is(err, users.ErrNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check staff email")
		}

		user, err := userRepo.Create(ctx, users.NewUser{
			Name:         name,
			Email:        email,
			PasswordHash: passwordHash,
			Role:         enums.UserRoleStaff,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create staff user")
		}
		seeded = users.ProfileOf(user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "email", email), "staff account ensured")
	}
	return seeded, nil
}
