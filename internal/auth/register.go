package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

// RegisterService signs up customer accounts. Staff accounts only come from
// EnsureStaff.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type RegisterServiceParams struct {
	DB             txRunner
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
}

type registerService struct {
	db     txRunner
	jwtCfg config.JWTConfig
	hasher *security.Hasher
}

func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	return &registerService{
		db:     params.DB,
		jwtCfg: params.JWTConfig,
		hasher: security.NewHasher(params.PasswordConfig),
	}, nil
}

// Register creates the account and signs the caller in. The insert and the
// token are produced in one transaction, so a signing failure leaves no
// orphan account behind.
func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	account := users.NewUser{
		Name:  strings.TrimSpace(req.Name),
		Email: users.NormalizeEmail(req.Email),
		Role:  enums.UserRoleCustomer,
	}
	switch {
	case account.Email == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	case account.Name == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if err := security.CheckStrength(req.Password); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "weak password")
	}

	var err error
	if account.PasswordHash, err = s.hasher.Hash(req.Password); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var resp *LoginResponse
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := users.NewRepository(tx).Create(ctx, account)
		switch {
		case errors.Is(err, users.ErrEmailTaken):
			return pkgerrors.New(pkgerrors.CodeConflict, err.Error())
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}

		token, err := mintToken(s.jwtCfg, time.Now().UTC(), user)
		if err != nil {
			return err
		}
		resp = &LoginResponse{Token: token, User: users.ProfileOf(user)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
