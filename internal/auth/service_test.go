package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

var testJWT = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "storefront",
	ExpirationMinutes: 30,
}

func TestServiceLoginCustomer(t *testing.T) {
	password := "customer-secret"
	repo := &stubUserRepo{user: &models.User{
		ID:           uuid.New(),
		Name:         "Ana",
		Email:        "ana@example.com",
		PasswordHash: hashWith(t, config.PasswordConfig{}, password),
		Role:         enums.UserRoleCustomer,
	}}

	resp, err := buildTestService(t, repo, config.PasswordConfig{}).Login(context.Background(), LoginRequest{Email: " ANA@example.com ", Password: password})
	require.NoError(t, err)

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, repo.user.ID, claims.UserID)
	assert.Equal(t, enums.UserRoleCustomer, claims.Role)
	assert.NotNil(t, repo.user.LastLoginAt)
	assert.Empty(t, repo.rehashed, "current-cost hash must not be rewritten")
}

func TestServiceLoginRejectsBadCredentials(t *testing.T) {
	repo := &stubUserRepo{user: &models.User{
		ID:           uuid.New(),
		Email:        "ana@example.com",
		PasswordHash: hashWith(t, config.PasswordConfig{}, "right-password"),
		Role:         enums.UserRoleCustomer,
	}}
	svc := buildTestService(t, repo, config.PasswordConfig{})

	cases := map[string]LoginRequest{
		"wrong password": {Email: "ana@example.com", Password: "wrong-password"},
		"unknown email":  {Email: "ghost@example.com", Password: "whatever1"},
		"blank email":    {Email: "   ", Password: "whatever1"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), req)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), "got %v", err)
			assert.Equal(t, invalidCredentialsMessage, pkgerrors.As(err).Message())
		})
	}
	assert.Nil(t, repo.user.LastLoginAt)
}

func TestServiceLoginLookupFailureIsInternal(t *testing.T) {
	repo := &stubUserRepo{err: errors.New("connection reset")}
	_, err := buildTestService(t, repo, config.PasswordConfig{}).Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal), "got %v", err)
}

func TestServiceLoginUpgradesStaleHash(t *testing.T) {
	password := "customer-secret"
	old := hashWith(t, config.PasswordConfig{}, password)
	repo := &stubUserRepo{user: &models.User{
		ID:           uuid.New(),
		Email:        "ana@example.com",
		PasswordHash: old,
		Role:         enums.UserRoleCustomer,
	}}
	stronger := config.PasswordConfig{ArgonMemoryKB: 64, ArgonTime: 2}

	_, err := buildTestService(t, repo, stronger).Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: password})
	require.NoError(t, err)

	require.Len(t, repo.rehashed, 1)
	assert.NotEqual(t, old, repo.user.PasswordHash)
	hasher := security.NewHasher(stronger)
	assert.False(t, hasher.Stale(repo.user.PasswordHash))
	ok, _, err := hasher.Verify(password, repo.user.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestServiceLoginSurvivesRehashFailure(t *testing.T) {
	password := "customer-secret"
	old := hashWith(t, config.PasswordConfig{}, password)
	repo := &stubUserRepo{
		user:      &models.User{ID: uuid.New(), Email: "ana@example.com", PasswordHash: old, Role: enums.UserRoleCustomer},
		rehashErr: errors.New("read only replica"),
	}
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		JWTConfig:      testJWT,
		PasswordConfig: config.PasswordConfig{ArgonTime: 2},
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: password})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, old, repo.user.PasswordHash)
}

func TestServiceAdminLoginRejectsCustomers(t *testing.T) {
	password := "customer-secret"
	repo := &stubUserRepo{user: &models.User{
		ID:           uuid.New(),
		Email:        "ana@example.com",
		PasswordHash: hashWith(t, config.PasswordConfig{}, password),
		Role:         enums.UserRoleCustomer,
	}}

	_, err := buildTestService(t, repo, config.PasswordConfig{}).AdminLogin(context.Background(), LoginRequest{Email: "ana@example.com", Password: password})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), "got %v", err)
}

func TestServiceAdminLoginStaff(t *testing.T) {
	password := "staff-secret"
	repo := &stubUserRepo{user: &models.User{
		ID:           uuid.New(),
		Email:        "staff@example.com",
		PasswordHash: hashWith(t, config.PasswordConfig{}, password),
		Role:         enums.UserRoleStaff,
	}}

	resp, err := buildTestService(t, repo, config.PasswordConfig{}).AdminLogin(context.Background(), LoginRequest{Email: "staff@example.com", Password: password})
	require.NoError(t, err)
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, enums.UserRoleStaff, claims.Role)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{JWTConfig: testJWT})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{UserRepo: &stubUserRepo{}})
	assert.Error(t, err)
}

func buildTestService(t *testing.T, repo *stubUserRepo, cfg config.PasswordConfig) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{UserRepo: repo, JWTConfig: testJWT, PasswordConfig: cfg})
	require.NoError(t, err)
	return svc
}

func hashWith(t *testing.T, cfg config.PasswordConfig, password string) string {
	t.Helper()
	encoded, err := security.NewHasher(cfg).Hash(password)
	require.NoError(t, err)
	return encoded
}

type stubUserRepo struct {
	user      *models.User
	err       error
	rehashErr error
	rehashed  []string
}

func (s *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.user == nil || s.user.Email != email {
		return nil, users.ErrNotFound
	}
	return s.user, nil
}

func (s *stubUserRepo) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	if s.user != nil && s.user.ID == id {
		s.user.LastLoginAt = &at
	}
	return nil
}

func (s *stubUserRepo) UpdatePasswordHash(_ context.Context, _ uuid.UUID, passwordHash string) error {
	if s.rehashErr != nil {
		return s.rehashErr
	}
	s.rehashed = append(s.rehashed, passwordHash)
	return nil
}
