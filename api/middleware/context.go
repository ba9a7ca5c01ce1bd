package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type principalKey struct{}

// principal is the caller as established by Auth.
type principal struct {
	userID string
	role   string
}

func principalFrom(ctx context.Context) principal {
	if ctx == nil {
		return principal{}
	}
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

func withPrincipal(ctx context.Context, p principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	p := principalFrom(ctx)
	p.userID = userID
	return withPrincipal(ctx, p)
}

func WithRole(ctx context.Context, role string) context.Context {
	p := principalFrom(ctx)
	p.role = role
	return withPrincipal(ctx, p)
}

func UserIDFromContext(ctx context.Context) string { return principalFrom(ctx).userID }

func RoleFromContext(ctx context.Context) string { return principalFrom(ctx).role }

func IsStaff(ctx context.Context) bool {
	return principalFrom(ctx).role == string(enums.UserRoleStaff)
}

// Actor returns the authenticated caller as recorded on orders, ledger rows
// and outbox envelopes.
func Actor(ctx context.Context) (*outbox.ActorRef, error) {
	p := principalFrom(ctx)
	if p.userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(p.userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return &outbox.ActorRef{UserID: userID, Role: p.role}, nil
}
