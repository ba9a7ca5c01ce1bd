package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Auth admits requests carrying a valid access token and records the caller
// for Actor, IsStaff and the request logger.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := accessToken(r.Header)
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			userID, role := claims.UserID.String(), string(claims.Role)
			ctx := withPrincipal(r.Context(), principal{userID: userID, role: role})
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, userID), role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireStaff sits behind Auth on the dashboard routes.
func RequireStaff(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsStaff(r.Context()) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, string(enums.UserRoleStaff)+" role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// accessToken reads "Authorization: Bearer <jwt>". Older storefront builds
// send the bare token in a "token" header instead.
func accessToken(h http.Header) string {
	if scheme, token, ok := strings.Cut(strings.TrimSpace(h.Get("Authorization")), " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(h.Get("token"))
}
