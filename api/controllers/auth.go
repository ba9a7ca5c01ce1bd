package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// issueToken decodes Req, hands it to issue and answers {token, user}.
func issueToken[Req any](issue func(context.Context, Req) (*auth.LoginResponse, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if issue == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}
		var body Req
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := issue(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"token": result.Token, "user": result.User})
	}
}

func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return issueToken[auth.LoginRequest](nil, logg)
	}
	return issueToken(svc.Login, logg)
}

// AdminAuthLogin answers 401, not 403, for a customer account so the admin
// form does not reveal which emails exist.
func AdminAuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return issueToken[auth.LoginRequest](nil, logg)
	}
	return issueToken(svc.AdminLogin, logg)
}

func AuthRegister(svc auth.RegisterService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return issueToken[auth.RegisterRequest](nil, logg)
	}
	return issueToken(svc.Register, logg)
}
