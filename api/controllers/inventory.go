package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type adjustStockRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Size      string `json:"size" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required"`
	Reason    string `json:"reason,omitempty"`
}

// AdjustStock applies a signed staff correction to one variant.
func AdjustStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		actor, err := middleware.Actor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUID(payload.ProductID, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variant, err := svc.ManualAdjust(r.Context(), inventory.ManualAdjustInput{
			ProductID: productID,
			Size:      payload.Size,
			Delta:     payload.Quantity,
			Actor:     actor,
			Reason:    validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"variant": variant})
	}
}

// ListLedger returns inventory transactions, newest first.
func ListLedger(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseOptionalUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseOptionalUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := ledger.Filter{
			ProductID: productID,
			OrderID:   orderID,
			Size:      strings.TrimSpace(r.URL.Query().Get("size")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
			kind, err := enums.ParseInventoryTransactionKind(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind"))
				return
			}
			filter.Kind = kind
		}

		list, err := svc.List(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"entries": list.Entries, "nextCursor": list.NextCursor})
	}
}
