package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type paymentVerifier interface {
	Verify(ctx context.Context, orderID, userID uuid.UUID, clientSuccess bool) (bool, error)
}

type placeOrderRequest struct {
	Address    types.Address              `json:"address" validate:"required"`
	Items      []internalorders.ItemInput `json:"items" validate:"required,min=1,dive"`
	Amount     *decimal.Decimal           `json:"amount,omitempty"`
	CouponCode string                     `json:"couponCode,omitempty"`
}

type verifyStripeRequest struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId" validate:"required"`
}

type statusRequest struct {
	OrderID      string  `json:"orderId" validate:"required"`
	OrderStatus  string  `json:"orderStatus" validate:"required"`
	TrackingCode *string `json:"trackingCode,omitempty"`
	Carrier      *string `json:"carrier,omitempty"`
}

type cancelRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	Reason  string `json:"reason,omitempty"`
}

type userOrdersRequest struct {
	Limit  int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
	Cursor string `json:"cursor,omitempty"`
}

// PlaceCOD places a cash-on-delivery order for the authenticated customer.
func PlaceCOD(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return place(svc, enums.PaymentMethodCOD, logg)
}

// PlaceStripe places a card order and returns the hosted checkout URL.
func PlaceStripe(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return place(svc, enums.PaymentMethodStripe, logg)
}

func place(svc internalorders.Service, method enums.PaymentMethod, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		actor, err := middleware.Actor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body placeOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		placed, err := svc.PlaceOrder(r.Context(), internalorders.PlaceOrderInput{
			UserID:        actor.UserID,
			Items:         body.Items,
			Address:       body.Address,
			PaymentMethod: method,
			Amount:        body.Amount,
			CouponCode:    body.CouponCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fields := responses.Fields{"order": placed.Order}
		if method == enums.PaymentMethodStripe {
			fields["session_url"] = placed.SessionURL
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, fields)
	}
}

// VerifyStripe is polled by the checkout return page. The client's own
// success flag never settles the order; Stripe is asked instead.
func VerifyStripe(verifier paymentVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "card payments unavailable"))
			return
		}
		actor, err := middleware.Actor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body verifyStripeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUID(body.OrderID, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paid, err := verifier.Verify(r.Context(), orderID, actor.UserID, body.Success)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"payment": paid})
	}
}

// UpdateStatus applies a staff status transition.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		actor, err := middleware.Actor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body statusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUID(body.OrderID, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.TransitionStatus(r.Context(), internalorders.TransitionInput{
			OrderID:      orderID,
			Target:       body.OrderStatus,
			TrackingCode: body.TrackingCode,
			Carrier:      body.Carrier,
			Actor:        actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"order": order})
	}
}

// Cancel cancels an order. Staff may cancel any open order; customers only
// their own orders, which the service enforces.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		actor, err := middleware.Actor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cancelRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUID(body.OrderID, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CancelOrder(r.Context(), internalorders.CancelInput{
			OrderID: orderID,
			Actor:   actor,
			Staff:   middleware.IsStaff(r.Context()),
			Reason:  validators.SanitizeString(body.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"order": order})
	}
}

// List returns every order for the admin dashboard, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filter internalorders.ListFilter
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}

		list, err := svc.ListOrders(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"orders": list.Orders, "nextCursor": list.NextCursor})
	}
}

// UserOrders lists the caller's own orders.
func UserOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		actor, err := middleware.Actor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body userOrdersRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		list, err := svc.ListUserOrders(r.Context(), actor.UserID, pagination.Params{
			Limit:  pagination.NormalizeLimit(body.Limit),
			Cursor: strings.TrimSpace(body.Cursor),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"orders": list.Orders, "nextCursor": list.NextCursor})
	}
}
