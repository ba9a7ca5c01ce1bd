package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// OrderLookup loads an order with its current payment state.
type OrderLookup interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// Confirmer is the single idempotent entry point every channel converges on.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, signal Signal) (*models.Order, error)
}

type signalFetcher interface {
	FetchSignal(ctx context.Context, orderID uuid.UUID, sessionID, source string) (Signal, error)
}

// Verifier serves the client-polled confirmation after the checkout redirect.
// The client's own success flag is only used for logging; Stripe decides.
type Verifier struct {
	orders    OrderLookup
	confirmer Confirmer
	gateway   signalFetcher
	logg      *logger.Logger
}

func NewVerifier(orders OrderLookup, confirmer Confirmer, gateway signalFetcher, logg *logger.Logger) (*Verifier, error) {
	if orders == nil {
		return nil, errors.New("order lookup required")
	}
	if confirmer == nil {
		return nil, errors.New("payment confirmer required")
	}
	if gateway == nil {
		return nil, errors.New("payment gateway required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Verifier{orders: orders, confirmer: confirmer, gateway: gateway, logg: logg}, nil
}

// Verify reports whether the order is paid after consulting Stripe.
func (v *Verifier) Verify(ctx context.Context, orderID, userID uuid.UUID, clientSuccess bool) (bool, error) {
	if orderID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	order, err := v.orders.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.UserID != userID {
		return false, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	if order.Payment {
		return true, nil
	}
	if order.PaymentMethod != enums.PaymentMethodStripe || order.CheckoutSessionID == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order has no card checkout session")
	}

	ctx = v.logg.WithOrderID(ctx, order.ID.String())
	signal, err := v.gateway.FetchSignal(ctx, order.ID, *order.CheckoutSessionID, SourceClientVerify)
	if err != nil {
		return false, err
	}

	if signal.Outcome == OutcomePending {
		if clientSuccess {
			v.logg.Warn(v.logg.WithFields(ctx, map[string]any{
				"code":       pkgerrors.CodeGateway,
				"session_id": signal.SessionID,
				"amount":     AmountLabel(order.AmountCents, order.Currency),
			}), "client reported success but checkout session is unpaid, deferring to reconciliation")
		}
		return false, nil
	}

	updated, err := v.confirmer.ConfirmPayment(ctx, signal)
	if err != nil {
		return false, err
	}
	return updated.Payment, nil
}
