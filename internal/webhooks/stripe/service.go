// Package stripewebhook maps Stripe Checkout events onto payment signals.
package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type ServiceParams struct {
	Confirmer payments.Confirmer
	Logger    *logger.Logger
}

type Service struct {
	confirmer payments.Confirmer
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Confirmer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment confirmer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{confirmer: params.Confirmer, logg: params.Logger}, nil
}

// HandleEvent forwards checkout session events to the payment confirmer.
// Unrelated event types are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var forceFailed bool
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		forceFailed = true
	default:
		s.logg.Info(s.logg.WithField(ctx, "event_type", string(event.Type)), "stripe event ignored")
		return nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	signal, err := payments.SignalFromSession(&sess, payments.SourceStripeWebhook)
	if err != nil {
		return err
	}
	if forceFailed {
		signal.Outcome = payments.OutcomeFailed
	}
	signal.EventID = event.ID

	ctx = s.logg.WithFields(s.logg.WithOrderID(ctx, signal.OrderID.String()), map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})
	if _, err := s.confirmer.ConfirmPayment(ctx, signal); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			// not ours; retrying will not make the order appear
			s.logg.Warn(ctx, "stripe event references unknown order")
			return nil
		}
		return err
	}
	return nil
}
