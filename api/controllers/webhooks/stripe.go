package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/storefront-backend/api/responses"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	// checkout events are a few KB
	maxWebhookBody  = 1 << 16
	signatureHeader = "Stripe-Signature"
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type eventGuard interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.Claim, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook verifies the signature, claims the event id and dispatches.
// A delivery racing an in-flight copy gets 409 so Stripe retries it later;
// a failed event is released so the retry is applied.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard eventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || client == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook unavailable"))
			return
		}

		event, err := verifiedEvent(r, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": string(event.Type)})
		}

		claim, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		switch claim {
		case stripewebhook.ClaimDone:
			info(ctx, logg, "stripe event already processed")
			responses.WriteSuccess(w, nil)
			return
		case stripewebhook.ClaimInFlight:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "stripe event is being processed"))
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if relErr := guard.Release(ctx, event.ID); relErr != nil && logg != nil {
				logg.Error(ctx, "release stripe event claim", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		// the event is applied; a marker failure only risks a harmless replay
		if err := guard.Complete(ctx, event.ID); err != nil && logg != nil {
			logg.Error(ctx, "complete stripe event claim", err)
		}
		info(ctx, logg, "stripe event processed")
		responses.WriteSuccess(w, nil)
	}
}

func verifiedEvent(r *http.Request, secret string) (stripe.Event, error) {
	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	payload, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe payload too large")
		}
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	event, err := webhook.ConstructEvent(payload, sig, secret)
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature")
	}
	return event, nil
}

func info(ctx context.Context, logg *logger.Logger, msg string) {
	if logg != nil {
		logg.Info(ctx, msg)
	}
}
