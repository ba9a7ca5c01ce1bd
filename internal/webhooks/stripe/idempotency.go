package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	markerProcessing = "processing"
	markerDone       = "done"

	defaultProcessingLease = 2 * time.Minute
)

var errNoEventID = errors.New("event id is required")

type markerStore interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	SwapIfValue(ctx context.Context, key, expect, next string, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
	StripeEventKey(eventID string) string
}

// Claim is the outcome of trying to take ownership of a Stripe event.
type Claim int

const (
	// ClaimAcquired means the caller must process the event and then
	// Complete or Release it.
	ClaimAcquired Claim = iota
	// ClaimInFlight means another delivery of the same event is being
	// processed right now.
	ClaimInFlight
	// ClaimDone means the event was already applied.
	ClaimDone
)

// IdempotencyGuard tracks Stripe event ids through processing -> done. A
// processing marker is a short lease so a crashed worker does not block
// Stripe's retries for the full ttl.
type IdempotencyGuard struct {
	store markerStore
	ttl   time.Duration
	lease time.Duration
}

func NewIdempotencyGuard(store markerStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, lease: min(defaultProcessingLease, ttl)}, nil
}

func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (Claim, error) {
	if eventID == "" {
		return 0, errNoEventID
	}
	key := g.store.StripeEventKey(eventID)
	won, err := g.store.SetNX(ctx, key, markerProcessing, g.lease)
	if err != nil {
		return 0, fmt.Errorf("claim stripe event: %w", err)
	}
	if won {
		return ClaimAcquired, nil
	}
	marker, _, err := g.store.Lookup(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read stripe event marker: %w", err)
	}
	if marker == markerDone {
		return ClaimDone, nil
	}
	return ClaimInFlight, nil
}

// Complete records eventID as applied for the full ttl.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errNoEventID
	}
	swapped, err := g.store.SwapIfValue(ctx, g.store.StripeEventKey(eventID), markerProcessing, markerDone, g.ttl)
	if err != nil {
		return fmt.Errorf("mark stripe event done: %w", err)
	}
	if !swapped {
		return fmt.Errorf("processing lease on %s expired before completion", eventID)
	}
	return nil
}

// Release drops a processing claim so Stripe's retry of a failed event is
// applied. A completed marker is never released.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errNoEventID
	}
	_, err := g.store.DeleteIfValue(ctx, g.store.StripeEventKey(eventID), markerProcessing)
	return err
}
