// Package payments turns Stripe Checkout state into payment signals for the
// order lifecycle.
package payments

import (
	"github.com/google/uuid"
)

// Outcome is the normalized result of a payment confirmation channel.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
)

// Signal sources, used for logs, metrics and the order_paid event.
const (
	SourceStripeWebhook  = "stripe_webhook"
	SourceClientVerify   = "client_verify"
	SourceReconcile      = "reconcile"
	SourceCashOnDelivery = "cash_on_delivery"
)

// Signal is what every confirmation channel hands to the order lifecycle.
type Signal struct {
	OrderID   uuid.UUID
	Outcome   Outcome
	Source    string
	SessionID string
	EventID   string
}

// Succeeded reports whether the signal confirms the payment.
func (s Signal) Succeeded() bool {
	return s.Outcome == OutcomeSucceeded
}
