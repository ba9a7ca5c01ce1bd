package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

const (
	metadataOrderID = "order_id"
	deliveryLine    = "Delivery fee"
	orderIDToken    = "{ORDER_ID}"
)

type checkoutClient interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	SuccessURL() string
	CancelURL() string
}

// Session is the hosted checkout page created for an order.
type Session struct {
	ID  string
	URL string
}

// Gateway opens and inspects Stripe Checkout Sessions for orders.
type Gateway struct {
	client   checkoutClient
	currency string
}

func NewGateway(client checkoutClient, currency string) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return nil, errors.New("currency required")
	}
	return &Gateway{client: client, currency: currency}, nil
}

// CreateSession opens a Checkout Session charging exactly order.AmountCents.
func (g *Gateway) CreateSession(ctx context.Context, order *models.Order) (*Session, error) {
	if order == nil || order.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	orderID := order.ID.String()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(orderID),
		SuccessURL:        stripe.String(redirectURL(g.client.SuccessURL(), orderID, true)),
		CancelURL:         stripe.String(redirectURL(g.client.CancelURL(), orderID, false)),
		LineItems:         g.lineItems(order),
		Metadata:          map[string]string{metadataOrderID: orderID},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{metadataOrderID: orderID},
		},
	}

	sess, err := g.client.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "create checkout session")
	}
	if sess == nil || sess.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "checkout session missing id")
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// FetchSignal asks Stripe for the current state of sessionID.
func (g *Gateway) FetchSignal(ctx context.Context, orderID uuid.UUID, sessionID, source string) (Signal, error) {
	sess, err := g.client.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return Signal{}, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "fetch checkout session")
	}
	signal, err := SignalFromSession(sess, source)
	if err != nil {
		return Signal{}, err
	}
	if signal.OrderID != orderID {
		return Signal{}, pkgerrors.New(pkgerrors.CodeGateway, "checkout session belongs to another order").
			WithDetails(map[string]any{"sessionId": sessionID})
	}
	return signal, nil
}

// lineItems sends one line per item plus delivery. Checkout has no negative
// lines, so a discounted order is sent as a single line for the final amount.
func (g *Gateway) lineItems(order *models.Order) []*stripe.CheckoutSessionLineItemParams {
	if order.DiscountCents > 0 {
		name := fmt.Sprintf("Order %s", shortID(order.ID))
		if order.CouponCode != nil {
			name = fmt.Sprintf("%s (coupon %s)", name, *order.CouponCode)
		}
		return []*stripe.CheckoutSessionLineItemParams{g.line(name, order.AmountCents, 1)}
	}

	lines := make([]*stripe.CheckoutSessionLineItemParams, 0, len(order.Items)+1)
	for _, item := range order.Items {
		lines = append(lines, g.line(fmt.Sprintf("%s (%s)", item.Name, item.Size), item.UnitPriceCents, int64(item.Quantity)))
	}
	if order.DeliveryFeeCents > 0 {
		lines = append(lines, g.line(deliveryLine, order.DeliveryFeeCents, 1))
	}
	return lines
}

func (g *Gateway) line(name string, unitAmount, quantity int64) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency: stripe.String(g.currency),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
			UnitAmount: stripe.Int64(unitAmount),
		},
		Quantity: stripe.Int64(quantity),
	}
}

// SignalFromSession maps a Checkout Session onto a Signal. Only a paid
// session succeeds and only an expired one fails.
func SignalFromSession(sess *stripe.CheckoutSession, source string) (Signal, error) {
	if sess == nil {
		return Signal{}, pkgerrors.New(pkgerrors.CodeGateway, "checkout session required")
	}
	orderID, err := OrderIDFromSession(sess)
	if err != nil {
		return Signal{}, err
	}

	outcome := OutcomePending
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		outcome = OutcomeSucceeded
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		outcome = OutcomeFailed
	}
	return Signal{
		OrderID:   orderID,
		Outcome:   outcome,
		Source:    source,
		SessionID: sess.ID,
	}, nil
}

// OrderIDFromSession reads the order id from metadata, falling back to the
// client reference id.
func OrderIDFromSession(sess *stripe.CheckoutSession) (uuid.UUID, error) {
	raw := strings.TrimSpace(sess.Metadata[metadataOrderID])
	if raw == "" {
		raw = strings.TrimSpace(sess.ClientReferenceID)
	}
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeGateway, "checkout session has no order reference")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "invalid order reference on checkout session")
	}
	return id, nil
}

// redirectURL fills {ORDER_ID} in base, or appends success and orderId
// query parameters when the template has no placeholder.
func redirectURL(base, orderID string, success bool) string {
	if strings.Contains(base, orderIDToken) {
		return strings.ReplaceAll(base, orderIDToken, orderID)
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("success", fmt.Sprintf("%t", success))
	q.Set("orderId", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}

// AmountLabel formats cents for log lines.
func AmountLabel(cents int64, currency string) string {
	return fmt.Sprintf("%s %s", money.Format(cents), strings.ToUpper(currency))
}
