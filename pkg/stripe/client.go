package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// keyPrefixes lists the secret and restricted key prefixes each mode accepts.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook secret is required")
)

// Client opens and reads Checkout Sessions with its own key instead of the
// package-level stripe.Key, and carries the redirect targets and the webhook
// signing secret.
type Client struct {
	sessions      session.Client
	signingSecret string
	successURL    string
	cancelURL     string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, errAPIKeyRequired
	case secret == "":
		return nil, errSecretRequired
	}
	mode := cfg.Environment()
	if err := checkKeyMode(mode, apiKey); err != nil {
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", mode), "stripe client initialized")
	}
	return &Client{
		sessions:      session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: apiKey},
		signingSecret: secret,
		successURL:    strings.TrimSpace(cfg.SuccessURL),
		cancelURL:     strings.TrimSpace(cfg.CancelURL),
	}, nil
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func (c *Client) SuccessURL() string {
	if c == nil {
		return ""
	}
	return c.successURL
}

func (c *Client) CancelURL() string {
	if c == nil {
		return ""
	}
	return c.cancelURL
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params == nil {
		return nil, errors.New("checkout session params are required")
	}
	params.Context = ctx
	return c.sessions.New(params)
}

// GetCheckoutSession re-reads a session; the payment status on a fresh read
// is what the reconcile job and the verify endpoint trust.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("checkout session id is required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return c.sessions.Get(id, params)
}

// checkKeyMode refuses a live key in test mode and the reverse.
func checkKeyMode(mode, key string) error {
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return fmt.Errorf("stripe mode must be test or live, got %q", mode)
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return fmt.Errorf("stripe %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
}
