package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	SecretKey      string
	PublishableKey string
	Backends       *stripe.Backends
	Logger         ManagerLogger

	intents stripePaymentIntentAPI
}

// StripeProvider creates PaymentIntents for card gateway orders.
type StripeProvider struct {
	intents        stripePaymentIntentAPI
	publishableKey string
	logger         ManagerLogger
}

// NewStripeProvider builds a provider from the secret API key.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	intents := cfg.intents
	if intents == nil {
		key := strings.TrimSpace(cfg.SecretKey)
		if key == "" {
			return nil, errors.New("stripe: secret key is required")
		}
		intents = client.New(key, cfg.Backends).PaymentIntents
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{
		intents:        intents,
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
		logger:         logger,
	}, nil
}

func (p *StripeProvider) ClientKey() string { return p.publishableKey }

// CreateTransaction creates a PaymentIntent for the minor-unit amount.
func (p *StripeProvider) CreateTransaction(ctx context.Context, req TransactionRequest) (Transaction, error) {
	if req.Amount < 0 {
		return Transaction{}, fmt.Errorf("stripe: negative amount %d", req.Amount)
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	params.AddMetadata("order_id", req.OrderID)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			p.logger(ctx, "payments.stripe.intent.error", map[string]any{
				"orderId": req.OrderID,
				"code":    string(stripeErr.Code),
				"status":  stripeErr.HTTPStatusCode,
			})
		}
		return Transaction{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	if intent == nil || intent.ID == "" {
		return Transaction{}, errors.New("stripe: payment intent response missing id")
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"orderId":  req.OrderID,
		"intentId": intent.ID,
		"status":   string(intent.Status),
	})
	return Transaction{Reference: intent.ID, ClientSecret: intent.ClientSecret}, nil
}
