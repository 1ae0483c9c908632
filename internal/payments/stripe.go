package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// DefaultStripeTestPaymentMethod is charged when the request carries no token. It only works with
// test-mode keys.
const DefaultStripeTestPaymentMethod = "pm_card_visa"

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeConfig configures StripeProvider.
type StripeConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    func(ctx context.Context, event string, fields map[string]any)
	intents   stripePaymentIntentAPI
}

// StripeProvider charges through confirmed PaymentIntents.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	account string
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewStripeProvider builds the provider from an API key.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	intents := cfg.intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{intents: intents, account: strings.TrimSpace(cfg.AccountID), logger: logger}, nil
}

// Charge implements Provider. Card errors are reported as DeclineError.
func (p *StripeProvider) Charge(ctx context.Context, req ChargeRequest) (Charge, error) {
	token := strings.TrimSpace(req.PaymentMethodToken)
	if token == "" {
		token = DefaultStripeTestPaymentMethod
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(token),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("method", string(req.Method))
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			code := string(stripeErr.DeclineCode)
			if code == "" {
				code = string(stripeErr.Code)
			}
			return Charge{}, &DeclineError{Code: code, Message: stripeErr.Msg}
		}
		return Charge{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		status = StatusFailed
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"status":        string(intent.Status),
		"orderId":       req.OrderID,
	})
	return Charge{
		ID:        intent.ID,
		Provider:  "stripe",
		Status:    status,
		Amount:    intent.Amount,
		Currency:  strings.ToUpper(string(intent.Currency)),
		CreatedAt: time.Unix(intent.Created, 0).UTC(),
	}, nil
}
