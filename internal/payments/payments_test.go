package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"

	"github.com/rekakarya/orderflow/internal/domain"
)

type fakeProvider struct {
	calls int
	err   error
}

func (f *fakeProvider) Charge(_ context.Context, req ChargeRequest) (Charge, error) {
	f.calls++
	if f.err != nil {
		return Charge{}, f.err
	}
	return Charge{ID: "ch_1", Status: StatusSucceeded, Amount: req.Amount}, nil
}

func TestManagerRoutesByMethod(t *testing.T) {
	stripeFake := &fakeProvider{}
	simulated := &fakeProvider{}
	mgr, err := NewManager(map[string]Provider{"stripe": stripeFake, "simulated": simulated},
		WithDefaultProvider("simulated"),
		WithMethodRoutes(map[domain.PaymentMethod]string{domain.PaymentMethodCard: "stripe"}))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	charge, err := mgr.Charge(context.Background(), ChargeRequest{Method: domain.PaymentMethodCard, Amount: 6710})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if charge.Provider != "stripe" || stripeFake.calls != 1 {
		t.Fatalf("expected stripe routing, got %q", charge.Provider)
	}
	if _, err := mgr.Charge(context.Background(), ChargeRequest{Method: domain.PaymentMethodBank}); err != nil {
		t.Fatalf("Charge bank: %v", err)
	}
	if simulated.calls != 1 {
		t.Fatalf("expected default provider for bank transfers")
	}
}

func TestManagerWithoutMatchingProvider(t *testing.T) {
	mgr, _ := NewManager(map[string]Provider{"a": &fakeProvider{}, "b": &fakeProvider{}})
	if _, err := mgr.Charge(context.Background(), ChargeRequest{}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error for empty provider map")
	}
}

func TestSimulatedProvider(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := &SimulatedProvider{Clock: func() time.Time { return created }}

	charge, err := p.Charge(context.Background(), ChargeRequest{Amount: 6710, Currency: "usd", CardLast4: "4242"})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if charge.Status != StatusSucceeded || charge.Currency != "USD" || charge.Amount != 6710 || !charge.CreatedAt.Equal(created) {
		t.Fatalf("unexpected charge %+v", charge)
	}

	_, err = p.Charge(context.Background(), ChargeRequest{CardLast4: "0002"})
	var decline *DeclineError
	if !errors.As(err, &decline) || decline.Code != "card_declined" || !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected card decline, got %v", err)
	}

	p.DeclineRate = 0.5
	p.Float64 = func() float64 { return 0.1 }
	if _, err := p.Charge(context.Background(), ChargeRequest{CardLast4: "4242"}); !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected random decline, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Charge(ctx, ChargeRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

type fakeIntents struct {
	params *stripe.PaymentIntentParams
	intent *stripe.PaymentIntent
	err    error
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.params = params
	return f.intent, f.err
}

func TestStripeProviderCharge(t *testing.T) {
	intents := &fakeIntents{intent: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded, Amount: 6710, Currency: "usd", Created: 1714521600}}
	p, err := NewStripeProvider(StripeConfig{intents: intents})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	charge, err := p.Charge(context.Background(), ChargeRequest{OrderID: "ord_1", Amount: 6710, Currency: "USD", Method: domain.PaymentMethodCard, IdempotencyKey: "ord_1"})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if charge.ID != "pi_1" || charge.Status != StatusSucceeded || charge.Currency != "USD" {
		t.Fatalf("unexpected charge %+v", charge)
	}
	if got := stripe.StringValue(intents.params.Currency); got != "usd" {
		t.Fatalf("currency = %q", got)
	}
	if got := stripe.StringValue(intents.params.PaymentMethod); got != DefaultStripeTestPaymentMethod {
		t.Fatalf("payment method = %q", got)
	}
	if intents.params.Metadata["order_id"] != "ord_1" {
		t.Fatalf("missing order metadata: %v", intents.params.Metadata)
	}
}

func TestStripeProviderMapsCardErrors(t *testing.T) {
	intents := &fakeIntents{err: &stripe.Error{Type: stripe.ErrorTypeCard, DeclineCode: "insufficient_funds", Msg: "Your card has insufficient funds."}}
	p, _ := NewStripeProvider(StripeConfig{intents: intents})

	_, err := p.Charge(context.Background(), ChargeRequest{Amount: 100, Currency: "USD"})
	var decline *DeclineError
	if !errors.As(err, &decline) || decline.Code != "insufficient_funds" {
		t.Fatalf("expected decline, got %v", err)
	}

	intents.err = &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "boom"}
	if _, err := p.Charge(context.Background(), ChargeRequest{}); err == nil || errors.Is(err, ErrDeclined) {
		t.Fatalf("expected non-decline error, got %v", err)
	}
}

func TestNewStripeProviderRequiresKey(t *testing.T) {
	if _, err := NewStripeProvider(StripeConfig{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
