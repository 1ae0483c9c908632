package payments

import (
	"context"
	"crypto/rand"
	mrand "math/rand/v2"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Card suffixes that always decline, mirroring common PSP test cards.
var simulatedDeclines = map[string]string{
	"0002": "card_declined",
	"9995": "insufficient_funds",
	"0069": "expired_card",
}

// SimulatedProvider approves charges locally. DeclineRate in [0,1] rejects a random share of them.
type SimulatedProvider struct {
	DeclineRate float64
	Float64     func() float64
	Clock       func() time.Time
}

// NewSimulatedProvider returns a provider declining the given share of charges.
func NewSimulatedProvider(declineRate float64) *SimulatedProvider {
	return &SimulatedProvider{DeclineRate: declineRate}
}

// Charge implements Provider.
func (p *SimulatedProvider) Charge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if err := ctx.Err(); err != nil {
		return Charge{}, err
	}
	if code, ok := simulatedDeclines[strings.TrimSpace(req.CardLast4)]; ok {
		return Charge{}, &DeclineError{Code: code, Message: "Your card was declined."}
	}
	draw := p.Float64
	if draw == nil {
		draw = mrand.Float64
	}
	if p.DeclineRate > 0 && draw() < p.DeclineRate {
		return Charge{}, &DeclineError{Code: "generic_decline", Message: "The payment could not be completed."}
	}
	now := time.Now
	if p.Clock != nil {
		now = p.Clock
	}
	created := now().UTC()
	return Charge{
		ID:        "sim_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(created), rand.Reader).String()),
		Provider:  "simulated",
		Status:    StatusSucceeded,
		Amount:    req.Amount,
		Currency:  strings.ToUpper(req.Currency),
		CreatedAt: created,
	}, nil
}
