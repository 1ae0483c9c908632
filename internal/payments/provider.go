// Package payments charges completed orders through a payment service provider.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rekakarya/orderflow/internal/domain"
)

// Status is the normalised outcome of a charge.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

var (
	// ErrUnsupportedProvider is returned when no provider matches the request.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrDeclined is wrapped by DeclineError.
	ErrDeclined = errors.New("payments: declined")
)

// DeclineError carries the provider's reason for refusing a charge.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payments: declined (%s)", e.Code)
	}
	return fmt.Sprintf("payments: declined (%s): %s", e.Code, e.Message)
}

// Unwrap lets errors.Is match ErrDeclined.
func (e *DeclineError) Unwrap() error { return ErrDeclined }

// ChargeRequest describes a one-off charge. Amount is in minor units.
type ChargeRequest struct {
	OrderID        string
	Amount         int64
	Currency       string
	Method         domain.PaymentMethod
	CardLast4      string
	CardholderName string
	Email          string
	Description    string
	// PaymentMethodToken is a provider token for the instrument (e.g. a Stripe pm_ id).
	PaymentMethodToken string
	IdempotencyKey     string
	Metadata           map[string]string
}

// Charge is the provider's record of a charge.
type Charge struct {
	ID        string
	Provider  string
	Status    Status
	Amount    int64
	Currency  string
	CreatedAt time.Time
}

// Provider is implemented by PSP adapters.
type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (Charge, error)
}

// Manager routes charges to providers by payment method, falling back to a default.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	methodRoutes    map[domain.PaymentMethod]string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider selects the provider used when no route matches.
func WithDefaultProvider(name string) ManagerOption {
	return func(m *Manager) { m.defaultProvider = strings.ToLower(strings.TrimSpace(name)) }
}

// WithMethodRoutes maps payment methods to provider names.
func WithMethodRoutes(routes map[domain.PaymentMethod]string) ManagerOption {
	return func(m *Manager) {
		for method, name := range routes {
			m.methodRoutes[method] = strings.ToLower(strings.TrimSpace(name))
		}
	}
}

// NewManager registers providers by name.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{
		providers:    make(map[string]Provider, len(providers)),
		methodRoutes: make(map[domain.PaymentMethod]string),
	}
	for name, p := range providers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || p == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", name)
		}
		m.providers[key] = p
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolve(method domain.PaymentMethod) (string, Provider, error) {
	if name, ok := m.methodRoutes[method]; ok {
		if p, ok := m.providers[name]; ok {
			return name, p, nil
		}
	}
	if p, ok := m.providers[m.defaultProvider]; ok {
		return m.defaultProvider, p, nil
	}
	if len(m.providers) == 1 {
		for name, p := range m.providers {
			return name, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// Charge delegates to the provider resolved for req.Method.
func (m *Manager) Charge(ctx context.Context, req ChargeRequest) (Charge, error) {
	name, p, err := m.resolve(req.Method)
	if err != nil {
		return Charge{}, err
	}
	charge, err := p.Charge(ctx, req)
	if err != nil {
		return Charge{}, err
	}
	if charge.Provider == "" {
		charge.Provider = name
	}
	return charge, nil
}
