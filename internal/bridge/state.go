package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rekakarya/orderflow/internal/domain"
)

// Storage keys of the order flow.
const (
	KeySelectedDomain      = "selectedDomain"
	KeySelectedTemplate    = "selectedTemplate"
	KeyPersonalInfo        = "personalInfo"
	KeyPendingPayment      = "pendingPayment"
	KeyCurrentStep         = "currentStep"
	KeyDomainSearchTerm    = "domainSearchTerm"
	KeyDomainSearchResults = "domainSearchResults"
)

var (
	durableKeys = []string{KeySelectedDomain, KeySelectedTemplate, KeyPersonalInfo, KeyPendingPayment, KeyCurrentStep}
	sessionKeys = []string{KeyDomainSearchTerm, KeyDomainSearchResults}
)

// OrderStates offers typed access to the order data of a visitor.
type OrderStates struct {
	bridge *Bridge
}

// NewOrderStates wraps b.
func NewOrderStates(b *Bridge) (*OrderStates, error) {
	if b == nil {
		return nil, errors.New("order states: bridge is required")
	}
	return &OrderStates{bridge: b}, nil
}

// Ping checks the backing store.
func (s *OrderStates) Ping(ctx context.Context) error {
	return s.bridge.Ping(ctx)
}

func durable(visitor, name string) Key {
	return Key{Scope: ScopeDurable, Namespace: visitor, Name: name}
}

func session(visitor, name string) Key {
	return Key{Scope: ScopeSession, Namespace: visitor, Name: name}
}

// loadOptional decodes key into dst. Missing and corrupt values report false; corrupt values are
// removed so they are not decoded again.
func (s *OrderStates) loadOptional(ctx context.Context, key Key, dst any) (bool, error) {
	err := s.bridge.Load(ctx, key, dst)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	case errors.Is(err, ErrCorruptValue):
		if delErr := s.bridge.Delete(ctx, key); delErr != nil {
			return false, delErr
		}
		return false, nil
	default:
		return false, err
	}
}

// Load assembles the visitor's order state. A visitor without data is at the domain step.
func (s *OrderStates) Load(ctx context.Context, visitor string) (domain.OrderState, error) {
	state := domain.OrderState{Step: domain.StepDomain}

	var rawStep string
	ok, err := s.loadOptional(ctx, durable(visitor, KeyCurrentStep), &rawStep)
	if err != nil {
		return domain.OrderState{}, err
	}
	if ok {
		state.Step, _ = domain.ParseStep(rawStep)
	}

	var candidate domain.DomainCandidate
	if ok, err = s.loadOptional(ctx, durable(visitor, KeySelectedDomain), &candidate); err != nil {
		return domain.OrderState{}, err
	} else if ok {
		state.SelectedDomain = &candidate
	}

	var template domain.TemplateOption
	if ok, err = s.loadOptional(ctx, durable(visitor, KeySelectedTemplate), &template); err != nil {
		return domain.OrderState{}, err
	} else if ok {
		state.SelectedTemplate = &template
	}

	var info domain.PersonalInfo
	if ok, err = s.loadOptional(ctx, durable(visitor, KeyPersonalInfo), &info); err != nil {
		return domain.OrderState{}, err
	} else if ok {
		state.PersonalInfo = &info
	}

	var attempt domain.PaymentAttempt
	if ok, err = s.loadOptional(ctx, durable(visitor, KeyPendingPayment), &attempt); err != nil {
		return domain.OrderState{}, err
	} else if ok {
		state.PendingPayment = &attempt
	}

	return state, nil
}

// SaveStep records the current wizard step.
func (s *OrderStates) SaveStep(ctx context.Context, visitor string, step domain.Step) error {
	if step.Index() < 0 {
		return fmt.Errorf("%w: step %q", ErrInvalidKey, step)
	}
	return s.bridge.Save(ctx, durable(visitor, KeyCurrentStep), string(step))
}

// SaveDomain stores the selected domain.
func (s *OrderStates) SaveDomain(ctx context.Context, visitor string, candidate domain.DomainCandidate) error {
	return s.bridge.Save(ctx, durable(visitor, KeySelectedDomain), candidate)
}

// SaveTemplate stores the selected template.
func (s *OrderStates) SaveTemplate(ctx context.Context, visitor string, template domain.TemplateOption) error {
	return s.bridge.Save(ctx, durable(visitor, KeySelectedTemplate), template)
}

// SavePersonalInfo stores the validated personal info.
func (s *OrderStates) SavePersonalInfo(ctx context.Context, visitor string, info domain.PersonalInfo) error {
	return s.bridge.Save(ctx, durable(visitor, KeyPersonalInfo), info)
}

// SavePendingPayment writes the in-flight payment marker.
func (s *OrderStates) SavePendingPayment(ctx context.Context, visitor string, attempt domain.PaymentAttempt) error {
	return s.bridge.Save(ctx, durable(visitor, KeyPendingPayment), attempt)
}

// ClearPendingPayment removes the in-flight payment marker.
func (s *OrderStates) ClearPendingPayment(ctx context.Context, visitor string) error {
	return s.bridge.Delete(ctx, durable(visitor, KeyPendingPayment))
}

// RememberSearchTerm stores the single-use search hint.
func (s *OrderStates) RememberSearchTerm(ctx context.Context, visitor, term string) error {
	return s.bridge.Save(ctx, session(visitor, KeyDomainSearchTerm), strings.TrimSpace(term))
}

// TakeSearchTerm consumes the search hint. The second value is false when none was stored.
func (s *OrderStates) TakeSearchTerm(ctx context.Context, visitor string) (string, bool, error) {
	var term string
	err := s.bridge.Take(ctx, session(visitor, KeyDomainSearchTerm), &term)
	switch {
	case err == nil:
		return term, term != "", nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorruptValue):
		return "", false, nil
	default:
		return "", false, err
	}
}

// SaveSearchResults stores the last unfiltered search results.
func (s *OrderStates) SaveSearchResults(ctx context.Context, visitor string, results []domain.DomainCandidate) error {
	return s.bridge.Save(ctx, session(visitor, KeyDomainSearchResults), results)
}

// SearchResults returns the last stored search results.
func (s *OrderStates) SearchResults(ctx context.Context, visitor string) ([]domain.DomainCandidate, bool, error) {
	var results []domain.DomainCandidate
	ok, err := s.loadOptional(ctx, session(visitor, KeyDomainSearchResults), &results)
	if err != nil || !ok {
		return nil, false, err
	}
	return results, true, nil
}

// Clear deletes every key the order flow writes for visitor.
func (s *OrderStates) Clear(ctx context.Context, visitor string) error {
	return s.bridge.Delete(ctx, OrderKeys(visitor)...)
}

// OrderKeys lists the keys written for a visitor, durable scope first.
func OrderKeys(visitor string) []Key {
	keys := make([]Key, 0, len(durableKeys)+len(sessionKeys))
	for _, name := range durableKeys {
		keys = append(keys, durable(visitor, name))
	}
	for _, name := range sessionKeys {
		keys = append(keys, session(visitor, name))
	}
	return keys
}
