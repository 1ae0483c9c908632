package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rekakarya/orderflow/internal/domain"
)

func newOrderStates(t *testing.T, store Store) *OrderStates {
	t.Helper()
	b, err := New(store)
	require.NoError(t, err)
	states, err := NewOrderStates(b)
	require.NoError(t, err)
	return states
}

func TestOrderStatesRoundTrip(t *testing.T) {
	states := newOrderStates(t, NewMemoryStore(nil))
	ctx := context.Background()

	state, err := states.Load(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepDomain, state.Step)
	assert.True(t, state.Empty())

	original := decimal.NewFromInt(12)
	candidate := domain.DomainCandidate{Name: "example", Suffix: ".com", Available: true, Price: decimal.NewFromInt(10), OriginalPrice: &original}
	template := domain.TemplateOption{ID: 3, Name: "Starter", Category: "Basic", Price: decimal.NewFromInt(49), Tags: []string{"basic"}}
	info := domain.PersonalInfo{FirstName: "Ada", LastName: "Lovelace", Country: "United States"}
	attempt := domain.PaymentAttempt{ID: "pay_1", Method: domain.PaymentMethodCard, Amount: decimal.RequireFromString("67.10"), Currency: "USD", StartedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, states.SaveDomain(ctx, "v1", candidate))
	require.NoError(t, states.SaveTemplate(ctx, "v1", template))
	require.NoError(t, states.SavePersonalInfo(ctx, "v1", info))
	require.NoError(t, states.SavePendingPayment(ctx, "v1", attempt))
	require.NoError(t, states.SaveStep(ctx, "v1", domain.StepPayment))

	state, err = states.Load(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepPayment, state.Step)
	require.NotNil(t, state.SelectedDomain)
	assert.Equal(t, "example.com", state.SelectedDomain.FQDN())
	assert.True(t, state.SelectedDomain.Discounted())
	require.NotNil(t, state.SelectedTemplate)
	assert.Equal(t, "Starter", state.SelectedTemplate.Name)
	assert.True(t, state.SelectedTemplate.Price.Equal(decimal.NewFromInt(49)))
	require.NotNil(t, state.PersonalInfo)
	assert.Equal(t, "Ada Lovelace", state.PersonalInfo.FullName())
	require.NotNil(t, state.PendingPayment)
	assert.True(t, state.PendingPayment.Amount.Equal(decimal.RequireFromString("67.1")))

	require.NoError(t, states.ClearPendingPayment(ctx, "v1"))
	state, err = states.Load(ctx, "v1")
	require.NoError(t, err)
	assert.Nil(t, state.PendingPayment)
	assert.NotNil(t, state.SelectedDomain)

	other, err := states.Load(ctx, "v2")
	require.NoError(t, err)
	assert.True(t, other.Empty(), "visitors are isolated")

	assert.Error(t, states.SaveStep(ctx, "v1", domain.Step("checkout")))
}

func TestOrderStatesSearchHint(t *testing.T) {
	store, _ := newRedisStore(t)
	states := newOrderStates(t, store)
	ctx := context.Background()

	_, ok, err := states.TakeSearchTerm(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, states.RememberSearchTerm(ctx, "v1", "  example  "))
	term, ok, err := states.TakeSearchTerm(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "example", term)

	_, ok, err = states.TakeSearchTerm(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, ok, "hint is consumed once")

	results := []domain.DomainCandidate{{Name: "example", Suffix: ".com", Available: true, Price: decimal.NewFromInt(12)}}
	require.NoError(t, states.SaveSearchResults(ctx, "v1", results))
	got, ok, err := states.SearchResults(ctx, "v1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.True(t, got[0].Price.Equal(decimal.NewFromInt(12)))
}

func TestOrderStatesClearRemovesEveryKey(t *testing.T) {
	store := NewMemoryStore(nil)
	states := newOrderStates(t, store)
	ctx := context.Background()

	require.NoError(t, states.SaveDomain(ctx, "v1", domain.DomainCandidate{Name: "a", Suffix: ".com"}))
	require.NoError(t, states.SaveTemplate(ctx, "v1", domain.TemplateOption{ID: 1}))
	require.NoError(t, states.SavePersonalInfo(ctx, "v1", domain.PersonalInfo{FirstName: "A"}))
	require.NoError(t, states.SavePendingPayment(ctx, "v1", domain.PaymentAttempt{ID: "p"}))
	require.NoError(t, states.SaveStep(ctx, "v1", domain.StepPayment))
	require.NoError(t, states.RememberSearchTerm(ctx, "v1", "a"))
	require.NoError(t, states.SaveSearchResults(ctx, "v1", nil))
	require.NoError(t, states.SaveStep(ctx, "v2", domain.StepTemplate))

	require.NoError(t, states.Clear(ctx, "v1"))

	for _, key := range OrderKeys("v1") {
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound, key.String())
	}
	assert.Equal(t, 1, store.Len(), "other visitors keep their data")
}

func TestOrderStatesDropsCorruptValues(t *testing.T) {
	store := NewMemoryStore(nil)
	states := newOrderStates(t, store)
	ctx := context.Background()

	key := Key{Scope: ScopeDurable, Namespace: "v1", Name: KeySelectedTemplate}
	require.NoError(t, store.Put(ctx, key, []byte(`"not a template"`), 0))
	require.NoError(t, store.Put(ctx, Key{Scope: ScopeDurable, Namespace: "v1", Name: KeyCurrentStep}, []byte(`"bogus"`), 0))

	state, err := states.Load(ctx, "v1")
	require.NoError(t, err)
	assert.Nil(t, state.SelectedTemplate)
	assert.Equal(t, domain.StepDomain, state.Step)

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}
