package wizard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rekakarya/orderflow/internal/bridge"
	"github.com/rekakarya/orderflow/internal/catalog"
	"github.com/rekakarya/orderflow/internal/domain"
	"github.com/rekakarya/orderflow/internal/domains"
	"github.com/rekakarya/orderflow/internal/events"
	"github.com/rekakarya/orderflow/internal/payments"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// blockingSleep waits for cancellation while block is set.
type blockingSleep struct {
	block atomic.Bool
}

func (b *blockingSleep) Sleep(ctx context.Context, _ time.Duration) error {
	if b.block.Load() {
		<-ctx.Done()
	}
	return ctx.Err()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderCompleted
}

func (p *recordingPublisher) PublishOrderCompleted(_ context.Context, event events.OrderCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	steps    []string
	failures []string
	orders   int
}

func (m *recordingMetrics) DomainCheck(string, string) {}

func (m *recordingMetrics) StepChanged(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, from+">"+to)
}

func (m *recordingMetrics) OrderCompleted(string, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders++
}

func (m *recordingMetrics) PaymentFailed(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, reason)
}

type chargeRecorder struct {
	mu       sync.Mutex
	requests []payments.ChargeRequest
	provider payments.Provider
}

func (c *chargeRecorder) Charge(ctx context.Context, req payments.ChargeRequest) (payments.Charge, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return c.provider.Charge(ctx, req)
}

type harness struct {
	controller *Controller
	store      *bridge.MemoryStore
	charges    *chargeRecorder
	publisher  *recordingPublisher
	metrics    *recordingMetrics
}

type harnessOption func(*Deps)

func newHarness(t *testing.T, availability float64, opts ...harnessOption) harness {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	search := domains.NewSimulator(domains.SearchProfile(), domains.WithRand(constRand(availability)), domains.WithSleep(noSleep))
	quick := domains.NewSimulator(domains.QuickProfile(), domains.WithRand(constRand(availability)), domains.WithSleep(noSleep))
	searcher, err := domains.NewSearcher(cat, search, quick)
	require.NoError(t, err)

	store := bridge.NewMemoryStore(nil)
	b, err := bridge.New(store)
	require.NoError(t, err)
	states, err := bridge.NewOrderStates(b)
	require.NoError(t, err)

	simulated := payments.NewSimulatedProvider(0)
	simulated.Clock = func() time.Time { return testNow }
	charges := &chargeRecorder{provider: simulated}
	publisher := &recordingPublisher{}
	metrics := &recordingMetrics{}

	deps := Deps{
		States:   states,
		Searcher: searcher,
		Catalog:  cat,
		Payments: charges,
		Events:   publisher,
		Metrics:  metrics,
		Clock:    func() time.Time { return testNow },
		Sleep:    noSleep,
		OrderIDs: func() string { return "01HXORDER" },
		TaxRate:  decimal.RequireFromString("0.10"),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	controller, err := New(deps)
	require.NoError(t, err)
	return harness{controller: controller, store: store, charges: charges, publisher: publisher, metrics: metrics}
}

func validPersonalInfo() domain.PersonalInfo {
	return domain.PersonalInfo{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "Ada@Example.com",
		Phone:           "555-0100",
		Address:         "1 Analytical Way",
		City:            "Springfield",
		State:           "IL",
		ZipCode:         "62701",
		AcceptedTerms:   true,
		AcceptedPrivacy: true,
	}
}

func cardDetails(number string) domain.PaymentDetails {
	return domain.PaymentDetails{
		Method:         domain.PaymentMethodCard,
		CardNumber:     number,
		Expiry:         "1230",
		CVV:            "123",
		CardholderName: "Ada Lovelace",
		AgreedToTerms:  true,
	}
}

// advanceToPayment walks visitor to the payment step with example.com and the first template.
func advanceToPayment(t *testing.T, c *Controller, visitor string) {
	t.Helper()
	ctx := context.Background()

	_, err := c.SearchDomains(ctx, visitor, "Example.com", "")
	require.NoError(t, err)
	_, err = c.SelectDomain(ctx, visitor, DomainSelection{Name: "example", Suffix: "com"})
	require.NoError(t, err)
	_, err = c.Continue(ctx, visitor)
	require.NoError(t, err)
	_, err = c.ChooseTemplate(ctx, visitor, 1)
	require.NoError(t, err)
	_, err = c.Continue(ctx, visitor)
	require.NoError(t, err)
	view, err := c.SubmitPersonalInfo(ctx, visitor, validPersonalInfo())
	require.NoError(t, err)
	require.Equal(t, domain.StepPayment, view.Step)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestCompleteOrder(t *testing.T) {
	h := newHarness(t, 0.5)
	c := h.controller
	ctx := context.Background()
	visitor := "visitor-1"

	view, err := c.View(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, domain.StepDomain, view.Step)
	assert.Equal(t, 25, view.Progress)
	assert.Nil(t, view.Summary)
	assert.False(t, view.CanGoBack)

	advanceToPayment(t, c, visitor)

	view, err = c.View(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, 100, view.Progress)
	assert.Empty(t, view.Missing)
	require.NotNil(t, view.Summary)
	assert.Equal(t, "example.com", view.Summary.Domain)
	assert.Equal(t, "$61.00", view.Summary.Display.Subtotal)
	assert.Equal(t, "$6.10", view.Summary.Display.Tax)
	assert.Equal(t, "$67.10", view.Summary.Display.Total)
	assert.Equal(t, "ada@example.com", view.State.PersonalInfo.Email)
	assert.Equal(t, domain.DefaultCountry, view.State.PersonalInfo.Country)

	prefill, err := c.PaymentPrefill(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", prefill.CardholderName)
	assert.Equal(t, "Springfield", prefill.BillingAddress.City)

	receipt, err := c.SubmitPayment(ctx, visitor, cardDetails("4242424242424242"), "idem-1")
	require.NoError(t, err)
	assert.Equal(t, "01HXORDER", receipt.OrderID)
	assert.Equal(t, "simulated", receipt.Provider)
	assert.Equal(t, payments.StatusSucceeded, receipt.Status)
	assert.Equal(t, "$67.10", receipt.Display.Total)
	assert.True(t, receipt.Breakdown.Total.Equal(decimal.RequireFromString("67.10")))
	assert.Equal(t, "•••• 4242", receipt.Card)
	assert.Equal(t, "/", receipt.Redirect)
	assert.Equal(t, "3s", receipt.RedirectAfter)

	require.Len(t, h.charges.requests, 1)
	req := h.charges.requests[0]
	assert.Equal(t, int64(6710), req.Amount)
	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, "4242", req.CardLast4)
	assert.Equal(t, "idem-1", req.IdempotencyKey)

	require.Len(t, h.publisher.events, 1)
	event := h.publisher.events[0]
	assert.Equal(t, "example.com", event.Domain)
	assert.Equal(t, "67.10", event.Total)
	assert.Equal(t, "Ada Lovelace", event.Customer.Name)

	for _, key := range bridge.OrderKeys(visitor) {
		_, err := h.store.Get(ctx, key)
		assert.ErrorIs(t, err, bridge.ErrNotFound, key.String())
	}
	assert.Equal(t, 0, h.store.Len())

	view, err = c.View(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, domain.StepDomain, view.Step)
	assert.True(t, view.State.Empty())

	assert.Equal(t, 1, h.metrics.orders)
	assert.Equal(t, []string{"domain>template", "template>personal-info", "personal-info>payment", "payment>completed"}, h.metrics.steps)
}

func TestStepGuards(t *testing.T) {
	h := newHarness(t, 0.5)
	c := h.controller
	ctx := context.Background()
	visitor := "visitor-guards"

	_, err := c.ChooseTemplate(ctx, visitor, 1)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, domain.StepDomain, stepErr.Current)
	assert.ErrorIs(t, err, ErrStepOutOfOrder)

	_, err = c.Continue(ctx, visitor)
	var preErr *PrerequisiteError
	require.ErrorAs(t, err, &preErr)
	assert.Equal(t, domain.StepTemplate, preErr.Step)
	assert.Equal(t, []string{bridge.KeySelectedDomain}, preErr.Missing)

	_, err = c.Back(ctx, visitor)
	assert.ErrorIs(t, err, ErrStepOutOfOrder)

	_, err = c.SelectDomain(ctx, visitor, DomainSelection{Name: "example", Suffix: ".com"})
	assert.ErrorIs(t, err, ErrUnknownDomain, "no search has run yet")

	_, err = c.SearchDomains(ctx, visitor, "example", "")
	require.NoError(t, err)
	_, err = c.SelectDomain(ctx, visitor, DomainSelection{Name: "other", Suffix: ".com"})
	assert.ErrorIs(t, err, ErrUnknownDomain)

	_, err = c.SubmitPayment(ctx, visitor, cardDetails("4242424242424242"), "")
	assert.ErrorIs(t, err, ErrStepOutOfOrder)

	_, err = c.SelectDomain(ctx, visitor, DomainSelection{Name: "example", Suffix: ".com"})
	require.NoError(t, err)
	view, err := c.Continue(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, domain.StepTemplate, view.Step)
	assert.False(t, view.CanContinue)
	assert.Empty(t, view.Missing)

	_, err = c.ChooseTemplate(ctx, visitor, 999)
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	_, err = c.Continue(ctx, visitor)
	require.ErrorAs(t, err, &preErr)
	assert.Equal(t, []string{bridge.KeySelectedTemplate}, preErr.Missing)

	_, err = c.View(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidVisitor)
}

func TestContinueNeverCompletesOrder(t *testing.T) {
	h := newHarness(t, 0.5)
	advanceToPayment(t, h.controller, "v")

	_, err := h.controller.Continue(context.Background(), "v")
	assert.ErrorIs(t, err, ErrStepPrerequisite)
	assert.Empty(t, h.charges.requests)
}

func TestViewReportsMissingPrerequisitesSoftly(t *testing.T) {
	h := newHarness(t, 0.5)
	ctx := context.Background()
	states := h.controller.states
	require.NoError(t, states.SaveStep(ctx, "v", domain.StepPayment))

	view, err := h.controller.View(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, domain.StepPayment, view.Step)
	assert.Equal(t, []string{bridge.KeySelectedDomain, bridge.KeySelectedTemplate, bridge.KeyPersonalInfo}, view.Missing)

	_, err = h.controller.SubmitPayment(ctx, "v", cardDetails("4242424242424242"), "")
	assert.ErrorIs(t, err, ErrStepPrerequisite)
}

func TestSelectDomainRejectsUnavailable(t *testing.T) {
	h := newHarness(t, 0.9)
	ctx := context.Background()

	result, err := h.controller.SearchDomains(ctx, "v", "taken", "")
	require.NoError(t, err)
	for _, candidate := range result.Candidates {
		assert.False(t, candidate.Available)
	}

	_, err = h.controller.SelectDomain(ctx, "v", DomainSelection{Name: "taken", Suffix: ".com"})
	assert.ErrorIs(t, err, ErrDomainUnavailable)

	state, err := h.controller.states.Load(ctx, "v")
	require.NoError(t, err)
	assert.Nil(t, state.SelectedDomain)
}

func TestSearchDomainsHintAndCategory(t *testing.T) {
	h := newHarness(t, 0.5)
	c := h.controller
	ctx := context.Background()

	require.NoError(t, c.RememberSearchTerm(ctx, "v", "  shop.io "))
	result, err := c.SearchDomains(ctx, "v", "", "Tech")
	require.NoError(t, err)
	assert.True(t, result.FromHint)
	assert.Equal(t, "shop.io", result.Term)
	require.NotEmpty(t, result.Candidates)
	for _, candidate := range result.Candidates {
		assert.Equal(t, "shop", candidate.Name)
		assert.Equal(t, "Tech", candidate.Category)
	}

	stored, ok, err := c.states.SearchResults(ctx, "v")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, stored, len(c.catalog.SuffixNames()), "stored results are unfiltered")

	_, err = c.SearchDomains(ctx, "v", "", "")
	assert.ErrorIs(t, err, domains.ErrEmptyQuery, "hint is consumed once")

	_, err = c.SearchDomains(ctx, "v", "shop", "Gardening")
	assert.ErrorIs(t, err, catalog.ErrUnknownCategory)

	assert.ErrorIs(t, c.RememberSearchTerm(ctx, "v", " "), domains.ErrEmptyQuery)
}

func TestSearchDomainsCancelsPreviousSearch(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	var calls atomic.Int32
	sleep := func(ctx context.Context, _ time.Duration) error {
		if calls.Add(1) == 1 {
			<-ctx.Done()
		}
		return ctx.Err()
	}
	search := domains.NewSimulator(domains.SearchProfile(), domains.WithRand(constRand(0.5)), domains.WithSleep(sleep))
	searcher, err := domains.NewSearcher(cat, search, nil)
	require.NoError(t, err)
	h := newHarness(t, 0.5, func(d *Deps) { d.Searcher = searcher })
	c := h.controller
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := c.SearchDomains(ctx, "v", "first", "")
		first <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	result, err := c.SearchDomains(ctx, "v", "second", "")
	require.NoError(t, err)
	assert.Equal(t, "second", result.Candidates[0].Name)

	select {
	case err := <-first:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("first search was not cancelled")
	}

	stored, _, err := c.states.SearchResults(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, "second", stored[0].Name)
}

func TestQuickCheckIsStateless(t *testing.T) {
	h := newHarness(t, 0.3)
	answers, err := h.controller.QuickCheck(context.Background(), "brand")
	require.NoError(t, err)
	assert.Len(t, answers, len(h.controller.catalog.QuickCheckSuffixes()))
	for _, answer := range answers {
		assert.True(t, answer.Available)
		require.NotNil(t, answer.Price)
	}
	assert.Equal(t, 0, h.store.Len())
}

func TestSubmitPersonalInfoValidation(t *testing.T) {
	h := newHarness(t, 0.5)
	c := h.controller
	ctx := context.Background()

	info := validPersonalInfo()
	info.Email = "not-an-email"
	res := c.ValidatePersonalInfo(info)
	assert.Equal(t, []string{"email"}, res.Fields())

	require.NoError(t, c.states.SaveDomain(ctx, "v", domain.DomainCandidate{Name: "a", Suffix: ".com", Available: true, Price: decimal.NewFromInt(12)}))
	require.NoError(t, c.states.SaveTemplate(ctx, "v", domain.TemplateOption{ID: 1, Name: "Starter", Price: decimal.NewFromInt(49)}))
	require.NoError(t, c.states.SaveStep(ctx, "v", domain.StepPersonalInfo))

	_, err := c.SubmitPersonalInfo(ctx, "v", info)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Email is invalid", vErr.Result.Message("email"))

	state, err := c.states.Load(ctx, "v")
	require.NoError(t, err)
	assert.Nil(t, state.PersonalInfo)
	assert.Equal(t, domain.StepPersonalInfo, state.Step)

	_, err = c.PaymentPrefill(ctx, "v")
	assert.ErrorIs(t, err, ErrStepPrerequisite)
}

func TestValidatePayment(t *testing.T) {
	h := newHarness(t, 0.5)
	c := h.controller

	assert.True(t, c.ValidatePayment(domain.PaymentDetails{Method: domain.PaymentMethodPayPal, AgreedToTerms: true}).Valid())
	assert.True(t, c.ValidatePayment(domain.PaymentDetails{Method: domain.PaymentMethodBank, AgreedToTerms: true}).Valid())

	res := c.ValidatePayment(domain.PaymentDetails{Method: domain.PaymentMethodCard, AgreedToTerms: true})
	assert.Equal(t, []string{"cardNumber", "cardholderName", "cvv", "expiry"}, res.Fields())
	assert.True(t, c.ValidatePayment(cardDetails("4242 4242 4242 4242")).Valid())
}

func TestSubmitPaymentValidationFailure(t *testing.T) {
	h := newHarness(t, 0.5)
	advanceToPayment(t, h.controller, "v")

	details := cardDetails("4242")
	details.AgreedToTerms = false
	_, err := h.controller.SubmitPayment(context.Background(), "v", details, "")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Result.Fields(), "cardNumber")
	assert.Contains(t, vErr.Result.Fields(), "agreedToTerms")
	assert.Empty(t, h.charges.requests)
}

func TestPaymentDeclineKeepsOrderState(t *testing.T) {
	h := newHarness(t, 0.5)
	c := h.controller
	ctx := context.Background()
	advanceToPayment(t, c, "v")

	_, err := c.SubmitPayment(ctx, "v", cardDetails("4000000000000002"), "")
	require.ErrorIs(t, err, ErrPaymentDeclined)
	var decline *payments.DeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "card_declined", decline.Code)

	state, err := c.states.Load(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, domain.StepPayment, state.Step)
	assert.Nil(t, state.PendingPayment)
	assert.NotNil(t, state.SelectedDomain)
	assert.NotNil(t, state.SelectedTemplate)
	assert.NotNil(t, state.PersonalInfo)
	assert.Empty(t, h.publisher.events)
	assert.Equal(t, []string{"declined"}, h.metrics.failures)

	receipt, err := c.SubmitPayment(ctx, "v", domain.PaymentDetails{Method: domain.PaymentMethodPayPal, AgreedToTerms: true}, "")
	require.NoError(t, err, "a retry with another method succeeds")
	assert.Empty(t, receipt.Card)
}

type failingProvider struct{}

func (failingProvider) Charge(context.Context, payments.ChargeRequest) (payments.Charge, error) {
	return payments.Charge{}, errors.New("psp unavailable")
}

func TestPaymentProviderFailure(t *testing.T) {
	h := newHarness(t, 0.5, func(d *Deps) { d.Payments = failingProvider{} })
	advanceToPayment(t, h.controller, "v")

	_, err := h.controller.SubmitPayment(context.Background(), "v", cardDetails("4242424242424242"), "")
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.NotErrorIs(t, err, ErrPaymentDeclined)
	assert.Equal(t, []string{"error"}, h.metrics.failures)
}

func TestSubmitPaymentRejectsConcurrentAttempt(t *testing.T) {
	h := newHarness(t, 0.5)
	c := h.controller
	ctx := context.Background()
	advanceToPayment(t, c, "v")

	require.NoError(t, c.states.SavePendingPayment(ctx, "v", domain.PaymentAttempt{ID: "p1", Method: domain.PaymentMethodCard, StartedAt: testNow}))
	_, err := c.SubmitPayment(ctx, "v", cardDetails("4242424242424242"), "")
	assert.ErrorIs(t, err, ErrPaymentInProgress)

	require.NoError(t, c.states.SavePendingPayment(ctx, "v", domain.PaymentAttempt{ID: "p0", Method: domain.PaymentMethodCard, StartedAt: testNow.Add(-time.Hour)}))
	_, err = c.SubmitPayment(ctx, "v", cardDetails("4242424242424242"), "")
	assert.NoError(t, err, "stale markers do not block")
}

func TestBackCancelsPayment(t *testing.T) {
	sleeper := &blockingSleep{}
	h := newHarness(t, 0.5, func(d *Deps) { d.Sleep = sleeper.Sleep })
	c := h.controller
	ctx := context.Background()
	advanceToPayment(t, c, "v")
	sleeper.block.Store(true)

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitPayment(ctx, "v", cardDetails("4242424242424242"), "")
		done <- err
	}()
	require.Eventually(t, func() bool {
		view, err := c.View(ctx, "v")
		return err == nil && view.Processing
	}, time.Second, time.Millisecond)

	view, err := c.Back(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, domain.StepPersonalInfo, view.Step)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("payment was not cancelled")
	}

	state, err := c.states.Load(ctx, "v")
	require.NoError(t, err)
	assert.Nil(t, state.PendingPayment)
	assert.NotNil(t, state.PersonalInfo)
	assert.Empty(t, h.charges.requests)
	assert.Equal(t, 0, c.tasks.running("v"))
}

func TestSubmitPersonalInfoHonoursRequestCancellation(t *testing.T) {
	sleeper := &blockingSleep{}
	h := newHarness(t, 0.5, func(d *Deps) { d.Sleep = sleeper.Sleep })
	c := h.controller
	ctx := context.Background()

	require.NoError(t, c.states.SaveDomain(ctx, "v", domain.DomainCandidate{Name: "a", Suffix: ".com", Available: true, Price: decimal.NewFromInt(12)}))
	require.NoError(t, c.states.SaveTemplate(ctx, "v", domain.TemplateOption{ID: 1, Name: "Starter", Price: decimal.NewFromInt(49)}))
	require.NoError(t, c.states.SaveStep(ctx, "v", domain.StepPersonalInfo))
	sleeper.block.Store(true)

	reqCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := c.SubmitPersonalInfo(reqCtx, "v", validPersonalInfo())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	state, err := c.states.Load(ctx, "v")
	require.NoError(t, err)
	assert.Nil(t, state.PersonalInfo, "nothing is written after cancellation")
	assert.Equal(t, domain.StepPersonalInfo, state.Step)
}

func TestSubmitPersonalInfoDoesNotWriteAfterInterruption(t *testing.T) {
	interrupts := map[string]func(c *Controller) error{
		"abandon": func(c *Controller) error { return c.Abandon(context.Background(), "v") },
		"back": func(c *Controller) error {
			view, err := c.Back(context.Background(), "v")
			if err == nil && view.Step != domain.StepTemplate {
				return errors.New("back answered " + string(view.Step))
			}
			return err
		},
	}
	for name, interrupt := range interrupts {
		t.Run(name, func(t *testing.T) {
			var c *Controller
			// The delay elapses just as the interrupting call completes.
			h := newHarness(t, 0.5, func(d *Deps) {
				d.Sleep = func(context.Context, time.Duration) error { return interrupt(c) }
			})
			c = h.controller
			ctx := context.Background()

			require.NoError(t, c.states.SaveDomain(ctx, "v", domain.DomainCandidate{Name: "a", Suffix: ".com", Available: true, Price: decimal.NewFromInt(12)}))
			require.NoError(t, c.states.SaveTemplate(ctx, "v", domain.TemplateOption{ID: 1, Name: "Starter", Price: decimal.NewFromInt(49)}))
			require.NoError(t, c.states.SaveStep(ctx, "v", domain.StepPersonalInfo))

			_, err := c.SubmitPersonalInfo(ctx, "v", validPersonalInfo())
			assert.ErrorIs(t, err, ErrCancelled)

			state, err := c.states.Load(ctx, "v")
			require.NoError(t, err)
			assert.Nil(t, state.PersonalInfo)
			assert.NotEqual(t, domain.StepPayment, state.Step)
			if name == "abandon" {
				assert.Equal(t, 0, h.store.Len())
			} else {
				assert.Equal(t, domain.StepTemplate, state.Step)
			}
		})
	}
}

func TestAbandonClearsState(t *testing.T) {
	h := newHarness(t, 0.5)
	c := h.controller
	ctx := context.Background()
	advanceToPayment(t, c, "v")
	require.NoError(t, c.RememberSearchTerm(ctx, "v", "again"))

	require.NoError(t, c.Abandon(ctx, "v"))
	assert.Equal(t, 0, h.store.Len())

	view, err := c.View(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, domain.StepDomain, view.Step)
}

func TestTaskRegistry(t *testing.T) {
	r := newTaskRegistry()
	ctx := context.Background()

	first, doneFirst := r.replace(ctx, "v", taskSearch)
	second, doneSecond := r.replace(ctx, "v", taskSearch)
	assert.ErrorIs(t, first.Err(), context.Canceled)
	assert.NoError(t, second.Err())

	_, _, ok := r.exclusive(ctx, "v", taskPayment)
	require.True(t, ok)
	_, _, ok = r.exclusive(ctx, "v", taskPayment)
	assert.False(t, ok)

	assert.Equal(t, 3, r.cancelAll("v"))
	assert.ErrorIs(t, second.Err(), context.Canceled)

	doneFirst()
	doneSecond()
	assert.Equal(t, 1, r.running("v"))
}

func TestTaskRegistryCommitSkipsCancelledTask(t *testing.T) {
	r := newTaskRegistry()
	taskCtx, done := r.replace(context.Background(), "v", taskSubmit)
	defer done()

	var writes int
	write := func() error { writes++; return nil }
	require.NoError(t, r.commit(taskCtx, "v", write))

	unlock := r.lock("v")
	r.cancelAll("v")
	unlock()
	assert.ErrorIs(t, r.commit(taskCtx, "v", write), context.Canceled)
	assert.Equal(t, 1, writes)
	assert.Empty(t, r.locks)
}
