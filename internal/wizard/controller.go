// Package wizard drives the four step order flow over the persistence bridge.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/rekakarya/orderflow/internal/bridge"
	"github.com/rekakarya/orderflow/internal/catalog"
	"github.com/rekakarya/orderflow/internal/domain"
	"github.com/rekakarya/orderflow/internal/domains"
	"github.com/rekakarya/orderflow/internal/events"
	"github.com/rekakarya/orderflow/internal/payments"
	"github.com/rekakarya/orderflow/internal/pricing"
	"github.com/rekakarya/orderflow/internal/validation"
)

const (
	defaultCurrency      = "USD"
	defaultSubmitDelay   = 2 * time.Second
	defaultPaymentDelay  = 3 * time.Second
	defaultRedirectDelay = 3 * time.Second
	// A pending marker older than the processing delay plus this grace is treated as abandoned.
	stalePaymentGrace = time.Minute
	completedRedirect = "/"
)

// Charger abstracts payments.Manager.
type Charger interface {
	Charge(ctx context.Context, req payments.ChargeRequest) (payments.Charge, error)
}

// Metrics receives wizard counters. platform/metrics.Registry satisfies it.
type Metrics interface {
	DomainCheck(kind, outcome string)
	StepChanged(from, to string)
	OrderCompleted(method string, total float64)
	PaymentFailed(reason string)
}

type noopMetrics struct{}

func (noopMetrics) DomainCheck(string, string)     {}
func (noopMetrics) StepChanged(string, string)     {}
func (noopMetrics) OrderCompleted(string, float64) {}
func (noopMetrics) PaymentFailed(string)           {}

// Deps wires the controller.
type Deps struct {
	States   *bridge.OrderStates
	Searcher *domains.Searcher
	Catalog  *catalog.Catalog
	Payments Charger
	Events   events.Publisher
	Metrics  Metrics
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
	// Sleep awaits the simulated submit and processing delays.
	Sleep         domains.SleepFunc
	OrderIDs      func() string
	TaxRate       decimal.Decimal
	Currency      string
	SubmitDelay   time.Duration
	PaymentDelay  time.Duration
	RedirectDelay time.Duration
}

// Controller implements the wizard operations. It is safe for concurrent use.
type Controller struct {
	states        *bridge.OrderStates
	searcher      *domains.Searcher
	catalog       *catalog.Catalog
	payments      Charger
	events        events.Publisher
	metrics       Metrics
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
	sleep         domains.SleepFunc
	orderIDs      func() string
	calculator    pricing.Calculator
	currency      string
	submitDelay   time.Duration
	paymentDelay  time.Duration
	redirectDelay time.Duration
	tasks         *taskRegistry
}

// New constructs a Controller validating required dependencies.
func New(deps Deps) (*Controller, error) {
	if deps.States == nil {
		return nil, errors.New("wizard: order states are required")
	}
	if deps.Searcher == nil {
		return nil, errors.New("wizard: domain searcher is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("wizard: catalog is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("wizard: payments are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	publisher := deps.Events
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	var metrics Metrics = noopMetrics{}
	if deps.Metrics != nil {
		metrics = deps.Metrics
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = domains.Sleep
	}
	orderIDs := deps.OrderIDs
	if orderIDs == nil {
		orderIDs = func() string { return ulid.Make().String() }
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	return &Controller{
		states:   deps.States,
		searcher: deps.Searcher,
		catalog:  deps.Catalog,
		payments: deps.Payments,
		events:   publisher,
		metrics:  metrics,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:        logger,
		sleep:         sleep,
		orderIDs:      orderIDs,
		calculator:    pricing.NewCalculator(deps.TaxRate),
		currency:      currency,
		submitDelay:   durationOr(deps.SubmitDelay, defaultSubmitDelay),
		paymentDelay:  durationOr(deps.PaymentDelay, defaultPaymentDelay),
		redirectDelay: durationOr(deps.RedirectDelay, defaultRedirectDelay),
		tasks:         newTaskRegistry(),
	}, nil
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value < 0 {
		return 0
	}
	if value == 0 {
		return fallback
	}
	return value
}

// Summary is the order summary shown beside every step.
type Summary struct {
	Domain        string            `json:"domain,omitempty"`
	DomainPrice   decimal.Decimal   `json:"domainPrice"`
	Template      string            `json:"template,omitempty"`
	TemplatePrice decimal.Decimal   `json:"templatePrice"`
	Breakdown     pricing.Breakdown `json:"breakdown"`
	Display       pricing.Display   `json:"display"`
	Currency      string            `json:"currency"`
}

// View is the soft report of where the visitor stands.
type View struct {
	Step        domain.Step       `json:"step"`
	Progress    int               `json:"progress"`
	State       domain.OrderState `json:"state"`
	Summary     *Summary          `json:"summary,omitempty"`
	Missing     []string          `json:"missing,omitempty"`
	Processing  bool              `json:"processing"`
	CanContinue bool              `json:"canContinue"`
	CanGoBack   bool              `json:"canGoBack"`
}

// View returns the visitor's current step, state and pricing summary.
func (c *Controller) View(ctx context.Context, visitor string) (View, error) {
	if err := checkVisitor(visitor); err != nil {
		return View{}, err
	}
	state, err := c.states.Load(ctx, visitor)
	if err != nil {
		return View{}, fmt.Errorf("wizard: load state: %w", err)
	}
	return c.view(state), nil
}

func (c *Controller) view(state domain.OrderState) View {
	view := View{
		Step:       state.Step,
		Progress:   state.Step.Progress(),
		State:      state,
		Summary:    c.summary(state),
		Missing:    missingFor(state.Step, state),
		Processing: state.PendingPayment != nil,
	}
	if next, ok := state.Step.Next(); ok && next != domain.StepCompleted {
		view.CanContinue = len(missingFor(next, state)) == 0
	}
	_, view.CanGoBack = state.Step.Previous()
	return view
}

func (c *Controller) summary(state domain.OrderState) *Summary {
	if state.SelectedDomain == nil && state.SelectedTemplate == nil {
		return nil
	}
	s := &Summary{Currency: c.currency}
	if d := state.SelectedDomain; d != nil {
		s.Domain = d.FQDN()
		s.DomainPrice = d.Price
	}
	if t := state.SelectedTemplate; t != nil {
		s.Template = t.Name
		s.TemplatePrice = t.Price
	}
	s.Breakdown = c.calculator.Total(s.DomainPrice, s.TemplatePrice)
	s.Display = s.Breakdown.Display()
	return s
}

// missingFor lists the state a visitor needs before entering step.
func missingFor(step domain.Step, state domain.OrderState) []string {
	var missing []string
	idx := step.Index()
	if idx >= domain.StepTemplate.Index() && state.SelectedDomain == nil {
		missing = append(missing, bridge.KeySelectedDomain)
	}
	if idx >= domain.StepPersonalInfo.Index() && state.SelectedTemplate == nil {
		missing = append(missing, bridge.KeySelectedTemplate)
	}
	if idx >= domain.StepPayment.Index() {
		if state.PersonalInfo == nil || !validation.PersonalInfo(*state.PersonalInfo).Valid() {
			missing = append(missing, bridge.KeyPersonalInfo)
		}
	}
	return missing
}

// RememberSearchTerm stores the single-use hint handed over from the quick checker.
func (c *Controller) RememberSearchTerm(ctx context.Context, visitor, term string) error {
	if err := checkVisitor(visitor); err != nil {
		return err
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return domains.ErrEmptyQuery
	}
	if err := c.states.RememberSearchTerm(ctx, visitor, term); err != nil {
		return fmt.Errorf("wizard: remember search term: %w", err)
	}
	return nil
}

// SearchResult is the response of SearchDomains.
type SearchResult struct {
	Term       string                   `json:"term"`
	Category   string                   `json:"category"`
	FromHint   bool                     `json:"fromHint"`
	Candidates []domain.DomainCandidate `json:"candidates"`
}

// SearchDomains runs the simulated search for term. An empty term consumes the remembered hint.
// A newer search for the same visitor cancels this one.
func (c *Controller) SearchDomains(ctx context.Context, visitor, term, category string) (SearchResult, error) {
	if err := checkVisitor(visitor); err != nil {
		return SearchResult{}, err
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = catalog.AllCategories
	}
	if _, err := c.catalog.Suffixes(category); err != nil {
		return SearchResult{}, err
	}

	result := SearchResult{Term: strings.TrimSpace(term), Category: category}
	if result.Term == "" {
		hint, ok, err := c.states.TakeSearchTerm(ctx, visitor)
		if err != nil {
			return SearchResult{}, fmt.Errorf("wizard: take search term: %w", err)
		}
		if !ok {
			return SearchResult{}, domains.ErrEmptyQuery
		}
		result.Term = hint
		result.FromHint = true
	}

	taskCtx, done := c.tasks.replace(ctx, visitor, taskSearch)
	defer done()

	candidates, err := c.searcher.Search(taskCtx, domains.Query{Term: result.Term})
	if err != nil {
		if domains.IsCancelled(err) {
			c.metrics.DomainCheck("search", "cancelled")
			c.logger(ctx, "wizard.search_cancelled", map[string]any{"visitorID": visitor, "term": result.Term})
			return SearchResult{}, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		c.metrics.DomainCheck("search", "error")
		return SearchResult{}, err
	}
	err = c.tasks.commit(taskCtx, visitor, func() error {
		return c.states.SaveSearchResults(ctx, visitor, candidates)
	})
	if err != nil {
		if taskCtx.Err() != nil {
			c.metrics.DomainCheck("search", "cancelled")
			return SearchResult{}, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return SearchResult{}, fmt.Errorf("wizard: save search results: %w", err)
	}
	c.metrics.DomainCheck("search", "ok")

	result.Candidates = domains.FilterByCategory(candidates, category)
	return result, nil
}

// QuickCheck runs the landing page checker. It touches no visitor state.
func (c *Controller) QuickCheck(ctx context.Context, term string) ([]domains.QuickAnswer, error) {
	answers, err := c.searcher.QuickCheck(ctx, term)
	switch {
	case err == nil:
		c.metrics.DomainCheck("quick", "ok")
	case domains.IsCancelled(err):
		c.metrics.DomainCheck("quick", "cancelled")
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	default:
		c.metrics.DomainCheck("quick", "error")
		return nil, err
	}
	return answers, nil
}

// DomainSelection names a candidate from the last search.
type DomainSelection struct {
	Name   string `json:"name"`
	Suffix string `json:"suffix"`
}

// SelectDomain stores the chosen candidate. Only available candidates of the visitor's last
// search can be selected, and only at the domain step.
func (c *Controller) SelectDomain(ctx context.Context, visitor string, sel DomainSelection) (View, error) {
	state, err := c.loadAt(ctx, visitor, domain.StepDomain)
	if err != nil {
		return View{}, err
	}
	results, _, err := c.states.SearchResults(ctx, visitor)
	if err != nil {
		return View{}, fmt.Errorf("wizard: load search results: %w", err)
	}

	name := strings.ToLower(strings.TrimSpace(sel.Name))
	suffix := strings.ToLower(strings.TrimSpace(sel.Suffix))
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	var found *domain.DomainCandidate
	for i := range results {
		if results[i].Name == name && results[i].Suffix == suffix {
			found = &results[i]
			break
		}
	}
	if found == nil {
		return View{}, fmt.Errorf("%w: %s%s", ErrUnknownDomain, name, suffix)
	}
	if !found.Available {
		return View{}, fmt.Errorf("%w: %s", ErrDomainUnavailable, found.FQDN())
	}
	if found.Price.IsNegative() {
		return View{}, fmt.Errorf("%w: domain %s", ErrInvalidPrice, found.FQDN())
	}

	if err := c.states.SaveDomain(ctx, visitor, *found); err != nil {
		return View{}, fmt.Errorf("wizard: save domain: %w", err)
	}
	state.SelectedDomain = found
	c.logger(ctx, "wizard.domain_selected", map[string]any{"visitorID": visitor, "domain": found.FQDN()})
	return c.view(state), nil
}

// ChooseTemplate stores the catalogue template id at the template step.
func (c *Controller) ChooseTemplate(ctx context.Context, visitor string, templateID int) (View, error) {
	state, err := c.loadAt(ctx, visitor, domain.StepTemplate)
	if err != nil {
		return View{}, err
	}
	template, err := c.catalog.Template(templateID)
	if err != nil {
		if errors.Is(err, catalog.ErrTemplateNotFound) {
			return View{}, fmt.Errorf("%w: %d", ErrUnknownTemplate, templateID)
		}
		return View{}, err
	}
	if template.Price.IsNegative() {
		return View{}, fmt.Errorf("%w: template %d", ErrInvalidPrice, templateID)
	}
	if err := c.states.SaveTemplate(ctx, visitor, template); err != nil {
		return View{}, fmt.Errorf("wizard: save template: %w", err)
	}
	state.SelectedTemplate = &template
	return c.view(state), nil
}

// ValidatePersonalInfo normalises and checks info without storing it.
func (c *Controller) ValidatePersonalInfo(info domain.PersonalInfo) validation.Result {
	return validation.PersonalInfo(validation.NormalizePersonalInfo(info))
}

// ValidatePayment normalises and checks details without storing them.
func (c *Controller) ValidatePayment(details domain.PaymentDetails) validation.Result {
	return validation.Payment(validation.NormalizePayment(details))
}

// SubmitPersonalInfo validates info, waits out the saving delay, stores it and moves to payment.
func (c *Controller) SubmitPersonalInfo(ctx context.Context, visitor string, info domain.PersonalInfo) (View, error) {
	state, err := c.loadAt(ctx, visitor, domain.StepPersonalInfo)
	if err != nil {
		return View{}, err
	}
	if missing := missingFor(domain.StepPersonalInfo, state); len(missing) > 0 {
		return View{}, &PrerequisiteError{Step: domain.StepPersonalInfo, Missing: missing}
	}
	info = validation.NormalizePersonalInfo(info)
	if res := validation.PersonalInfo(info); !res.Valid() {
		return View{}, &ValidationError{Result: res}
	}

	taskCtx, done, ok := c.tasks.exclusive(ctx, visitor, taskSubmit)
	if !ok {
		return View{}, fmt.Errorf("%w: personal info is already being saved", ErrStepOutOfOrder)
	}
	defer done()
	if err := c.sleep(taskCtx, c.submitDelay); err != nil {
		c.logger(ctx, "wizard.submit_cancelled", map[string]any{"visitorID": visitor})
		return View{}, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	err = c.tasks.commit(taskCtx, visitor, func() error {
		if err := c.states.SavePersonalInfo(ctx, visitor, info); err != nil {
			return fmt.Errorf("wizard: save personal info: %w", err)
		}
		return c.moveTo(ctx, visitor, &state, domain.StepPayment)
	})
	if err != nil {
		if taskCtx.Err() != nil {
			c.logger(ctx, "wizard.submit_cancelled", map[string]any{"visitorID": visitor})
			return View{}, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return View{}, err
	}
	state.PersonalInfo = &info
	return c.view(state), nil
}

// PaymentPrefill derives the cardholder name and billing address from the stored personal info.
func (c *Controller) PaymentPrefill(ctx context.Context, visitor string) (domain.PaymentDetails, error) {
	if err := checkVisitor(visitor); err != nil {
		return domain.PaymentDetails{}, err
	}
	state, err := c.states.Load(ctx, visitor)
	if err != nil {
		return domain.PaymentDetails{}, fmt.Errorf("wizard: load state: %w", err)
	}
	if state.PersonalInfo == nil {
		return domain.PaymentDetails{}, &PrerequisiteError{Step: domain.StepPayment, Missing: []string{bridge.KeyPersonalInfo}}
	}
	return validation.PaymentPrefill(*state.PersonalInfo), nil
}

// Receipt confirms a completed order.
type Receipt struct {
	OrderID       string               `json:"orderId"`
	PaymentID     string               `json:"paymentId"`
	Provider      string               `json:"provider"`
	Status        payments.Status      `json:"status"`
	Domain        string               `json:"domain"`
	Template      string               `json:"template"`
	Method        domain.PaymentMethod `json:"method"`
	Card          string               `json:"card,omitempty"`
	Breakdown     pricing.Breakdown    `json:"breakdown"`
	Display       pricing.Display      `json:"display"`
	Currency      string               `json:"currency"`
	CompletedAt   time.Time            `json:"completedAt"`
	Redirect      string               `json:"redirect"`
	RedirectAfter string               `json:"redirectAfter"`
}

// SubmitPayment validates details, waits out the processing delay and charges the order. On
// success every order key is removed. On failure only the pending payment marker is removed.
func (c *Controller) SubmitPayment(ctx context.Context, visitor string, details domain.PaymentDetails, idempotencyKey string) (Receipt, error) {
	state, err := c.loadAt(ctx, visitor, domain.StepPayment)
	if err != nil {
		return Receipt{}, err
	}
	if missing := missingFor(domain.StepPayment, state); len(missing) > 0 {
		return Receipt{}, &PrerequisiteError{Step: domain.StepCompleted, Missing: missing}
	}
	now := c.now()
	if p := state.PendingPayment; p != nil && now.Sub(p.StartedAt) < c.paymentDelay+stalePaymentGrace {
		return Receipt{}, ErrPaymentInProgress
	}

	details = validation.NormalizePayment(details)
	if res := validation.Payment(details); !res.Valid() {
		return Receipt{}, &ValidationError{Result: res}
	}

	breakdown := c.calculator.Total(state.SelectedDomain.Price, state.SelectedTemplate.Price)
	if breakdown.Total.Sign() <= 0 || state.SelectedDomain.Price.IsNegative() || state.SelectedTemplate.Price.IsNegative() {
		return Receipt{}, fmt.Errorf("%w: total %s", ErrInvalidPrice, breakdown.Total)
	}

	taskCtx, done, ok := c.tasks.exclusive(ctx, visitor, taskPayment)
	if !ok {
		return Receipt{}, ErrPaymentInProgress
	}
	defer done()

	attempt := domain.PaymentAttempt{
		ID:        uuid.NewString(),
		Method:    details.Method,
		Amount:    breakdown.Total,
		Currency:  c.currency,
		StartedAt: now,
	}
	if err := c.states.SavePendingPayment(ctx, visitor, attempt); err != nil {
		return Receipt{}, fmt.Errorf("wizard: save pending payment: %w", err)
	}

	if err := c.sleep(taskCtx, c.paymentDelay); err != nil {
		c.abortPayment(ctx, visitor, attempt, "cancelled", err)
		return Receipt{}, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	orderID := c.orderIDs()
	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = attempt.ID
	}
	req := payments.ChargeRequest{
		OrderID:        orderID,
		Amount:         breakdown.Cents(),
		Currency:       c.currency,
		Method:         details.Method,
		CardholderName: details.CardholderName,
		Email:          state.PersonalInfo.Email,
		Description:    fmt.Sprintf("%s with %s", state.SelectedDomain.FQDN(), state.SelectedTemplate.Name),
		IdempotencyKey: idempotencyKey,
		Metadata: map[string]string{
			"visitor_id": visitor,
			"attempt_id": attempt.ID,
			"domain":     state.SelectedDomain.FQDN(),
			"template":   fmt.Sprint(state.SelectedTemplate.ID),
		},
	}
	if details.Method == domain.PaymentMethodCard {
		req.CardLast4 = lastFour(details.CardNumber)
	}

	charge, err := c.payments.Charge(taskCtx, req)
	if err == nil && charge.Status == payments.StatusFailed {
		err = fmt.Errorf("payments: charge %s failed", charge.ID)
	}
	if err != nil {
		switch {
		case domains.IsCancelled(err):
			c.abortPayment(ctx, visitor, attempt, "cancelled", err)
			return Receipt{}, fmt.Errorf("%w: %w", ErrCancelled, err)
		case errors.Is(err, payments.ErrDeclined):
			c.abortPayment(ctx, visitor, attempt, "declined", err)
			return Receipt{}, fmt.Errorf("%w: %w", ErrPaymentDeclined, err)
		default:
			c.abortPayment(ctx, visitor, attempt, "error", err)
			return Receipt{}, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
		}
	}

	// Cleanup outlives the request once the charge succeeded.
	cleanupCtx := context.WithoutCancel(ctx)
	if err := c.states.Clear(cleanupCtx, visitor); err != nil {
		c.logger(ctx, "wizard.clear_failed", map[string]any{"visitorID": visitor, "orderID": orderID, "error": err.Error()})
	}
	c.tasks.cancelAll(visitor)

	completedAt := c.now()
	rounded := breakdown.Rounded()
	event := events.OrderCompleted{
		OrderID:     orderID,
		VisitorID:   visitor,
		Domain:      state.SelectedDomain.FQDN(),
		TemplateID:  state.SelectedTemplate.ID,
		Template:    state.SelectedTemplate.Name,
		Subtotal:    rounded.Subtotal.StringFixed(2),
		Tax:         rounded.Tax.StringFixed(2),
		Total:       rounded.Total.StringFixed(2),
		Currency:    c.currency,
		Method:      string(details.Method),
		Provider:    charge.Provider,
		PaymentID:   charge.ID,
		CompletedAt: completedAt,
		Customer: events.Customer{
			Name:    state.PersonalInfo.FullName(),
			Email:   state.PersonalInfo.Email,
			Phone:   state.PersonalInfo.Phone,
			Company: state.PersonalInfo.CompanyName,
			Country: state.PersonalInfo.Country,
		},
	}
	if err := c.events.PublishOrderCompleted(cleanupCtx, event); err != nil {
		c.logger(ctx, "wizard.publish_failed", map[string]any{"orderID": orderID, "error": err.Error()})
	}

	c.metrics.StepChanged(string(domain.StepPayment), string(domain.StepCompleted))
	c.metrics.OrderCompleted(string(details.Method), rounded.Total.InexactFloat64())
	c.logger(ctx, "wizard.order_completed", map[string]any{
		"visitorID": visitor,
		"orderID":   orderID,
		"paymentID": charge.ID,
		"provider":  charge.Provider,
		"total":     rounded.Total.StringFixed(2),
	})

	receipt := Receipt{
		OrderID:       orderID,
		PaymentID:     charge.ID,
		Provider:      charge.Provider,
		Status:        charge.Status,
		Domain:        state.SelectedDomain.FQDN(),
		Template:      state.SelectedTemplate.Name,
		Method:        details.Method,
		Breakdown:     rounded,
		Display:       breakdown.Display(),
		Currency:      c.currency,
		CompletedAt:   completedAt,
		Redirect:      completedRedirect,
		RedirectAfter: c.redirectDelay.String(),
	}
	if details.Method == domain.PaymentMethodCard {
		receipt.Card = validation.MaskCardNumber(details.CardNumber)
	}
	return receipt, nil
}

func (c *Controller) abortPayment(ctx context.Context, visitor string, attempt domain.PaymentAttempt, reason string, cause error) {
	if err := c.states.ClearPendingPayment(context.WithoutCancel(ctx), visitor); err != nil {
		c.logger(ctx, "wizard.clear_pending_failed", map[string]any{"visitorID": visitor, "error": err.Error()})
	}
	c.metrics.PaymentFailed(reason)
	c.logger(ctx, "wizard.payment_"+reason, map[string]any{
		"visitorID": visitor,
		"attemptID": attempt.ID,
		"method":    string(attempt.Method),
		"error":     cause.Error(),
	})
}

// Continue moves the visitor forward one step when the next step's prerequisites are stored.
func (c *Controller) Continue(ctx context.Context, visitor string) (View, error) {
	if err := checkVisitor(visitor); err != nil {
		return View{}, err
	}
	state, err := c.states.Load(ctx, visitor)
	if err != nil {
		return View{}, fmt.Errorf("wizard: load state: %w", err)
	}
	next, ok := state.Step.Next()
	if !ok || next == domain.StepCompleted {
		return View{}, &PrerequisiteError{Step: domain.StepCompleted, Missing: []string{"payment"}}
	}
	if missing := missingFor(next, state); len(missing) > 0 {
		return View{}, &PrerequisiteError{Step: next, Missing: missing}
	}
	if err := c.moveTo(ctx, visitor, &state, next); err != nil {
		return View{}, err
	}
	return c.view(state), nil
}

// Back moves the visitor back one step and cancels their in-flight work.
func (c *Controller) Back(ctx context.Context, visitor string) (View, error) {
	if err := checkVisitor(visitor); err != nil {
		return View{}, err
	}
	unlock := c.tasks.lock(visitor)
	defer unlock()
	c.tasks.cancelAll(visitor)
	state, err := c.states.Load(ctx, visitor)
	if err != nil {
		return View{}, fmt.Errorf("wizard: load state: %w", err)
	}
	prev, ok := state.Step.Previous()
	if !ok {
		return View{}, &StepError{Current: state.Step, Required: domain.StepTemplate}
	}
	if err := c.moveTo(ctx, visitor, &state, prev); err != nil {
		return View{}, err
	}
	return c.view(state), nil
}

// Abandon cancels the visitor's work and deletes every order key.
func (c *Controller) Abandon(ctx context.Context, visitor string) error {
	if err := checkVisitor(visitor); err != nil {
		return err
	}
	unlock := c.tasks.lock(visitor)
	defer unlock()
	cancelled := c.tasks.cancelAll(visitor)
	if err := c.states.Clear(ctx, visitor); err != nil {
		return fmt.Errorf("wizard: clear state: %w", err)
	}
	c.logger(ctx, "wizard.abandoned", map[string]any{"visitorID": visitor, "cancelledTasks": cancelled})
	return nil
}

// Ready reports whether the backing store answers.
func (c *Controller) Ready(ctx context.Context) error {
	return c.states.Ping(ctx)
}

func (c *Controller) moveTo(ctx context.Context, visitor string, state *domain.OrderState, step domain.Step) error {
	if err := c.states.SaveStep(ctx, visitor, step); err != nil {
		return fmt.Errorf("wizard: save step: %w", err)
	}
	c.metrics.StepChanged(string(state.Step), string(step))
	c.logger(ctx, "wizard.step_changed", map[string]any{"visitorID": visitor, "from": string(state.Step), "to": string(step)})
	state.Step = step
	return nil
}

func (c *Controller) loadAt(ctx context.Context, visitor string, step domain.Step) (domain.OrderState, error) {
	if err := checkVisitor(visitor); err != nil {
		return domain.OrderState{}, err
	}
	state, err := c.states.Load(ctx, visitor)
	if err != nil {
		return domain.OrderState{}, fmt.Errorf("wizard: load state: %w", err)
	}
	if state.Step != step {
		return domain.OrderState{}, &StepError{Current: state.Step, Required: step}
	}
	return state, nil
}

func checkVisitor(visitor string) error {
	if strings.TrimSpace(visitor) == "" {
		return ErrInvalidVisitor
	}
	return nil
}

func lastFour(number string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}
