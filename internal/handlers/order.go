package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rekakarya/orderflow/internal/domain"
	"github.com/rekakarya/orderflow/internal/domains"
	"github.com/rekakarya/orderflow/internal/platform/httpx"
	"github.com/rekakarya/orderflow/internal/platform/requestctx"
	"github.com/rekakarya/orderflow/internal/validation"
	"github.com/rekakarya/orderflow/internal/wizard"
)

// OrderWizard is the subset of wizard.Controller used by the HTTP layer.
type OrderWizard interface {
	View(ctx context.Context, visitor string) (wizard.View, error)
	RememberSearchTerm(ctx context.Context, visitor, term string) error
	SearchDomains(ctx context.Context, visitor, term, category string) (wizard.SearchResult, error)
	QuickCheck(ctx context.Context, term string) ([]domains.QuickAnswer, error)
	SelectDomain(ctx context.Context, visitor string, sel wizard.DomainSelection) (wizard.View, error)
	ChooseTemplate(ctx context.Context, visitor string, templateID int) (wizard.View, error)
	ValidatePersonalInfo(info domain.PersonalInfo) validation.Result
	SubmitPersonalInfo(ctx context.Context, visitor string, info domain.PersonalInfo) (wizard.View, error)
	PaymentPrefill(ctx context.Context, visitor string) (domain.PaymentDetails, error)
	ValidatePayment(details domain.PaymentDetails) validation.Result
	SubmitPayment(ctx context.Context, visitor string, details domain.PaymentDetails, idempotencyKey string) (wizard.Receipt, error)
	Continue(ctx context.Context, visitor string) (wizard.View, error)
	Back(ctx context.Context, visitor string) (wizard.View, error)
	Abandon(ctx context.Context, visitor string) error
}

// OrderHandlers exposes the wizard for the visitor identified by the session cookie.
type OrderHandlers struct {
	wizard            OrderWizard
	idempotencyHeader string
	paymentMW         []func(http.Handler) http.Handler
}

// OrderOption customises OrderHandlers.
type OrderOption func(*OrderHandlers)

// WithPaymentMiddlewares wraps the payment submission, typically with the idempotency guard.
func WithPaymentMiddlewares(mw ...func(http.Handler) http.Handler) OrderOption {
	return func(h *OrderHandlers) {
		h.paymentMW = append(h.paymentMW, mw...)
	}
}

// WithIdempotencyHeader names the header forwarded to the payment provider as idempotency key.
func WithIdempotencyHeader(name string) OrderOption {
	return func(h *OrderHandlers) {
		if name = strings.TrimSpace(name); name != "" {
			h.idempotencyHeader = name
		}
	}
}

// NewOrderHandlers constructs wizard handlers.
func NewOrderHandlers(w OrderWizard, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{wizard: w, idempotencyHeader: "Idempotency-Key"}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /order endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.view)
	r.Delete("/", h.abandon)
	r.Post("/search-term", h.rememberSearchTerm)
	r.Post("/domains/search", h.searchDomains)
	r.Put("/domain", h.selectDomain)
	r.Put("/template", h.chooseTemplate)
	r.Post("/personal-info/validate", h.validatePersonalInfo)
	r.Put("/personal-info", h.submitPersonalInfo)
	r.Get("/payment/prefill", h.paymentPrefill)
	r.Post("/payment/validate", h.validatePayment)
	r.With(h.paymentMW...).Post("/payment", h.submitPayment)
	r.Post("/continue", h.continueStep)
	r.Post("/back", h.back)
}

type searchTermRequest struct {
	Term string `json:"term"`
}

type searchRequest struct {
	Term     string `json:"term"`
	Category string `json:"category"`
}

type selectDomainRequest struct {
	Name   string `json:"name"`
	Suffix string `json:"suffix"`
	// Domain is accepted instead of name and suffix, e.g. "example.com".
	Domain string `json:"domain"`
}

type chooseTemplateRequest struct {
	TemplateID int `json:"templateId"`
}

type validationResponse struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"`
}

type prefillResponse struct {
	CardholderName string                `json:"cardholderName"`
	BillingAddress domain.BillingAddress `json:"billingAddress"`
}

func (h *OrderHandlers) visitor(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	if h.wizard == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wizard_unavailable", "order wizard unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	visitor := requestctx.VisitorID(ctx)
	if visitor == "" {
		httpx.WriteError(ctx, w, httpx.NewError("visitor_required", "a visitor session is required", http.StatusUnauthorized))
		return "", false
	}
	return visitor, true
}

func (h *OrderHandlers) view(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	view, err := h.wizard.View(r.Context(), visitor)
	if err != nil {
		writeWizardError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *OrderHandlers) abandon(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	if err := h.wizard.Abandon(r.Context(), visitor); err != nil {
		writeWizardError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) rememberSearchTerm(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	var req searchTermRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.wizard.RememberSearchTerm(r.Context(), visitor, req.Term); err != nil {
		writeWizardError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) searchDomains(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	// An empty body searches for the remembered hint.
	var req searchRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	result, err := h.wizard.SearchDomains(r.Context(), visitor, req.Term, req.Category)
	if err != nil {
		writeWizardError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *OrderHandlers) selectDomain(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	var req selectDomainRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sel := wizard.DomainSelection{Name: req.Name, Suffix: req.Suffix}
	if fqdn := strings.TrimSpace(req.Domain); fqdn != "" && sel.Name == "" {
		name, suffix, _ := strings.Cut(fqdn, ".")
		sel = wizard.DomainSelection{Name: name, Suffix: suffix}
	}
	if strings.TrimSpace(sel.Name) == "" || strings.TrimSpace(sel.Suffix) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "name and suffix are required", http.StatusBadRequest))
		return
	}
	view, err := h.wizard.SelectDomain(r.Context(), visitor, sel)
	if err != nil {
		writeWizardError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *OrderHandlers) chooseTemplate(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	var req chooseTemplateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TemplateID <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "templateId is required", http.StatusBadRequest))
		return
	}
	view, err := h.wizard.ChooseTemplate(r.Context(), visitor, req.TemplateID)
	if err != nil {
		writeWizardError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *OrderHandlers) validatePersonalInfo(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.visitor(w, r); !ok {
		return
	}
	var info domain.PersonalInfo
	if !decodeBody(w, r, &info) {
		return
	}
	res := h.wizard.ValidatePersonalInfo(info)
	httpx.WriteJSON(w, http.StatusOK, validationResponse{Valid: res.Valid(), Errors: res.Errors})
}

func (h *OrderHandlers) submitPersonalInfo(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	var info domain.PersonalInfo
	if !decodeBody(w, r, &info) {
		return
	}
	view, err := h.wizard.SubmitPersonalInfo(r.Context(), visitor, info)
	if err != nil {
		writeWizardError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *OrderHandlers) paymentPrefill(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	details, err := h.wizard.PaymentPrefill(r.Context(), visitor)
	if err != nil {
		writeWizardError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, prefillResponse{
		CardholderName: details.CardholderName,
		BillingAddress: details.BillingAddress,
	})
}

func (h *OrderHandlers) validatePayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.visitor(w, r); !ok {
		return
	}
	var details domain.PaymentDetails
	if !decodeBody(w, r, &details) {
		return
	}
	res := h.wizard.ValidatePayment(details)
	httpx.WriteJSON(w, http.StatusOK, validationResponse{Valid: res.Valid(), Errors: res.Errors})
}

func (h *OrderHandlers) submitPayment(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	var details domain.PaymentDetails
	if !decodeBody(w, r, &details) {
		return
	}
	key := strings.TrimSpace(r.Header.Get(h.idempotencyHeader))
	receipt, err := h.wizard.SubmitPayment(r.Context(), visitor, details, key)
	if err != nil {
		writeWizardError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, receipt)
}

func (h *OrderHandlers) continueStep(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	view, err := h.wizard.Continue(r.Context(), visitor)
	if err != nil {
		writeWizardError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *OrderHandlers) back(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	view, err := h.wizard.Back(r.Context(), visitor)
	if err != nil {
		writeWizardError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}
