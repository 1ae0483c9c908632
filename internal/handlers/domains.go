package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rekakarya/orderflow/internal/domains"
	"github.com/rekakarya/orderflow/internal/platform/httpx"
)

// DomainHandlers exposes the stateless landing page checker.
type DomainHandlers struct {
	wizard OrderWizard
}

// NewDomainHandlers constructs checker handlers.
func NewDomainHandlers(w OrderWizard) *DomainHandlers {
	return &DomainHandlers{wizard: w}
}

// Routes registers the /domains endpoints.
func (h *DomainHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/check", h.check)
}

type checkRequest struct {
	Term string `json:"term"`
}

type checkResponse struct {
	Term    string                `json:"term"`
	Results []domains.QuickAnswer `json:"results"`
}

func (h *DomainHandlers) check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wizard == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wizard_unavailable", "domain checker unavailable", http.StatusServiceUnavailable))
		return
	}
	var req checkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	term := strings.TrimSpace(req.Term)
	answers, err := h.wizard.QuickCheck(ctx, term)
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkResponse{Term: term, Results: answers})
}
