package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rekakarya/orderflow/internal/catalog"
	"github.com/rekakarya/orderflow/internal/domain"
	"github.com/rekakarya/orderflow/internal/platform/httpx"
)

// CatalogHandlers exposes the read-only product catalogue.
type CatalogHandlers struct {
	catalog *catalog.Catalog
}

// NewCatalogHandlers constructs catalogue handlers.
func NewCatalogHandlers(cat *catalog.Catalog) *CatalogHandlers {
	return &CatalogHandlers{catalog: cat}
}

// Routes registers catalogue endpoints under the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/suffixes", h.listSuffixes)
	r.Get("/templates", h.listTemplates)
	r.Get("/options", h.listOptions)
}

type suffixesResponse struct {
	Categories []catalog.SuffixCategory `json:"categories"`
}

type templatesResponse struct {
	Category   string                  `json:"category"`
	Categories []string                `json:"categories"`
	Templates  []domain.TemplateOption `json:"templates"`
}

type optionsResponse struct {
	TemplateCategories []string               `json:"templateCategories"`
	BusinessTypes      []string               `json:"businessTypes"`
	Countries          []string               `json:"countries"`
	PaymentMethods     []domain.PaymentMethod `json:"paymentMethods"`
	DefaultCountry     string                 `json:"defaultCountry"`
}

func (h *CatalogHandlers) listSuffixes(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, suffixesResponse{Categories: h.catalog.SuffixCategories()})
}

func (h *CatalogHandlers) listTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	category := r.URL.Query().Get("category")
	if category == "" {
		category = catalog.AllCategories
	}
	templates, err := h.catalog.Templates(category)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownCategory) {
			httpx.WriteError(ctx, w, httpx.NewError("unknown_category", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.ErrInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, templatesResponse{
		Category:   category,
		Categories: h.catalog.TemplateCategories(),
		Templates:  templates,
	})
}

func (h *CatalogHandlers) listOptions(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, optionsResponse{
		TemplateCategories: h.catalog.TemplateCategories(),
		BusinessTypes:      h.catalog.BusinessTypes(),
		Countries:          h.catalog.Countries(),
		PaymentMethods:     domain.PaymentMethods(),
		DefaultCountry:     domain.DefaultCountry,
	})
}
