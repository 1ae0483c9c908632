package domains

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rekakarya/orderflow/internal/catalog"
	"github.com/rekakarya/orderflow/internal/domain"
)

// Query describes a domain search.
type Query struct {
	Term     string
	Category string
}

// QuickAnswer is one row of the landing page checker.
type QuickAnswer struct {
	Domain    string           `json:"domain"`
	Suffix    string           `json:"suffix"`
	Available bool             `json:"available"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

// Searcher turns availability answers into sorted, annotated candidates.
type Searcher struct {
	catalog *catalog.Catalog
	search  AvailabilityProvider
	quick   AvailabilityProvider
}

// NewSearcher wires a searcher. The quick provider may be nil when the checker is not used.
func NewSearcher(cat *catalog.Catalog, search, quick AvailabilityProvider) (*Searcher, error) {
	if cat == nil {
		return nil, errors.New("domains searcher: catalog is required")
	}
	if search == nil {
		return nil, errors.New("domains searcher: search provider is required")
	}
	return &Searcher{catalog: cat, search: search, quick: quick}, nil
}

// Clean normalises a raw term against the catalogue suffixes.
func (s *Searcher) Clean(raw string) (string, error) {
	return Clean(raw, s.catalog.SuffixNames())
}

// Search returns one candidate per suffix of q.Category, or of the whole catalogue when the
// category is empty or "All".
func (s *Searcher) Search(ctx context.Context, q Query) ([]domain.DomainCandidate, error) {
	name, err := s.Clean(q.Term)
	if err != nil {
		return nil, err
	}
	suffixes, err := s.catalog.Suffixes(q.Category)
	if err != nil {
		return nil, err
	}

	answers, err := s.search.Check(ctx, name, suffixes)
	if err != nil {
		return nil, err
	}
	if len(answers) != len(suffixes) {
		return nil, fmt.Errorf("domains: provider returned %d answers for %d suffixes", len(answers), len(suffixes))
	}

	out := make([]domain.DomainCandidate, 0, len(answers))
	for i, answer := range answers {
		suffix := suffixes[i]
		price := suffix.BasePrice
		if answer.Price != nil {
			price = *answer.Price
		}
		out = append(out, domain.DomainCandidate{
			Name:          name,
			Suffix:        suffix.Name,
			Available:     answer.Available,
			Price:         price,
			OriginalPrice: answer.OriginalPrice,
			IsPopular:     suffix.Popular,
			IsRecommended: answer.Available && s.catalog.IsRecommended(suffix.Name),
			Category:      suffix.Category,
			Description:   suffix.Description,
		})
	}
	SortCandidates(out)
	return out, nil
}

// QuickCheck probes the landing page suffixes for term.
func (s *Searcher) QuickCheck(ctx context.Context, term string) ([]QuickAnswer, error) {
	if s.quick == nil {
		return nil, errors.New("domains searcher: quick provider is not configured")
	}
	name, err := s.Clean(term)
	if err != nil {
		return nil, err
	}
	suffixes := s.catalog.QuickCheckSuffixes()
	answers, err := s.quick.Check(ctx, name, suffixes)
	if err != nil {
		return nil, err
	}
	out := make([]QuickAnswer, 0, len(answers))
	for _, answer := range answers {
		out = append(out, QuickAnswer{
			Domain:    name + answer.Suffix,
			Suffix:    answer.Suffix,
			Available: answer.Available,
			Price:     answer.Price,
		})
	}
	return out, nil
}

// SortCandidates orders candidates in place: available first, then recommended, then popular,
// then by ascending price.
func SortCandidates(candidates []domain.DomainCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Available != b.Available {
			return a.Available
		}
		if a.IsRecommended != b.IsRecommended {
			return a.IsRecommended
		}
		if a.IsPopular != b.IsPopular {
			return a.IsPopular
		}
		return a.Price.LessThan(b.Price)
	})
}

// FilterByCategory keeps the candidates of category. Empty or "All" keeps everything.
func FilterByCategory(candidates []domain.DomainCandidate, category string) []domain.DomainCandidate {
	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, catalog.AllCategories) {
		return append([]domain.DomainCandidate(nil), candidates...)
	}
	out := make([]domain.DomainCandidate, 0, len(candidates))
	for _, c := range candidates {
		if strings.EqualFold(c.Category, category) {
			out = append(out, c)
		}
	}
	return out
}
