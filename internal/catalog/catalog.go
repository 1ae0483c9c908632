package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rekakarya/orderflow/internal/domain"
)

// AllCategories selects every template or suffix category.
const AllCategories = "All"

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	// ErrTemplateNotFound is returned when a template id is not in the catalogue.
	ErrTemplateNotFound = errors.New("catalog: template not found")
	// ErrUnknownCategory is returned when filtering by a category the catalogue does not define.
	ErrUnknownCategory = errors.New("catalog: unknown category")
	// ErrInvalidCatalog indicates the catalogue document failed validation.
	ErrInvalidCatalog = errors.New("catalog: invalid document")
)

// Suffix describes a domain extension and its list price.
type Suffix struct {
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	Description string          `json:"description"`
	Popular     bool            `json:"popular"`
}

// SuffixCategory groups suffixes for display and filtering.
type SuffixCategory struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Suffixes    []Suffix `json:"suffixes"`
}

// Catalog is the immutable product catalogue used by the wizard.
type Catalog struct {
	defaultPrice       decimal.Decimal
	categories         []SuffixCategory
	suffixes           map[string]Suffix
	suffixOrder        []string
	recommended        string
	quickCheck         []string
	templates          []domain.TemplateOption
	templateCategories []string
	businessTypes      []string
	countries          []string
}

type document struct {
	DefaultSuffixPrice float64            `yaml:"default_suffix_price"`
	SuffixCategories   []suffixCategoryDoc `yaml:"suffix_categories"`
	PopularSuffixes    []string           `yaml:"popular_suffixes"`
	RecommendedSuffix  string             `yaml:"recommended_suffix"`
	QuickCheckSuffixes []string           `yaml:"quick_check_suffixes"`
	Templates          []templateDoc      `yaml:"templates"`
	TemplateCategories []string           `yaml:"template_categories"`
	BusinessTypes      []string           `yaml:"business_types"`
	Countries          []string           `yaml:"countries"`
}

type suffixCategoryDoc struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Suffixes    []suffixDoc `yaml:"suffixes"`
}

type suffixDoc struct {
	Name        string  `yaml:"name"`
	Price       float64 `yaml:"price"`
	Description string  `yaml:"description"`
}

type templateDoc struct {
	ID            int      `yaml:"id"`
	Name          string   `yaml:"name"`
	Category      string   `yaml:"category"`
	Description   string   `yaml:"description"`
	Price         float64  `yaml:"price"`
	OriginalPrice *float64 `yaml:"original_price"`
	Features      []string `yaml:"features"`
	Popular       bool     `yaml:"popular"`
	Recommended   bool     `yaml:"recommended"`
	Views         string   `yaml:"views"`
	Likes         string   `yaml:"likes"`
	Tags          []string `yaml:"tags"`
}

const fallbackSuffixDescription = "Professional domain extension"

// Default returns the embedded catalogue.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalogue document from disk. An empty path yields the embedded default.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes and validates a YAML catalogue document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return build(doc)
}

func build(doc document) (*Catalog, error) {
	if len(doc.SuffixCategories) == 0 {
		return nil, fmt.Errorf("%w: no suffix categories", ErrInvalidCatalog)
	}
	defaultPrice := decimal.NewFromFloat(doc.DefaultSuffixPrice)
	if doc.DefaultSuffixPrice <= 0 {
		defaultPrice = decimal.NewFromInt(15)
	}

	popular := make(map[string]struct{}, len(doc.PopularSuffixes))
	for _, name := range doc.PopularSuffixes {
		popular[normalizeSuffix(name)] = struct{}{}
	}

	cat := &Catalog{
		defaultPrice: defaultPrice,
		suffixes:     make(map[string]Suffix),
		recommended:  normalizeSuffix(doc.RecommendedSuffix),
	}

	for _, c := range doc.SuffixCategories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: suffix category without name", ErrInvalidCatalog)
		}
		category := SuffixCategory{Name: name, Description: strings.TrimSpace(c.Description)}
		for _, s := range c.Suffixes {
			suffixName := normalizeSuffix(s.Name)
			if suffixName == "" {
				return nil, fmt.Errorf("%w: empty suffix in %s", ErrInvalidCatalog, name)
			}
			if _, dup := cat.suffixes[suffixName]; dup {
				return nil, fmt.Errorf("%w: duplicate suffix %s", ErrInvalidCatalog, suffixName)
			}
			price := defaultPrice
			if s.Price > 0 {
				price = decimal.NewFromFloat(s.Price)
			}
			desc := strings.TrimSpace(s.Description)
			if desc == "" {
				desc = fallbackSuffixDescription
			}
			_, isPopular := popular[suffixName]
			suffix := Suffix{
				Name:        suffixName,
				Category:    name,
				BasePrice:   price,
				Description: desc,
				Popular:     isPopular,
			}
			cat.suffixes[suffixName] = suffix
			cat.suffixOrder = append(cat.suffixOrder, suffixName)
			category.Suffixes = append(category.Suffixes, suffix)
		}
		cat.categories = append(cat.categories, category)
	}

	for _, name := range doc.QuickCheckSuffixes {
		suffixName := normalizeSuffix(name)
		if suffixName == "" {
			continue
		}
		cat.quickCheck = append(cat.quickCheck, suffixName)
	}

	seenIDs := make(map[int]struct{}, len(doc.Templates))
	for _, t := range doc.Templates {
		if t.ID <= 0 || strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("%w: template requires id and name", ErrInvalidCatalog)
		}
		if _, dup := seenIDs[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate template id %d", ErrInvalidCatalog, t.ID)
		}
		if t.Price < 0 {
			return nil, fmt.Errorf("%w: template %d has negative price", ErrInvalidCatalog, t.ID)
		}
		seenIDs[t.ID] = struct{}{}
		option := domain.TemplateOption{
			ID:              t.ID,
			Name:            strings.TrimSpace(t.Name),
			Category:        strings.TrimSpace(t.Category),
			Description:     strings.TrimSpace(t.Description),
			DescriptionHTML: RenderDescription(t.Description),
			Price:           decimal.NewFromFloat(t.Price),
			Features:        cloneStrings(t.Features),
			Tags:            cloneStrings(t.Tags),
			Popular:         t.Popular,
			Recommended:     t.Recommended,
			Views:           strings.TrimSpace(t.Views),
			Likes:           strings.TrimSpace(t.Likes),
		}
		if t.OriginalPrice != nil {
			original := decimal.NewFromFloat(*t.OriginalPrice)
			option.OriginalPrice = &original
		}
		cat.templates = append(cat.templates, option)
	}
	sort.SliceStable(cat.templates, func(i, j int) bool { return cat.templates[i].ID < cat.templates[j].ID })

	cat.templateCategories = cloneStrings(doc.TemplateCategories)
	if len(cat.templateCategories) == 0 {
		seen := make(map[string]struct{})
		for _, t := range cat.templates {
			if _, ok := seen[t.Category]; ok || t.Category == "" {
				continue
			}
			seen[t.Category] = struct{}{}
			cat.templateCategories = append(cat.templateCategories, t.Category)
		}
	}
	cat.businessTypes = cloneStrings(doc.BusinessTypes)
	cat.countries = cloneStrings(doc.Countries)
	if len(cat.countries) == 0 {
		cat.countries = []string{domain.DefaultCountry}
	}

	return cat, nil
}

// SuffixCategories returns the suffix groups in catalogue order.
func (c *Catalog) SuffixCategories() []SuffixCategory {
	out := make([]SuffixCategory, len(c.categories))
	for i, category := range c.categories {
		out[i] = category
		out[i].Suffixes = append([]Suffix(nil), category.Suffixes...)
	}
	return out
}

// Suffixes lists the suffixes of a category. An empty category or AllCategories returns every suffix.
func (c *Catalog) Suffixes(category string) ([]Suffix, error) {
	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, AllCategories) {
		out := make([]Suffix, 0, len(c.suffixOrder))
		for _, name := range c.suffixOrder {
			out = append(out, c.suffixes[name])
		}
		return out, nil
	}
	for _, group := range c.categories {
		if strings.EqualFold(group.Name, category) {
			return append([]Suffix(nil), group.Suffixes...), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
}

// Suffix looks up a suffix by name. The leading dot is optional.
func (c *Catalog) Suffix(name string) (Suffix, bool) {
	s, ok := c.suffixes[normalizeSuffix(name)]
	return s, ok
}

// SuffixNames returns every known suffix in catalogue order.
func (c *Catalog) SuffixNames() []string {
	return cloneStrings(c.suffixOrder)
}

// BasePrice returns the list price for a suffix, falling back to the catalogue default.
func (c *Catalog) BasePrice(name string) decimal.Decimal {
	if s, ok := c.Suffix(name); ok {
		return s.BasePrice
	}
	return c.defaultPrice
}

// IsRecommended reports whether the suffix is the one recommended when available.
func (c *Catalog) IsRecommended(name string) bool {
	return c.recommended != "" && normalizeSuffix(name) == c.recommended
}

// QuickCheckSuffixes returns the suffixes probed by the landing page checker.
func (c *Catalog) QuickCheckSuffixes() []Suffix {
	out := make([]Suffix, 0, len(c.quickCheck))
	for _, name := range c.quickCheck {
		if s, ok := c.suffixes[name]; ok {
			out = append(out, s)
			continue
		}
		out = append(out, Suffix{Name: name, BasePrice: c.defaultPrice, Description: fallbackSuffixDescription})
	}
	return out
}

// Templates lists templates in a category. An empty category or AllCategories returns every template.
func (c *Catalog) Templates(category string) ([]domain.TemplateOption, error) {
	category = strings.TrimSpace(category)
	all := category == "" || strings.EqualFold(category, AllCategories)
	if !all && !c.hasTemplateCategory(category) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	out := make([]domain.TemplateOption, 0, len(c.templates))
	for _, t := range c.templates {
		if all || strings.EqualFold(t.Category, category) {
			out = append(out, cloneTemplate(t))
		}
	}
	return out, nil
}

// Template looks up a template by id.
func (c *Catalog) Template(id int) (domain.TemplateOption, error) {
	for _, t := range c.templates {
		if t.ID == id {
			return cloneTemplate(t), nil
		}
	}
	return domain.TemplateOption{}, fmt.Errorf("%w: %d", ErrTemplateNotFound, id)
}

// TemplateCategories returns the filter tabs, starting with AllCategories.
func (c *Catalog) TemplateCategories() []string {
	return append([]string{AllCategories}, c.templateCategories...)
}

// BusinessTypes returns the selectable business types.
func (c *Catalog) BusinessTypes() []string { return cloneStrings(c.businessTypes) }

// Countries returns the selectable countries.
func (c *Catalog) Countries() []string { return cloneStrings(c.countries) }

func (c *Catalog) hasTemplateCategory(category string) bool {
	for _, name := range c.templateCategories {
		if strings.EqualFold(name, category) {
			return true
		}
	}
	return false
}

func normalizeSuffix(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}
	return name
}

func cloneTemplate(t domain.TemplateOption) domain.TemplateOption {
	t.Features = cloneStrings(t.Features)
	t.Tags = cloneStrings(t.Tags)
	if t.OriginalPrice != nil {
		original := *t.OriginalPrice
		t.OriginalPrice = &original
	}
	return t
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
