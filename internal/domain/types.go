package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Step identifies a stage of the order wizard.
type Step string

const (
	StepDomain       Step = "domain"
	StepTemplate     Step = "template"
	StepPersonalInfo Step = "personal-info"
	StepPayment      Step = "payment"
	StepCompleted    Step = "completed"
)

var stepOrder = []Step{StepDomain, StepTemplate, StepPersonalInfo, StepPayment, StepCompleted}

// ParseStep converts the raw representation into a Step. Unknown values map to StepDomain.
func ParseStep(raw string) (Step, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for _, step := range stepOrder {
		if string(step) == raw {
			return step, true
		}
	}
	return StepDomain, false
}

// Index reports the zero based position of the step, or -1 when unknown.
func (s Step) Index() int {
	for i, step := range stepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// Next returns the following step. The second value is false at the end of the flow.
func (s Step) Next() (Step, bool) {
	idx := s.Index()
	if idx < 0 || idx+1 >= len(stepOrder) {
		return s, false
	}
	return stepOrder[idx+1], true
}

// Previous returns the preceding step. The second value is false at the start of the flow.
func (s Step) Previous() (Step, bool) {
	idx := s.Index()
	if idx <= 0 {
		return s, false
	}
	return stepOrder[idx-1], true
}

// Progress returns the completion percentage shown in the progress bar.
func (s Step) Progress() int {
	switch s {
	case StepDomain:
		return 25
	case StepTemplate:
		return 50
	case StepPersonalInfo:
		return 75
	case StepPayment, StepCompleted:
		return 100
	default:
		return 0
	}
}

// DomainCandidate is a single search result for a requested name and suffix.
type DomainCandidate struct {
	Name          string           `json:"name"`
	Suffix        string           `json:"suffix"`
	Available     bool             `json:"available"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	IsPopular     bool             `json:"isPopular"`
	IsRecommended bool             `json:"isRecommended"`
	Category      string           `json:"category,omitempty"`
	Description   string           `json:"description,omitempty"`
}

// FQDN joins name and suffix.
func (c DomainCandidate) FQDN() string {
	return c.Name + c.Suffix
}

// Discounted reports whether the candidate carries a promotional price.
func (c DomainCandidate) Discounted() bool {
	return c.OriginalPrice != nil && c.OriginalPrice.GreaterThan(c.Price)
}

// TemplateOption is a catalogue entry for a website template.
type TemplateOption struct {
	ID              int              `json:"id"`
	Name            string           `json:"name"`
	Category        string           `json:"category"`
	Description     string           `json:"description,omitempty"`
	DescriptionHTML string           `json:"descriptionHtml,omitempty"`
	Price           decimal.Decimal  `json:"price"`
	OriginalPrice   *decimal.Decimal `json:"originalPrice,omitempty"`
	Features        []string         `json:"features,omitempty"`
	Tags            []string         `json:"tags"`
	Popular         bool             `json:"popular,omitempty"`
	Recommended     bool             `json:"recommended,omitempty"`
	Views           string           `json:"views,omitempty"`
	Likes           string           `json:"likes,omitempty"`
}

// DefaultCountry is applied when the visitor leaves the country field empty.
const DefaultCountry = "United States"

// PersonalInfo holds the contact and business details captured in step three.
type PersonalInfo struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	City            string `json:"city"`
	State           string `json:"state"`
	ZipCode         string `json:"zipCode"`
	Country         string `json:"country"`
	CompanyName     string `json:"companyName,omitempty"`
	BusinessType    string `json:"businessType,omitempty"`
	Website         string `json:"website,omitempty"`
	NewsletterOptIn bool   `json:"newsletterOptIn"`
	AcceptedTerms   bool   `json:"acceptedTerms"`
	AcceptedPrivacy bool   `json:"acceptedPrivacy"`
}

// FullName joins first and last name.
func (p PersonalInfo) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// BillingAddress returns the postal address portion of the personal info.
func (p PersonalInfo) BillingAddress() BillingAddress {
	country := strings.TrimSpace(p.Country)
	if country == "" {
		country = DefaultCountry
	}
	return BillingAddress{
		Address: p.Address,
		City:    p.City,
		State:   p.State,
		ZipCode: p.ZipCode,
		Country: country,
	}
}

// PaymentMethod enumerates the accepted payment methods.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodPayPal PaymentMethod = "paypal"
	PaymentMethodBank   PaymentMethod = "bank"
)

// PaymentMethods lists the supported methods in display order.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{PaymentMethodCard, PaymentMethodPayPal, PaymentMethodBank}
}

// Valid reports whether the method is supported.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodPayPal, PaymentMethodBank:
		return true
	default:
		return false
	}
}

// BillingAddress is the address used for payment verification.
type BillingAddress struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// PaymentDetails is submitted once at the payment step and never persisted.
type PaymentDetails struct {
	Method         PaymentMethod  `json:"method"`
	CardNumber     string         `json:"cardNumber,omitempty"`
	Expiry         string         `json:"expiry,omitempty"`
	CVV            string         `json:"cvv,omitempty"`
	CardholderName string         `json:"cardholderName,omitempty"`
	BillingAddress BillingAddress `json:"billingAddress"`
	SaveCard       bool           `json:"saveCard"`
	AgreedToTerms  bool           `json:"agreedToTerms"`
}

// PaymentAttempt marks a payment that is currently being processed.
type PaymentAttempt struct {
	ID        string          `json:"id"`
	Method    PaymentMethod   `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	StartedAt time.Time       `json:"startedAt"`
}

// OrderState aggregates everything collected by the wizard so far.
type OrderState struct {
	Step             Step             `json:"step"`
	SelectedDomain   *DomainCandidate `json:"selectedDomain,omitempty"`
	SelectedTemplate *TemplateOption  `json:"selectedTemplate,omitempty"`
	PersonalInfo     *PersonalInfo    `json:"personalInfo,omitempty"`
	PendingPayment   *PaymentAttempt  `json:"pendingPayment,omitempty"`
}

// Empty reports whether no wizard data has been stored.
func (s OrderState) Empty() bool {
	return s.SelectedDomain == nil && s.SelectedTemplate == nil && s.PersonalInfo == nil && s.PendingPayment == nil
}
