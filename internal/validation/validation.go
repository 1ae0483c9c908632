package validation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rekakarya/orderflow/internal/domain"
)

var (
	emailPattern  = regexp.MustCompile(`\S+@\S+\.\S+`)
	expiryPattern = regexp.MustCompile(`^\d{2}/\d{2}$`)
)

const minCardDigits = 13

// Result lists the fields that failed validation. A result with no errors is valid.
type Result struct {
	Errors map[string]string `json:"errors,omitempty"`
}

// Valid reports whether no field failed.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Message returns the error for field, or the empty string.
func (r Result) Message(field string) string {
	if r.Errors == nil {
		return ""
	}
	return r.Errors[field]
}

// Fields returns the failing field names in sorted order.
func (r Result) Fields() []string {
	out := make([]string, 0, len(r.Errors))
	for field := range r.Errors {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

func (r *Result) add(field, message string) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[field] = message
}

// PersonalInfo checks the required contact fields and consent flags.
func PersonalInfo(info domain.PersonalInfo) Result {
	var res Result
	required := []struct {
		field, value, message string
	}{
		{"firstName", info.FirstName, "First name is required"},
		{"lastName", info.LastName, "Last name is required"},
		{"phone", info.Phone, "Phone number is required"},
		{"address", info.Address, "Address is required"},
		{"city", info.City, "City is required"},
		{"state", info.State, "State is required"},
		{"zipCode", info.ZipCode, "ZIP code is required"},
	}
	for _, r := range required {
		if isBlank(r.value) {
			res.add(r.field, r.message)
		}
	}

	switch email := strings.TrimSpace(info.Email); {
	case email == "":
		res.add("email", "Email is required")
	case !emailPattern.MatchString(email):
		res.add("email", "Email is invalid")
	}

	if !info.AcceptedTerms {
		res.add("acceptedTerms", "You must accept the terms and conditions")
	}
	if !info.AcceptedPrivacy {
		res.add("acceptedPrivacy", "You must accept the privacy policy")
	}
	return res
}

// Payment checks payment details. Card fields are only required for the card method.
func Payment(details domain.PaymentDetails) Result {
	var res Result

	switch details.Method {
	case domain.PaymentMethodCard:
		number := strings.ReplaceAll(details.CardNumber, " ", "")
		switch {
		case number == "":
			res.add("cardNumber", "Card number is required")
		case len(number) < minCardDigits:
			res.add("cardNumber", "Invalid card number")
		}

		switch {
		case details.Expiry == "":
			res.add("expiry", "Expiry date is required")
		case !expiryPattern.MatchString(details.Expiry):
			res.add("expiry", "Invalid expiry date format")
		}

		switch {
		case details.CVV == "":
			res.add("cvv", "CVV is required")
		case len(details.CVV) < 3:
			res.add("cvv", "Invalid CVV")
		}

		if isBlank(details.CardholderName) {
			res.add("cardholderName", "Cardholder name is required")
		}
	case domain.PaymentMethodPayPal, domain.PaymentMethodBank:
	default:
		res.add("method", "Unsupported payment method")
	}

	if !details.AgreedToTerms {
		res.add("agreedToTerms", "You must agree to the terms and conditions")
	}
	return res
}

func isBlank(v string) bool {
	return strings.TrimSpace(v) == ""
}
