package validation

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rekakarya/orderflow/internal/domain"
)

const maxCardDigits = 16

var nameCaser = cases.Title(language.English)

func digitsOnly(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatCardNumber keeps up to 16 digits and groups them by four.
func FormatCardNumber(value string) string {
	digits := digitsOnly(value)
	if len(digits) < 4 {
		return digits
	}
	if len(digits) > maxCardDigits {
		digits = digits[:maxCardDigits]
	}
	parts := make([]string, 0, 4)
	for i := 0; i < len(digits); i += 4 {
		end := i + 4
		if end > len(digits) {
			end = len(digits)
		}
		parts = append(parts, digits[i:end])
	}
	return strings.Join(parts, " ")
}

// FormatExpiry renders the digits of value as MM/YY.
func FormatExpiry(value string) string {
	digits := digitsOnly(value)
	if len(digits) < 2 {
		return digits
	}
	if len(digits) > 4 {
		digits = digits[:4]
	}
	return digits[:2] + "/" + digits[2:]
}

// FormatCVV keeps up to four digits.
func FormatCVV(value string) string {
	digits := digitsOnly(value)
	if len(digits) > 4 {
		digits = digits[:4]
	}
	return digits
}

// MaskCardNumber hides everything except the last four digits.
func MaskCardNumber(value string) string {
	digits := digitsOnly(value)
	if len(digits) <= 4 {
		return digits
	}
	return strings.Repeat("•", 4) + " " + digits[len(digits)-4:]
}

// NormalizePayment applies the input formatters to a copy of details.
func NormalizePayment(details domain.PaymentDetails) domain.PaymentDetails {
	out := details
	out.Method = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(details.Method))))
	if out.Method != domain.PaymentMethodCard {
		out.CardNumber, out.Expiry, out.CVV = "", "", ""
		return out
	}
	out.CardNumber = FormatCardNumber(details.CardNumber)
	out.Expiry = FormatExpiry(details.Expiry)
	out.CVV = FormatCVV(details.CVV)
	out.CardholderName = strings.TrimSpace(details.CardholderName)
	return out
}

// NormalizePersonalInfo trims a copy of info and applies the default country.
func NormalizePersonalInfo(info domain.PersonalInfo) domain.PersonalInfo {
	out := info
	for _, field := range []*string{
		&out.FirstName, &out.LastName, &out.Email, &out.Phone, &out.Address,
		&out.City, &out.State, &out.ZipCode, &out.Country, &out.CompanyName,
		&out.BusinessType, &out.Website,
	} {
		*field = strings.TrimSpace(*field)
	}
	out.Email = strings.ToLower(out.Email)
	if out.Country == "" {
		out.Country = domain.DefaultCountry
	}
	return out
}

// PaymentPrefill derives default payment details from the stored personal info.
func PaymentPrefill(info domain.PersonalInfo) domain.PaymentDetails {
	return domain.PaymentDetails{
		Method:         domain.PaymentMethodCard,
		CardholderName: nameCaser.String(info.FullName()),
		BillingAddress: info.BillingAddress(),
	}
}
