package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the flat sales tax applied to every order.
var DefaultTaxRate = decimal.RequireFromString("0.10")

// Breakdown carries full-precision order totals.
type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	TaxRate  decimal.Decimal `json:"taxRate"`
}

// Calculate sums the domain and template prices and applies taxRate. Nothing is rounded and
// negative inputs pass through unchanged.
func Calculate(domainPrice, templatePrice, taxRate decimal.Decimal) Breakdown {
	subtotal := domainPrice.Add(templatePrice)
	tax := subtotal.Mul(taxRate)
	return Breakdown{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
		TaxRate:  taxRate,
	}
}

// Calculator applies a fixed tax rate.
type Calculator struct {
	TaxRate decimal.Decimal
}

// NewCalculator returns a Calculator using rate, or DefaultTaxRate when rate is zero.
func NewCalculator(rate decimal.Decimal) Calculator {
	if rate.IsZero() {
		rate = DefaultTaxRate
	}
	return Calculator{TaxRate: rate}
}

// Total computes the breakdown for the given prices.
func (c Calculator) Total(domainPrice, templatePrice decimal.Decimal) Breakdown {
	rate := c.TaxRate
	if rate.IsZero() {
		rate = DefaultTaxRate
	}
	return Calculate(domainPrice, templatePrice, rate)
}

// Rounded returns the breakdown rounded half away from zero to two decimals for display.
func (b Breakdown) Rounded() Breakdown {
	return Breakdown{
		Subtotal: b.Subtotal.Round(2),
		Tax:      b.Tax.Round(2),
		Total:    b.Total.Round(2),
		TaxRate:  b.TaxRate,
	}
}

// Cents returns the rounded total in minor currency units.
func (b Breakdown) Cents() int64 {
	return b.Total.Round(2).Shift(2).IntPart()
}

// Display holds the formatted amounts shown in the order summary.
type Display struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

// Display formats the breakdown as dollar strings.
func (b Breakdown) Display() Display {
	return Display{
		Subtotal: FormatUSD(b.Subtotal),
		Tax:      FormatUSD(b.Tax),
		Total:    FormatUSD(b.Total),
	}
}

// FormatUSD renders an amount as "$1,234.50".
func FormatUSD(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	whole, frac, _ := strings.Cut(fixed, ".")
	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	out := "$" + grouped.String() + "." + frac
	if negative {
		return "-" + out
	}
	return out
}
