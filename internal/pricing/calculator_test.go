package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCalculate(t *testing.T) {
	got := Calculate(dec("100"), dec("50"), dec("0.10"))
	if !got.Subtotal.Equal(dec("150")) {
		t.Fatalf("unexpected subtotal %s", got.Subtotal)
	}
	if !got.Tax.Equal(dec("15")) {
		t.Fatalf("unexpected tax %s", got.Tax)
	}
	if !got.Total.Equal(dec("165")) {
		t.Fatalf("unexpected total %s", got.Total)
	}
}

func TestCalculatorKeepsFullPrecision(t *testing.T) {
	calc := NewCalculator(decimal.Zero)
	got := calc.Total(dec("10.99"), dec("0.01"))
	if !got.Tax.Equal(dec("1.1")) {
		t.Fatalf("unexpected tax %s", got.Tax)
	}

	got = calc.Total(dec("0.05"), dec("0"))
	if !got.Tax.Equal(dec("0.005")) {
		t.Fatalf("tax must not be rounded before use, got %s", got.Tax)
	}
	if !got.Total.Equal(dec("0.055")) {
		t.Fatalf("unexpected total %s", got.Total)
	}
	if r := got.Rounded(); !r.Total.Equal(dec("0.06")) {
		t.Fatalf("unexpected rounded total %s", r.Total)
	}
}

func TestStarterOrderDisplay(t *testing.T) {
	got := NewCalculator(DefaultTaxRate).Total(dec("12"), dec("49"))
	display := got.Display()
	if display.Subtotal != "$61.00" || display.Tax != "$6.10" || display.Total != "$67.10" {
		t.Fatalf("unexpected display %+v", display)
	}
	if got.Cents() != 6710 {
		t.Fatalf("unexpected cents %d", got.Cents())
	}
}

func TestCalculateDoesNotRejectNegativeInputs(t *testing.T) {
	got := Calculate(dec("-10"), dec("5"), DefaultTaxRate)
	if !got.Total.Equal(dec("-5.5")) {
		t.Fatalf("unexpected total %s", got.Total)
	}
}

func TestFormatUSD(t *testing.T) {
	cases := map[string]string{
		"0":         "$0.00",
		"6.1":       "$6.10",
		"1234.5":    "$1,234.50",
		"1000000":   "$1,000,000.00",
		"-42.125":   "-$42.13",
		"999.995":   "$1,000.00",
		"100000.01": "$100,000.01",
	}
	for in, want := range cases {
		if got := FormatUSD(dec(in)); got != want {
			t.Errorf("FormatUSD(%s) = %s, want %s", in, got, want)
		}
	}
}
