package commands

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rekakarya/orderflow/internal/pricing"
)

func quoteCmd() *cobra.Command {
	var (
		domainPrice   string
		templatePrice string
		taxRate       string
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a domain and template pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			domainAmount, err := parseAmount("domain-price", domainPrice)
			if err != nil {
				return err
			}
			templateAmount, err := parseAmount("template-price", templatePrice)
			if err != nil {
				return err
			}
			rate, err := parseAmount("tax-rate", taxRate)
			if err != nil {
				return err
			}

			breakdown := pricing.Calculate(domainAmount, templateAmount, rate)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, struct {
					pricing.Breakdown
					Display pricing.Display `json:"display"`
					Cents   int64           `json:"cents"`
				}{breakdown.Rounded(), breakdown.Display(), breakdown.Cents()})
			}
			display := breakdown.Display()
			fmt.Fprintf(out, "Subtotal: %s\n", display.Subtotal)
			fmt.Fprintf(out, "Tax (%s%%): %s\n", rate.Shift(2).String(), display.Tax)
			fmt.Fprintf(out, "Total: %s\n", display.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&domainPrice, "domain-price", "", "domain price, e.g. 12.99")
	cmd.Flags().StringVar(&templatePrice, "template-price", "", "template price, e.g. 49")
	cmd.Flags().StringVar(&taxRate, "tax-rate", pricing.DefaultTaxRate.String(), "tax rate as a fraction")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	_ = cmd.MarkFlagRequired("domain-price")
	_ = cmd.MarkFlagRequired("template-price")
	return cmd
}

func parseAmount(flag, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %q is not a number", flag, raw)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("--%s must not be negative", flag)
	}
	return v, nil
}
