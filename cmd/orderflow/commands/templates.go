package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rekakarya/orderflow/internal/pricing"
)

func templatesCmd() *cobra.Command {
	var (
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List website templates from the catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			templates, err := cat.Templates(category)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, templates)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tTAGS")
			for _, t := range templates {
				price := pricing.FormatUSD(t.Price)
				if t.OriginalPrice != nil && t.OriginalPrice.GreaterThan(t.Price) {
					price += " (was " + pricing.FormatUSD(*t.OriginalPrice) + ")"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Category, price, strings.Join(t.Tags, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "template category, All when empty")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
