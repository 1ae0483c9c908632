package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rekakarya/orderflow/internal/domain"
	"github.com/rekakarya/orderflow/internal/domains"
	"github.com/rekakarya/orderflow/internal/pricing"
)

func domainsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "Query the simulated domain registry",
	}
	cmd.AddCommand(domainSearchCmd())
	return cmd
}

func domainSearchCmd() *cobra.Command {
	var (
		category string
		quick    bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Check a name against the catalogue suffixes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			searcher, err := newSearcher(cfg, cat)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if quick {
				answers, err := searcher.QuickCheck(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, answers)
				}
				return printQuickAnswers(out, answers)
			}

			candidates, err := searcher.Search(ctx, domains.Query{Term: args[0], Category: category})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, candidates)
			}
			return printCandidates(out, candidates)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "suffix category (All, Popular, Business, Tech, Creative)")
	cmd.Flags().BoolVar(&quick, "quick", false, "use the landing page checker instead of the full search")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printCandidates(w io.Writer, candidates []domain.DomainCandidate) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tAVAILABLE\tPRICE\tNOTE")
	for _, c := range candidates {
		price := "-"
		note := ""
		if c.Available {
			price = pricing.FormatUSD(c.Price)
			if c.Discounted() {
				note = "was " + pricing.FormatUSD(*c.OriginalPrice)
			}
		}
		if c.IsRecommended {
			note = joinNote(note, "recommended")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.FQDN(), yesNo(c.Available), price, note)
	}
	return tw.Flush()
}

func printQuickAnswers(w io.Writer, answers []domains.QuickAnswer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tAVAILABLE\tPRICE")
	for _, a := range answers {
		price := "-"
		if a.Price != nil {
			price = pricing.FormatUSD(*a.Price)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Domain, yesNo(a.Available), price)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

func joinNote(note, extra string) string {
	if note == "" {
		return extra
	}
	return note + ", " + extra
}
