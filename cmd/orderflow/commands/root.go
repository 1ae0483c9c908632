package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rekakarya/orderflow/internal/catalog"
	"github.com/rekakarya/orderflow/internal/domains"
	"github.com/rekakarya/orderflow/internal/platform/config"
)

var envFile string

// Execute runs the orderflow CLI until the command returns or the process is signalled.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	err := newRootCmd().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "orderflow: %v\n", err)
	}
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "orderflow",
		Short:         "Website order wizard service and tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the process environment")
	root.AddCommand(serveCmd(), domainsCmd(), templatesCmd(), quoteCmd())
	return root
}

func loadConfig(ctx context.Context, opts ...config.Option) (config.Config, error) {
	base := []config.Option{config.WithEnvFile(envFile)}
	return config.Load(ctx, append(base, opts...)...)
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if path := strings.TrimSpace(cfg.Wizard.CatalogPath); path != "" {
		return catalog.Load(path)
	}
	return catalog.Default()
}

func searchProfile(cfg config.Config) domains.Profile {
	p := domains.SearchProfile()
	p.Availability = cfg.Domains.SearchAvailability
	p.DiscountProbability = cfg.Domains.DiscountProbability
	p.DiscountRate = cfg.Domains.DiscountRate
	p.DelayMin = cfg.Domains.SearchDelay
	p.DelayMax = cfg.Domains.SearchDelay
	return p
}

func quickProfile(cfg config.Config) domains.Profile {
	p := domains.QuickProfile()
	p.Availability = cfg.Domains.QuickAvailability
	p.DelayMin = cfg.Domains.QuickDelayMin
	p.DelayMax = cfg.Domains.QuickDelayMax
	return p
}

func newSearcher(cfg config.Config, cat *catalog.Catalog, opts ...domains.SimulatorOption) (*domains.Searcher, error) {
	search := domains.NewSimulator(searchProfile(cfg), opts...)
	quick := domains.NewSimulator(quickProfile(cfg), opts...)
	return domains.NewSearcher(cat, search, quick)
}
