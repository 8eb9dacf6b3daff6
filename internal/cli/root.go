package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"catalog-browser-api/internal/config"
	"catalog-browser-api/internal/services"
	"catalog-browser-api/internal/sparql"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands. Empty values fall back to
// the same environment the server reads.
type RootOptions struct {
	Endpoint  string
	Namespace string
	Timeout   time.Duration
	PageSize  int
	Format    string
	Verbose   bool

	cfg *config.Config
}

// NewRootCommand creates the root command for catalogctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Inspect the product catalog from the command line",
		Long:          "catalogctl prints the SPARQL the catalog service generates and runs it against the configured endpoint.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.resolve()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Endpoint, "endpoint", "", "SPARQL endpoint URL (default from SPARQL_ENDPOINT)")
	cmd.PersistentFlags().StringVar(&opts.Namespace, "namespace", "", "catalog vocabulary namespace (default from CATALOG_NAMESPACE)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 0, "query timeout (default from SPARQL_TIMEOUT)")
	cmd.PersistentFlags().IntVar(&opts.PageSize, "page-size", 0, "products per page (default from PAGE_SIZE)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log queries to stderr")

	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewCategoriesCommand(opts))
	cmd.AddCommand(NewChildrenCommand(opts))
	cmd.AddCommand(NewStoresCommand(opts))
	cmd.AddCommand(NewProductsCommand(opts))

	return cmd
}

func (o *RootOptions) resolve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.Endpoint == "" {
		o.Endpoint = cfg.SPARQLEndpoint
	}
	if o.Namespace == "" {
		o.Namespace = cfg.Namespace
	}
	if o.Timeout <= 0 {
		o.Timeout = cfg.SPARQLTimeout
	}
	if o.PageSize <= 0 {
		o.PageSize = cfg.PageSize
	}
	o.cfg = cfg
	return nil
}

func (o *RootOptions) builder() (*sparql.Builder, error) {
	return sparql.NewBuilder(sparql.DefaultVocabulary(o.Namespace))
}

// catalog builds an uncached catalog service against the endpoint.
func (o *RootOptions) catalog(stderr io.Writer) (*services.CatalogService, error) {
	b, err := o.builder()
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if o.Verbose {
		logger = newStderrLogger(stderr)
	}
	client, err := sparql.NewClient(o.Endpoint, o.Timeout, sparql.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return services.NewCatalogService(b, client, nil, logger, services.Options{
		PageSize:           o.PageSize,
		MaxParallelLookups: o.cfg.MaxParallelLookups,
		CombinedListing:    o.cfg.CombinedListing,
	}), nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
