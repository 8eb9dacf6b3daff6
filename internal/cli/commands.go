package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"catalog-browser-api/internal/models"
	"catalog-browser-api/internal/sparql"
	"catalog-browser-api/pkg/utils"
)

// QueryKinds lists what the query command can render.
var QueryKinds = []string{"products", "count", "listing", "categories", "children", "stores"}

type selectionFlags struct {
	categories    []string
	subCategories []string
	endCategories []string
	stores        []string
	minPrice      string
	maxPrice      string
	minDiscount   string
	maxDiscount   string
	page          int
}

func (s *selectionFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringArrayVar(&s.categories, "category", nil, "top-level category (repeatable)")
	f.StringArrayVar(&s.subCategories, "sub-category", nil, "subcategory (repeatable)")
	f.StringArrayVar(&s.endCategories, "end-category", nil, "end category (repeatable)")
	f.StringArrayVar(&s.stores, "store", nil, "store (repeatable)")
	f.StringVar(&s.minPrice, "min-price", "", "minimum regular price")
	f.StringVar(&s.maxPrice, "max-price", "", "maximum regular price")
	f.StringVar(&s.minDiscount, "min-discount", "", "minimum discount percent")
	f.StringVar(&s.maxDiscount, "max-discount", "", "maximum discount percent")
	f.IntVarP(&s.page, "page", "p", 1, "page number")
}

func (s *selectionFlags) selection() (models.FilterSelection, error) {
	sel := models.FilterSelection{
		Categories:    append([]string{}, s.categories...),
		SubCategories: append([]string{}, s.subCategories...),
		EndCategories: append([]string{}, s.endCategories...),
		Stores:        append([]string{}, s.stores...),
	}

	var err error
	for _, b := range []struct {
		flag string
		raw  string
		dst  **float64
	}{
		{"--min-price", s.minPrice, &sel.MinPrice},
		{"--max-price", s.maxPrice, &sel.MaxPrice},
		{"--min-discount", s.minDiscount, &sel.MinDiscount},
		{"--max-discount", s.maxDiscount, &sel.MaxDiscount},
	} {
		if *b.dst, err = utils.ParseBound(b.raw); err != nil {
			return sel, fmt.Errorf("%s must be a number, got %q", b.flag, b.raw)
		}
	}
	return sel, sel.Bounds.Validate()
}

// NewQueryCommand prints generated SPARQL without contacting the endpoint.
func NewQueryCommand(opts *RootOptions) *cobra.Command {
	var (
		sel    selectionFlags
		parent string
		level  string
	)

	cmd := &cobra.Command{
		Use:       "query <kind>",
		Short:     "Print the SPARQL for a lookup or listing",
		Args:      cobra.ExactArgs(1),
		ValidArgs: QueryKinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.builder()
			if err != nil {
				return err
			}
			selection, err := sel.selection()
			if err != nil {
				return err
			}
			page := sparql.Page{Number: sel.page, Size: opts.PageSize}

			var query string
			switch kind := args[0]; kind {
			case "products":
				query, err = b.ProductsQuery(selection, page)
			case "count":
				query, err = b.CountQuery(selection)
			case "listing":
				query, err = b.ListingQuery(selection, page)
			case "categories":
				query = b.CategoriesQuery()
			case "stores":
				query = b.StoresQuery()
			case "children":
				var lvl models.CategoryLevel
				if lvl, err = models.ParseCategoryLevel(level); err == nil {
					query, err = b.ChildrenQuery(lvl, parent)
				}
			default:
				return fmt.Errorf("unknown query kind %q: must be one of %v", kind, QueryKinds)
			}
			if err != nil {
				return err
			}

			return opts.formatter(cmd).Print(map[string]string{"kind": args[0], "query": query}, func(w io.Writer) error {
				_, err := io.WriteString(w, query)
				return err
			})
		},
	}

	sel.register(cmd)
	cmd.Flags().StringVar(&parent, "parent", "", "parent label for the children query")
	cmd.Flags().StringVar(&level, "level", "sub", "level for the children query (sub|end)")
	return cmd
}

func NewCategoriesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List top-level categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := opts.catalog(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			labels, err := catalog.Categories(commandContext(cmd))
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Labels("categories", labels)
		},
	}
}

func NewStoresCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := opts.catalog(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			labels, err := catalog.Stores(commandContext(cmd))
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Labels("stores", labels)
		},
	}
}

// NewChildrenCommand derives options for one or more parents, the same way
// the filter panel cascades.
func NewChildrenCommand(opts *RootOptions) *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "children <label>...",
		Short: "List subcategories or end categories of the given labels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := models.ParseCategoryLevel(level)
			if err != nil {
				return err
			}
			if lvl == models.LevelTop {
				return fmt.Errorf("--level must be sub or end")
			}
			catalog, err := opts.catalog(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			labels := catalog.ChildrenOfAll(commandContext(cmd), lvl, args)
			return opts.formatter(cmd).Labels("children", labels)
		},
	}
	cmd.Flags().StringVar(&level, "level", "sub", "level to derive (sub|end)")
	return cmd
}

func NewProductsCommand(opts *RootOptions) *cobra.Command {
	var sel selectionFlags

	cmd := &cobra.Command{
		Use:   "products",
		Short: "Fetch one page of filtered products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			selection, err := sel.selection()
			if err != nil {
				return err
			}
			if sel.page < 1 {
				return fmt.Errorf("--page must be at least 1")
			}
			catalog, err := opts.catalog(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			page, err := catalog.FetchListing(commandContext(cmd), selection, sel.page)
			if err != nil {
				return err
			}
			return opts.formatter(cmd).ProductPage(page)
		},
	}
	sel.register(cmd)
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
