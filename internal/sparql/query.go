package sparql

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"catalog-browser-api/internal/models"
)

var (
	ErrInvalidPage      = errors.New("sparql: invalid page")
	ErrInvalidNumber    = errors.New("sparql: numeric bound must be finite")
	ErrInvalidNamespace = errors.New("sparql: namespace is not a valid IRI")
	ErrUnknownLevel     = errors.New("sparql: unknown category level")
)

// Result variable names shared by the builder and the row decoders.
const (
	VarProduct          = "product"
	VarTitle            = "title"
	VarStore            = "store"
	VarFullCategory     = "fullCategory"
	VarRegularPrice     = "regularPrice"
	VarDiscountedPrice  = "discountedPrice"
	VarDiscountPercent  = "discountPercent"
	VarURL              = "url"
	VarTotalCount       = "totalCount"
	VarCategoryLabel    = "categoryLabel"
	VarSubCategoryLabel = "subCategoryLabel"
	VarEndCategoryLabel = "endCategoryLabel"
	VarStoreLabel       = "storeLabel"
)

// CategoryPathSeparator joins the category labels of a product in
// fullCategory.
const CategoryPathSeparator = ">"

// Page is the window requested from the grouped, ordered product set.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

func (p Page) validate() error {
	if p.Number < 1 || p.Size < 1 {
		return fmt.Errorf("%w: page=%d size=%d", ErrInvalidPage, p.Number, p.Size)
	}
	if p.Number-1 > math.MaxInt/p.Size {
		return fmt.Errorf("%w: offset of page %d overflows", ErrInvalidPage, p.Number)
	}
	return nil
}

// Builder renders catalog queries. It is stateless apart from the vocabulary
// and safe for concurrent use. Identical inputs always render identical text.
type Builder struct {
	vocab Vocabulary
}

// NewBuilder creates a Builder for vocab.
func NewBuilder(vocab Vocabulary) (*Builder, error) {
	if vocab.Namespace == "" || strings.ContainsAny(vocab.Namespace, "<>\"{}|^`\\ \t\n") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNamespace, vocab.Namespace)
	}
	return &Builder{vocab: vocab}, nil
}

// ProductsQuery renders one page of products matching sel, grouped by product
// identity and ordered by title.
func (b *Builder) ProductsQuery(sel models.FilterSelection, page Page) (string, error) {
	if err := page.validate(); err != nil {
		return "", err
	}
	body, err := b.productsSelect(sel, page)
	if err != nil {
		return "", err
	}
	return b.vocab.prologue() + body, nil
}

// CountQuery renders the number of distinct products matching sel as
// ?totalCount.
func (b *Builder) CountQuery(sel models.FilterSelection) (string, error) {
	body, err := b.countSelect(sel)
	if err != nil {
		return "", err
	}
	return b.vocab.prologue() + body, nil
}

// ListingQuery joins the product page and the count into one query so every
// returned row carries ?totalCount. An empty page carries no count at all;
// callers must handle that case themselves.
func (b *Builder) ListingQuery(sel models.FilterSelection, page Page) (string, error) {
	if err := page.validate(); err != nil {
		return "", err
	}
	products, err := b.productsSelect(sel, page)
	if err != nil {
		return "", err
	}
	count, err := b.countSelect(sel)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(b.vocab.prologue())
	sb.WriteString("SELECT * WHERE {\n  {\n")
	sb.WriteString(indent(products, "    "))
	sb.WriteString("  }\n  {\n")
	sb.WriteString(indent(count, "    "))
	sb.WriteString("  }\n}\n")
	sb.WriteString("ORDER BY ASC(?" + VarTitle + ")\n")
	return sb.String(), nil
}

// CategoriesQuery lists top-level categories: categories that are nobody's
// subcategory.
func (b *Builder) CategoriesQuery() string {
	v := b.vocab
	return v.prologue() + fmt.Sprintf(`SELECT DISTINCT ?%[1]s WHERE {
  ?category a %[2]s ;
            rdfs:label ?%[1]s .
  FILTER NOT EXISTS { ?parent %[3]s ?category }
}
ORDER BY ?%[1]s
`, VarCategoryLabel, v.term(v.CategoryClass), v.term(v.HasSubCategory))
}

// SubCategoriesQuery lists the direct children of the category labelled
// parent.
func (b *Builder) SubCategoriesQuery(parent string) string {
	return b.childrenQuery(parent, VarSubCategoryLabel)
}

// EndCategoriesQuery is SubCategoriesQuery one level deeper; the graph uses
// the same relation for both.
func (b *Builder) EndCategoriesQuery(parent string) string {
	return b.childrenQuery(parent, VarEndCategoryLabel)
}

// ChildrenQuery dispatches on the level whose options are being derived.
func (b *Builder) ChildrenQuery(level models.CategoryLevel, parent string) (string, error) {
	switch level {
	case models.LevelSub:
		return b.SubCategoriesQuery(parent), nil
	case models.LevelEnd:
		return b.EndCategoriesQuery(parent), nil
	default:
		return "", fmt.Errorf("%w: %s has no parent level", ErrUnknownLevel, level)
	}
}

// StoresQuery lists all store labels.
func (b *Builder) StoresQuery() string {
	v := b.vocab
	return v.prologue() + fmt.Sprintf(`SELECT DISTINCT ?%[1]s WHERE {
  ?s a %[2]s ;
     rdfs:label ?%[1]s .
}
ORDER BY ?%[1]s
`, VarStoreLabel, v.term(v.StoreClass))
}

// LabelVar returns the result variable used by the lookup for level.
func LabelVar(level models.CategoryLevel) string {
	switch level {
	case models.LevelSub:
		return VarSubCategoryLabel
	case models.LevelEnd:
		return VarEndCategoryLabel
	default:
		return VarCategoryLabel
	}
}

func (b *Builder) childrenQuery(parent, labelVar string) string {
	v := b.vocab
	return v.prologue() + fmt.Sprintf(`SELECT DISTINCT ?%[1]s WHERE {
  ?parent rdfs:label %[2]s ;
          %[3]s ?child .
  ?child rdfs:label ?%[1]s .
}
ORDER BY ?%[1]s
`, labelVar, Literal(parent), v.term(v.HasSubCategory))
}

func (b *Builder) productsSelect(sel models.FilterSelection, page Page) (string, error) {
	where, err := b.wherePatterns(sel, true)
	if err != nil {
		return "", err
	}
	groupVars := []string{VarProduct, VarTitle, VarStore, VarRegularPrice, VarDiscountedPrice, VarDiscountPercent, VarURL}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT ?%s ?%s ?%s (GROUP_CONCAT(DISTINCT ?pathName; separator=%s) AS ?%s) ?%s ?%s ?%s ?%s WHERE {\n",
		VarProduct, VarTitle, VarStore, Literal(CategoryPathSeparator), VarFullCategory,
		VarRegularPrice, VarDiscountedPrice, VarDiscountPercent, VarURL)
	sb.WriteString(where)
	sb.WriteString("}\n")
	sb.WriteString("GROUP BY ?" + strings.Join(groupVars, " ?") + "\n")
	sb.WriteString("ORDER BY ASC(?" + VarTitle + ")\n")
	fmt.Fprintf(&sb, "OFFSET %d\nLIMIT %d\n", page.Offset(), page.Size)
	return sb.String(), nil
}

func (b *Builder) countSelect(sel models.FilterSelection) (string, error) {
	where, err := b.wherePatterns(sel, false)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT (COUNT(DISTINCT ?%s) AS ?%s) WHERE {\n", VarProduct, VarTotalCount)
	sb.WriteString(where)
	sb.WriteString("}\n")
	return sb.String(), nil
}

// wherePatterns renders the triple patterns and FILTERs shared by the page and
// count queries. withPath adds the pattern feeding fullCategory.
func (b *Builder) wherePatterns(sel models.FilterSelection, withPath bool) (string, error) {
	v := b.vocab
	var sb strings.Builder

	fmt.Fprintf(&sb, "  ?%s a %s ;\n", VarProduct, v.term(v.ProductClass))
	fmt.Fprintf(&sb, "      %s ?%s ;\n", v.term(v.Title), VarTitle)
	fmt.Fprintf(&sb, "      %s ?storeNode ;\n", v.term(v.SoldBy))
	fmt.Fprintf(&sb, "      %s ?cat ;\n", v.term(v.HasCategory))
	fmt.Fprintf(&sb, "      %s ?%s ;\n", v.term(v.RegularPrice), VarRegularPrice)
	fmt.Fprintf(&sb, "      %s ?%s ;\n", v.term(v.DiscountedPrice), VarDiscountedPrice)
	fmt.Fprintf(&sb, "      %s ?%s ;\n", v.term(v.DiscountPercent), VarDiscountPercent)
	fmt.Fprintf(&sb, "      %s ?%s .\n", v.term(v.URL), VarURL)
	fmt.Fprintf(&sb, "  ?storeNode rdfs:label ?%s .\n", VarStore)
	sb.WriteString("  ?cat rdfs:label ?catName .\n")
	if withPath {
		fmt.Fprintf(&sb, "  ?%s %s ?pathCat .\n", VarProduct, v.term(v.HasCategory))
		sb.WriteString("  ?pathCat rdfs:label ?pathName .\n")
	}

	if labels, _, ok := sel.EffectiveCategories(); ok {
		fmt.Fprintf(&sb, "  FILTER(?catName IN (%s))\n", LiteralList(labels))
	}
	if len(sel.Stores) > 0 {
		fmt.Fprintf(&sb, "  FILTER(?%s IN (%s))\n", VarStore, LiteralList(sel.Stores))
	}

	bounds := []struct {
		value *float64
		field string
		op    string
	}{
		{sel.MinPrice, VarRegularPrice, ">="},
		{sel.MaxPrice, VarRegularPrice, "<="},
		{sel.MinDiscount, VarDiscountPercent, ">="},
		{sel.MaxDiscount, VarDiscountPercent, "<="},
	}
	for _, bound := range bounds {
		if bound.value == nil {
			continue
		}
		num, err := Decimal(*bound.value)
		if err != nil {
			return "", fmt.Errorf("%s bound: %w", bound.field, err)
		}
		fmt.Fprintf(&sb, "  FILTER(xsd:decimal(?%s) %s %s)\n", bound.field, bound.op, num)
	}

	return sb.String(), nil
}

func indent(block, prefix string) string {
	lines := strings.Split(strings.TrimRight(block, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}
