package sparql

import "fmt"

const (
	RDFSNamespace = "http://www.w3.org/2000/01/rdf-schema#"
	XSDNamespace  = "http://www.w3.org/2001/XMLSchema#"
)

// Vocabulary names the classes and predicates of the catalog graph. Local
// names are resolved against Namespace under the "cat:" prefix.
type Vocabulary struct {
	Namespace string

	ProductClass  string
	CategoryClass string
	StoreClass    string

	Title           string
	SoldBy          string
	HasCategory     string
	HasSubCategory  string
	RegularPrice    string
	DiscountedPrice string
	DiscountPercent string
	URL             string
}

// DefaultVocabulary returns the catalog vocabulary rooted at namespace.
func DefaultVocabulary(namespace string) Vocabulary {
	return Vocabulary{
		Namespace:       namespace,
		ProductClass:    "Product",
		CategoryClass:   "Category",
		StoreClass:      "Store",
		Title:           "title",
		SoldBy:          "soldBy",
		HasCategory:     "hasCategory",
		HasSubCategory:  "hasSubCategory",
		RegularPrice:    "regularPrice",
		DiscountedPrice: "discountedPrice",
		DiscountPercent: "discountPercent",
		URL:             "url",
	}
}

func (v Vocabulary) prologue() string {
	return fmt.Sprintf("PREFIX cat: <%s>\nPREFIX rdfs: <%s>\nPREFIX xsd: <%s>\n",
		v.Namespace, RDFSNamespace, XSDNamespace)
}

func (v Vocabulary) term(local string) string {
	return "cat:" + local
}
