package sparql

import (
	"math"
	"sort"
	"strings"

	"catalog-browser-api/pkg/utils"
)

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\b", `\b`,
	"\f", `\f`,
)

// Literal renders s as a double-quoted SPARQL string literal. Every label that
// ends up in query text must pass through here.
func Literal(s string) string {
	return `"` + literalEscaper.Replace(s) + `"`
}

// LiteralList renders the distinct values of labels, sorted, as a
// comma-separated list of literals suitable for an IN (...) expression.
func LiteralList(labels []string) string {
	uniq := make(map[string]struct{}, len(labels))
	sorted := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := uniq[l]; ok {
			continue
		}
		uniq[l] = struct{}{}
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)

	parts := make([]string, len(sorted))
	for i, l := range sorted {
		parts[i] = Literal(l)
	}
	return strings.Join(parts, ", ")
}

// Decimal renders v as an unquoted xsd:decimal numeral.
func Decimal(v float64) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", ErrInvalidNumber
	}
	return utils.FormatDecimal(v), nil
}
