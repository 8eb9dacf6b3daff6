package utils

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numberPattern  = regexp.MustCompile(`-?\d{1,3}(?:,\d{3})+(?:\.\d+)?|-?\d+(?:[.,]\d+)?`)
	groupedPattern = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
)

// ParsePrice converts a price literal such as "1,299.00" or "€ 49,90" to
// float64. Unparseable input yields 0.
func ParsePrice(priceStr string) float64 {
	v, ok := ParseDecimal(priceStr)
	if !ok {
		return 0
	}
	return v
}

// ParsePercent converts "15" or "15.5%" style discount values. The result is
// on the scale the discount bounds are compared against, so "0.5" is half a
// percent.
func ParsePercent(percentStr string) float64 {
	v, ok := ParseDecimal(percentStr)
	if !ok {
		return 0
	}
	return v
}

// ParseDecimal extracts the first decimal number from s. Commas grouping
// thousands ("1,299.00") are dropped; a single comma before the fraction
// ("49,90") is read as the decimal point.
func ParseDecimal(s string) (float64, bool) {
	match := numberPattern.FindString(strings.TrimSpace(s))
	if match == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(normalizeNumber(match), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseBound parses an optional user-entered bound. Empty input means "no
// bound" and returns nil without error.
func ParseBound(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(normalizeNumber(s), 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func normalizeNumber(s string) string {
	if groupedPattern.MatchString(s) {
		return strings.ReplaceAll(s, ",", "")
	}
	return strings.Replace(s, ",", ".", 1)
}

// FormatDecimal renders v as a plain decimal numeral (no exponent).
func FormatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
