package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// CategoryLevel is the depth of a category dropdown. "end" is a UI depth
// only; the triple store uses the same parent/subcategory relation for it.
type CategoryLevel int

const (
	LevelTop CategoryLevel = iota
	LevelSub
	LevelEnd
)

func (l CategoryLevel) String() string {
	switch l {
	case LevelTop:
		return "top"
	case LevelSub:
		return "sub"
	case LevelEnd:
		return "end"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseCategoryLevel accepts the names used by the HTTP API.
func ParseCategoryLevel(s string) (CategoryLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "top", "category", "categories":
		return LevelTop, nil
	case "sub", "subcategory", "sub_category", "subcategories":
		return LevelSub, nil
	case "end", "endcategory", "end_category", "endcategories":
		return LevelEnd, nil
	default:
		return 0, fmt.Errorf("unknown category level %q", s)
	}
}

// Bounds holds the optional numeric filters. A nil field imposes no
// restriction.
type Bounds struct {
	MinPrice    *float64 `json:"min_price,omitempty"`
	MaxPrice    *float64 `json:"max_price,omitempty"`
	MinDiscount *float64 `json:"min_discount,omitempty"`
	MaxDiscount *float64 `json:"max_discount,omitempty"`
}

func (b Bounds) Validate() error {
	for name, v := range map[string]*float64{
		"min_price": b.MinPrice, "max_price": b.MaxPrice,
		"min_discount": b.MinDiscount, "max_discount": b.MaxDiscount,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s must be a finite number", name)
		}
	}
	if b.MinPrice != nil && b.MaxPrice != nil && *b.MaxPrice < *b.MinPrice {
		return fmt.Errorf("maximum price cannot be less than minimum price")
	}
	if b.MinDiscount != nil && b.MaxDiscount != nil && *b.MaxDiscount < *b.MinDiscount {
		return fmt.Errorf("maximum discount cannot be less than minimum discount")
	}
	return nil
}

// FilterSelection is what the user picked in the filter panel. The sets are
// kept in selection order; renderers sort them.
type FilterSelection struct {
	Categories    []string `json:"categories"`
	SubCategories []string `json:"sub_categories"`
	EndCategories []string `json:"end_categories"`
	Stores        []string `json:"stores"`
	Bounds
}

// Clone returns a deep copy so state snapshots never share backing arrays.
func (f FilterSelection) Clone() FilterSelection {
	out := FilterSelection{
		Categories:    cloneStrings(f.Categories),
		SubCategories: cloneStrings(f.SubCategories),
		EndCategories: cloneStrings(f.EndCategories),
		Stores:        cloneStrings(f.Stores),
	}
	out.MinPrice = cloneFloat(f.MinPrice)
	out.MaxPrice = cloneFloat(f.MaxPrice)
	out.MinDiscount = cloneFloat(f.MinDiscount)
	out.MaxDiscount = cloneFloat(f.MaxDiscount)
	return out
}

// Selected returns the selection set for a category level.
func (f FilterSelection) Selected(level CategoryLevel) []string {
	switch level {
	case LevelTop:
		return f.Categories
	case LevelSub:
		return f.SubCategories
	case LevelEnd:
		return f.EndCategories
	}
	return nil
}

// EffectiveCategories applies the most-specific-wins rule: end categories,
// then subcategories, then top categories. The level reports which one won;
// ok is false when no category filter applies.
func (f FilterSelection) EffectiveCategories() (labels []string, level CategoryLevel, ok bool) {
	switch {
	case len(f.EndCategories) > 0:
		return f.EndCategories, LevelEnd, true
	case len(f.SubCategories) > 0:
		return f.SubCategories, LevelSub, true
	case len(f.Categories) > 0:
		return f.Categories, LevelTop, true
	}
	return nil, LevelTop, false
}

// PageState tracks the pagination cursor. CurrentPage is 1-based.
type PageState struct {
	PageSize    int `json:"page_size"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

func NewPageState(pageSize int) PageState {
	if pageSize < 1 {
		pageSize = 1
	}
	return PageState{PageSize: pageSize, CurrentPage: 1, TotalPages: 1}
}

func (p PageState) Offset() int {
	return (p.CurrentPage - 1) * p.PageSize
}

// TotalPages is ceil(total/pageSize), never less than 1.
func TotalPages(total, pageSize int) int {
	if pageSize < 1 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// Toggle adds label to set if absent and removes it otherwise. The input is
// never modified.
func Toggle(set []string, label string) []string {
	out := make([]string, 0, len(set)+1)
	found := false
	for _, s := range set {
		if s == label {
			found = true
			continue
		}
		out = append(out, s)
	}
	if !found {
		out = append(out, label)
	}
	return out
}

// Remove returns set without label.
func Remove(set []string, label string) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		if s != label {
			out = append(out, s)
		}
	}
	return out
}

func Contains(set []string, label string) bool {
	for _, s := range set {
		if s == label {
			return true
		}
	}
	return false
}

// SortedUnique returns the distinct values of set in ascending order.
func SortedUnique(set []string) []string {
	seen := make(map[string]struct{}, len(set))
	out := make([]string, 0, len(set))
	for _, s := range set {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
