package controller

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"catalog-browser-api/internal/models"
)

var (
	ErrInvalidPageInput = errors.New("page must be a whole number")
	ErrUnknownFacet     = errors.New("unknown filter facet")
)

const (
	msgCategoriesFailed = "Failed to load categories"
	msgStoresFailed     = "Failed to load stores"
	msgProductsFailed   = "Failed to load products"
)

// Facet identifies one selectable dimension of the filter panel.
type Facet string

const (
	FacetCategory    Facet = "top"
	FacetSubCategory Facet = "sub"
	FacetEndCategory Facet = "end"
	FacetStore       Facet = "store"
)

func ParseFacet(s string) (Facet, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "store", "stores":
		return FacetStore, nil
	}
	level, err := models.ParseCategoryLevel(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownFacet, s)
	}
	return facetForLevel(level), nil
}

func facetForLevel(level models.CategoryLevel) Facet {
	switch level {
	case models.LevelSub:
		return FacetSubCategory
	case models.LevelEnd:
		return FacetEndCategory
	default:
		return FacetCategory
	}
}

// LookupKind names the independent lookups issued on initial load.
type LookupKind int

const (
	LookupCategories LookupKind = iota
	LookupStores
)

// Generations tag asynchronous work. A completion is applied only when its
// tag still equals the latest one issued for the same kind of work.
type Generations struct {
	Sub     uint64
	End     uint64
	Listing uint64
}

// State is one snapshot of a browsing session. Transition functions never
// modify their input; they return a new snapshot.
type State struct {
	Categories    []string `json:"categories"`
	SubCategories []string `json:"sub_categories"`
	EndCategories []string `json:"end_categories"`
	Stores        []string `json:"stores"`

	Selection models.FilterSelection `json:"selection"`
	Page      models.PageState       `json:"page"`

	Products   []models.Product `json:"products"`
	TotalCount int              `json:"total_count"`
	Loading    bool             `json:"loading"`
	NoResults  bool             `json:"no_results"`
	Error      string           `json:"error,omitempty"`

	Generations Generations `json:"-"`
}

// CascadeRequest asks for the options at Level to be re-derived from Parents.
type CascadeRequest struct {
	Level      models.CategoryLevel
	Parents    []string
	Generation uint64
}

// ListingRequest asks for a page of products. FollowUp marks a refetch issued
// by ApplyListing; at most one is issued per user action.
type ListingRequest struct {
	Selection  models.FilterSelection
	Page       int
	Generation uint64
	FollowUp   bool
}

func NewState(pageSize int) State {
	return State{
		Categories:    []string{},
		SubCategories: []string{},
		EndCategories: []string{},
		Stores:        []string{},
		Products:      []models.Product{},
		Page:          models.NewPageState(pageSize),
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Categories = cloneStrings(s.Categories)
	out.SubCategories = cloneStrings(s.SubCategories)
	out.EndCategories = cloneStrings(s.EndCategories)
	out.Stores = cloneStrings(s.Stores)
	out.Selection = s.Selection.Clone()
	out.Products = append([]models.Product(nil), s.Products...)
	if out.Products == nil {
		out.Products = []models.Product{}
	}
	return out
}

// Toggle dispatches to the toggle for facet.
func Toggle(s State, facet Facet, label string) (State, *CascadeRequest, error) {
	switch facet {
	case FacetCategory:
		next, req := ToggleCategory(s, label)
		return next, req, nil
	case FacetSubCategory:
		next, req := ToggleSubCategory(s, label)
		return next, req, nil
	case FacetEndCategory:
		return ToggleEndCategory(s, label), nil, nil
	case FacetStore:
		return ToggleStore(s, label), nil, nil
	}
	return s, nil, fmt.Errorf("%w: %q", ErrUnknownFacet, facet)
}

// ToggleCategory flips a top category. Subcategory options are re-derived
// from every selected top category; both deeper selections and the end
// options are cleared. With nothing left selected no lookup is needed.
func ToggleCategory(s State, label string) (State, *CascadeRequest) {
	next := s.Clone()
	next.Selection.Categories = models.Toggle(next.Selection.Categories, label)
	next.Selection.SubCategories = []string{}
	next.Selection.EndCategories = []string{}
	next.EndCategories = []string{}
	next.Generations.Sub++
	next.Generations.End++

	if len(next.Selection.Categories) == 0 {
		next.SubCategories = []string{}
		return next, nil
	}
	return next, &CascadeRequest{
		Level:      models.LevelSub,
		Parents:    cloneStrings(next.Selection.Categories),
		Generation: next.Generations.Sub,
	}
}

// ToggleSubCategory flips a subcategory and re-derives the end options from
// the whole subcategory selection.
func ToggleSubCategory(s State, label string) (State, *CascadeRequest) {
	next := s.Clone()
	next.Selection.SubCategories = models.Toggle(next.Selection.SubCategories, label)
	next.Selection.EndCategories = []string{}
	next.Generations.End++

	if len(next.Selection.SubCategories) == 0 {
		next.EndCategories = []string{}
		return next, nil
	}
	return next, &CascadeRequest{
		Level:      models.LevelEnd,
		Parents:    cloneStrings(next.Selection.SubCategories),
		Generation: next.Generations.End,
	}
}

func ToggleEndCategory(s State, label string) State {
	next := s.Clone()
	next.Selection.EndCategories = models.Toggle(next.Selection.EndCategories, label)
	return next
}

func ToggleStore(s State, label string) State {
	next := s.Clone()
	next.Selection.Stores = models.Toggle(next.Selection.Stores, label)
	return next
}

// RemoveChip deselects label with the same cascade as toggling it off. A
// label that is not selected leaves the state untouched.
func RemoveChip(s State, facet Facet, label string) (State, *CascadeRequest, error) {
	var selected []string
	switch facet {
	case FacetCategory:
		selected = s.Selection.Categories
	case FacetSubCategory:
		selected = s.Selection.SubCategories
	case FacetEndCategory:
		selected = s.Selection.EndCategories
	case FacetStore:
		selected = s.Selection.Stores
	default:
		return s, nil, fmt.Errorf("%w: %q", ErrUnknownFacet, facet)
	}
	if !models.Contains(selected, label) {
		return s, nil, nil
	}
	return Toggle(s, facet, label)
}

// SetBounds replaces the numeric filters. They take effect on the next apply.
func SetBounds(s State, b models.Bounds) (State, error) {
	if err := b.Validate(); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Selection.Bounds = models.FilterSelection{Bounds: b}.Clone().Bounds
	return next, nil
}

// ApplyFilters resets to page 1 and requests a fresh listing.
func ApplyFilters(s State) (State, ListingRequest) {
	next := s.Clone()
	next.Page.CurrentPage = 1
	return BeginListing(next)
}

// GoToPage clamps target to [1, TotalPages] and requests that page.
func GoToPage(s State, target int) (State, ListingRequest) {
	next := s.Clone()
	next.Page.CurrentPage = clampPage(target, next.Page.TotalPages)
	return BeginListing(next)
}

func NextPage(s State) (State, ListingRequest) {
	return GoToPage(s, s.Page.CurrentPage+1)
}

func PrevPage(s State) (State, ListingRequest) {
	return GoToPage(s, s.Page.CurrentPage-1)
}

// ParsePageInput parses a page number typed by the user.
func ParsePageInput(input string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPageInput, input)
	}
	return n, nil
}

// BeginListing marks a listing as in flight and supersedes any earlier one.
func BeginListing(s State) (State, ListingRequest) {
	next := s.Clone()
	next.Loading = true
	next.Error = ""
	next.Generations.Listing++
	return next, ListingRequest{
		Selection:  next.Selection.Clone(),
		Page:       next.Page.CurrentPage,
		Generation: next.Generations.Listing,
	}
}

// ApplyListing publishes a fetched page. Stale results are dropped
// (applied=false). When the page came back empty although products exist,
// either the cursor is beyond the last page or the page and count queries saw
// different data. The cursor is clamped and one follow-up request is
// returned; the result of that follow-up is published as is.
func ApplyListing(s State, req ListingRequest, products []models.Product, total int) (next State, followUp *ListingRequest, applied bool) {
	if req.Generation != s.Generations.Listing {
		return s, nil, false
	}

	next = s.Clone()
	next.TotalCount = total
	next.Page.TotalPages = models.TotalPages(total, next.Page.PageSize)

	if len(products) == 0 && total > 0 && !req.FollowUp {
		var lr ListingRequest
		next.Page.CurrentPage = clampPage(req.Page, next.Page.TotalPages)
		next, lr = BeginListing(next)
		lr.FollowUp = true
		return next, &lr, true
	}

	next.Loading = false
	next.Products = append([]models.Product{}, products...)
	next.Page.CurrentPage = clampPage(req.Page, next.Page.TotalPages)
	next.NoResults = total == 0
	if next.NoResults {
		next.Page.CurrentPage = 1
	}
	return next, nil, true
}

// FailListing records a failed listing. Products already shown stay.
func FailListing(s State, req ListingRequest) (State, bool) {
	if req.Generation != s.Generations.Listing {
		return s, false
	}
	next := s.Clone()
	next.Loading = false
	next.Error = msgProductsFailed
	return next, true
}

// ApplyCascade publishes re-derived options unless a newer cascade for the
// same level has been issued since req.
func ApplyCascade(s State, req CascadeRequest, labels []string) (State, bool) {
	next := s.Clone()
	switch req.Level {
	case models.LevelSub:
		if req.Generation != s.Generations.Sub {
			return s, false
		}
		next.SubCategories = models.SortedUnique(labels)
	case models.LevelEnd:
		if req.Generation != s.Generations.End {
			return s, false
		}
		next.EndCategories = models.SortedUnique(labels)
	default:
		return s, false
	}
	return next, true
}

func ApplyLookup(s State, kind LookupKind, labels []string) State {
	next := s.Clone()
	switch kind {
	case LookupCategories:
		next.Categories = cloneStrings(labels)
	case LookupStores:
		next.Stores = cloneStrings(labels)
	}
	return next
}

func FailLookup(s State, kind LookupKind) State {
	next := s.Clone()
	switch kind {
	case LookupCategories:
		next.Error = msgCategoriesFailed
	case LookupStores:
		next.Error = msgStoresFailed
	}
	return next
}

func clampPage(target, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if target < 1 {
		return 1
	}
	if target > totalPages {
		return totalPages
	}
	return target
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
