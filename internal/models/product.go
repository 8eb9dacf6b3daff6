package models

// Product is one grouped listing row: a product with all of its category
// labels folded into a single path.
type Product struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Store           string   `json:"store"`
	FullCategory    string   `json:"full_category"`
	CategoryPath    []string `json:"category_path,omitempty"`
	RegularPrice    float64  `json:"regular_price"`
	DiscountedPrice float64  `json:"discounted_price"`
	DiscountPercent float64  `json:"discount_percent"`
	URL             string   `json:"url"`
}

type ProductPage struct {
	Products   []Product        `json:"products"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
	NoResults  bool             `json:"no_results"`
	Filters    *FilterSelection `json:"filters,omitempty"`
	Duration   string           `json:"duration,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
