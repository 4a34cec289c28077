package aggregator

import (
	"net/url"
	"strconv"
	"strings"
)

// Validation bounds. Out-of-range inputs are clamped before cache-key
// construction so that equivalent bad inputs collapse onto the same
// canonical key instead of fragmenting the cache.
const (
	MinPerPage     = 1
	MaxPerPage     = 100
	DefaultPerPage = 100 // maximize batch size to minimize upstream round-trips

	MinPage = 1
	MaxPage = 1000

	MinPrice = 0
	MaxPrice = 1_000_000
)

// DefaultFields is the field-selection list requested from the upstream
// when the caller does not pass one.
const DefaultFields = "id,name,slug,price,regular_price,sale_price,average_rating," +
	"stock_quantity,manage_stock,images,short_description,description," +
	"categories,attributes,tags,date_created,meta_data,related_ids"

// Query is the validated, clamped filter set of one listing request.
type Query struct {
	PerPage int
	Page    int

	Search  string
	OrderBy string
	Order   string
	Slug    string

	// Category is the raw category filter: a numeric id or a slug.
	Category string

	OnSale   bool
	PriceMin *int
	PriceMax *int

	// MergeAll requests the full first-through-last page concatenation.
	MergeAll bool

	RequireImages bool

	// Refresh bypasses the cache lookup (the write still happens).
	Refresh bool

	// No304 forces a 200 even when the conditional ETag matches.
	No304 bool

	Fields string
}

// ParseQuery validates and clamps raw request parameters into a Query.
func ParseQuery(v url.Values) Query {
	q := Query{
		PerPage:       clampInt(v.Get("per_page"), MinPerPage, MaxPerPage, DefaultPerPage),
		Page:          clampInt(v.Get("page"), MinPage, MaxPage, 1),
		Search:        v.Get("search"),
		OrderBy:       v.Get("orderby"),
		Order:         v.Get("order"),
		Slug:          v.Get("slug"),
		Category:      v.Get("category"),
		OnSale:        boolParam(v, "on_sale"),
		MergeAll:      strings.ToLower(v.Get("merge")) != "false",
		RequireImages: boolParam(v, "require_images"),
		Refresh:       boolParam(v, "refresh"),
		No304:         boolParam(v, "no304"),
		Fields:        normalizeFields(v.Get("_fields")),
	}

	if raw := v.Get("price_min"); raw != "" {
		n := clampInt(raw, MinPrice, MaxPrice, 0)
		q.PriceMin = &n
	}
	if raw := v.Get("price_max"); raw != "" {
		n := clampInt(raw, MinPrice, MaxPrice, 0)
		q.PriceMax = &n
	}

	return q
}

// normalizeFields applies the default field list and force-includes the
// fields downstream conversion depends on.
func normalizeFields(fields string) string {
	if fields == "" {
		return DefaultFields
	}
	for _, required := range []string{"meta_data", "categories"} {
		if !strings.Contains(fields, required) {
			fields += "," + required
		}
	}
	return fields
}

func clampInt(raw string, min, max, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func boolParam(v url.Values, name string) bool {
	return strings.ToLower(v.Get(name)) == "true"
}
