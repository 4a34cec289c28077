// Package catalog defines the internal catalog representation and the
// conversion from raw upstream commerce items, including the image-domain
// allow-list applied before anything reaches a client.
package catalog

// Category is one node of the upstream category tree. Nodes with Parent 0
// are roots.
type Category struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Parent int    `json:"parent,omitempty"`
}

// Tag is a free-form product label.
type Tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Product is the internal catalog representation served to storefront
// clients. Price and OriginPrice pass through the pipeline unmodified;
// discount percentage is computed downstream as
// floor(100 - price/originPrice*100), so this layer must never rewrite
// either field (and callers guard the originPrice==0 division).
type Product struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Category    string     `json:"category"`
	Price       float64    `json:"price"`
	OriginPrice float64    `json:"originPrice"`
	Sale        bool       `json:"sale"`
	New         bool       `json:"new"`
	Rate        float64    `json:"rate"`
	Quantity    int        `json:"quantity"`
	ThumbImage  []string   `json:"thumbImage"`
	Images      []string   `json:"images"`
	Description string     `json:"description"`
	Categories  []Category `json:"categories,omitempty"`
	Tags        []Tag      `json:"tags,omitempty"`
	RelatedIDs  []int      `json:"related_ids,omitempty"`
}

// HasTag reports whether the product carries the tag, matched against
// slug first and name as a fallback.
func (p Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t.Slug == tag || t.Name == tag {
			return true
		}
	}
	return false
}
