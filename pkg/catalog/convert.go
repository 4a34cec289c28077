package catalog

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// newProductWindow is how recently a product must have been created to
// carry the "new" badge.
const newProductWindow = 30 * 24 * time.Hour

// defaultQuantity is assumed when the upstream does not manage stock.
const defaultQuantity = 100

// rawImage is the upstream image object; only the source URL matters here.
type rawImage struct {
	Src string `json:"src"`
}

// RawProduct mirrors the upstream commerce API product shape. Prices come
// over the wire as strings.
type RawProduct struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	Price         string     `json:"price"`
	RegularPrice  string     `json:"regular_price"`
	SalePrice     string     `json:"sale_price"`
	AverageRating string     `json:"average_rating"`
	StockQuantity *int       `json:"stock_quantity"`
	ManageStock   bool       `json:"manage_stock"`
	Images        []rawImage `json:"images"`
	ShortDesc     string     `json:"short_description"`
	Description   string     `json:"description"`
	Categories    []Category `json:"categories"`
	Tags          []Tag      `json:"tags"`
	DateCreated   string     `json:"date_created"`
	RelatedIDs    []int      `json:"related_ids"`
}

// FromRaw converts one upstream product to the internal representation.
//
// Price semantics: price prefers the live price, then sale price, then
// regular price; originPrice prefers regular price. The sale flag requires
// an actual discount, not just a sale price equal to the regular one.
func FromRaw(p RawProduct) Product {
	price := firstPositive(p.Price, p.SalePrice, p.RegularPrice)
	originPrice := firstPositive(p.RegularPrice, p.Price)
	if originPrice == 0 {
		originPrice = price
	}
	sale := toNumber(p.SalePrice) > 0 && originPrice > price

	images := dedupe(collectImageURLs(p.Images))

	quantity := defaultQuantity
	if p.StockQuantity != nil && *p.StockQuantity >= 0 {
		quantity = *p.StockQuantity
	}

	category := "general"
	if len(p.Categories) > 0 {
		if slug := p.Categories[0].Slug; slug != "" {
			category = strings.ToLower(slug)
		} else if name := p.Categories[0].Name; name != "" {
			category = strings.ToLower(name)
		}
	}

	desc := p.Description
	if desc == "" {
		desc = p.ShortDesc
	}

	slug := p.Slug
	if slug == "" {
		slug = strconv.Itoa(p.ID)
	}

	out := Product{
		ID:          strconv.Itoa(p.ID),
		Name:        p.Name,
		Slug:        slug,
		Category:    category,
		Price:       price,
		OriginPrice: originPrice,
		Sale:        sale,
		New:         isNew(p.DateCreated),
		Rate:        toNumber(p.AverageRating),
		Quantity:    quantity,
		Images:      images,
		Description: desc,
		Categories:  p.Categories,
		Tags:        p.Tags,
		RelatedIDs:  p.RelatedIDs,
	}
	if len(images) > 0 {
		out.ThumbImage = []string{images[0]}
	} else {
		out.ThumbImage = []string{}
	}
	return out
}

// FromRawList decodes and converts a batch of raw upstream items. Items
// that fail to decode are skipped with a warning rather than failing the
// whole listing.
func FromRawList(items []json.RawMessage) []Product {
	out := make([]Product, 0, len(items))
	for _, item := range items {
		var raw RawProduct
		if err := json.Unmarshal(item, &raw); err != nil {
			log.Warn().Err(err).Msg("Skipping undecodable upstream product")
			continue
		}
		out = append(out, FromRaw(raw))
	}
	return out
}

func collectImageURLs(images []rawImage) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if strings.HasPrefix(img.Src, "http") {
			out = append(out, img.Src)
		}
	}
	return out
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func toNumber(s string) float64 {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return n
}

func firstPositive(candidates ...string) float64 {
	for _, c := range candidates {
		if n := toNumber(c); n > 0 {
			return n
		}
	}
	return 0
}

func isNew(dateCreated string) bool {
	if dateCreated == "" {
		return false
	}
	created, err := time.Parse("2006-01-02T15:04:05", dateCreated)
	if err != nil {
		if created, err = time.Parse(time.RFC3339, dateCreated); err != nil {
			return false
		}
	}
	return time.Since(created) < newProductWindow
}
