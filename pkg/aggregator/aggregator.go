// Package aggregator merges paginated upstream catalog pages into a
// single listing, applies image and availability filters, and caches
// the raw result under a deterministic, version-scoped key.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/pixypic/catalog-cache/pkg/cache"
	"github.com/pixypic/catalog-cache/pkg/catalog"
	"github.com/pixypic/catalog-cache/pkg/category"
	"github.com/pixypic/catalog-cache/pkg/logging"
	"github.com/pixypic/catalog-cache/pkg/upstream"
)

var (
	listingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_listings_total",
		Help: "Total number of listing requests by cache outcome",
	}, []string{"outcome"})

	mergePagesFetched = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_merge_pages_fetched",
		Help:    "Number of upstream pages fetched per merge-all listing",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
	})

	mergeCapReached = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_merge_cap_reached_total",
		Help: "Total number of merge-all fetches truncated by the item cap",
	})

	emptySuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_empty_success_total",
		Help: "Total number of listings that resolved to zero presentable products",
	})
)

// Upstream is the slice of the commerce API the aggregator consumes.
type Upstream interface {
	Products(ctx context.Context, params url.Values) ([]json.RawMessage, upstream.PageInfo, error)
	CategoryBySlug(ctx context.Context, slug string) (*catalog.Category, error)
}

// DescendantResolver expands a category id into the id plus all
// descendant ids.
type DescendantResolver interface {
	Descendants(ctx context.Context, root int) []int
}

// Config tunes cache behavior of one Aggregator.
type Config struct {
	// Namespace scopes cache keys and version counters. Defaults to
	// "products".
	Namespace string

	// TTL is the default lifetime of a cached listing.
	TTL time.Duration

	// EmptyTTL is the short lifetime used when a listing succeeded
	// upstream but produced no presentable products, so transient
	// gaps recover quickly.
	EmptyTTL time.Duration

	// PreferredTTL is the extended lifetime for the storefront's
	// hottest shape: single first page with images required.
	PreferredTTL time.Duration

	// StaleAfter marks cache hits older than this as stale without
	// refusing to serve them. Zero disables the flag.
	StaleAfter time.Duration

	// MaxTotalItems caps merge-all accumulation. The fetch loop stops
	// once the cap is reached and serves the truncated listing.
	// Zero or negative means no cap.
	MaxTotalItems int
}

// DefaultConfig returns the production cache policy.
func DefaultConfig() Config {
	return Config{
		Namespace:     "products",
		TTL:           2 * time.Minute,
		EmptyTTL:      30 * time.Second,
		PreferredTTL:  10 * time.Minute,
		StaleAfter:    5 * time.Minute,
		MaxTotalItems: 10000,
	}
}

// Result is one aggregated listing ready for the HTTP layer.
type Result struct {
	Products   []catalog.Product
	Total      int
	TotalPages int
	PerPage    int

	CacheHit         bool
	Stale            bool
	StoreName        string
	NamespaceVersion int64

	// EmptyImageCount is the number of served products whose image
	// list the allowlist emptied out.
	EmptyImageCount int
}

// Aggregator orchestrates category resolution, upstream fetching,
// conversion, filtering and caching for listing requests.
type Aggregator struct {
	upstream Upstream
	cache    *cache.Cache
	versions cache.Versions
	resolver DescendantResolver
	images   *catalog.ImageFilter
	cfg      Config
	logger   zerolog.Logger
}

// New creates an Aggregator. Zero-valued Config fields fall back to
// DefaultConfig.
func New(up Upstream, c *cache.Cache, versions cache.Versions, resolver DescendantResolver, images *catalog.ImageFilter, cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.Namespace == "" {
		cfg.Namespace = def.Namespace
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.EmptyTTL <= 0 {
		cfg.EmptyTTL = def.EmptyTTL
	}
	if cfg.PreferredTTL <= 0 {
		cfg.PreferredTTL = def.PreferredTTL
	}

	return &Aggregator{
		upstream: up,
		cache:    c,
		versions: versions,
		resolver: resolver,
		images:   images,
		cfg:      cfg,
		logger:   logging.NewLogger("aggregator"),
	}
}

// List serves one aggregated listing, from cache when possible.
func (a *Aggregator) List(ctx context.Context, q Query) (*Result, error) {
	categoryID, categoryOK := a.resolveCategory(ctx, q.Category)
	categoryParam := ""
	if categoryOK {
		categoryParam = category.JoinIDs(a.resolver.Descendants(ctx, categoryID))
	}

	version, err := a.versions.Current(ctx, a.cfg.Namespace)
	if err != nil {
		// A version read failure must not take listings down; fall
		// back to the seed version and keep serving.
		a.logger.Warn().Err(err).Msg("namespace version unavailable, using seed")
		version = 1
	}

	key := a.buildKey(q, version, categoryID, categoryOK).String()

	if !q.Refresh {
		if entry, err := a.cache.GetEntry(ctx, key); err == nil {
			listingsTotal.WithLabelValues("hit").Inc()
			return a.assemble(entry, q, version, true), nil
		}
	}

	items, info, err := a.fetchAll(ctx, q, categoryParam)
	if err != nil {
		listingsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetching products: %w", err)
	}
	listingsTotal.WithLabelValues("miss").Inc()

	entry := &cache.Entry{
		Items:      items,
		Total:      info.Total,
		TotalPages: info.TotalPages,
		StoredAt:   time.Now(),
	}
	result := a.assemble(entry, q, version, false)

	// Only successful fetches that produced raw items are cached.
	// Caching a zero-item payload would pin outages or bad filters
	// for a full TTL.
	if len(items) > 0 {
		a.cache.SetEntry(ctx, key, entry, a.pickTTL(q, result))
	}

	return result, nil
}

// Invalidate bumps the namespace version, making every cached listing
// key unreachable at once.
func (a *Aggregator) Invalidate(ctx context.Context) (int64, error) {
	return a.versions.Bump(ctx, a.cfg.Namespace)
}

// Flush physically deletes every cached listing in the namespace and
// returns the number of removed entries. Unlike Invalidate it reclaims
// store memory immediately.
func (a *Aggregator) Flush(ctx context.Context) (int, error) {
	return a.cache.Clear(ctx, cache.NamespacePrefix(a.cfg.Namespace))
}

// Version returns the namespace's current cache version.
func (a *Aggregator) Version(ctx context.Context) (int64, error) {
	return a.versions.Current(ctx, a.cfg.Namespace)
}

// StoreName names the backing cache store.
func (a *Aggregator) StoreName() string {
	return a.cache.StoreName()
}

// resolveCategory turns the raw category filter into an id by trying
// each resolution strategy in order. A failed lookup drops the filter
// rather than failing the listing.
func (a *Aggregator) resolveCategory(ctx context.Context, raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	for _, strategy := range []func(context.Context, string) (int, bool){
		a.categoryByID,
		a.categoryBySlug,
	} {
		if id, ok := strategy(ctx, raw); ok {
			return id, true
		}
	}
	a.logger.Warn().Str("category", raw).Msg("category filter unresolvable, dropping")
	return 0, false
}

func (a *Aggregator) categoryByID(_ context.Context, raw string) (int, bool) {
	id, err := strconv.Atoi(raw)
	return id, err == nil && id > 0
}

func (a *Aggregator) categoryBySlug(ctx context.Context, raw string) (int, bool) {
	cat, err := a.upstream.CategoryBySlug(ctx, raw)
	if err != nil {
		a.logger.Warn().Err(err).Str("slug", raw).Msg("category slug lookup failed")
		return 0, false
	}
	if cat == nil {
		return 0, false
	}
	return cat.ID, true
}

// buildKey derives the canonical cache key. Only non-default filters
// contribute fields; page is excluded in merge mode because the merged
// listing is page-independent.
func (a *Aggregator) buildKey(q Query, version int64, categoryID int, categoryOK bool) cache.Key {
	fields := map[string]string{
		"per_page": strconv.Itoa(q.PerPage),
		"_fields":  q.Fields,
	}
	if !q.MergeAll {
		fields["page"] = strconv.Itoa(q.Page)
		fields["merge"] = "false"
	}
	if q.Search != "" {
		fields["search"] = q.Search
	}
	if q.OrderBy != "" {
		fields["orderby"] = q.OrderBy
	}
	if q.Order != "" {
		fields["order"] = q.Order
	}
	if q.Slug != "" {
		fields["slug"] = q.Slug
	}
	if categoryOK {
		fields["category"] = strconv.Itoa(categoryID)
	}
	if q.OnSale {
		fields["on_sale"] = "true"
	}
	if q.PriceMin != nil {
		fields["price_min"] = strconv.Itoa(*q.PriceMin)
	}
	if q.PriceMax != nil {
		fields["price_max"] = strconv.Itoa(*q.PriceMax)
	}
	if q.RequireImages {
		fields["require_images"] = "true"
	}

	return cache.Key{Namespace: a.cfg.Namespace, Version: version, Fields: fields}
}

// fetchAll fetches the requested page, or in merge mode every page
// from the first to the last, appending batches in page order.
func (a *Aggregator) fetchAll(ctx context.Context, q Query, categoryParam string) ([]json.RawMessage, upstream.PageInfo, error) {
	if !q.MergeAll {
		return a.upstream.Products(ctx, a.productParams(q, categoryParam, q.Page))
	}

	var (
		all  []json.RawMessage
		info upstream.PageInfo
	)
	page, fetched := 1, 0
	for {
		batch, pi, err := a.upstream.Products(ctx, a.productParams(q, categoryParam, page))
		if err != nil {
			return nil, info, err
		}
		all = append(all, batch...)
		fetched++

		// Pagination headers are trusted only when strictly positive;
		// later pages may omit them without erasing known totals.
		if pi.Total > 0 {
			info.Total = pi.Total
		}
		if pi.TotalPages > 0 {
			info.TotalPages = pi.TotalPages
		}

		if a.cfg.MaxTotalItems > 0 && len(all) >= a.cfg.MaxTotalItems {
			mergeCapReached.Inc()
			a.logger.Warn().
				Int("items", len(all)).
				Int("cap", a.cfg.MaxTotalItems).
				Msg("merge-all item cap reached, truncating listing")
			break
		}

		page++
		if info.TotalPages > 0 {
			if page > info.TotalPages {
				break
			}
		} else if len(batch) != q.PerPage {
			// No page count known: a short batch is the last page.
			break
		}
	}
	mergePagesFetched.Observe(float64(fetched))
	return all, info, nil
}

func (a *Aggregator) productParams(q Query, categoryParam string, page int) url.Values {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(q.PerPage))
	params.Set("page", strconv.Itoa(page))
	params.Set("_fields", q.Fields)
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.OrderBy != "" {
		params.Set("orderby", q.OrderBy)
	}
	if q.Order != "" {
		params.Set("order", q.Order)
	}
	if q.Slug != "" {
		params.Set("slug", q.Slug)
	}
	if categoryParam != "" {
		params.Set("category", categoryParam)
	}
	if q.OnSale {
		params.Set("on_sale", "true")
	}
	if q.PriceMin != nil {
		params.Set("min_price", strconv.Itoa(*q.PriceMin))
	}
	if q.PriceMax != nil {
		params.Set("max_price", strconv.Itoa(*q.PriceMax))
	}
	return params
}

// assemble converts the raw entry into the response representation.
// Conversion and filtering run on both the hit and miss paths so the
// same entry always yields the same body, and with it the same ETag.
func (a *Aggregator) assemble(entry *cache.Entry, q Query, version int64, hit bool) *Result {
	products := catalog.FromRawList(entry.Items)

	emptyImages := 0
	served := make([]catalog.Product, 0, len(products))
	for _, p := range products {
		p = a.images.Apply(p)
		if len(p.Images) == 0 {
			if q.RequireImages {
				continue
			}
			emptyImages++
		}
		served = append(served, p)
	}

	if len(served) == 0 || emptyImages == len(served) {
		emptySuccessTotal.Inc()
	}

	result := &Result{
		Products:         served,
		Total:            entry.Total,
		TotalPages:       entry.TotalPages,
		PerPage:          q.PerPage,
		CacheHit:         hit,
		StoreName:        a.cache.StoreName(),
		NamespaceVersion: version,
		EmptyImageCount:  emptyImages,
	}
	if hit {
		result.Stale = entry.IsStale(a.cfg.StaleAfter)
	}
	return result
}

// pickTTL selects the listing's cache lifetime.
func (a *Aggregator) pickTTL(q Query, r *Result) time.Duration {
	emptySuccess := len(r.Products) == 0 || r.EmptyImageCount == len(r.Products)
	switch {
	case emptySuccess:
		return a.cfg.EmptyTTL
	case !q.MergeAll && q.Page == 1 && q.RequireImages:
		return a.cfg.PreferredTTL
	default:
		return a.cfg.TTL
	}
}
