// Package client is the storefront-side consumer of the catalog
// endpoint. It coalesces concurrent page renders onto single HTTP
// fetches and keeps recent listings warm with a stale fallback, so a
// burst of visitors costs one request per distinct listing shape.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pixypic/catalog-cache/pkg/catalog"
	"github.com/pixypic/catalog-cache/pkg/coalesce"
	"github.com/pixypic/catalog-cache/pkg/logging"
)

// DefaultTimeout bounds one listing fetch.
const DefaultTimeout = 15 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is the catalog endpoint root, e.g. "https://shop.pixypic.net/api".
	BaseURL string

	// Timeout bounds each HTTP request. Zero means DefaultTimeout.
	Timeout time.Duration

	// TTL and StaleTTL tune the coalescer's freshness and fallback
	// windows. Zero means the coalesce package defaults.
	TTL      time.Duration
	StaleTTL time.Duration
}

// Client fetches aggregated product listings.
type Client struct {
	baseURL    string
	httpClient *http.Client
	coalescer  *coalesce.Coalescer[[]catalog.Product]
	logger     zerolog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		coalescer:  coalesce.New[[]catalog.Product](cfg.TTL, cfg.StaleTTL),
		logger:     logging.NewLogger("client"),
	}, nil
}

// SetHTTPClient replaces the underlying HTTP client, for tests.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// ProductsByCategory returns up to limit products of one category.
// Results are shared across concurrent callers and degrade to a stale
// or empty listing rather than an error.
func (c *Client) ProductsByCategory(ctx context.Context, category string, limit int) []catalog.Product {
	key := fmt.Sprintf("category-%s-%d", category, limit)
	return c.coalescer.Fetch(ctx, key, func(ctx context.Context) ([]catalog.Product, error) {
		params := url.Values{}
		if category != "" {
			params.Set("category", category)
		}
		return c.fetch(ctx, params, limit)
	})
}

// ProductsByCategoryAndTag narrows a category listing to one tag.
func (c *Client) ProductsByCategoryAndTag(ctx context.Context, category, tag string, limit int) []catalog.Product {
	key := fmt.Sprintf("category-%s-tag-%s-%d", category, tag, limit)
	return c.coalescer.Fetch(ctx, key, func(ctx context.Context) ([]catalog.Product, error) {
		params := url.Values{}
		if category != "" {
			params.Set("category", category)
		}
		products, err := c.fetch(ctx, params, 0)
		if err != nil {
			return nil, err
		}
		matched := make([]catalog.Product, 0, limit)
		for _, p := range products {
			if p.HasTag(tag) {
				matched = append(matched, p)
				if limit > 0 && len(matched) == limit {
					break
				}
			}
		}
		return matched, nil
	})
}

// ProductBySlug returns the product with the given slug, or nil if it
// does not exist or the fetch failed.
func (c *Client) ProductBySlug(ctx context.Context, slug string) *catalog.Product {
	key := "slug-" + slug
	products := c.coalescer.Fetch(ctx, key, func(ctx context.Context) ([]catalog.Product, error) {
		params := url.Values{}
		params.Set("slug", slug)
		return c.fetch(ctx, params, 1)
	})
	if len(products) == 0 {
		return nil
	}
	return &products[0]
}

// Refresh drops the stored listing for a category so the next call
// refetches.
func (c *Client) Refresh(category string, limit int) {
	c.coalescer.Forget(fmt.Sprintf("category-%s-%d", category, limit))
}

// fetch performs one GET against the listing endpoint. A 204 is a
// successful empty listing.
func (c *Client) fetch(ctx context.Context, params url.Values, limit int) ([]catalog.Product, error) {
	if limit > 0 {
		params.Set("per_page", strconv.Itoa(limit))
	}
	endpoint := c.baseURL + "/products"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return []catalog.Product{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("listing returned HTTP %d: %s", resp.StatusCode, body)
	}

	var products []catalog.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}

	c.logger.Debug().
		Int("products", len(products)).
		Str("cache", resp.Header.Get("x-cache")).
		Msg("listing fetched")
	return products, nil
}
