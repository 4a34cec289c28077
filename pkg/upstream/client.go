// Package upstream provides the commerce API client: paginated product
// queries with pagination-header extraction, category lookups, retry with
// exponential backoff, and error classification.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pixypic/catalog-cache/pkg/catalog"
)

// Prometheus metrics for upstream commerce API operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_requests_total",
		Help: "Total upstream commerce API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_upstream_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// API endpoints relative to the REST base path.
const (
	endpointProducts   = "products"
	endpointCategories = "products/categories"
)

// DefaultTimeout bounds every upstream call; a timeout is treated like any
// other upstream failure, not a distinct error class.
const DefaultTimeout = 20 * time.Second

// Config holds the client configuration.
type Config struct {
	// BaseURL is the store root, e.g. "https://shop.pixypic.net".
	BaseURL string

	// ConsumerKey/ConsumerSecret authenticate against the REST API.
	ConsumerKey    string
	ConsumerSecret string

	// UserAgent identifies this proxy to the store.
	UserAgent string

	// Timeout bounds each upstream call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Retry controls backoff behavior. Zero value uses DefaultRetryConfig.
	Retry RetryConfig
}

// PageInfo carries the pagination metadata extracted from upstream
// response headers. Zero values mean the upstream did not report them.
type PageInfo struct {
	Total      int
	TotalPages int
}

// Client is the commerce API client.
type Client struct {
	httpClient *http.Client
	restBase   string
	cfg        Config
	logger     zerolog.Logger
}

// New creates a commerce API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Client{
		httpClient: &http.Client{},
		restBase:   strings.TrimRight(cfg.BaseURL, "/") + "/wp-json/wc/v3/",
		cfg:        cfg,
		logger:     log.With().Str("component", "upstream").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Products fetches one page of products. The returned PageInfo reflects the
// X-WP-Total / X-WP-TotalPages headers when present.
func (c *Client) Products(ctx context.Context, params url.Values) ([]json.RawMessage, PageInfo, error) {
	body, header, err := c.get(ctx, endpointProducts, params)
	if err != nil {
		return nil, PageInfo{}, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, PageInfo{}, fmt.Errorf("decode products: %w", err)
	}

	return items, PageInfo{
		Total:      headerNumber(header, "X-WP-Total"),
		TotalPages: headerNumber(header, "X-WP-TotalPages"),
	}, nil
}

// CategoryBySlug looks up a category by its slug. Returns nil when no
// category matches.
func (c *Client) CategoryBySlug(ctx context.Context, slug string) (*catalog.Category, error) {
	params := url.Values{}
	params.Set("slug", strings.ToLower(slug))
	params.Set("per_page", "1")

	cats, err := c.categories(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		return nil, nil
	}
	return &cats[0], nil
}

// CategoryChildren fetches the direct children of a category.
func (c *Client) CategoryChildren(ctx context.Context, parent, perPage int) ([]catalog.Category, error) {
	params := url.Values{}
	params.Set("parent", strconv.Itoa(parent))
	params.Set("per_page", strconv.Itoa(perPage))
	return c.categories(ctx, params)
}

func (c *Client) categories(ctx context.Context, params url.Values) ([]catalog.Category, error) {
	body, _, err := c.get(ctx, endpointCategories, params)
	if err != nil {
		return nil, err
	}

	var cats []catalog.Category
	if err := json.Unmarshal(body, &cats); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return cats, nil
}

// get performs an authenticated GET with per-call timeout and retry.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, http.Header, error) {
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	query := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	if c.cfg.ConsumerKey != "" {
		query.Set("consumer_key", c.cfg.ConsumerKey)
		query.Set("consumer_secret", c.cfg.ConsumerSecret)
	}
	reqURL := c.restBase + endpoint + "?" + query.Encode()

	var body []byte
	var header http.Header

	err := retryWithBackoff(ctx, c.cfg.Retry, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Upstream request failed")
			return &Error{Class: ErrorClassNetwork, Message: "request failed", Err: err}
		}
		defer resp.Body.Close()

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			class := classify(resp.StatusCode)
			errorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(class)).
				Msg("Upstream request error")
			return &Error{StatusCode: resp.StatusCode, Class: class, Message: resp.Status}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return &Error{Class: ErrorClassNetwork, Message: "read response body", Err: err}
		}
		header = resp.Header.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return body, header, nil
}

// headerNumber parses a numeric header; non-numeric or absent headers read
// as 0 (unknown).
func headerNumber(h http.Header, name string) int {
	raw := h.Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
