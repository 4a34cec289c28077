// Package api exposes the aggregated catalog over HTTP: the listing
// endpoint with its conditional-request and diagnostic-header contract,
// and the cache administration endpoint.
package api

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/pixypic/catalog-cache/pkg/aggregator"
	"github.com/pixypic/catalog-cache/pkg/logging"
	"github.com/pixypic/catalog-cache/pkg/upstream"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_http_requests_total",
		Help: "Total number of HTTP requests by route and status code",
	}, []string{"route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_http_request_duration_seconds",
		Help:    "HTTP request duration by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	conditionalHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_http_not_modified_total",
		Help: "Total number of requests answered 304 via ETag match",
	})
)

// Downstream caching directives. The edge revalidates at half the CDN
// window so browsers never outlive the CDN copy.
const (
	cacheControl    = "public, s-maxage=600, stale-while-revalidate=1200"
	cdnCacheControl = "public, s-maxage=1200, stale-while-revalidate=2400"
)

// errorResponse is the JSON error body.
type errorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Lister serves aggregated product listings.
type Lister interface {
	List(ctx context.Context, q aggregator.Query) (*aggregator.Result, error)
}

// Handler serves the product listing endpoint.
type Handler struct {
	lister Lister
	logger zerolog.Logger
}

// NewHandler creates the listing handler.
func NewHandler(lister Lister) *Handler {
	return &Handler{
		lister: lister,
		logger: logging.NewLogger("api"),
	}
}

// Products handles GET /products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		httpRequestDuration.WithLabelValues("products").Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodGet {
		h.writeError(w, "products", http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	q := aggregator.ParseQuery(r.URL.Query())
	result, err := h.lister.List(r.Context(), q)
	if err != nil {
		status, details := upstreamStatus(err)
		h.logger.Error().Err(err).Int("status", status).Msg("listing failed")
		h.writeError(w, "products", status, "failed to fetch products", details)
		return
	}

	body, err := json.Marshal(result.Products)
	if err != nil {
		h.writeError(w, "products", http.StatusInternalServerError, "failed to encode products", err.Error())
		return
	}

	setDiagnosticHeaders(w.Header(), result)
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("CDN-Cache-Control", cdnCacheControl)

	// Empty listings carry no ETag and never answer conditionally.
	if len(result.Products) == 0 {
		httpRequestsTotal.WithLabelValues("products", "204").Inc()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Weak ETag over the serialized body: hit and miss paths produce
	// identical bodies for identical entries, so the tag is stable
	// across store round-trips.
	etag := fmt.Sprintf(`W/"%x"`, sha1.Sum(body))
	w.Header().Set("ETag", etag)

	if !q.No304 && r.Header.Get("If-None-Match") == etag {
		conditionalHits.Inc()
		httpRequestsTotal.WithLabelValues("products", "304").Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	httpRequestsTotal.WithLabelValues("products", "200").Inc()
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write response body")
	}
}

// setDiagnosticHeaders exposes cache and pagination state on every
// successful response, including 204 and 304.
func setDiagnosticHeaders(header http.Header, result *aggregator.Result) {
	outcome := "miss"
	if result.CacheHit {
		outcome = "hit"
	}
	header.Set("x-cache", outcome)
	header.Set("x-cache-store", result.StoreName)
	header.Set("x-cache-namespace-version", strconv.FormatInt(result.NamespaceVersion, 10))
	header.Set("x-wc-total", strconv.Itoa(result.Total))
	header.Set("x-wc-total-pages", strconv.Itoa(result.TotalPages))
	header.Set("x-wc-batch-per_page", strconv.Itoa(result.PerPage))
	header.Set("x-wc-empty-images", strconv.Itoa(result.EmptyImageCount))
	if result.Stale {
		header.Set("x-cache-stale", "true")
	}
}

// upstreamStatus maps a listing error to the response status. Upstream
// HTTP failures pass their status through; everything else is a 502.
func upstreamStatus(err error) (int, string) {
	var upErr *upstream.Error
	if errors.As(err, &upErr) && upErr.StatusCode >= 400 {
		return upErr.StatusCode, upErr.Message
	}
	return http.StatusBadGateway, err.Error()
}

func (h *Handler) writeError(w http.ResponseWriter, route string, status int, message, details string) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Message: message, Details: details}); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write error response")
	}
}
