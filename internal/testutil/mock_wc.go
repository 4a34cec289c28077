// Package testutil provides a configurable mock commerce API server
// for integration-style tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// ProductsPath and CategoriesPath are the REST routes the proxy calls.
const (
	ProductsPath   = "/wp-json/wc/v3/products"
	CategoriesPath = "/wp-json/wc/v3/products/categories"
)

// MockResponse defines a canned response for one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCategory mirrors the upstream category payload.
type MockCategory struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Parent int    `json:"parent"`
}

// MockCommerce is a configurable mock commerce API server.
type MockCommerce struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	products   []json.RawMessage
	categories []MockCategory

	RequestCount int
	LastQuery    map[string]string
}

// NewMockCommerce creates a mock commerce server. By default it serves
// an empty catalog; seed it with SetProducts and SetCategories.
func NewMockCommerce() *MockCommerce {
	mock := &MockCommerce{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = map[string]string{}
		for key := range r.URL.Query() {
			mock.LastQuery[key] = r.URL.Query().Get(key)
		}
		handler := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}

		switch r.URL.Path {
		case ProductsPath:
			mock.serveProducts(w, r)
		case CategoriesPath:
			mock.serveCategories(w, r)
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

// URL returns the mock server's base URL.
func (m *MockCommerce) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCommerce) Close() {
	m.server.Close()
}

// Reset clears tracking counters.
func (m *MockCommerce) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastQuery = nil
}

// GetRequestCount returns the number of requests served.
func (m *MockCommerce) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// SetHandler installs a custom handler for a path, overriding the
// built-in catalog behavior.
func (m *MockCommerce) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse installs a canned response for a path.
func (m *MockCommerce) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetProducts seeds the catalog served by the products route.
func (m *MockCommerce) SetProducts(products []json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = products
}

// SetCategories seeds the category tree served by the categories route.
func (m *MockCommerce) SetCategories(categories []MockCategory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = categories
}

// serveProducts paginates the seeded catalog with the standard
// X-WP-Total and X-WP-TotalPages headers.
func (m *MockCommerce) serveProducts(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	products := m.products
	m.mu.RUnlock()

	perPage := queryInt(r, "per_page", 10)
	page := queryInt(r, "page", 1)

	total := len(products)
	totalPages := (total + perPage - 1) / perPage

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-WP-Total", strconv.Itoa(total))
	w.Header().Set("X-WP-TotalPages", strconv.Itoa(totalPages))
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(products[start:end])
}

// serveCategories answers slug lookups and parent listings from the
// seeded tree.
func (m *MockCommerce) serveCategories(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	categories := m.categories
	m.mu.RUnlock()

	matched := make([]MockCategory, 0)
	slug := r.URL.Query().Get("slug")
	parentRaw := r.URL.Query().Get("parent")
	for _, c := range categories {
		if slug != "" && c.Slug != slug {
			continue
		}
		if parentRaw != "" {
			parent, err := strconv.Atoi(parentRaw)
			if err != nil || c.Parent != parent {
				continue
			}
		}
		matched = append(matched, c)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-WP-Total", strconv.Itoa(len(matched)))
	w.Header().Set("X-WP-TotalPages", "1")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(matched)
}

func queryInt(r *http.Request, name string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// MakeProduct builds a raw product payload with one image on the given
// host.
func MakeProduct(id int, imageHost string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%d,"name":"Product %d","slug":"product-%d","price":"19.90","regular_price":"24.90","sale_price":"19.90","images":[{"src":"https://%s/p/%d.jpg"}],"categories":[{"id":1,"name":"Prints","slug":"prints"}]}`,
		id, id, id, imageHost, id))
}

// MakeProducts builds n sequential product payloads.
func MakeProducts(n int, imageHost string) []json.RawMessage {
	products := make([]json.RawMessage, 0, n)
	for i := 1; i <= n; i++ {
		products = append(products, MakeProduct(i, imageHost))
	}
	return products
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"code":"internal_server_error","message":"Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"code":"rest_rate_limited","message":"Too many requests"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
