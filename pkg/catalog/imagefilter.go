package catalog

import (
	"net/url"
	"strings"
)

// ImageFilter drops image URLs whose host is not covered by the allow-list.
// A host is allowed when it equals an allowed domain or is a subdomain of
// one, matching how CDN hosts hang off the storefront domains.
type ImageFilter struct {
	allowed []string
}

// NewImageFilter builds a filter from a list of allowed domains. Empty and
// duplicate entries are dropped.
func NewImageFilter(domains []string) *ImageFilter {
	seen := make(map[string]struct{}, len(domains))
	allowed := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		allowed = append(allowed, d)
	}
	return &ImageFilter{allowed: allowed}
}

// Allowed reports whether the URL parses and its host is on the allow-list.
func (f *ImageFilter) Allowed(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range f.allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Apply returns a copy of the product with disallowed image URLs removed
// from both Images and ThumbImage. The input product is not mutated; cached
// raw data must never alias a filtered response.
func (f *ImageFilter) Apply(p Product) Product {
	p.Images = f.filterURLs(p.Images)
	p.ThumbImage = f.filterURLs(p.ThumbImage)
	return p
}

func (f *ImageFilter) filterURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if f.Allowed(u) {
			out = append(out, u)
		}
	}
	return out
}
