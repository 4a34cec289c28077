package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pixypic/catalog-cache/pkg/logging"
)

// Middleware wraps a handler with per-client-IP rate limiting. Rejected
// requests get a 429 with a Retry-After header and a JSON body.
func Middleware(limiter *Limiter, next http.Handler) http.Handler {
	logger := logging.NewLogger("ratelimit")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		decision := limiter.Allow(key)

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := int(decision.RetryAfter.Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeTooManyRequests(w, logger, key, retryAfter)
	})
}

func writeTooManyRequests(w http.ResponseWriter, logger zerolog.Logger, key string, retryAfter int) {
	logger.Warn().Str("client", key).Int("retry_after", retryAfter).Msg("rate limit exceeded")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	if err := json.NewEncoder(w).Encode(map[string]string{"message": "too many requests"}); err != nil {
		logger.Warn().Err(err).Msg("failed to write rate limit response")
	}
}

// clientIP extracts the caller's address, preferring the first hop of
// X-Forwarded-For when the proxy sits behind an edge.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
