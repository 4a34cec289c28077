package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pixypic/catalog-cache/pkg/logging"
)

// CacheAdmin is the cache-management surface the admin endpoint needs.
type CacheAdmin interface {
	Invalidate(ctx context.Context) (int64, error)
	Flush(ctx context.Context) (int, error)
	Version(ctx context.Context) (int64, error)
	StoreName() string
}

// Admin serves the cache administration endpoint. When Token is set,
// requests must carry it in the x-admin-token header.
type Admin struct {
	cache  CacheAdmin
	token  string
	logger zerolog.Logger
}

// NewAdmin creates the admin handler. An empty token disables
// authentication, for local development only.
func NewAdmin(cache CacheAdmin, token string) *Admin {
	return &Admin{
		cache:  cache,
		token:  token,
		logger: logging.NewLogger("admin"),
	}
}

type adminStatus struct {
	Store   string `json:"store"`
	Version int64  `json:"namespaceVersion"`
}

type adminResult struct {
	Action  string `json:"action"`
	Version int64  `json:"namespaceVersion,omitempty"`
	Removed int    `json:"removed,omitempty"`
}

// Cache handles /admin/cache. GET reports store and version; POST with
// action=bump rotates the namespace version, action=flush deletes the
// namespace's entries.
func (a *Admin) Cache(w http.ResponseWriter, r *http.Request) {
	if a.token != "" && r.Header.Get("x-admin-token") != a.token {
		a.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "unauthorized"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		version, err := a.cache.Version(r.Context())
		if err != nil {
			a.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "version lookup failed", Details: err.Error()})
			return
		}
		a.writeJSON(w, http.StatusOK, adminStatus{Store: a.cache.StoreName(), Version: version})

	case http.MethodPost:
		switch action := r.URL.Query().Get("action"); action {
		case "bump":
			version, err := a.cache.Invalidate(r.Context())
			if err != nil {
				a.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "version bump failed", Details: err.Error()})
				return
			}
			a.logger.Info().Int64("version", version).Msg("cache version bumped")
			a.writeJSON(w, http.StatusOK, adminResult{Action: "bump", Version: version})
		case "flush":
			removed, err := a.cache.Flush(r.Context())
			if err != nil {
				a.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "flush failed", Details: err.Error()})
				return
			}
			a.logger.Info().Int("removed", removed).Msg("cache flushed")
			a.writeJSON(w, http.StatusOK, adminResult{Action: "flush", Removed: removed})
		default:
			a.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "unknown action", Details: action})
		}

	default:
		a.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Message: "method not allowed"})
	}
}

func (a *Admin) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Warn().Err(err).Msg("failed to write admin response")
	}
}
