package cache

import (
	"encoding/json"
	"time"
)

// Entry is a cached aggregation result: the raw upstream catalog items of
// one logical listing plus the pagination metadata reported by the upstream.
// Entries are written whole on every successful aggregation; there are no
// partial updates.
type Entry struct {
	// Items are the raw upstream catalog items, merged across pages.
	Items []json.RawMessage `json:"items" msgpack:"items"`

	// Total is the total item count reported by the upstream pagination
	// headers. 0 means the upstream never reported it.
	Total int `json:"total" msgpack:"total"`

	// TotalPages is the total page count reported by the upstream
	// pagination headers. 0 means unknown.
	TotalPages int `json:"total_pages" msgpack:"total_pages"`

	// StoredAt is when the entry was written. Staleness is judged against
	// this timestamp independent of the store's own TTL expiry.
	StoredAt time.Time `json:"stored_at" msgpack:"stored_at"`
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	return time.Since(e.StoredAt)
}

// IsStale reports whether the entry is older than the given soft-freshness
// threshold. A stale entry is still served; callers flag it so consumers
// can decide whether to revalidate.
func (e *Entry) IsStale(threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	return e.Age() > threshold
}
