package cache

import (
	"fmt"
	"sort"
	"strings"
)

// KeyPrefix is the common prefix of all catalog cache keys. Administrative
// flushes enumerate and delete by this prefix.
const KeyPrefix = "wc:"

// Key identifies one cached listing. It combines a logical namespace, the
// namespace's current version, and the flat set of validated filter fields.
type Key struct {
	// Namespace is the logical namespace (e.g., "products").
	Namespace string

	// Version is the namespace version current at build time. Bumping the
	// version changes every key in the namespace without enumeration.
	Version int64

	// Fields are the filter fields. Fields with default/unset values must
	// not be added at all, so that omitting a filter and passing its
	// default collapse to the same key. Values must already be clamped to
	// their valid range.
	Fields map[string]string
}

// NamespacePrefix returns the enumeration prefix covering every key of the
// namespace across all versions.
func NamespacePrefix(namespace string) string {
	return KeyPrefix + namespace + ":"
}

// String generates a deterministic cache key string.
// Format: wc:namespace:v3:field1=val1:field2=val2
//
// Fields are sorted lexicographically so that two logically identical
// requests produce identical keys regardless of insertion order. The
// version sits before the fields so a bump invalidates every key.
func (k Key) String() string {
	parts := make([]string, 0, len(k.Fields)+2)
	parts = append(parts, KeyPrefix+k.Namespace, fmt.Sprintf("v%d", k.Version))

	if len(k.Fields) > 0 {
		names := make([]string, 0, len(k.Fields))
		for name := range k.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Fields[name]))
		}
	}

	return strings.Join(parts, ":")
}
