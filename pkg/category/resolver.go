// Package category resolves a category filter into the closed set of the
// category and all of its descendants, so that filtering by a parent
// category also matches products filed under any subcategory.
package category

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pixypic/catalog-cache/pkg/catalog"
)

const (
	// DefaultMaxDepth bounds tree traversal. Upstream data is user-edited
	// and has produced accidental cycles before; the visited set breaks
	// them and the depth ceiling caps pathological chains.
	DefaultMaxDepth = 20

	// DefaultPageSize is the child-fetch page size per call.
	DefaultPageSize = 100
)

// ChildLister fetches the direct children of a category.
type ChildLister interface {
	CategoryChildren(ctx context.Context, parent, perPage int) ([]catalog.Category, error)
}

// Resolver expands category descendant sets.
type Resolver struct {
	upstream ChildLister
	maxDepth int
	pageSize int
	logger   zerolog.Logger
}

// NewResolver creates a resolver with default bounds.
func NewResolver(upstream ChildLister) *Resolver {
	return &Resolver{
		upstream: upstream,
		maxDepth: DefaultMaxDepth,
		pageSize: DefaultPageSize,
		logger:   log.With().Str("component", "category-resolver").Logger(),
	}
}

// Descendants returns the root id plus every discovered descendant id, in
// discovery order. A child-fetch failure at any depth is logged and the
// branch is abandoned; whatever was discovered so far is returned. Partial
// results beat failing the whole product filter.
func (r *Resolver) Descendants(ctx context.Context, root int) []int {
	type node struct {
		id    int
		depth int
	}

	ids := []int{root}
	visited := map[int]bool{root: true}
	queue := []node{{id: root, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= r.maxDepth {
			r.logger.Warn().
				Int("category", cur.id).
				Int("max_depth", r.maxDepth).
				Msg("Category tree deeper than ceiling, truncating")
			continue
		}

		children, err := r.upstream.CategoryChildren(ctx, cur.id, r.pageSize)
		if err != nil {
			r.logger.Warn().
				Err(err).
				Int("parent", cur.id).
				Msg("Child category fetch failed, keeping partial results")
			continue
		}

		for _, child := range children {
			if child.ID <= 0 || visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			ids = append(ids, child.ID)
			queue = append(queue, node{id: child.ID, depth: cur.depth + 1})
		}
	}

	return ids
}

// JoinIDs renders an id set as the comma-separated filter value the
// upstream product query expects.
func JoinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
