package category

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/pixypic/catalog-cache/pkg/catalog"
)

// fakeTree serves a category forest from a parent -> children map.
type fakeTree struct {
	children map[int][]catalog.Category
	failFor  map[int]bool
	calls    int
}

func (f *fakeTree) CategoryChildren(_ context.Context, parent, _ int) ([]catalog.Category, error) {
	f.calls++
	if f.failFor[parent] {
		return nil, errors.New("upstream unavailable")
	}
	return f.children[parent], nil
}

func cat(id int) catalog.Category {
	return catalog.Category{ID: id}
}

func TestResolver_Descendants(t *testing.T) {
	// A(1) -> {B(2), C(3)}, B -> {D(4)}
	tree := &fakeTree{children: map[int][]catalog.Category{
		1: {cat(2), cat(3)},
		2: {cat(4)},
	}}

	got := NewResolver(tree).Descendants(context.Background(), 1)

	sort.Ints(got)
	want := []int{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("Descendants() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Descendants() = %v, want %v", got, want)
		}
	}
}

func TestResolver_RootIncludedFirst(t *testing.T) {
	tree := &fakeTree{children: map[int][]catalog.Category{1: {cat(9)}}}
	got := NewResolver(tree).Descendants(context.Background(), 1)
	if got[0] != 1 {
		t.Errorf("Descendants()[0] = %d, want the root id first", got[0])
	}
}

// TestResolver_CycleTerminates makes sure malformed upstream data with a
// cycle A -> B -> A still yields a finite set.
func TestResolver_CycleTerminates(t *testing.T) {
	tree := &fakeTree{children: map[int][]catalog.Category{
		1: {cat(2)},
		2: {cat(1)},
	}}

	got := NewResolver(tree).Descendants(context.Background(), 1)
	if len(got) != 2 {
		t.Errorf("Descendants() = %v, want exactly {1, 2}", got)
	}
}

func TestResolver_PartialOnBranchFailure(t *testing.T) {
	// A(1) -> {B(2), C(3)}; expanding B fails. C and its child must still
	// be discovered.
	tree := &fakeTree{
		children: map[int][]catalog.Category{
			1: {cat(2), cat(3)},
			3: {cat(5)},
		},
		failFor: map[int]bool{2: true},
	}

	got := NewResolver(tree).Descendants(context.Background(), 1)
	sort.Ints(got)
	want := []int{1, 2, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("Descendants() = %v, want %v", got, want)
	}
}

func TestResolver_DepthCeiling(t *testing.T) {
	// A degenerate chain 1 -> 2 -> 3 -> ... deeper than the ceiling.
	children := map[int][]catalog.Category{}
	for i := 1; i < 100; i++ {
		children[i] = []catalog.Category{cat(i + 1)}
	}
	tree := &fakeTree{children: children}

	r := NewResolver(tree)
	r.maxDepth = 5
	got := r.Descendants(context.Background(), 1)

	// Depth 0..4 expand, so ids 1..6 are discovered.
	if len(got) != 6 {
		t.Errorf("Descendants() found %d ids, want 6 at depth ceiling 5", len(got))
	}
}

func TestJoinIDs(t *testing.T) {
	if got := JoinIDs([]int{15, 16, 17}); got != "15,16,17" {
		t.Errorf("JoinIDs() = %q, want %q", got, "15,16,17")
	}
	if got := JoinIDs([]int{42}); got != "42" {
		t.Errorf("JoinIDs() = %q, want %q", got, "42")
	}
}
