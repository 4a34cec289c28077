package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// failingStore simulates a store outage.
type failingStore struct{}

func (failingStore) Name() string                                { return "failing" }
func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (failingStore) Del(context.Context, string) error            { return errors.New("down") }
func (failingStore) Exists(context.Context, string) (bool, error) { return false, errors.New("down") }
func (failingStore) Clear(context.Context, string) (int, error)   { return 0, errors.New("down") }

func testEntry(n int) *Entry {
	items := make([]json.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, json.RawMessage(`{"id":1}`))
	}
	return &Entry{Items: items, Total: n, TotalPages: 1, StoredAt: time.Now()}
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(0), JSONCodec{})

	c.SetEntry(ctx, "wc:products:v1:slug=x", testEntry(3), time.Minute)

	entry, err := c.GetEntry(ctx, "wc:products:v1:slug=x")
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if len(entry.Items) != 3 || entry.Total != 3 {
		t.Errorf("entry = %d items total %d, want 3/3", len(entry.Items), entry.Total)
	}
}

func TestCache_MissOnAbsentKey(t *testing.T) {
	c := New(NewMemoryStore(0), JSONCodec{})
	if _, err := c.GetEntry(context.Background(), "nope"); err != ErrMiss {
		t.Errorf("GetEntry() error = %v, want ErrMiss", err)
	}
}

// TestCache_CorruptEntrySelfHeals verifies that an undecodable payload is
// treated as a miss and deleted so the slot starts clean.
func TestCache_CorruptEntrySelfHeals(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	c := New(store, JSONCodec{})

	if err := store.Set(ctx, "bad", []byte("not-json{"), time.Minute); err != nil {
		t.Fatal(err)
	}

	if _, err := c.GetEntry(ctx, "bad"); err != ErrMiss {
		t.Fatalf("GetEntry() error = %v, want ErrMiss", err)
	}

	if ok, _ := store.Exists(ctx, "bad"); ok {
		t.Error("corrupt entry was not deleted")
	}
}

// TestCache_StoreFailureIsMiss verifies reads degrade to misses and writes
// are swallowed when the store is down.
func TestCache_StoreFailureIsMiss(t *testing.T) {
	ctx := context.Background()
	c := New(failingStore{}, JSONCodec{})

	if _, err := c.GetEntry(ctx, "k"); err != ErrMiss {
		t.Errorf("GetEntry() error = %v, want ErrMiss", err)
	}

	// Must not panic or propagate the store error.
	c.SetEntry(ctx, "k", testEntry(1), time.Minute)
}

func TestCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(0), JSONCodec{})

	c.SetEntry(ctx, "short", testEntry(1), 20*time.Millisecond)
	if _, err := c.GetEntry(ctx, "short"); err != nil {
		t.Fatalf("GetEntry() before expiry error = %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	if _, err := c.GetEntry(ctx, "short"); err != ErrMiss {
		t.Errorf("GetEntry() after expiry error = %v, want ErrMiss", err)
	}
}

func TestCache_GetOrSet(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(0), JSONCodec{})

	calls := 0
	producer := func(context.Context) (*Entry, error) {
		calls++
		return testEntry(2), nil
	}

	entry, err := c.GetOrSet(ctx, "k", time.Minute, producer)
	if err != nil || len(entry.Items) != 2 {
		t.Fatalf("GetOrSet() = %v, %v", entry, err)
	}
	if calls != 1 {
		t.Fatalf("producer calls = %d, want 1", calls)
	}

	// Second call is served from cache.
	if _, err := c.GetOrSet(ctx, "k", time.Minute, producer); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("producer calls = %d, want 1 (cache hit expected)", calls)
	}
}

// TestCache_GetOrSetDegradesOnStoreFailure verifies the read-through helper
// still produces data when the store is down, just without caching it.
func TestCache_GetOrSetDegradesOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	c := New(failingStore{}, JSONCodec{})

	calls := 0
	producer := func(context.Context) (*Entry, error) {
		calls++
		return testEntry(1), nil
	}

	for i := 0; i < 2; i++ {
		entry, err := c.GetOrSet(ctx, "k", time.Minute, producer)
		if err != nil || entry == nil {
			t.Fatalf("GetOrSet() = %v, %v", entry, err)
		}
	}
	if calls != 2 {
		t.Errorf("producer calls = %d, want 2 (no caching possible)", calls)
	}
}

func TestCache_GetOrSetProducerError(t *testing.T) {
	c := New(NewMemoryStore(0), JSONCodec{})
	wantErr := errors.New("upstream down")

	_, err := c.GetOrSet(context.Background(), "k", time.Minute, func(context.Context) (*Entry, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("GetOrSet() error = %v, want %v", err, wantErr)
	}
}

func TestCache_MsgpackCodecRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(0), MsgpackCodec{})

	c.SetEntry(ctx, "k", testEntry(2), time.Minute)
	entry, err := c.GetEntry(ctx, "k")
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if len(entry.Items) != 2 || entry.TotalPages != 1 {
		t.Errorf("entry = %d items totalPages %d, want 2/1", len(entry.Items), entry.TotalPages)
	}
}

func TestEntry_IsStale(t *testing.T) {
	fresh := &Entry{StoredAt: time.Now()}
	if fresh.IsStale(time.Minute) {
		t.Error("fresh entry reported stale")
	}

	old := &Entry{StoredAt: time.Now().Add(-2 * time.Minute)}
	if !old.IsStale(time.Minute) {
		t.Error("old entry not reported stale")
	}
	if old.IsStale(0) {
		t.Error("zero threshold must disable staleness")
	}
}
