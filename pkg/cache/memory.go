package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is the in-process fallback store used when Redis is not
// configured or unreachable. Expired items are dropped lazily on read and
// by an optional janitor loop.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]memoryItem
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a memory store. A cleanupInterval > 0 starts a
// janitor goroutine that prunes expired items; stop it with Close.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		items: make(map[string]memoryItem),
	}
	if cleanupInterval > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.prune()
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

// Name implements Store.
func (s *MemoryStore) Name() string { return "memory" }

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if time.Now().After(item.expiresAt) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, ErrMiss
	}
	return item.data, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.items[key] = memoryItem{data: data, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Del implements Store.
func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key := range s.items {
		if strings.HasPrefix(key, prefix) {
			delete(s.items, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of items currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemoryStore) prune() {
	now := time.Now()
	s.mu.Lock()
	for key, item := range s.items {
		if now.After(item.expiresAt) {
			delete(s.items, key)
		}
	}
	s.mu.Unlock()
}

// Close stops the janitor goroutine if one is running.
func (s *MemoryStore) Close() {
	if s.stopCh != nil {
		close(s.stopCh)
		s.ticker.Stop()
		s.wg.Wait()
		s.stopCh = nil
	}
}
