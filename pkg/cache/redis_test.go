package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a Redis client against a local instance, skipping
// when none is available. The integration test covers the containerized
// path.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStore(setupTestRedis(t))

	if err := s.Set(ctx, "wc:products:v1:k", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	data, err := s.Get(ctx, "wc:products:v1:k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Get() = %q, want %q", data, "payload")
	}

	if _, err := s.Get(ctx, "absent"); err != ErrMiss {
		t.Errorf("Get(absent) error = %v, want ErrMiss", err)
	}
}

func TestRedisStore_ClearPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStore(setupTestRedis(t))

	for _, k := range []string{"wc:products:v1:a", "wc:products:v2:b", "wc:other:v1:c"} {
		if err := s.Set(ctx, k, []byte("x"), time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := s.Clear(ctx, NamespacePrefix("products"))
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("Clear() deleted = %d, want 2", deleted)
	}
	if ok, _ := s.Exists(ctx, "wc:other:v1:c"); !ok {
		t.Error("key outside prefix was deleted")
	}
}

func TestRedisVersions_Bump(t *testing.T) {
	ctx := context.Background()
	v := NewRedisVersions(setupTestRedis(t))

	cur, err := v.Current(ctx, "products")
	if err != nil || cur != 1 {
		t.Fatalf("Current() = %d, %v, want 1", cur, err)
	}

	next, err := v.Bump(ctx, "products")
	if err != nil || next != 2 {
		t.Fatalf("Bump() = %d, %v, want 2", next, err)
	}
}
