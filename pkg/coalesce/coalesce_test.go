package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_StoresAndReusesResult(t *testing.T) {
	c := New[string](time.Minute, 10*time.Minute)
	calls := 0
	producer := func(context.Context) (string, error) {
		calls++
		return "posters", nil
	}

	assert.Equal(t, "posters", c.Fetch(context.Background(), "k", producer))
	assert.Equal(t, "posters", c.Fetch(context.Background(), "k", producer))
	assert.Equal(t, 1, calls, "fresh result should not trigger a second producer run")
}

func TestFetch_ExpiredResultRefetches(t *testing.T) {
	c := New[string](10*time.Millisecond, time.Minute)
	calls := 0
	producer := func(context.Context) (string, error) {
		calls++
		return "v", nil
	}

	c.Fetch(context.Background(), "k", producer)
	time.Sleep(20 * time.Millisecond)
	c.Fetch(context.Background(), "k", producer)

	assert.Equal(t, 2, calls)
}

func TestFetch_ConcurrentCallersShareOneProducerRun(t *testing.T) {
	c := New[int](time.Minute, 10*time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	producer := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	const followers = 20
	results := make([]int, followers)
	var started, done sync.WaitGroup
	started.Add(followers)
	done.Add(followers)
	for i := 0; i < followers; i++ {
		go func(i int) {
			started.Done()
			results[i] = c.Fetch(context.Background(), "k", producer)
			done.Done()
		}(i)
	}

	started.Wait()
	// Give followers time to reach the wait path before the leader
	// finishes.
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()

	require.Equal(t, int32(1), calls.Load(), "all callers must share one producer run")
	for i, r := range results {
		assert.Equal(t, 42, r, "caller %d", i)
	}
}

func TestFetch_StaleFallbackOnFailure(t *testing.T) {
	c := New[string](10*time.Millisecond, time.Minute)

	c.Fetch(context.Background(), "k", func(context.Context) (string, error) {
		return "cached", nil
	})
	time.Sleep(20 * time.Millisecond)

	got := c.Fetch(context.Background(), "k", func(context.Context) (string, error) {
		return "", errors.New("upstream down")
	})

	assert.Equal(t, "cached", got, "failed refresh should serve the stale value")
}

func TestFetch_ZeroValueWhenNoFallback(t *testing.T) {
	c := New[[]string](time.Minute, 10*time.Minute)

	got := c.Fetch(context.Background(), "k", func(context.Context) ([]string, error) {
		return nil, errors.New("upstream down")
	})

	assert.Nil(t, got)
}

func TestFetch_StaleWindowExpires(t *testing.T) {
	c := New[string](5*time.Millisecond, 10*time.Millisecond)

	c.Fetch(context.Background(), "k", func(context.Context) (string, error) {
		return "cached", nil
	})
	time.Sleep(20 * time.Millisecond)

	got := c.Fetch(context.Background(), "k", func(context.Context) (string, error) {
		return "", errors.New("upstream down")
	})

	assert.Equal(t, "", got, "value past the stale window must not be served")
}

func TestFetch_ProducerPanicDoesNotStrandFollowers(t *testing.T) {
	c := New[string](time.Minute, 10*time.Minute)

	got := c.Fetch(context.Background(), "k", func(context.Context) (string, error) {
		panic("boom")
	})
	assert.Equal(t, "", got)
	assert.False(t, c.InFlight("k"))

	// The key must still be usable afterwards.
	got = c.Fetch(context.Background(), "k", func(context.Context) (string, error) {
		return "recovered", nil
	})
	assert.Equal(t, "recovered", got)
}

func TestFetch_FollowerContextCancellation(t *testing.T) {
	c := New[string](time.Minute, 10*time.Minute)

	release := make(chan struct{})
	leaderRunning := make(chan struct{})
	go c.Fetch(context.Background(), "k", func(context.Context) (string, error) {
		close(leaderRunning)
		<-release
		return "late", nil
	})
	<-leaderRunning

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := c.Fetch(ctx, "k", func(context.Context) (string, error) {
		t.Error("follower must not run the producer")
		return "", nil
	})

	assert.Equal(t, "", got, "cancelled follower gets the zero value")
	close(release)
}

func TestFetch_StuckLeaderFollowerFetchesDirectly(t *testing.T) {
	c := New[string](time.Minute, 10*time.Minute)
	c.waitTimeout = 20 * time.Millisecond

	release := make(chan struct{})
	leaderRunning := make(chan struct{})
	go c.Fetch(context.Background(), "k", func(context.Context) (string, error) {
		close(leaderRunning)
		<-release
		return "leader", nil
	})
	<-leaderRunning

	got := c.Fetch(context.Background(), "k", func(context.Context) (string, error) {
		return "follower", nil
	})
	close(release)

	assert.Equal(t, "follower", got, "follower past the wait cap must fetch on its own")
}

func TestFetch_StuckLeaderFollowerServesStaleOnOwnFailure(t *testing.T) {
	c := New[string](10*time.Millisecond, time.Minute)
	c.waitTimeout = 20 * time.Millisecond

	c.Fetch(context.Background(), "k", func(context.Context) (string, error) {
		return "cached", nil
	})
	time.Sleep(15 * time.Millisecond)

	release := make(chan struct{})
	leaderRunning := make(chan struct{})
	go c.Fetch(context.Background(), "k", func(context.Context) (string, error) {
		close(leaderRunning)
		<-release
		return "leader", nil
	})
	<-leaderRunning

	got := c.Fetch(context.Background(), "k", func(context.Context) (string, error) {
		return "", errors.New("upstream down")
	})
	close(release)

	assert.Equal(t, "cached", got, "failed direct fetch still falls back to the stale value")
}

func TestForget(t *testing.T) {
	c := New[string](time.Minute, 10*time.Minute)
	calls := 0
	producer := func(context.Context) (string, error) {
		calls++
		return "v", nil
	}

	c.Fetch(context.Background(), "k", producer)
	require.Equal(t, 1, c.Len())

	c.Forget("k")
	assert.Equal(t, 0, c.Len())

	c.Fetch(context.Background(), "k", producer)
	assert.Equal(t, 2, calls, "forgotten key should refetch")
}
