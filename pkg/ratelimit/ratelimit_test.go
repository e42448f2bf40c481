package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrefersLongestPrefix(t *testing.T) {
	rules := []Rule{
		{Host: "clob.example.com", Capacity: 100, Window: 10 * time.Second},
		{Host: "clob.example.com", PathPrefix: "/book", Capacity: 50, Window: 10 * time.Second},
		{Host: "clob.example.com", PathPrefix: "/books", Capacity: 10, Window: 10 * time.Second},
	}
	l := New(rules, 0, 0)

	r, ok := l.Resolve("https://clob.example.com/books?token_id=1")
	require.True(t, ok)
	assert.Equal(t, "/books", r.PathPrefix)

	r, ok = l.Resolve("https://clob.example.com/book?token_id=1")
	require.True(t, ok)
	assert.Equal(t, "/book", r.PathPrefix)

	r, ok = l.Resolve("https://clob.example.com/price")
	require.True(t, ok)
	assert.Equal(t, "", r.PathPrefix)

	_, ok = l.Resolve("https://other.example.com/price")
	assert.False(t, ok)
}

func TestAcquireThirdCallBlocksUntilWindow(t *testing.T) {
	rules := []Rule{
		{Host: "api.example.com", Capacity: 2, Window: 100 * time.Millisecond},
	}
	l := New(rules, 0, 0)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "https://api.example.com/x"))
	require.NoError(t, l.Acquire(ctx, "https://api.example.com/x"))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "first two acquires must be immediate")

	require.NoError(t, l.Acquire(ctx, "https://api.example.com/x"))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "third acquire must wait for the window")
	assert.Less(t, elapsed, 400*time.Millisecond)
}

func TestAcquireNeverExceedsCapacityPerWindow(t *testing.T) {
	const capacity = 3
	window := 80 * time.Millisecond
	rules := []Rule{
		{Host: "api.example.com", Capacity: capacity, Window: window},
	}
	l := New(rules, 0, 0)

	var mu sync.Mutex
	var grants []time.Time

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx, "https://api.example.com/y"); err != nil {
				return
			}
			mu.Lock()
			grants = append(grants, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, grants, 10)

	sort.Slice(grants, func(i, j int) bool { return grants[i].Before(grants[j]) })

	// The first bucket cycle starts at the first grant; no more than
	// `capacity` calls may land inside it.
	n := 0
	for _, g := range grants {
		if g.Sub(grants[0]) < window {
			n++
		}
	}
	assert.LessOrEqual(t, n, capacity)

	// 10 grants at 3 per cycle need at least four cycles, so at least
	// three full window waits end to end.
	assert.GreaterOrEqual(t, grants[len(grants)-1].Sub(grants[0]), 3*window)
}

func TestAcquireUnmatchedHostIsUnthrottled(t *testing.T) {
	l := New(nil, 0, 0)
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Acquire(context.Background(), "https://free.example.com/z"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquireHonorsCancellation(t *testing.T) {
	rules := []Rule{
		{Host: "api.example.com", Capacity: 1, Window: 10 * time.Second},
	}
	l := New(rules, 0, 0)

	require.NoError(t, l.Acquire(context.Background(), "https://api.example.com/x"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, "https://api.example.com/x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
