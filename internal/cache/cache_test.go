package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCache_GetPut(t *testing.T) {
	c := New[string](Policy{MaxEntries: 10, TTL: time.Minute})

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	c.Put("a", "one")
	value, ok := c.Get("a")
	if !ok || value != "one" {
		t.Fatalf("expected hit with value one, got (%q, %v)", value, ok)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCache_LRUEvictionOnEntryCount(t *testing.T) {
	c := New[string](Policy{MaxEntries: 2})

	c.Put("a", "1")
	c.Put("b", "2")
	// Touch a so b becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected hit for a")
	}
	c.Put("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a to survive")
	}
	if c.Stats().Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", c.Stats().Evictions)
	}
}

func TestCache_ByteBoundEviction(t *testing.T) {
	c := New[string](
		Policy{MaxEntries: 100, MaxBytes: 10},
		WithSizeFunc[string](func(v string) int64 { return int64(len(v)) }),
	)

	c.Put("a", "aaaa") // 4 bytes
	c.Put("b", "bbbb") // 8 total
	c.Put("c", "cccc") // would be 12: evict a

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a evicted under byte pressure")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("expected b to survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatalf("expected c present")
	}
}

func TestCache_OversizedEntryRejected(t *testing.T) {
	c := New[string](
		Policy{MaxEntries: 100, MaxBytes: 10},
		WithSizeFunc[string](func(v string) int64 { return int64(len(v)) }),
	)

	c.Put("a", "aaaa")
	c.Put("b", "bbbb")
	c.Put("huge", "xxxxxxxxxxxxxxxx") // 16 bytes: can never fit

	if _, ok := c.Get("huge"); ok {
		t.Fatalf("expected oversized entry to be rejected")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a to survive an oversized put")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("expected b to survive an oversized put")
	}
	if c.Stats().Evictions != 0 {
		t.Fatalf("expected no evictions, got %d", c.Stats().Evictions)
	}

	// Restore skips entries that can never fit the same way.
	restored := New[string](
		Policy{MaxEntries: 100, MaxBytes: 10},
		WithSizeFunc[string](func(v string) int64 { return int64(len(v)) }),
	)
	restored.Restore([]SnapshotEntry[string]{
		{Key: "huge", Value: "xxxxxxxxxxxxxxxx", StoredAt: time.Now()},
		{Key: "a", Value: "aaaa", StoredAt: time.Now()},
	})
	if _, ok := restored.Get("huge"); ok {
		t.Fatalf("expected oversized snapshot entry skipped")
	}
	if _, ok := restored.Get("a"); !ok {
		t.Fatalf("expected fitting snapshot entry restored")
	}
}

func TestCache_LazyTTLExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := New[string](Policy{MaxEntries: 10, TTL: time.Minute}, WithClock[string](func() time.Time { return clock() }))

	c.Put("a", "1")
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry removed, len=%d", c.Len())
	}
}

func TestCache_GetOrCompute_SingleFlight(t *testing.T) {
	c := New[string](Policy{MaxEntries: 10, TTL: time.Minute})

	var calls atomic.Int64
	gate := make(chan struct{})

	const waiters = 16
	var wg sync.WaitGroup
	results := make([]string, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(context.Background(), "key", func(ctx context.Context) (string, error) {
				calls.Add(1)
				<-gate
				return "computed", nil
			})
		}(i)
	}

	// Let all goroutines pile onto the same key before releasing.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one computation, got %d", got)
	}
	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("waiter %d: unexpected error: %v", i, errs[i])
		}
		if results[i] != "computed" {
			t.Fatalf("waiter %d: unexpected result %q", i, results[i])
		}
	}

	// Subsequent calls hit the cache without recomputation.
	value, err := c.GetOrCompute(context.Background(), "key", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "recomputed", nil
	})
	if err != nil || value != "computed" {
		t.Fatalf("expected cached value, got (%q, %v)", value, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no recomputation, got %d calls", calls.Load())
	}
}

func TestCache_GetOrCompute_CountsOneMissPerComputation(t *testing.T) {
	c := New[string](Policy{MaxEntries: 10, TTL: time.Minute})

	if _, err := c.GetOrCompute(context.Background(), "key", func(ctx context.Context) (string, error) {
		return "computed", nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := c.Stats()
	if stats.Misses != 1 {
		t.Fatalf("expected a single miss for one computed lookup, got %d", stats.Misses)
	}
	if stats.Hits != 0 {
		t.Fatalf("expected no hits yet, got %d", stats.Hits)
	}

	if _, err := c.GetOrCompute(context.Background(), "key", func(ctx context.Context) (string, error) {
		return "recomputed", nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats = c.Stats()
	if stats.Misses != 1 || stats.Hits != 1 {
		t.Fatalf("expected 1 miss and 1 hit after a cached lookup, got %+v", stats)
	}
}

func TestCache_GetOrCompute_ErrorNotCached(t *testing.T) {
	c := New[string](Policy{MaxEntries: 10})

	wantErr := errors.New("boom")
	if _, err := c.GetOrCompute(context.Background(), "key", func(ctx context.Context) (string, error) {
		return "", wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("expected compute error, got %v", err)
	}

	value, err := c.GetOrCompute(context.Background(), "key", func(ctx context.Context) (string, error) {
		return "second", nil
	})
	if err != nil || value != "second" {
		t.Fatalf("expected fresh computation after error, got (%q, %v)", value, err)
	}
}

func TestCache_GetOrCompute_CancelledWaiter(t *testing.T) {
	c := New[string](Policy{MaxEntries: 10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetOrCompute(ctx, "key", func(ctx context.Context) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return "late", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestCache_SnapshotRestore(t *testing.T) {
	now := time.Now()
	c := New[string](Policy{MaxEntries: 10, TTL: time.Hour})
	c.Put("a", "1")
	c.Put("b", "2")

	snapshot := c.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 snapshot entries, got %d", len(snapshot))
	}

	restored := New[string](Policy{MaxEntries: 10, TTL: time.Hour})
	restored.Restore(snapshot)
	if value, ok := restored.Get("a"); !ok || value != "1" {
		t.Fatalf("expected restored entry, got (%q, %v)", value, ok)
	}

	// Entries past TTL at restore time are skipped.
	stale := New[string](
		Policy{MaxEntries: 10, TTL: time.Minute},
		WithClock[string](func() time.Time { return now.Add(time.Hour) }),
	)
	stale.Restore(snapshot)
	if stale.Len() != 0 {
		t.Fatalf("expected stale entries skipped, len=%d", stale.Len())
	}
}
