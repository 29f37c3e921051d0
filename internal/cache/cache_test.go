package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now most recent
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute).WithClock(func() time.Time { return now })
	c.Set("k", "v")
	c.Set("k2", "v2")

	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("entry should still be fresh")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry should have expired")
	}
	if removed := c.CleanExpired(); removed != 1 {
		t.Fatalf("expected 1 expired entry removed, got %d", removed)
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Size())
	}
}

func TestSnapshotCacheDiscardsSupersededLoads(t *testing.T) {
	c := NewSnapshotCache[string](10, time.Minute)

	gen := c.Begin("alice")
	c.Invalidate("alice") // a mutation lands while the load is in flight
	if c.Store("alice", gen, "stale") {
		t.Fatalf("stale load must not be installed")
	}
	if _, ok := c.Get("alice"); ok {
		t.Fatalf("nothing should be cached")
	}

	gen = c.Begin("alice")
	if !c.Store("alice", gen, "fresh") {
		t.Fatalf("current load should be installed")
	}
	if v, ok := c.Get("alice"); !ok || v != "fresh" {
		t.Fatalf("expected fresh, got %q %v", v, ok)
	}

	// Other keys are independent.
	bob := c.Begin("bob")
	c.Invalidate("alice")
	if !c.Store("bob", bob, "b") {
		t.Fatalf("bob's load should not be affected by alice's invalidation")
	}
	if c.Size() != 1 {
		t.Fatalf("expected only bob cached, got %d", c.Size())
	}
}

func TestSnapshotCacheForgetsFinishedLoads(t *testing.T) {
	c := NewSnapshotCache[string](2, time.Minute)

	// Invalidations without a load in progress leave nothing behind.
	for i := 0; i < 100; i++ {
		c.Invalidate(fmt.Sprintf("user-%d", i))
	}
	if n := c.loadsInFlight(); n != 0 {
		t.Fatalf("expected no tracked keys, got %d", n)
	}

	// Overlapping loads share the key's state until the last one ends.
	first := c.Begin("alice")
	second := c.Begin("alice")
	c.Invalidate("alice")
	if c.Store("alice", first, "stale-1") {
		t.Fatalf("first load was superseded")
	}
	if n := c.loadsInFlight(); n != 1 {
		t.Fatalf("second load still running, got %d tracked keys", n)
	}
	if c.Store("alice", second, "stale-2") {
		t.Fatalf("second load was superseded")
	}
	if n := c.loadsInFlight(); n != 0 {
		t.Fatalf("expected no tracked keys, got %d", n)
	}

	// A failed load releases its state too.
	c.Begin("bob")
	c.Abandon("bob")
	if n := c.loadsInFlight(); n != 0 {
		t.Fatalf("abandoned load still tracked")
	}

	gen := c.Begin("alice")
	if !c.Store("alice", gen, "fresh") {
		t.Fatalf("fresh load should be installed")
	}
	if c.Store("alice", gen, "again") {
		t.Fatalf("a load can only be stored once")
	}
	if v, _ := c.Get("alice"); v != "fresh" {
		t.Fatalf("expected fresh, got %q", v)
	}
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	now := time.Now()
	c := NewLRUCache[int](10, time.Second).WithClock(func() time.Time { return now })
	c.Set("x", 1)
	m := NewManager()
	m.Register(c)
	m.Stop() // not started: must not block

	now = now.Add(time.Hour)
	if got := m.CleanNow(); got != 1 {
		t.Fatalf("expected 1 cleaned entry, got %d", got)
	}

	m.StartCleanup(10 * time.Millisecond)
	m.Stop()
}
