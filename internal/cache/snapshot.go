package cache

import (
	"sync"
	"time"
)

// Generation identifies the state of a key when a load started.
type Generation uint64

// SnapshotCache caches whole values per key and refuses results from loads
// that were overtaken by an invalidation. Callers take a Generation with
// Begin before loading and hand it back to Store, or call Abandon when the
// load fails.
type SnapshotCache[T any] struct {
	mu       sync.Mutex
	inflight map[string]*loadState // only keys with loads in progress
	store    *LRUCache[T]
}

type loadState struct {
	gen   Generation
	loads int
}

func NewSnapshotCache[T any](maxSize int, ttl time.Duration) *SnapshotCache[T] {
	return &SnapshotCache[T]{
		inflight: make(map[string]*loadState),
		store:    NewLRUCache[T](maxSize, ttl),
	}
}

// Get returns the cached value for key.
func (c *SnapshotCache[T]) Get(key string) (T, bool) {
	return c.store.Get(key)
}

// Begin registers a load of key and returns its generation.
func (c *SnapshotCache[T]) Begin(key string) Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.inflight[key]
	if !ok {
		st = &loadState{}
		c.inflight[key] = st
	}
	st.loads++
	return st.gen
}

// Store ends a load and installs value if key was not invalidated since gen
// was taken. It reports whether the value was installed.
func (c *SnapshotCache[T]) Store(key string, gen Generation, value T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.inflight[key]
	if !ok {
		return false
	}
	c.finish(key, st)
	if st.gen != gen {
		return false
	}
	c.store.Set(key, value)
	return true
}

// Abandon ends a load that produced no value.
func (c *SnapshotCache[T]) Abandon(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.inflight[key]; ok {
		c.finish(key, st)
	}
}

// finish drops the key's load state once no load is left to supersede.
func (c *SnapshotCache[T]) finish(key string, st *loadState) {
	st.loads--
	if st.loads <= 0 {
		delete(c.inflight, key)
	}
}

// Invalidate drops the cached value and supersedes in-flight loads.
func (c *SnapshotCache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.inflight[key]; ok {
		st.gen++
	}
	c.store.Delete(key)
}

func (c *SnapshotCache[T]) CleanExpired() int {
	return c.store.CleanExpired()
}

func (c *SnapshotCache[T]) Size() int {
	return c.store.Size()
}

func (c *SnapshotCache[T]) loadsInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}
