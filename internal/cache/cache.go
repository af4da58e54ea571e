package cache

import (
	"sync"
	"sync/atomic"
)

const (
	// ShardCount is the number of shards. Must be a power of 2.
	ShardCount = 16

	shardMask = ShardCount - 1
)

// Hasher computes the shard hash of a key.
type Hasher[K any] func(K) uint64

// Cache is a sharded LRU cache of byte slices with a total byte budget.
//
// Values are stored as-is. Callers must not modify a slice after adding it
// or after getting it back.
type Cache[K comparable] struct {
	shards [ShardCount]shard[K]
	hasher Hasher[K]
	budget int64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type shard[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry[K]
	lru     lruList[K]
	bytes   int64
}

type entry[K comparable] struct {
	value []byte
	node  *lruNode[K]
}

// Stats contains cache statistics.
type Stats struct {
	// Entries is the current number of cached values.
	Entries int
	// Bytes is the total size of cached values.
	Bytes int64
	// Budget is the byte budget across all shards.
	Budget int64

	Hits      uint64
	Misses    uint64
	Evictions uint64

	// HitRate is Hits / (Hits + Misses), 0 before any lookup.
	HitRate float64
}

// New creates a cache holding at most budget bytes. A budget below
// ShardCount disables caching: Add becomes a no-op.
func New[K comparable](budget int64, hasher Hasher[K]) *Cache[K] {
	c := &Cache[K]{hasher: hasher, budget: max(budget, 0)}
	for i := range c.shards {
		c.shards[i].entries = make(map[K]*entry[K])
	}
	return c
}

func (c *Cache[K]) shard(key K) *shard[K] {
	return &c.shards[c.hasher(key)&shardMask]
}

func (c *Cache[K]) shardBudget() int64 { return c.budget / ShardCount }

// Get returns the value of key and marks it most recently used.
func (c *Cache[K]) Get(key K) ([]byte, bool) {
	s := c.shard(key)
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		s.lru.MoveToFront(e.node)
	}
	s.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Add stores value under key, evicting least recently used values of the
// same shard until it fits. Values larger than a shard's budget are not
// stored.
func (c *Cache[K]) Add(key K, value []byte) {
	cost := int64(len(value))
	limit := c.shardBudget()
	if cost > limit || limit == 0 {
		return
	}

	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		s.bytes += cost - e.node.cost
		e.value = value
		e.node.cost = cost
		s.lru.MoveToFront(e.node)
	} else {
		s.entries[key] = &entry[K]{value: value, node: s.lru.PushFront(key, cost)}
		s.bytes += cost
	}

	for s.bytes > limit {
		n := s.lru.Back()
		s.lru.Remove(n)
		delete(s.entries, n.key)
		s.bytes -= n.cost
		c.evictions.Add(1)
	}
}

// Remove drops key. It reports whether key was cached.
func (c *Cache[K]) Remove(key K) bool {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.lru.Remove(e.node)
	delete(s.entries, key)
	s.bytes -= e.node.cost
	return true
}

// Clear removes every value.
func (c *Cache[K]) Clear() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		s.entries = make(map[K]*entry[K])
		s.lru = lruList[K]{}
		s.bytes = 0
		s.mu.Unlock()
	}
}

// Len returns the number of cached values.
func (c *Cache[K]) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Bytes returns the total size of cached values.
func (c *Cache[K]) Bytes() int64 {
	var n int64
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += s.bytes
		s.mu.Unlock()
	}
	return n
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K]) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Entries:   c.Len(),
		Bytes:     c.Bytes(),
		Budget:    c.budget,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		HitRate:   rate,
	}
}
