package cache

import (
	"sync"
	"testing"
)

// identity puts key k in shard k%16.
func identity(k uint64) uint64 { return k }

func value(n int, b byte) []byte {
	v := make([]byte, n)
	for i := range v {
		v[i] = b
	}
	return v
}

func TestCacheGetAdd(t *testing.T) {
	c := New[uint64](16*100, identity)

	c.Add(1, value(10, 1))
	got, ok := c.Get(1)
	if !ok || len(got) != 10 || got[0] != 1 {
		t.Errorf("Get(1) = %v, %v; want 10 bytes of 1", got, ok)
	}
	if _, ok := c.Get(2); ok {
		t.Error("Get(2) found a value never added")
	}
	if c.Len() != 1 || c.Bytes() != 10 {
		t.Errorf("Len(), Bytes() = %d, %d; want 1, 10", c.Len(), c.Bytes())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[uint64](16*100, identity)

	// Keys 0, 16, 32 share shard 0 and its 100-byte budget.
	c.Add(0, value(40, 0))
	c.Add(16, value(40, 1))
	c.Get(0)
	c.Add(32, value(40, 2))

	if _, ok := c.Get(16); ok {
		t.Error("Get(16) hit, want it evicted as least recently used")
	}
	for _, k := range []uint64{0, 32} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("Get(%d) missed", k)
		}
	}
	if c.Bytes() != 80 {
		t.Errorf("Bytes() = %d, want 80", c.Bytes())
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestCacheShardsIndependent(t *testing.T) {
	c := New[uint64](16*100, identity)
	for k := range uint64(16) {
		c.Add(k, value(100, byte(k)))
	}
	if c.Len() != 16 {
		t.Errorf("Len() = %d, want 16", c.Len())
	}
}

func TestCacheReplaceUpdatesCost(t *testing.T) {
	c := New[uint64](16*100, identity)
	c.Add(3, value(60, 1))
	c.Add(3, value(20, 2))

	if c.Bytes() != 20 {
		t.Errorf("Bytes() = %d, want 20", c.Bytes())
	}
	got, _ := c.Get(3)
	if got[0] != 2 {
		t.Errorf("Get(3)[0] = %d, want 2", got[0])
	}
}

func TestCacheOversizedValue(t *testing.T) {
	c := New[uint64](16*100, identity)
	c.Add(1, value(101, 1))
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 for a value over the shard budget", c.Len())
	}

	disabled := New[uint64](0, identity)
	disabled.Add(1, value(1, 1))
	if disabled.Len() != 0 {
		t.Errorf("zero-budget Len() = %d, want 0", disabled.Len())
	}
}

func TestCacheRemoveAndClear(t *testing.T) {
	c := New[uint64](16*100, identity)
	c.Add(1, value(10, 1))
	c.Add(2, value(10, 2))

	if !c.Remove(1) {
		t.Error("Remove(1) = false, want true")
	}
	if c.Remove(1) {
		t.Error("second Remove(1) = true, want false")
	}
	if c.Bytes() != 10 {
		t.Errorf("Bytes() = %d, want 10", c.Bytes())
	}

	c.Clear()
	if c.Len() != 0 || c.Bytes() != 0 {
		t.Errorf("after Clear Len(), Bytes() = %d, %d; want 0, 0", c.Len(), c.Bytes())
	}
}

func TestCacheStats(t *testing.T) {
	c := New[uint64](16*100, identity)
	c.Add(1, value(10, 1))
	c.Get(1)
	c.Get(1)
	c.Get(2)
	c.Get(3)

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 2 {
		t.Errorf("Hits, Misses = %d, %d; want 2, 2", s.Hits, s.Misses)
	}
	if s.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", s.HitRate)
	}
	if s.Budget != 1600 || s.Entries != 1 {
		t.Errorf("Budget, Entries = %d, %d; want 1600, 1", s.Budget, s.Entries)
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New[uint64](16*1024, identity)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				k := uint64(g*1000 + i%50)
				if _, ok := c.Get(k); !ok {
					c.Add(k, value(64, byte(g)))
				}
			}
		}()
	}
	wg.Wait()

	if c.Bytes() > 16*1024 {
		t.Errorf("Bytes() = %d, exceeds budget", c.Bytes())
	}
}

func BenchmarkCacheGet(b *testing.B) {
	c := New[uint64](1<<20, identity)
	for k := range uint64(100) {
		c.Add(k, value(64, 0))
	}
	b.ResetTimer()
	for i := 0; b.Loop(); i++ {
		c.Get(uint64(i % 100))
	}
}

func BenchmarkCacheParallel(b *testing.B) {
	c := New[uint64](1<<20, identity)
	b.RunParallel(func(pb *testing.PB) {
		var k uint64
		for pb.Next() {
			if _, ok := c.Get(k % 256); !ok {
				c.Add(k%256, value(64, 0))
			}
			k++
		}
	})
}
