// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package batch

import (
	"sync/atomic"

	"github.com/gogpu/tilestream/internal/invariant"
)

// Pool is a fixed arena of UpdateLists with lock-free allocation.
//
// A free counter is reserved before scanning, so a reservation that
// succeeds is backed by a Free list. The scan starts at a rotating cursor
// and claims a list with a CAS from Free to Allocated.
//
// Thread safety: Allocate and Free are safe for concurrent use.
type Pool struct {
	lists  []UpdateList
	free   atomic.Int64
	cursor atomic.Uint32
}

// NewPool creates a pool of n lists.
func NewPool(n int) *Pool {
	p := &Pool{lists: make([]UpdateList, n)}
	for i := range p.lists {
		p.lists[i].index = i
	}
	p.free.Store(int64(n))
	return p
}

// Allocate claims a Free list for owner. It returns nil when the pool is
// exhausted or the bounded scan lost every race; callers retry on a later
// cycle.
func (p *Pool) Allocate(owner Owner) *UpdateList {
	if p.free.Add(-1) < 0 {
		p.free.Add(1)
		return nil
	}

	n := uint32(len(p.lists))
	for range 2 * n {
		ul := &p.lists[(p.cursor.Add(1)-1)%n]
		if ul.state.CompareAndSwap(uint32(Free), uint32(Allocated)) {
			ul.reset(owner)
			return ul
		}
	}

	p.free.Add(1)
	return nil
}

// Free returns a completed list to the pool.
func (p *Pool) Free(ul *UpdateList) {
	s := ul.State()
	invariant.Check(s == CopyPending || s == Allocated, "free of %s batch", s)

	ul.owner = nil
	ul.state.Store(uint32(Free))
	p.free.Add(1)
}

// FreeEmpty returns an allocated list that ended up carrying no work.
func (p *Pool) FreeEmpty(ul *UpdateList) {
	invariant.Check(ul.Empty(), "FreeEmpty of non-empty batch")
	p.Free(ul)
}

// ForEach calls fn for every list in arena order.
func (p *Pool) ForEach(fn func(ul *UpdateList)) {
	for i := range p.lists {
		fn(&p.lists[i])
	}
}

// At returns the list at arena index i.
func (p *Pool) At(i int) *UpdateList { return &p.lists[i] }

// Len returns the pool capacity.
func (p *Pool) Len() int { return len(p.lists) }

// FreeCount returns the number of unreserved lists.
func (p *Pool) FreeCount() int { return int(p.free.Load()) }

// Outstanding counts lists that are not Free.
func (p *Pool) Outstanding() int {
	n := 0
	for i := range p.lists {
		if p.lists[i].State() != Free {
			n++
		}
	}
	return n
}

// Idle reports whether every list is Free.
func (p *Pool) Idle() bool {
	return p.FreeCount() == len(p.lists)
}
