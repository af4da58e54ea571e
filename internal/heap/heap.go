// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package heap allocates fixed-size physical slots of the streaming heap.
package heap

import (
	"sync"

	"github.com/gogpu/tilestream/internal/invariant"
	"github.com/gogpu/tilestream/tile"
)

// Allocator hands out heap slot indices in [0, Capacity).
//
// Slots are returned LIFO so recently freed memory is reused first.
// Thread safety: Allocator is safe for concurrent use.
type Allocator struct {
	mu    sync.Mutex
	free  []uint32
	inUse []bool
}

// New creates an allocator with capacity slots, all free.
func New(capacity int) *Allocator {
	a := &Allocator{
		free:  make([]uint32, capacity),
		inUse: make([]bool, capacity),
	}
	for i := range a.free {
		a.free[i] = uint32(capacity - 1 - i)
	}
	return a
}

// Allocate returns a free slot, or tile.InvalidSlot when the heap is full.
func (a *Allocator) Allocate() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.free)
	if n == 0 {
		return tile.InvalidSlot
	}
	s := a.free[n-1]
	a.free = a.free[:n-1]
	a.inUse[s] = true
	return s
}

// Free returns slot to the heap.
func (a *Allocator) Free(slot uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	invariant.Check(int(slot) < len(a.inUse) && a.inUse[slot], "free of unallocated slot %d", slot)
	if int(slot) >= len(a.inUse) || !a.inUse[slot] {
		return
	}
	a.inUse[slot] = false
	a.free = append(a.free, slot)
}

// NumFree returns the number of free slots.
func (a *Allocator) NumFree() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}

// Capacity returns the total number of slots.
func (a *Allocator) Capacity() int {
	return len(a.inUse)
}
