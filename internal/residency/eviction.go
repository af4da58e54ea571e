// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package residency

import "github.com/gogpu/tilestream/tile"

// RefCounter reports the current reference count of a tile.
type RefCounter interface {
	RefCount(c tile.Coord) uint32
}

// EvictionDelay holds tiles whose reference count dropped to zero until
// every frame that could still sample them has finished.
//
// There are numSwapBuffers+1 generations. Append adds to the newest,
// NextFrame ages every generation by one and merges the second-oldest into
// the oldest, which is the ready list and accumulates until drained.
type EvictionDelay struct {
	gens [][]tile.Coord
}

// NewEvictionDelay creates a delay of numSwapBuffers frames. numSwapBuffers
// must be at least 1.
func NewEvictionDelay(numSwapBuffers int) *EvictionDelay {
	return &EvictionDelay{gens: make([][]tile.Coord, max(numSwapBuffers, 1)+1)}
}

// Append schedules c for eviction after the delay.
func (d *EvictionDelay) Append(c tile.Coord) {
	d.gens[0] = append(d.gens[0], c)
}

// NextFrame ages every generation by one frame.
func (d *EvictionDelay) NextFrame() {
	last := len(d.gens) - 1
	d.gens[last] = append(d.gens[last], d.gens[last-1]...)
	spare := d.gens[last-1][:0]
	copy(d.gens[1:last], d.gens[:last-1])
	d.gens[0] = spare
}

// Ready returns the tiles that have waited long enough. The caller may
// compact it in place and store the remainder with SetReady.
func (d *EvictionDelay) Ready() []tile.Coord {
	return d.gens[len(d.gens)-1]
}

// SetReady replaces the ready list.
func (d *EvictionDelay) SetReady(ready []tile.Coord) {
	d.gens[len(d.gens)-1] = ready
}

// Rescue removes every tile that is referenced again from all generations.
func (d *EvictionDelay) Rescue(rc RefCounter) {
	for g, gen := range d.gens {
		n := 0
		for _, c := range gen {
			if rc.RefCount(c) == 0 {
				gen[n] = c
				n++
			}
		}
		d.gens[g] = gen[:n]
	}
}

// Clear drops every pending eviction.
func (d *EvictionDelay) Clear() {
	for g := range d.gens {
		d.gens[g] = d.gens[g][:0]
	}
}

// Len returns the number of pending evictions across all generations.
func (d *EvictionDelay) Len() int {
	n := 0
	for _, gen := range d.gens {
		n += len(gen)
	}
	return n
}
