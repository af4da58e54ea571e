// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package residency

import (
	"sync/atomic"

	"github.com/gogpu/tilestream/internal/invariant"
	"github.com/gogpu/tilestream/tile"
)

// Grid holds the state of every standard tile of a texture.
//
// Each mip is stored as flat row-major slices (index = y*tilesX + x).
// Reference counts, slots and the queued bit belong to the producer
// goroutine. Residency is atomic because the fence monitor completes the
// Loading and Evicting transitions.
type Grid struct {
	mips  []mipState
	freed bool
}

type mipState struct {
	tilesX, tilesY uint32

	refs      []uint32
	slots     []uint32
	queued    []bool
	residency []atomic.Uint32
}

// NewGrid creates a grid for the standard mips of l. Every tile starts
// NotResident with no slot and no references.
func NewGrid(l *tile.Layout) *Grid {
	g := &Grid{mips: make([]mipState, l.NumStandardMips)}
	for m := range l.NumStandardMips {
		n := int(l.TilesX(m) * l.TilesY(m))
		ms := mipState{
			tilesX:    l.TilesX(m),
			tilesY:    l.TilesY(m),
			refs:      make([]uint32, n),
			slots:     make([]uint32, n),
			queued:    make([]bool, n),
			residency: make([]atomic.Uint32, n),
		}
		for i := range ms.slots {
			ms.slots[i] = tile.InvalidSlot
		}
		g.mips[m] = ms
	}
	return g
}

func (g *Grid) at(c tile.Coord) (*mipState, int) {
	ms := &g.mips[c.Mip]
	return ms, int(c.Y*ms.tilesX + c.X)
}

// NumMips returns the number of standard mips.
func (g *Grid) NumMips() uint32 { return uint32(len(g.mips)) }

// TilesX returns the width of mip m in tiles.
func (g *Grid) TilesX(m uint32) uint32 { return g.mips[m].tilesX }

// TilesY returns the height of mip m in tiles.
func (g *Grid) TilesY(m uint32) uint32 { return g.mips[m].tilesY }

// RefCount returns the number of mip-0 columns that currently want c.
func (g *Grid) RefCount(c tile.Coord) uint32 {
	ms, i := g.at(c)
	return ms.refs[i]
}

// AddRef increments the reference count of c and returns the new value.
func (g *Grid) AddRef(c tile.Coord) uint32 {
	ms, i := g.at(c)
	ms.refs[i]++
	return ms.refs[i]
}

// DecRef decrements the reference count of c and returns the new value.
func (g *Grid) DecRef(c tile.Coord) uint32 {
	ms, i := g.at(c)
	invariant.Check(ms.refs[i] > 0, "DecRef of unreferenced tile %v", c)
	ms.refs[i]--
	return ms.refs[i]
}

// ZeroRefs clears every nonzero reference count, calling fn for each tile
// it clears.
func (g *Grid) ZeroRefs(fn func(tile.Coord)) {
	for m := range g.mips {
		ms := &g.mips[m]
		for i, r := range ms.refs {
			if r == 0 {
				continue
			}
			ms.refs[i] = 0
			fn(tile.Coord{X: uint32(i) % ms.tilesX, Y: uint32(i) / ms.tilesX, Mip: uint32(m)})
		}
	}
}

// Residency returns the residency of c. Safe from any goroutine.
func (g *Grid) Residency(c tile.Coord) tile.Residency {
	ms, i := g.at(c)
	return tile.Residency(ms.residency[i].Load())
}

// Transition moves c from one residency to another and reports whether
// the tile was in the expected state.
func (g *Grid) Transition(c tile.Coord, from, to tile.Residency) bool {
	invariant.Check(tile.CanTransition(from, to), "illegal transition %s -> %s at %v", from, to, c)
	ms, i := g.at(c)
	ok := ms.residency[i].CompareAndSwap(uint32(from), uint32(to))
	invariant.Check(ok, "tile %v expected %s, found %s", c, from, tile.Residency(ms.residency[i].Load()))
	return ok
}

// Slot returns the heap slot backing c, or tile.InvalidSlot.
func (g *Grid) Slot(c tile.Coord) uint32 {
	ms, i := g.at(c)
	return ms.slots[i]
}

// SetSlot records the heap slot backing c.
func (g *Grid) SetSlot(c tile.Coord, slot uint32) {
	ms, i := g.at(c)
	ms.slots[i] = slot
}

// Queued reports whether c is waiting in a LoadQueue.
func (g *Grid) Queued(c tile.Coord) bool {
	ms, i := g.at(c)
	return ms.queued[i]
}

func (g *Grid) setQueued(c tile.Coord, v bool) {
	ms, i := g.at(c)
	ms.queued[i] = v
}

// AnyReferenced reports whether any tile is referenced. Every reference
// also holds the covering tile of the coarsest mip, so only that mip is
// scanned.
func (g *Grid) AnyReferenced() bool {
	if len(g.mips) == 0 {
		return false
	}
	for _, r := range g.mips[len(g.mips)-1].refs {
		if r != 0 {
			return true
		}
	}
	return false
}

// MinFullyResidentMip returns the finest mip m such that every tile of m
// and of all coarser standard mips is Resident, or NumMips when the
// coarsest mip is not fully resident.
func (g *Grid) MinFullyResidentMip() uint32 {
	finest := g.NumMips()
	for m := len(g.mips) - 1; m >= 0; m-- {
		ms := &g.mips[m]
		for i := range ms.residency {
			if tile.Residency(ms.residency[i].Load()) != tile.Resident {
				return finest
			}
		}
		finest = uint32(m)
	}
	return finest
}

// FreeSlots returns every held heap slot through free and resets all
// tiles to NotResident. It must only run once nothing is in flight for the
// texture; later calls do nothing and return 0.
func (g *Grid) FreeSlots(free func(slot uint32)) int {
	if g.freed {
		return 0
	}
	g.freed = true

	n := 0
	for m := range g.mips {
		ms := &g.mips[m]
		for i, s := range ms.slots {
			if s != tile.InvalidSlot {
				free(s)
				ms.slots[i] = tile.InvalidSlot
				n++
			}
			ms.refs[i] = 0
			ms.queued[i] = false
			ms.residency[i].Store(uint32(tile.NotResident))
		}
	}
	return n
}
