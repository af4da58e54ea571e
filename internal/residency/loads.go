// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package residency

import "github.com/gogpu/tilestream/tile"

// LoadQueue is the set of tiles whose reference count became nonzero and
// that still need a load. A tile is present at most once.
type LoadQueue struct {
	coords []tile.Coord
}

// Push adds c unless it is already queued.
func (q *LoadQueue) Push(g *Grid, c tile.Coord) {
	if g.Queued(c) {
		return
	}
	g.setQueued(c, true)
	q.coords = append(q.coords, c)
}

// Len returns the number of queued tiles.
func (q *LoadQueue) Len() int { return len(q.coords) }

// Coords returns the queued tiles in insertion order. The slice must not
// be modified.
func (q *LoadQueue) Coords() []tile.Coord { return q.coords }

// Retain keeps, in order, the tiles for which keep returns true.
func (q *LoadQueue) Retain(g *Grid, keep func(tile.Coord) bool) {
	n := 0
	for _, c := range q.coords {
		if keep(c) {
			q.coords[n] = c
			n++
			continue
		}
		g.setQueued(c, false)
	}
	q.coords = q.coords[:n]
}

// Abandon drops tiles that are no longer referenced.
func (q *LoadQueue) Abandon(g *Grid) {
	q.Retain(g, func(c tile.Coord) bool { return g.RefCount(c) > 0 })
}

// Clear drops every queued tile.
func (q *LoadQueue) Clear(g *Grid) {
	for _, c := range q.coords {
		g.setQueued(c, false)
	}
	q.coords = q.coords[:0]
}
