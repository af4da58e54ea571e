package tilestream

import (
	"fmt"

	"github.com/gogpu/tilestream/tile"
)

// QueueFeedback stores a feedback buffer produced by the frame that
// completes at fence. data holds, per mip-0 tile in row-major order, the
// finest mip the renderer wanted there; values at or above
// NumStandardMips mean "nothing". data is copied.
//
// Up to NumSwapBuffers buffers are kept; a newer one overwrites the oldest.
func (r *Resource) QueueFeedback(data []byte, fence uint64) error {
	if len(data) != len(r.tileRefs) {
		return fmt.Errorf("%w: got %d bytes, want %dx%d", ErrFeedbackSize, len(data), r.tilesX, r.tilesY)
	}
	f := &r.feedback[r.feedbackNext]
	f.data = append(f.data[:0], data...)
	f.fence = fence
	f.queued = true
	r.feedbackNext = (r.feedbackNext + 1) % len(r.feedback)
	return nil
}

// newestFeedback dequeues every buffer whose frame has completed and
// returns the newest of them, or nil.
func (r *Resource) newestFeedback(completedFence uint64) *queuedFeedback {
	var newest *queuedFeedback
	for i := range r.feedback {
		f := &r.feedback[i]
		if !f.queued || f.fence > completedFence {
			continue
		}
		f.queued = false
		if newest == nil || f.fence > newest.fence {
			newest = f
		}
	}
	return newest
}

// ProcessFeedback turns the newest completed feedback into reference
// counts, queueing loads for newly referenced tiles and delayed evictions
// for tiles no longer referenced. Older completed buffers are discarded.
//
// After ClearAllocations, the next call releases every reference instead
// and drops all pending loads.
func (r *Resource) ProcessFeedback(completedFence uint64) {
	changed := false

	if r.setZeroRefCounts {
		r.setZeroRefCounts = false
		if r.refCountsZero {
			return
		}
		r.refCountsZero = true

		for i := range r.feedback {
			r.feedback[i].queued = false
		}
		for i := range r.tileRefs {
			r.tileRefs[i] = r.maxMip
		}
		r.grid.ZeroRefs(func(c tile.Coord) {
			r.evictions.Append(c)
			changed = true
		})
		r.loads.Clear(r.grid)
	} else {
		f := r.newestFeedback(completedFence)
		if f == nil {
			return
		}

		i := 0
		for y := range r.tilesY {
			for x := range r.tilesX {
				desired := min(f.data[i], r.maxMip)
				if current := r.tileRefs[i]; desired != current {
					r.setMinMip(current, x, y, desired)
					r.tileRefs[i] = desired
					changed = true
				}
				i++
			}
		}
		if changed {
			r.refCountsZero = false
		}

		r.loads.Abandon(r.grid)
		r.evictions.Rescue(r.grid)
	}

	if changed {
		r.setResidencyChanged()
	}
}

// setMinMip moves the references of column (x, y) from current to desired.
// Coarser tiles are referenced before finer ones and finer tiles are
// released before coarser ones.
func (r *Resource) setMinMip(current uint8, x, y uint32, desired uint8) {
	l := &r.tex.Layout
	s := current
	for s > desired {
		s--
		r.addTileRef(l.Covering(x, y, uint32(s)))
	}
	for s < desired {
		r.decTileRef(l.Covering(x, y, uint32(s)))
		s++
	}
}

func (r *Resource) addTileRef(c tile.Coord) {
	if r.grid.AddRef(c) != 1 {
		return
	}
	switch r.grid.Residency(c) {
	case tile.NotResident, tile.Evicting:
		r.loads.Push(r.grid, c)
	}
}

func (r *Resource) decTileRef(c tile.Coord) {
	if r.grid.DecRef(c) == 0 {
		r.evictions.Append(c)
	}
}
