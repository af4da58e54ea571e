package tilestream

import (
	"github.com/gogpu/tilestream/batch"
	"github.com/gogpu/tilestream/internal/invariant"
	"github.com/gogpu/tilestream/tile"
)

// QueueTiles moves ready evictions and pending loads into as many update
// lists as the pool and the heap allow. Each list carries evictions first,
// then loads. Work that does not fit stays queued for the next call.
//
// ProcessFeedback must have run first in the same cycle.
func (r *Resource) QueueTiles() {
	for (r.loads.Len() > 0 && r.heap.NumFree() > 0) || len(r.evictions.Ready()) > 0 {
		ul := r.sched.Allocate(r)
		if ul == nil {
			break
		}

		if len(r.evictions.Ready()) > 0 {
			r.queueEvictions(ul)
		}
		if r.loads.Len() > 0 && r.heap.NumFree() > 0 {
			r.queueLoads(ul)
		}

		if ul.NumLoads() == 0 && ul.NumEvictions() == 0 {
			r.sched.FreeEmpty(ul)
			break
		}
		slogger().Debug("tilestream: queued update list",
			"resource", r.name,
			"batch", ul.Index(),
			"loads", ul.NumLoads(),
			"evictions", ul.NumEvictions())
		r.sched.Submit(ul)
	}
}

// queueEvictions unmaps every ready tile that is Resident and frees its
// slot at once. Tiles still Loading stay ready for a later list; anything
// else was already evicted or never loaded and is dropped.
func (r *Resource) queueEvictions(ul *batch.UpdateList) {
	ready := r.evictions.Ready()
	n := 0
	for _, c := range ready {
		invariant.Check(r.grid.RefCount(c) == 0, "evicting referenced tile %v", c)
		switch r.grid.Residency(c) {
		case tile.Resident:
			r.grid.Transition(c, tile.Resident, tile.Evicting)
			r.heap.Free(r.grid.Slot(c))
			r.grid.SetSlot(c, tile.InvalidSlot)
			ul.AddEviction(c)
		case tile.Loading:
			ready[n] = c
			n++
		}
	}
	r.evictions.SetReady(ready[:n])

	if ul.NumEvictions() > 0 {
		r.setResidencyChanged()
	}
}

// queueLoads starts loads for queued tiles that are NotResident, in queue
// order, up to the list's budget and the free heap slots. Tiles still
// Evicting are skipped and kept; tiles already Resident or Loading are
// dropped. Tiles after the last one examined are kept.
func (r *Resource) queueLoads(ul *batch.UpdateList) {
	budget := min(r.loads.Len(), r.sched.MaxLoads(), r.heap.NumFree())
	if budget <= 0 {
		return
	}

	r.loads.Retain(r.grid, func(c tile.Coord) bool {
		if budget == 0 {
			return true
		}
		invariant.Check(r.grid.RefCount(c) > 0, "loading unreferenced tile %v", c)
		switch r.grid.Residency(c) {
		case tile.NotResident:
			slot := r.heap.Allocate()
			if slot == tile.InvalidSlot {
				budget = 0
				return true
			}
			r.grid.Transition(c, tile.NotResident, tile.Loading)
			r.grid.SetSlot(c, slot)
			ul.AddLoad(c, slot)
			budget--
			return false
		case tile.Evicting:
			return true
		}
		return false
	})
}
