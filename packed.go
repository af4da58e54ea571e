package tilestream

import "github.com/gogpu/tilestream/tile"

// PackedMipsResident reports whether the packed mip tail has been loaded.
// A texture should not be sampled before it is.
func (r *Resource) PackedMipsResident() bool {
	s := packedStatus(r.packed.Load())
	return s == packedNeedsTransition || s == packedResident
}

// PackedMipsNeedTransition reports, once, that the packed tail has just
// become resident.
func (r *Resource) PackedMipsNeedTransition() bool {
	return r.packed.CompareAndSwap(uint32(packedNeedsTransition), uint32(packedResident))
}

// initPackedMips reserves heap slots for the packed tail and submits its
// load. Slots are reserved across calls until enough are free. It reports
// whether the load has been requested.
func (r *Resource) initPackedMips() bool {
	if packedStatus(r.packed.Load()) >= packedRequested {
		return true
	}

	need := int(r.tex.Layout.NumPackedTiles)
	for len(r.packedSlots) < need {
		s := r.heap.Allocate()
		if s == tile.InvalidSlot {
			if r.packedWarned {
				return false
			}
			r.packedWarned = true
			slogger().Warn("tilestream: heap exhausted reserving packed mips",
				"resource", r.name,
				"reserved", len(r.packedSlots),
				"needed", need)
			return false
		}
		r.packedSlots = append(r.packedSlots, s)
	}
	r.packed.CompareAndSwap(uint32(packedUninitialized), uint32(packedHeapReserved))

	ul := r.sched.Allocate(r)
	if ul == nil {
		return false
	}
	ul.AddPackedMipRequest(r.packedSlots)
	r.packed.Store(uint32(packedRequested))
	r.sched.Submit(ul)
	return true
}
