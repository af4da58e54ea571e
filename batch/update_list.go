// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package batch

import (
	"sync/atomic"

	"github.com/gogpu/tilestream/internal/invariant"
	"github.com/gogpu/tilestream/tile"
)

// State is the lifecycle stage of an UpdateList.
type State uint32

const (
	// Free lists are available for allocation.
	Free State = iota

	// Allocated lists are being filled by the producer.
	Allocated

	// Submitted lists wait for the submit goroutine.
	Submitted

	// PackedMapping lists wait for the packed-mip mapping fence.
	PackedMapping

	// Uploading lists wait for the streamer to issue their copies.
	Uploading

	// CopyPending lists wait for copy and mapping completion.
	CopyPending
)

func (s State) String() string {
	switch s {
	case Free:
		return "Free"
	case Allocated:
		return "Allocated"
	case Submitted:
		return "Submitted"
	case PackedMapping:
		return "PackedMapping"
	case Uploading:
		return "Uploading"
	case CopyPending:
		return "CopyPending"
	default:
		return "Unknown"
	}
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to State) bool {
	switch from {
	case Free:
		return to == Allocated
	case Allocated:
		return to == Submitted || to == Free
	case Submitted:
		return to == PackedMapping || to == Uploading || to == CopyPending
	case PackedMapping:
		return to == Uploading
	case Uploading:
		return to == CopyPending
	case CopyPending:
		return to == Free
	}
	return false
}

// Owner receives completion notifications for the lists it allocated.
// Notifications are delivered on the fence monitor goroutine.
type Owner interface {
	// Texture returns the texture the list operates on.
	Texture() *tile.Texture

	// NotifyEvicted is called once the unmap of coords has completed.
	NotifyEvicted(coords []tile.Coord)

	// NotifyCopyComplete is called once coords are mapped and their data
	// has been copied.
	NotifyCopyComplete(coords []tile.Coord)

	// NotifyPackedMips is called once the packed tail is resident.
	NotifyPackedMips()
}

// UpdateList is one batch of tile work for a single texture.
//
// The exported slices are written only while the list is Allocated and are
// read-only afterwards until it returns to Free.
type UpdateList struct {
	index int
	state atomic.Uint32
	owner Owner

	// Coords and Slots are the standard tile loads, pairwise.
	Coords []tile.Coord
	Slots  []uint32

	// Evictions are tiles to unmap.
	Evictions []tile.Coord

	// PackedSlots are the heap slots of a packed-mip request.
	PackedSlots []uint32

	// MappingFence is the mapping fence value the list's map and unmap
	// operations signal. Set by the submit goroutine.
	MappingFence uint64

	copyIssued atomic.Bool
}

// Index returns the position of the list in its pool.
func (u *UpdateList) Index() int { return u.index }

// State returns the current state.
func (u *UpdateList) State() State { return State(u.state.Load()) }

// Transition moves the list from one state to another and reports whether
// it was in the expected state.
func (u *UpdateList) Transition(from, to State) bool {
	invariant.Check(CanTransition(from, to), "illegal batch transition %s -> %s", from, to)
	return u.state.CompareAndSwap(uint32(from), uint32(to))
}

// Owner returns the resource that allocated the list.
func (u *UpdateList) Owner() Owner { return u.owner }

// Texture is shorthand for Owner().Texture().
func (u *UpdateList) Texture() *tile.Texture { return u.owner.Texture() }

// AddLoad appends a tile load into slot.
func (u *UpdateList) AddLoad(c tile.Coord, slot uint32) {
	u.Coords = append(u.Coords, c)
	u.Slots = append(u.Slots, slot)
}

// AddEviction appends a tile unmap.
func (u *UpdateList) AddEviction(c tile.Coord) {
	u.Evictions = append(u.Evictions, c)
}

// AddPackedMipRequest turns the list into a packed-mip request backed by
// slots.
func (u *UpdateList) AddPackedMipRequest(slots []uint32) {
	u.PackedSlots = append(u.PackedSlots[:0], slots...)
}

// NumLoads returns the number of standard tile loads.
func (u *UpdateList) NumLoads() int { return len(u.Coords) }

// NumEvictions returns the number of unmaps.
func (u *UpdateList) NumEvictions() int { return len(u.Evictions) }

// HasPackedMips reports whether the list carries a packed-mip request.
func (u *UpdateList) HasPackedMips() bool { return len(u.PackedSlots) > 0 }

// Empty reports whether the list carries no work.
func (u *UpdateList) Empty() bool {
	return len(u.Coords) == 0 && len(u.Evictions) == 0 && len(u.PackedSlots) == 0
}

// MarkCopyIssued records that the streamer has issued every copy of the
// list. Called by the streamer from any goroutine.
func (u *UpdateList) MarkCopyIssued() { u.copyIssued.Store(true) }

// CopyIssued reports whether MarkCopyIssued has been called.
func (u *UpdateList) CopyIssued() bool { return u.copyIssued.Load() }

func (u *UpdateList) reset(owner Owner) {
	u.owner = owner
	u.Coords = u.Coords[:0]
	u.Slots = u.Slots[:0]
	u.Evictions = u.Evictions[:0]
	u.PackedSlots = u.PackedSlots[:0]
	u.MappingFence = 0
	u.copyIssued.Store(false)
}
