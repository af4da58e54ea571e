package tilestream

import (
	"sync/atomic"

	"github.com/gogpu/tilestream/batch"
	"github.com/gogpu/tilestream/internal/residency"
	"github.com/gogpu/tilestream/tile"
)

// scheduler is the part of the upload coordinator a Resource uses.
type scheduler interface {
	Allocate(owner batch.Owner) *batch.UpdateList
	Submit(ul *batch.UpdateList)
	FreeEmpty(ul *batch.UpdateList)
	MaxLoads() int
}

// slotHeap hands out physical heap slots.
type slotHeap interface {
	Allocate() uint32
	Free(slot uint32)
	NumFree() int
}

// packedStatus tracks the packed mip tail of a resource.
type packedStatus uint32

const (
	packedUninitialized packedStatus = iota
	packedHeapReserved
	packedRequested
	packedNeedsTransition
	packedResident
)

type queuedFeedback struct {
	data   []uint8
	fence  uint64
	queued bool
}

// Resource is one streamed texture.
//
// Every method except the Notify* methods must be called from the goroutine
// that drives the Manager. The Notify* methods are called by the upload
// pipeline and implement batch.Owner.
type Resource struct {
	name     string
	tex      tile.Texture
	sched    scheduler
	heap     slotHeap
	onChange func()

	grid      *residency.Grid
	loads     residency.LoadQueue
	evictions *residency.EvictionDelay

	tilesX, tilesY uint32
	maxMip         uint8

	// tileRefs holds, per mip-0 tile, the finest mip the column references.
	tileRefs []uint8

	// minMipMap is the local residency map, copied to the shared map by
	// the Manager.
	minMipMap []uint8

	feedback     []queuedFeedback
	feedbackNext int

	refCountsZero    bool
	setZeroRefCounts bool

	packed       atomic.Uint32
	packedSlots  []uint32
	packedWarned bool

	residencyChanged atomic.Bool

	mapOffset int
	released  bool
}

var _ batch.Owner = (*Resource)(nil)

// newResource creates the bookkeeping for src. Nothing is referenced and
// nothing is resident.
func newResource(id uint64, src tile.Source, numSwapBuffers int, sched scheduler, h slotHeap, onChange func(), o resourceOptions) *Resource {
	l := src.Layout()
	r := &Resource{
		name:     o.name,
		tex:      tile.Texture{ID: id, Layout: l, Source: src},
		sched:    sched,
		heap:     h,
		onChange: onChange,

		evictions: residency.NewEvictionDelay(numSwapBuffers),
		tilesX:    l.TilesX(0),
		tilesY:    l.TilesY(0),
		maxMip:    uint8(l.MaxMip()), //nolint:gosec // G115: a 2D chain has at most 32 mips

		feedback:      make([]queuedFeedback, max(numSwapBuffers, 1)),
		refCountsZero: true,
	}
	r.grid = residency.NewGrid(&r.tex.Layout)

	n := int(r.tilesX * r.tilesY)
	r.tileRefs = make([]uint8, n)
	r.minMipMap = make([]uint8, n)
	for i := range n {
		r.tileRefs[i] = r.maxMip
		r.minMipMap[i] = r.maxMip
	}

	if l.NumPackedTiles == 0 {
		r.packed.Store(uint32(packedResident))
	}
	return r
}

// Name returns the name given with WithName.
func (r *Resource) Name() string { return r.name }

// Texture returns the texture as seen by backends.
func (r *Resource) Texture() *tile.Texture { return &r.tex }

// Layout returns the tiling of the texture.
func (r *Resource) Layout() *tile.Layout { return &r.tex.Layout }

// NumStandardMips returns the number of individually streamed mips. It is
// also the residency-map value meaning "only the packed tail".
func (r *Resource) NumStandardMips() uint32 { return uint32(r.maxMip) }

// NumTilesVirtual returns the number of tiles the texture would occupy if
// fully resident, packed tail included.
func (r *Resource) NumTilesVirtual() uint32 {
	return r.tex.Layout.NumTiles() + r.tex.Layout.NumPackedTiles
}

// MinMipMapWidth returns the width of the residency map region in bytes.
func (r *Resource) MinMipMapWidth() uint32 { return r.tilesX }

// MinMipMapHeight returns the height of the residency map region in rows.
func (r *Resource) MinMipMapHeight() uint32 { return r.tilesY }

// MinMipMapOffset returns the byte offset of this resource's region in
// the Manager's residency map.
func (r *Resource) MinMipMapOffset() int { return r.mapOffset }

// MinMip returns the finest mip the residency map allows sampling at mip-0
// tile (x, y), as of the last UpdateMinMipMap.
func (r *Resource) MinMip(x, y uint32) uint8 {
	return r.minMipMap[y*r.tilesX+x]
}

// TileResidency returns the residency of a standard tile.
func (r *Resource) TileResidency(c tile.Coord) tile.Residency {
	return r.grid.Residency(c)
}

// IsStale reports whether the resource has work that is not yet queued:
// pending loads, pending evictions or an unrequested packed tail.
func (r *Resource) IsStale() bool {
	return r.loads.Len() > 0 || r.evictions.Len() > 0 ||
		packedStatus(r.packed.Load()) < packedRequested
}

// NextFrame ages pending evictions by one frame.
func (r *Resource) NextFrame() {
	r.evictions.NextFrame()
}

// ClearAllocations releases every standard tile. The reference counts are
// zeroed by the next ProcessFeedback and the tiles are evicted after the
// usual delay. The packed tail stays resident.
func (r *Resource) ClearAllocations() {
	r.setZeroRefCounts = true
}

func (r *Resource) setResidencyChanged() {
	r.residencyChanged.Store(true)
	if r.onChange != nil {
		r.onChange()
	}
}

// =============================================================================
// Notifications from the upload pipeline
// =============================================================================

// NotifyCopyComplete marks coords Resident.
func (r *Resource) NotifyCopyComplete(coords []tile.Coord) {
	for _, c := range coords {
		r.grid.Transition(c, tile.Loading, tile.Resident)
	}
	r.setResidencyChanged()
}

// NotifyEvicted marks coords NotResident.
func (r *Resource) NotifyEvicted(coords []tile.Coord) {
	for _, c := range coords {
		r.grid.Transition(c, tile.Evicting, tile.NotResident)
	}
	r.setResidencyChanged()
}

// NotifyPackedMips records that the packed tail is resident.
func (r *Resource) NotifyPackedMips() {
	r.packed.Store(uint32(packedNeedsTransition))
	r.setResidencyChanged()
}

// release returns every heap slot the resource holds. The resource must
// have no work in flight.
func (r *Resource) release() int {
	if r.released {
		return 0
	}
	r.released = true

	n := r.grid.FreeSlots(r.heap.Free)
	for _, s := range r.packedSlots {
		r.heap.Free(s)
	}
	n += len(r.packedSlots)
	r.packedSlots = nil

	r.loads.Clear(r.grid)
	r.evictions.Clear()
	for i := range r.feedback {
		r.feedback[i].queued = false
	}
	return n
}
