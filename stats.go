package tilestream

import "fmt"

// Stats is a snapshot of Manager counters.
type Stats struct {
	// Frames is the number of Update calls.
	Frames uint64

	// Resources is the number of live resources.
	Resources int

	// HeapSlots and HeapSlotsFree describe the physical heap.
	HeapSlots     int
	HeapSlotsFree int

	// Cumulative completions.
	TilesUploaded    uint64
	TilesEvicted     uint64
	PackedMipsLoaded uint64
	BatchesCompleted uint64

	// BatchesInFlight is the number of update lists not Free.
	BatchesInFlight int

	// CopiesInFlight is the number of submitted loads not yet complete.
	CopiesInFlight int

	// PendingLoads and PendingEvictions are queued but not yet submitted.
	PendingLoads     int
	PendingEvictions int

	// MappingFence is the last mapping fence signalled.
	MappingFence uint64
}

// HeapSlotsUsed returns the number of allocated heap slots.
func (s Stats) HeapSlotsUsed() int { return s.HeapSlots - s.HeapSlotsFree }

// String returns a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("frame %d: heap %d/%d, uploaded %d, evicted %d, in flight %d batches/%d copies, pending %d loads/%d evictions",
		s.Frames, s.HeapSlotsUsed(), s.HeapSlots,
		s.TilesUploaded, s.TilesEvicted,
		s.BatchesInFlight, s.CopiesInFlight,
		s.PendingLoads, s.PendingEvictions)
}
