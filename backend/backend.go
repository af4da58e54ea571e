package backend

import (
	"errors"
	"time"

	"github.com/gogpu/tilestream/batch"
	"github.com/gogpu/tilestream/tile"
)

// Common backend errors.
var (
	// ErrUnknownBackend is returned by Open for unregistered names.
	ErrUnknownBackend = errors.New("backend: unknown backend")

	// ErrNoBackend is returned by Open when nothing is registered.
	ErrNoBackend = errors.New("backend: no backend registered")

	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("backend: closed")

	// ErrSlotOutOfRange is returned for heap slots beyond the capacity.
	ErrSlotOutOfRange = errors.New("backend: heap slot out of range")
)

// Streamer moves tile data into physical heap slots.
type Streamer interface {
	// StreamLoads starts copying the standard tiles of ul into their slots.
	// It calls ul.MarkCopyIssued once every copy is in flight.
	StreamLoads(ul *batch.UpdateList) error

	// StreamPackedMips starts copying the packed tail of ul's texture into
	// ul.PackedSlots and calls ul.MarkCopyIssued.
	StreamPackedMips(ul *batch.UpdateList) error

	// Completed reports whether every copy of ul has finished.
	Completed(ul *batch.UpdateList) (bool, error)

	// SignalUpload hints that copies were issued and should be flushed.
	SignalUpload()
}

// Mapper updates the page mapping of streamed textures.
type Mapper interface {
	// Map binds coords to the heap slots at the same positions.
	Map(tex *tile.Texture, coords []tile.Coord, slots []uint32) error

	// Unmap releases the bindings of coords.
	Unmap(tex *tile.Texture, coords []tile.Coord) error

	// MapPacked binds the packed tail of tex to slots.
	MapPacked(tex *tile.Texture, slots []uint32) error

	// SignalFence makes fence complete after every mapping call issued
	// before it.
	SignalFence(fence uint64) error

	// CompletedFence returns the highest completed mapping fence.
	CompletedFence() uint64
}

// Backend is a complete streaming backend.
type Backend interface {
	Streamer
	Mapper

	// Capacity returns the number of physical heap slots.
	Capacity() int

	// Release drops any per-texture state held for tex. Called once the
	// texture has no work in flight.
	Release(tex *tile.Texture)

	// Close releases all backend resources.
	Close() error
}

// Options configures a backend opened through the registry.
type Options struct {
	// HeapSlots is the number of physical 64 KiB slots.
	HeapSlots int

	// Workers is the number of copy goroutines. Zero means GOMAXPROCS.
	Workers int

	// CopyLatency delays copy completion, for simulation.
	CopyLatency time.Duration

	// MappingLatency delays mapping fence completion, for simulation.
	MappingLatency time.Duration
}
