package tilestream

import (
	"fmt"
	"time"

	"github.com/pbnjay/memory"

	"github.com/gogpu/tilestream/backend"
	"github.com/gogpu/tilestream/tile"
)

// Config defaults. A zero field in Config selects the matching default.
const (
	// DefaultNumSwapBuffers is the number of frames the renderer may have
	// in flight.
	DefaultNumSwapBuffers = 2

	// DefaultMaxBatches is the number of update lists in the pool.
	DefaultMaxBatches = 32

	// DefaultMaxTileCopiesPerBatch bounds the loads of one update list.
	DefaultMaxTileCopiesPerBatch = 32

	// DefaultMaxTileCopiesInFlight bounds loads submitted but not complete.
	DefaultMaxTileCopiesInFlight = 512

	// DefaultMaxTileMappingUpdatesPerCall bounds one Map or Unmap call.
	DefaultMaxTileMappingUpdatesPerCall = 512

	// DefaultPollInterval is the fence monitor period while work is in
	// flight.
	DefaultPollInterval = 50 * time.Microsecond

	// MinHeapSlots is the smallest heap DefaultHeapSlots returns.
	MinHeapSlots = 256

	// MaxHeapSlots is the largest heap DefaultHeapSlots returns (1 GiB).
	MaxHeapSlots = 16384
)

// Config holds configuration for creating a Manager.
type Config struct {
	// NumSwapBuffers is the number of frames the renderer may have in
	// flight. Evictions are delayed by NumSwapBuffers+1 frames and up to
	// NumSwapBuffers feedback buffers can be queued per resource.
	// Defaults to DefaultNumSwapBuffers if <= 0.
	NumSwapBuffers int

	// MaxBatches is the number of update lists shared by all resources.
	// Defaults to DefaultMaxBatches if <= 0.
	MaxBatches int

	// MaxTileCopiesPerBatch bounds the loads of one update list.
	// Defaults to DefaultMaxTileCopiesPerBatch if <= 0.
	MaxTileCopiesPerBatch int

	// MaxTileCopiesInFlight bounds loads that are submitted and not yet
	// complete. Defaults to DefaultMaxTileCopiesInFlight if <= 0.
	MaxTileCopiesInFlight int

	// MaxTileMappingUpdatesPerCall bounds one Map or Unmap backend call.
	// Defaults to DefaultMaxTileMappingUpdatesPerCall if <= 0.
	MaxTileMappingUpdatesPerCall int

	// HeapSlots is the number of physical 64 KiB tiles. It is passed to the
	// backend by Open and caps the backend's capacity in NewManager.
	// Defaults to DefaultHeapSlots() if <= 0.
	HeapSlots int

	// PollInterval is the fence monitor period while work is in flight.
	// Defaults to DefaultPollInterval if <= 0.
	PollInterval time.Duration

	// Backend carries the simulation and worker settings passed to the
	// backend by Open. Its HeapSlots field is ignored.
	Backend backend.Options
}

// DefaultHeapSlots sizes the heap at one sixteenth of the free system
// memory, clamped to [MinHeapSlots, MaxHeapSlots].
func DefaultHeapSlots() int {
	free := memory.FreeMemory() / 16 / tile.Bytes
	if free > MaxHeapSlots {
		return MaxHeapSlots
	}
	return max(int(free), MinHeapSlots) //nolint:gosec // G115: bounded by MaxHeapSlots
}

// withDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.NumSwapBuffers <= 0 {
		c.NumSwapBuffers = DefaultNumSwapBuffers
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = DefaultMaxBatches
	}
	if c.MaxTileCopiesPerBatch <= 0 {
		c.MaxTileCopiesPerBatch = DefaultMaxTileCopiesPerBatch
	}
	if c.MaxTileCopiesInFlight <= 0 {
		c.MaxTileCopiesInFlight = DefaultMaxTileCopiesInFlight
	}
	if c.MaxTileMappingUpdatesPerCall <= 0 {
		c.MaxTileMappingUpdatesPerCall = DefaultMaxTileMappingUpdatesPerCall
	}
	if c.HeapSlots <= 0 {
		c.HeapSlots = DefaultHeapSlots()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Validate reports whether c, after defaults are applied, is consistent.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.MaxTileCopiesInFlight < c.MaxTileCopiesPerBatch {
		return fmt.Errorf("%w: MaxTileCopiesInFlight %d < MaxTileCopiesPerBatch %d",
			ErrInvalidConfig, c.MaxTileCopiesInFlight, c.MaxTileCopiesPerBatch)
	}
	if c.MaxTileCopiesPerBatch > c.HeapSlots {
		return fmt.Errorf("%w: MaxTileCopiesPerBatch %d exceeds HeapSlots %d",
			ErrInvalidConfig, c.MaxTileCopiesPerBatch, c.HeapSlots)
	}
	if c.NumSwapBuffers > 255 {
		return fmt.Errorf("%w: NumSwapBuffers %d", ErrInvalidConfig, c.NumSwapBuffers)
	}
	return nil
}
