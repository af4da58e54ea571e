// Package tilestream keeps the visible parts of very large textures resident
// in a fixed pool of 64 KiB physical tiles.
//
// # Overview
//
// A streamed texture is divided into tiles. Only the tiles the renderer
// actually samples are mapped to physical memory; everything else is
// virtual. Each frame the renderer writes a feedback buffer holding, for
// every mip-0 tile column, the finest mip it wanted. tilestream turns that
// feedback into reference counts, loads newly wanted tiles, evicts tiles
// nobody has wanted for a few frames and publishes a residency map the
// shader uses to clamp sampling to data that is actually present.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/tilestream"
//	    _ "github.com/gogpu/tilestream/backend/reference"
//	)
//
//	m, err := tilestream.Open("", tilestream.Config{})
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	r, err := m.CreateResource(src) // src implements tile.Source
//	...
//	for frame := uint64(1); ; frame++ {
//	    r.QueueFeedback(feedback, frame)
//	    m.Update(completedFrame)
//	    m.ConsumeResidencyMapUpdates(func(off int, b []byte) { upload(off, b) })
//	}
//
// # Architecture
//
// The package is organized into:
//   - Public API: Manager, Resource, Config, Stats
//   - tile: coordinates, residency states, tile shapes and texture layouts
//   - batch: update lists and their pool
//   - backend: the Streamer and Mapper interfaces and a backend registry
//   - backend/reference, backend/native: in-process and wgpu HAL backends
//   - tilefile: a compressed on-disk tile container implementing tile.Source
//   - shader: the residency-map LOD clamp, in WGSL and on the CPU
//
// # Threads
//
// Manager.Update and every Resource method except the notifications run on
// the caller's goroutine, which owns reference counts, pending queues and
// slot assignments. The upload coordinator runs two goroutines of its own:
// one issues mapping updates and starts copies, the other watches fences,
// completes batches and notifies resources. Tile residency is the only
// state both sides write, and it is updated with compare-and-swap.
//
// # Errors
//
// Running out of update lists or physical slots is not an error: work stays
// queued and is retried on the next Update. Backend failures stop the
// pipeline and are reported as ErrBackendFailed.
package tilestream
