// Package backend defines the GPU-facing side of tilestream: the streamer
// that copies tile data into physical heap slots and the mapper that
// updates the virtual-to-physical page mapping.
//
// # Backend Registration
//
// Backends register a Factory from init() and are opened by name:
//
//	import _ "github.com/gogpu/tilestream/backend/reference"
//
//	be, err := backend.Open("reference", backend.Options{HeapSlots: 1024})
//	if err != nil {
//		return err
//	}
//	defer be.Close()
//
// Open with an empty name picks the highest-priority registered backend.
// The native package registers "headless", which uploads through the wgpu
// HAL noop device.
//
// # Threading
//
// Map, Unmap, MapPacked, SignalFence and StreamLoads are only called from
// the submit goroutine. StreamPackedMips, Completed and CompletedFence are
// only called from the fence monitor goroutine. Implementations may finish
// work on their own goroutines and must then publish completion with
// atomics or locks.
package backend
