// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements a streaming backend on a gogpu/wgpu HAL device.
//
// Physical heap slots live in one RGBA8 array texture, the heap atlas. Each
// streamed texture gets a storage buffer page table holding the atlas slot
// of every tile. Tile data is read from the texture's tile.Source on a
// worker pool and uploaded with Queue.WriteTexture; page tables are updated
// with Queue.WriteBuffer.
//
// Mapping fences and copy completion are tracked through queue submission
// indices: SignalFence submits an empty batch and the fence completes once
// Queue.PollCompleted reaches its index.
//
// Thread Safety:
// All queue access is serialized by the Backend. Backend methods are safe
// for concurrent use.
//
// The package registers the "headless" backend on import, which runs on
// the wgpu noop device. Use New to stream into a real device.
package native

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/tilestream/backend"
	"github.com/gogpu/tilestream/batch"
	"github.com/gogpu/tilestream/internal/parallel"
	"github.com/gogpu/tilestream/tile"
)

// Native backend errors.
var (
	// ErrNoHeap is returned by New for a zero-capacity heap.
	ErrNoHeap = errors.New("native: heap has no slots")

	// ErrNilDevice is returned by New without a device or queue.
	ErrNilDevice = errors.New("native: HAL device or queue is nil")
)

func init() {
	backend.Register(backend.Headless, func(opts backend.Options) (backend.Backend, error) {
		return New(&noop.Device{}, &noop.Queue{}, opts)
	})
}

// Device is the subset of hal.Device used by the backend.
type Device interface {
	CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error)
	DestroyBuffer(buffer hal.Buffer)
	CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error)
	DestroyTexture(texture hal.Texture)
}

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

type pendingFence struct {
	fence      uint64
	submission uint64
}

type copyJob struct {
	job        *parallel.Job
	submission uint64
}

// Backend is the HAL streaming backend.
type Backend struct {
	dev   Device
	slots int
	pool  *parallel.WorkerPool
	log   atomic.Pointer[slog.Logger]

	// queueMu serializes every call on queue and guards the fields below.
	queueMu   sync.Mutex
	queue     hal.Queue
	atlas     hal.Texture
	pages     map[uint64]*pageTable
	fences    []pendingFence
	completed uint64

	jobsMu sync.Mutex
	jobs   map[int]*copyJob

	buffers sync.Pool

	tilesCopied atomic.Uint64
	flushes     atomic.Uint64
	closed      atomic.Bool
}

var _ backend.Backend = (*Backend)(nil)

// New creates a backend streaming into dev through queue, with
// opts.HeapSlots atlas slots.
func New(dev Device, queue hal.Queue, opts backend.Options) (*Backend, error) {
	if dev == nil || queue == nil {
		return nil, ErrNilDevice
	}
	if opts.HeapSlots <= 0 {
		return nil, ErrNoHeap
	}
	atlas, err := createAtlas(dev, opts.HeapSlots)
	if err != nil {
		return nil, err
	}
	b := &Backend{
		dev:   dev,
		slots: opts.HeapSlots,
		pool:  parallel.NewWorkerPool(opts.Workers),
		queue: queue,
		atlas: atlas,
		pages: make(map[uint64]*pageTable),
		jobs:  make(map[int]*copyJob),
		buffers: sync.Pool{New: func() any {
			buf := make([]byte, tile.Bytes)
			return &buf
		}},
	}
	b.log.Store(slog.New(nopHandler{}))
	return b, nil
}

// SetLogger sets the logger used for backend diagnostics.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	b.log.Store(l)
}

// Capacity returns the number of heap slots.
func (b *Backend) Capacity() int { return b.slots }

// Atlas returns the heap atlas texture.
func (b *Backend) Atlas() hal.Texture { return b.atlas }

// SlotOrigin returns the atlas texel position of heap slot s. Z is the
// array layer.
func SlotOrigin(s uint32) hal.Origin3D { return slotOrigin(s) }

// PageTable returns the page table buffer of texture id, or nil.
func (b *Backend) PageTable(id uint64) hal.Buffer {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if pt, ok := b.pages[id]; ok {
		return pt.buf
	}
	return nil
}

// Entries returns a copy of the page table entries of texture id: one slot
// per standard tile followed by the packed slots.
func (b *Backend) Entries(id uint64) []uint32 {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if pt, ok := b.pages[id]; ok {
		return append([]uint32(nil), pt.shadow...)
	}
	return nil
}

// table returns the page table of tex. Caller holds queueMu.
func (b *Backend) table(tex *tile.Texture) (*pageTable, error) {
	if pt, ok := b.pages[tex.ID]; ok {
		return pt, nil
	}
	pt, err := newPageTable(b.dev, tex.ID, &tex.Layout)
	if err != nil {
		return nil, err
	}
	b.pages[tex.ID] = pt
	return pt, nil
}

func (b *Backend) checkSlot(s uint32) error {
	if int(s) >= b.slots {
		return fmt.Errorf("%w: %d", backend.ErrSlotOutOfRange, s)
	}
	return nil
}

// Map binds coords to slots and writes the changed page table span.
func (b *Backend) Map(tex *tile.Texture, coords []tile.Coord, slots []uint32) error {
	return b.updateTable(tex, func(pt *pageTable) error {
		for i, c := range coords {
			if err := b.checkSlot(slots[i]); err != nil {
				return err
			}
			pt.mapTile(c, slots[i])
		}
		return nil
	})
}

// Unmap clears the bindings of coords.
func (b *Backend) Unmap(tex *tile.Texture, coords []tile.Coord) error {
	return b.updateTable(tex, func(pt *pageTable) error {
		for _, c := range coords {
			pt.mapTile(c, tile.InvalidSlot)
		}
		return nil
	})
}

// MapPacked binds the packed tail of tex.
func (b *Backend) MapPacked(tex *tile.Texture, slots []uint32) error {
	return b.updateTable(tex, func(pt *pageTable) error {
		for _, s := range slots {
			if err := b.checkSlot(s); err != nil {
				return err
			}
		}
		pt.mapPacked(slots)
		return nil
	})
}

func (b *Backend) updateTable(tex *tile.Texture, fn func(pt *pageTable) error) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	pt, err := b.table(tex)
	if err != nil {
		return err
	}
	if err := fn(pt); err != nil {
		return err
	}
	if err := pt.flush(b.queue); err != nil {
		return fmt.Errorf("native: write page table of texture %d: %w", tex.ID, err)
	}
	return nil
}

// SignalFence submits an empty batch that completes fence once the queue
// has executed every write issued before it.
func (b *Backend) SignalFence(fence uint64) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	idx, err := b.queue.Submit(nil)
	if err != nil {
		return fmt.Errorf("native: signal fence %d: %w", fence, err)
	}
	b.fences = append(b.fences, pendingFence{fence: fence, submission: idx})
	return nil
}

// CompletedFence returns the highest completed mapping fence.
func (b *Backend) CompletedFence() uint64 {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	done := b.queue.PollCompleted()
	n := 0
	for _, f := range b.fences {
		if f.submission > done {
			break
		}
		b.completed = max(b.completed, f.fence)
		n++
	}
	b.fences = b.fences[n:]
	return b.completed
}

// StreamLoads reads every tile of ul on the worker pool and uploads it to
// its atlas slot.
func (b *Backend) StreamLoads(ul *batch.UpdateList) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	tex := ul.Texture()
	work := make([]func() error, len(ul.Coords))
	for i := range ul.Coords {
		c, s := ul.Coords[i], ul.Slots[i]
		work[i] = func() error {
			if err := b.checkSlot(s); err != nil {
				return err
			}
			bp := b.buffers.Get().(*[]byte)
			defer b.buffers.Put(bp)
			if err := tex.Source.ReadTile(c, *bp); err != nil {
				return fmt.Errorf("read tile %v of texture %d: %w", c, tex.ID, err)
			}
			if err := b.write(s, *bp); err != nil {
				return err
			}
			b.tilesCopied.Add(1)
			return nil
		}
	}
	b.track(ul, b.pool.Start(work))
	return nil
}

// StreamPackedMips uploads the packed tail of ul's texture, one tile worth
// of bytes per slot.
func (b *Backend) StreamPackedMips(ul *batch.UpdateList) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	tex := ul.Texture()
	slots := append([]uint32(nil), ul.PackedSlots...)
	work := []func() error{func() error {
		data, err := tex.Source.ReadPackedMips()
		if err != nil {
			return fmt.Errorf("read packed mips of texture %d: %w", tex.ID, err)
		}
		bp := b.buffers.Get().(*[]byte)
		defer b.buffers.Put(bp)
		for i, s := range slots {
			if err := b.checkSlot(s); err != nil {
				return err
			}
			lo := min(i*tile.Bytes, len(data))
			hi := min(lo+tile.Bytes, len(data))
			clear((*bp)[copy(*bp, data[lo:hi]):])
			if err := b.write(s, *bp); err != nil {
				return err
			}
		}
		return nil
	}}
	b.track(ul, b.pool.Start(work))
	return nil
}

func (b *Backend) write(s uint32, data []byte) error {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if err := writeSlot(b.queue, b.atlas, s, data); err != nil {
		return fmt.Errorf("native: write slot %d: %w", s, err)
	}
	return nil
}

func (b *Backend) track(ul *batch.UpdateList, job *parallel.Job) {
	b.jobsMu.Lock()
	b.jobs[ul.Index()] = &copyJob{job: job}
	b.jobsMu.Unlock()
	ul.MarkCopyIssued()
}

// Completed reports whether the uploads of ul have executed on the queue.
// Once every write of ul is issued, an empty batch is submitted and its
// index is polled.
func (b *Backend) Completed(ul *batch.UpdateList) (bool, error) {
	b.jobsMu.Lock()
	defer b.jobsMu.Unlock()

	j, ok := b.jobs[ul.Index()]
	if !ok {
		return true, nil
	}
	if !j.job.Done() {
		return false, nil
	}
	if err := j.job.Err(); err != nil {
		delete(b.jobs, ul.Index())
		return true, err
	}

	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if j.submission == 0 {
		idx, err := b.queue.Submit(nil)
		if err != nil {
			delete(b.jobs, ul.Index())
			return true, fmt.Errorf("native: submit uploads: %w", err)
		}
		j.submission = idx
	}
	if b.queue.PollCompleted() < j.submission {
		return false, nil
	}
	delete(b.jobs, ul.Index())
	return true, nil
}

// SignalUpload counts upload flush hints. Writes are already queued.
func (b *Backend) SignalUpload() { b.flushes.Add(1) }

// TilesCopied returns the number of standard tiles uploaded so far.
func (b *Backend) TilesCopied() uint64 { return b.tilesCopied.Load() }

// Release destroys the page table of tex.
func (b *Backend) Release(tex *tile.Texture) {
	b.queueMu.Lock()
	pt, ok := b.pages[tex.ID]
	delete(b.pages, tex.ID)
	b.queueMu.Unlock()
	if ok {
		b.dev.DestroyBuffer(pt.buf)
		b.log.Load().Debug("native: released texture", "id", tex.ID)
	}
}

// Close stops the worker pool and destroys every GPU resource. Safe to call
// more than once.
func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.pool.Close()

	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	for id, pt := range b.pages {
		b.dev.DestroyBuffer(pt.buf)
		delete(b.pages, id)
	}
	b.dev.DestroyTexture(b.atlas)
	b.log.Load().Debug("native: closed",
		"tiles_copied", b.tilesCopied.Load(),
		"upload_flushes", b.flushes.Load())
	return nil
}
