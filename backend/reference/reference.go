// Package reference implements an in-process streaming backend.
//
// Physical heap slots are plain byte slices and page tables are dense
// arrays indexed by tile. Copies read from the texture's tile.Source on a
// worker pool. Optional latencies simulate a device that completes copies
// and mapping fences asynchronously.
//
// The package registers two backends on import: "reference", honouring the
// configured latencies, and "immediate", which ignores them.
package reference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/tilestream/backend"
	"github.com/gogpu/tilestream/batch"
	"github.com/gogpu/tilestream/internal/parallel"
	"github.com/gogpu/tilestream/tile"
)

// ErrNoHeap is returned by New for a zero-capacity heap.
var ErrNoHeap = errors.New("reference: heap has no slots")

func init() {
	backend.Register(backend.Reference, func(opts backend.Options) (backend.Backend, error) {
		return New(opts)
	})
	backend.Register(backend.Immediate, func(opts backend.Options) (backend.Backend, error) {
		opts.CopyLatency = 0
		opts.MappingLatency = 0
		return New(opts)
	})
}

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

type pageTable struct {
	entries []uint32
	packed  []uint32
}

type copyJob struct {
	job     *parallel.Job
	readyAt time.Time
}

// Backend is the reference backend.
type Backend struct {
	opts backend.Options
	pool *parallel.WorkerPool
	log  atomic.Pointer[slog.Logger]

	heapMu sync.Mutex
	heap   [][]byte

	pagesMu sync.RWMutex
	pages   map[uint64]*pageTable

	jobsMu sync.Mutex
	jobs   map[int]copyJob

	completed     atomic.Uint64
	tilesCopied   atomic.Uint64
	uploadSignals atomic.Uint64
	closed        atomic.Bool
}

var _ backend.Backend = (*Backend)(nil)

// New creates a reference backend with opts.HeapSlots physical slots.
func New(opts backend.Options) (*Backend, error) {
	if opts.HeapSlots <= 0 {
		return nil, ErrNoHeap
	}
	b := &Backend{
		opts:  opts,
		pool:  parallel.NewWorkerPool(opts.Workers),
		heap:  make([][]byte, opts.HeapSlots),
		pages: make(map[uint64]*pageTable),
		jobs:  make(map[int]copyJob),
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
func (b *Backend) Capacity() int { return len(b.heap) }

// slot returns the memory of slot s, allocating it on first use.
func (b *Backend) slot(s uint32) ([]byte, error) {
	if int(s) >= len(b.heap) {
		return nil, fmt.Errorf("%w: %d", backend.ErrSlotOutOfRange, s)
	}
	b.heapMu.Lock()
	defer b.heapMu.Unlock()
	if b.heap[s] == nil {
		b.heap[s] = make([]byte, tile.Bytes)
	}
	return b.heap[s], nil
}

// Slot returns a copy of the contents of heap slot s, or nil if the slot
// was never written.
func (b *Backend) Slot(s uint32) []byte {
	b.heapMu.Lock()
	defer b.heapMu.Unlock()
	if int(s) >= len(b.heap) || b.heap[s] == nil {
		return nil
	}
	return append([]byte(nil), b.heap[s]...)
}

func (b *Backend) table(tex *tile.Texture) *pageTable {
	b.pagesMu.Lock()
	defer b.pagesMu.Unlock()
	pt, ok := b.pages[tex.ID]
	if !ok {
		pt = &pageTable{entries: make([]uint32, tex.Layout.NumTiles())}
		for i := range pt.entries {
			pt.entries[i] = tile.InvalidSlot
		}
		b.pages[tex.ID] = pt
	}
	return pt
}

// Lookup returns the heap slot mapped at c of texture id.
func (b *Backend) Lookup(id uint64, layout *tile.Layout, c tile.Coord) (uint32, bool) {
	b.pagesMu.RLock()
	defer b.pagesMu.RUnlock()
	pt, ok := b.pages[id]
	if !ok || !layout.Contains(c) {
		return tile.InvalidSlot, false
	}
	s := pt.entries[layout.TileIndex(c)]
	return s, s != tile.InvalidSlot
}

// PackedSlots returns the slots mapped to the packed tail of texture id.
func (b *Backend) PackedSlots(id uint64) []uint32 {
	b.pagesMu.RLock()
	defer b.pagesMu.RUnlock()
	if pt, ok := b.pages[id]; ok {
		return append([]uint32(nil), pt.packed...)
	}
	return nil
}

// Map binds coords to slots.
func (b *Backend) Map(tex *tile.Texture, coords []tile.Coord, slots []uint32) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	pt := b.table(tex)
	b.pagesMu.Lock()
	defer b.pagesMu.Unlock()
	for i, c := range coords {
		if int(slots[i]) >= len(b.heap) {
			return fmt.Errorf("%w: %d", backend.ErrSlotOutOfRange, slots[i])
		}
		pt.entries[tex.Layout.TileIndex(c)] = slots[i]
	}
	return nil
}

// Unmap clears the bindings of coords.
func (b *Backend) Unmap(tex *tile.Texture, coords []tile.Coord) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	pt := b.table(tex)
	b.pagesMu.Lock()
	defer b.pagesMu.Unlock()
	for _, c := range coords {
		pt.entries[tex.Layout.TileIndex(c)] = tile.InvalidSlot
	}
	return nil
}

// MapPacked binds the packed tail of tex.
func (b *Backend) MapPacked(tex *tile.Texture, slots []uint32) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	pt := b.table(tex)
	b.pagesMu.Lock()
	defer b.pagesMu.Unlock()
	pt.packed = append(pt.packed[:0], slots...)
	return nil
}

// SignalFence completes fence immediately or after the mapping latency.
func (b *Backend) SignalFence(fence uint64) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	if b.opts.MappingLatency <= 0 {
		b.completeFence(fence)
		return nil
	}
	time.AfterFunc(b.opts.MappingLatency, func() { b.completeFence(fence) })
	return nil
}

func (b *Backend) completeFence(fence uint64) {
	for {
		cur := b.completed.Load()
		if fence <= cur || b.completed.CompareAndSwap(cur, fence) {
			return
		}
	}
}

// CompletedFence returns the highest completed mapping fence.
func (b *Backend) CompletedFence() uint64 { return b.completed.Load() }

// StreamLoads reads every tile of ul into its slot on the worker pool.
func (b *Backend) StreamLoads(ul *batch.UpdateList) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	tex := ul.Texture()
	work := make([]func() error, len(ul.Coords))
	for i := range ul.Coords {
		c, s := ul.Coords[i], ul.Slots[i]
		work[i] = func() error {
			dst, err := b.slot(s)
			if err != nil {
				return err
			}
			if err := tex.Source.ReadTile(c, dst); err != nil {
				return fmt.Errorf("read tile %v of texture %d: %w", c, tex.ID, err)
			}
			b.tilesCopied.Add(1)
			return nil
		}
	}
	b.track(ul, b.pool.Start(work))
	return nil
}

// StreamPackedMips reads the packed tail of ul's texture into its slots.
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
		for i, s := range slots {
			dst, err := b.slot(s)
			if err != nil {
				return err
			}
			lo := min(i*tile.Bytes, len(data))
			hi := min(lo+tile.Bytes, len(data))
			clear(dst[copy(dst, data[lo:hi]):])
		}
		return nil
	}}
	b.track(ul, b.pool.Start(work))
	return nil
}

func (b *Backend) track(ul *batch.UpdateList, job *parallel.Job) {
	b.jobsMu.Lock()
	b.jobs[ul.Index()] = copyJob{job: job, readyAt: time.Now().Add(b.opts.CopyLatency)}
	b.jobsMu.Unlock()
	ul.MarkCopyIssued()
}

// Completed reports whether the copies of ul have finished.
func (b *Backend) Completed(ul *batch.UpdateList) (bool, error) {
	b.jobsMu.Lock()
	defer b.jobsMu.Unlock()

	j, ok := b.jobs[ul.Index()]
	if !ok {
		return true, nil
	}
	if !j.job.Done() || time.Now().Before(j.readyAt) {
		return false, nil
	}
	delete(b.jobs, ul.Index())
	return true, j.job.Err()
}

// SignalUpload counts upload flush hints.
func (b *Backend) SignalUpload() { b.uploadSignals.Add(1) }

// TilesCopied returns the number of standard tiles copied so far.
func (b *Backend) TilesCopied() uint64 { return b.tilesCopied.Load() }

// Release drops the page table of tex.
func (b *Backend) Release(tex *tile.Texture) {
	b.pagesMu.Lock()
	delete(b.pages, tex.ID)
	b.pagesMu.Unlock()
	b.log.Load().Debug("reference: released texture", "id", tex.ID)
}

// Close stops the worker pool. Safe to call more than once.
func (b *Backend) Close() error {
	if b.closed.CompareAndSwap(false, true) {
		b.pool.Close()
		b.log.Load().Debug("reference: closed", "tiles_copied", b.tilesCopied.Load())
	}
	return nil
}
