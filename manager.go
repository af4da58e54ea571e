package tilestream

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/tilestream/backend"
	"github.com/gogpu/tilestream/internal/heap"
	"github.com/gogpu/tilestream/internal/parallel"
	"github.com/gogpu/tilestream/internal/upload"
	"github.com/gogpu/tilestream/tile"
)

// residencyMapBlock is the granularity of residency map dirty tracking.
const residencyMapBlock = 64

// Live managers, for SetLogger.
var (
	managersMu sync.Mutex
	managers   = make(map[*Manager]struct{})
)

// Manager streams a set of resources through one backend, one heap and
// one pool of update lists.
//
// Update, CreateResource, RemoveResource and the residency map accessors
// must not be called concurrently with each other unless stated otherwise;
// they are serialized by an internal mutex so misuse is safe but blocks.
type Manager struct {
	cfg         Config
	be          backend.Backend
	ownsBackend bool
	coord       *upload.Coordinator
	heap        *heap.Allocator

	mu        sync.Mutex
	resources []*Resource
	nextID    uint64
	frames    uint64
	closed    bool

	residencyMap []byte
	dirty        *parallel.DirtyRanges

	// changed is set by resources whenever a tile changes residency.
	changed atomic.Bool
}

// Open opens the named backend from the registry and creates a Manager
// that owns it. An empty name selects the highest-priority backend.
func Open(name string, cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	opts := cfg.Backend
	opts.HeapSlots = cfg.HeapSlots
	be, err := backend.Open(name, opts)
	if err != nil {
		return nil, fmt.Errorf("tilestream: open backend: %w", err)
	}

	m, err := NewManager(cfg, be)
	if err != nil {
		_ = be.Close()
		return nil, err
	}
	m.ownsBackend = true
	return m, nil
}

// NewManager creates a Manager on be and starts its upload pipeline. The
// heap has min(cfg.HeapSlots, be.Capacity()) slots. The caller keeps
// ownership of be.
func NewManager(cfg Config, be backend.Backend) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	slots := min(cfg.HeapSlots, be.Capacity())
	if slots < cfg.MaxTileCopiesPerBatch {
		return nil, fmt.Errorf("%w: backend has %d heap slots, need at least %d",
			ErrInvalidConfig, slots, cfg.MaxTileCopiesPerBatch)
	}

	m := &Manager{
		cfg:    cfg,
		be:     be,
		heap:   heap.New(slots),
		nextID: 1,
		dirty:  parallel.NewDirtyRanges(0, residencyMapBlock),
		coord: upload.New(upload.Config{
			PoolSize:                 cfg.MaxBatches,
			MaxTileCopiesPerBatch:    cfg.MaxTileCopiesPerBatch,
			MaxTileCopiesInFlight:    cfg.MaxTileCopiesInFlight,
			MaxMappingUpdatesPerCall: cfg.MaxTileMappingUpdatesPerCall,
			PollInterval:             cfg.PollInterval,
		}, be),
	}

	propagateLogger(be, Logger())
	managersMu.Lock()
	managers[m] = struct{}{}
	managersMu.Unlock()

	m.coord.Start(context.Background())

	slogger().Info("tilestream: manager opened",
		"heap_slots", slots,
		"batches", cfg.MaxBatches,
		"swap_buffers", cfg.NumSwapBuffers)
	return m, nil
}

// Config returns the configuration with defaults applied.
func (m *Manager) Config() Config { return m.cfg }

// Backend returns the backend the manager streams through.
func (m *Manager) Backend() backend.Backend { return m.be }

// err wraps the pipeline error, if any.
func (m *Manager) err() error {
	if err := m.coord.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBackendFailed, err)
	}
	return nil
}

func (m *Manager) setChanged() { m.changed.Store(true) }

// CreateResource starts streaming src. Its region of the residency map is
// appended to the map and starts at NumStandardMips everywhere.
func (m *Manager) CreateResource(src tile.Source, opts ...ResourceOption) (*Resource, error) {
	var o resourceOptions
	for _, opt := range opts {
		opt(&o)
	}

	l := src.Layout()
	if int(l.NumPackedTiles) > m.heap.Capacity() {
		return nil, fmt.Errorf("%w: packed tail needs %d slots, heap has %d",
			ErrHeapTooSmall, l.NumPackedTiles, m.heap.Capacity())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	r := newResource(m.nextID, src, m.cfg.NumSwapBuffers, m.coord, m.heap, m.setChanged, o)
	m.nextID++
	if r.name == "" {
		r.name = fmt.Sprintf("resource-%d", r.tex.ID)
	}

	r.mapOffset = len(m.residencyMap)
	m.residencyMap = append(m.residencyMap, r.minMipMap...)
	m.resources = append(m.resources, r)
	m.resetDirty()

	slogger().Info("tilestream: resource created",
		"resource", r.name,
		"size", fmt.Sprintf("%dx%d", l.Size.Width, l.Size.Height),
		"standard_mips", l.NumStandardMips,
		"packed_mips", l.NumPackedMips,
		"tiles", l.NumTiles())
	return r, nil
}

// RemoveResource waits until no update list is in flight, returns every
// heap slot r holds and removes its region from the residency map. The
// regions of later resources move down; their offsets change.
func (m *Manager) RemoveResource(ctx context.Context, r *Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := slices.Index(m.resources, r)
	if idx < 0 {
		return ErrUnknownResource
	}
	if err := m.finish(ctx); err != nil {
		return err
	}

	freed := r.release()
	m.be.Release(&r.tex)
	m.resources = slices.Delete(m.resources, idx, idx+1)
	m.compact()

	slogger().Info("tilestream: resource removed", "resource", r.name, "slots_freed", freed)
	return nil
}

// compact rebuilds the residency map from the resources' local maps.
func (m *Manager) compact() {
	off := 0
	for _, r := range m.resources {
		r.mapOffset = off
		off += len(r.minMipMap)
	}
	m.residencyMap = m.residencyMap[:off]
	for _, r := range m.resources {
		copy(m.residencyMap[r.mapOffset:], r.minMipMap)
	}
	m.resetDirty()
}

// resetDirty resizes dirty tracking to the map and marks all of it.
func (m *Manager) resetDirty() {
	m.dirty = parallel.NewDirtyRanges(len(m.residencyMap), residencyMapBlock)
	m.dirty.MarkAll()
}

// Update runs one streaming cycle. completedFence is the fence value of
// the newest frame the renderer has finished; feedback queued with a fence
// at or below it is consumed.
//
// For each resource: the packed tail is requested first, and once it is,
// feedback is processed and tiles are queued. Pending evictions age by one
// frame every cycle. Finally the residency map is recomputed where
// residency changed.
func (m *Manager) Update(completedFence uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if err := m.err(); err != nil {
		return err
	}

	m.frames++
	for _, r := range m.resources {
		if r.initPackedMips() {
			r.ProcessFeedback(completedFence)
			r.QueueTiles()
		}
		r.NextFrame()
	}
	m.updateResidencyMap()
	return nil
}

// UpdateResidencyMap recomputes the residency map of every resource whose
// tiles changed residency. Update calls it; renderers that want the most
// recent completions just before drawing may call it as well.
func (m *Manager) UpdateResidencyMap() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateResidencyMap()
}

func (m *Manager) updateResidencyMap() {
	if !m.changed.Swap(false) {
		return
	}
	for _, r := range m.resources {
		if r.UpdateMinMipMap() {
			copy(m.residencyMap[r.mapOffset:], r.minMipMap)
			m.dirty.Mark(r.mapOffset, len(r.minMipMap))
		}
	}
}

// ResidencyMap returns a copy of the shared residency map: for every
// resource, at its MinMipMapOffset, MinMipMapWidth*MinMipMapHeight bytes in
// row-major order. Renderers that mirror the map should follow it with
// ConsumeResidencyMapUpdates instead of copying it every frame.
func (m *Manager) ResidencyMap() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.residencyMap)
}

// ConsumeResidencyMapUpdates calls fn for every byte range of the residency
// map that changed since the previous call, and clears them. After
// CreateResource or RemoveResource the whole map is reported.
func (m *Manager) ConsumeResidencyMapUpdates(fn func(offset int, data []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty.Consume(func(off, n int) {
		fn(off, m.residencyMap[off:off+n])
	})
}

// Resources returns the live resources in residency map order.
func (m *Manager) Resources() []*Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.resources)
}

// Finish blocks until every submitted update list has completed, the
// pipeline fails or ctx is done.
func (m *Manager) Finish(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finish(ctx)
}

func (m *Manager) finish(ctx context.Context) error {
	err := m.coord.Finish(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, upload.ErrStopped) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrBackendFailed, err)
}

// Close stops the upload pipeline, abandoning lists still in flight, and
// releases every resource. A backend opened by Open is closed as well.
// Call Finish first to let pending work complete. Close returns the
// pipeline error, if any. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	managersMu.Lock()
	delete(managers, m)
	managersMu.Unlock()

	stopErr := m.coord.Stop()
	for _, r := range m.resources {
		r.release()
		m.be.Release(&r.tex)
	}
	m.resources = nil

	var closeErr error
	if m.ownsBackend {
		closeErr = m.be.Close()
	}
	slogger().Info("tilestream: manager closed")

	if stopErr != nil {
		return fmt.Errorf("%w: %w", ErrBackendFailed, stopErr)
	}
	return closeErr
}

// Stats returns a snapshot of the streaming counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs := m.coord.Stats()
	s := Stats{
		Frames:           m.frames,
		Resources:        len(m.resources),
		HeapSlots:        m.heap.Capacity(),
		HeapSlotsFree:    m.heap.NumFree(),
		TilesUploaded:    cs.TilesUploaded,
		TilesEvicted:     cs.TilesEvicted,
		PackedMipsLoaded: cs.PackedMipsLoaded,
		BatchesCompleted: cs.BatchesCompleted,
		BatchesInFlight:  cs.BatchesInFlight,
		CopiesInFlight:   cs.CopiesInFlight,
		MappingFence:     cs.MappingFence,
	}
	for _, r := range m.resources {
		s.PendingLoads += r.loads.Len()
		s.PendingEvictions += r.evictions.Len()
	}
	return s
}
