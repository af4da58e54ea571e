// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/tilestream/backend"
	"github.com/gogpu/tilestream/batch"
	"github.com/gogpu/tilestream/tile"
)

// =============================================================================
// Test doubles
// =============================================================================

type textureWrite struct {
	origin hal.Origin3D
	data   []byte
	layout hal.ImageDataLayout
	size   hal.Extent3D
}

type bufferWrite struct {
	offset uint64
	data   []byte
}

// recordingQueue records writes and can hold back submission completion.
type recordingQueue struct {
	noop.Queue

	mu       sync.Mutex
	textures []textureWrite
	buffers  []bufferWrite
	hold     bool
	released uint64
}

func (q *recordingQueue) WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.textures = append(q.textures, textureWrite{
		origin: dst.Origin,
		data:   append([]byte(nil), data...),
		layout: *layout,
		size:   *size,
	})
	return nil
}

func (q *recordingQueue) WriteBuffer(_ hal.Buffer, offset uint64, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buffers = append(q.buffers, bufferWrite{offset: offset, data: append([]byte(nil), data...)})
	return nil
}

func (q *recordingQueue) PollCompleted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.hold {
		return q.released
	}
	return q.Queue.PollCompleted()
}

func (q *recordingQueue) setHold(hold bool) {
	q.mu.Lock()
	q.hold = hold
	q.mu.Unlock()
}

func (q *recordingQueue) textureWrites() []textureWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]textureWrite(nil), q.textures...)
}

// countingDevice counts destroyed resources.
type countingDevice struct {
	noop.Device
	buffersDestroyed  int
	texturesDestroyed int
}

func (d *countingDevice) DestroyBuffer(hal.Buffer)   { d.buffersDestroyed++ }
func (d *countingDevice) DestroyTexture(hal.Texture) { d.texturesDestroyed++ }

type owner struct{ tex tile.Texture }

func (o *owner) Texture() *tile.Texture           { return &o.tex }
func (o *owner) NotifyEvicted([]tile.Coord)      {}
func (o *owner) NotifyCopyComplete([]tile.Coord) {}
func (o *owner) NotifyPackedMips()               {}

func newOwner(t *testing.T, id uint64) *owner {
	t.Helper()
	l, err := tile.NewLayout(gputypes.TextureFormatRGBA8Unorm, gputypes.NewExtent2D(512, 512), 0)
	if err != nil {
		t.Fatalf("NewLayout() error = %v", err)
	}
	return &owner{tex: tile.Texture{ID: id, Layout: l, Source: tile.NewPattern(l)}}
}

func newBackend(t *testing.T, slots int) (*Backend, *recordingQueue, *countingDevice) {
	t.Helper()
	q := &recordingQueue{}
	dev := &countingDevice{}
	b, err := New(dev, q, backend.Options{HeapSlots: slots, Workers: 2})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b, q, dev
}

func waitCompleted(t *testing.T, b *Backend, ul *batch.UpdateList) error {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		done, err := b.Completed(ul)
		if done {
			return err
		}
		if time.Now().After(deadline) {
			t.Fatal("upload never completed")
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// =============================================================================
// Atlas Tests
// =============================================================================

func TestSlotOrigin(t *testing.T) {
	tests := []struct {
		slot uint32
		want hal.Origin3D
	}{
		{0, hal.Origin3D{}},
		{1, hal.Origin3D{X: 128}},
		{17, hal.Origin3D{X: 128, Y: 128}},
		{255, hal.Origin3D{X: 15 * 128, Y: 15 * 128}},
		{256, hal.Origin3D{Z: 1}},
		{513, hal.Origin3D{X: 128, Z: 2}},
	}
	for _, tt := range tests {
		if got := SlotOrigin(tt.slot); got != tt.want {
			t.Errorf("SlotOrigin(%d) = %+v, want %+v", tt.slot, got, tt.want)
		}
	}
}

func TestAtlasLayers(t *testing.T) {
	tests := []struct{ slots, want int }{
		{1, 1}, {256, 1}, {257, 2}, {16384, 64},
	}
	for _, tt := range tests {
		if got := atlasLayers(tt.slots); got != uint32(tt.want) {
			t.Errorf("atlasLayers(%d) = %d, want %d", tt.slots, got, tt.want)
		}
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(nil, &noop.Queue{}, backend.Options{HeapSlots: 4}); !errors.Is(err, ErrNilDevice) {
		t.Errorf("New(nil device) error = %v, want ErrNilDevice", err)
	}
	if _, err := New(&noop.Device{}, &noop.Queue{}, backend.Options{}); !errors.Is(err, ErrNoHeap) {
		t.Errorf("New(no heap) error = %v, want ErrNoHeap", err)
	}
}

// =============================================================================
// Page Table Tests
// =============================================================================

func TestMapWritesPageTable(t *testing.T) {
	b, q, _ := newBackend(t, 8)
	o := newOwner(t, 1)

	if err := b.Map(&o.tex, []tile.Coord{{X: 1, Y: 0}}, []uint32{5}); err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	entries := b.Entries(1)
	if want := int(o.tex.Layout.NumTiles() + o.tex.Layout.NumPackedTiles); len(entries) != want {
		t.Fatalf("len(Entries()) = %d, want %d", len(entries), want)
	}
	if entries[1] != 5 {
		t.Errorf("Entries()[1] = %d, want 5", entries[1])
	}
	if entries[0] != tile.InvalidSlot {
		t.Errorf("Entries()[0] = %#x, want InvalidSlot", entries[0])
	}

	// The first write initializes the whole table; later writes cover the
	// changed span only.
	if err := b.Map(&o.tex, []tile.Coord{{X: 3, Y: 0}}, []uint32{6}); err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	q.mu.Lock()
	last := q.buffers[len(q.buffers)-1]
	n := len(q.buffers)
	q.mu.Unlock()
	if n != 2 {
		t.Fatalf("buffer writes = %d, want 2", n)
	}
	if last.offset != 12 || len(last.data) != 4 || binary.LittleEndian.Uint32(last.data) != 6 {
		t.Errorf("last write = offset %d, %v; want offset 12, slot 6", last.offset, last.data)
	}
}

func TestUnmapAndMapPacked(t *testing.T) {
	b, _, _ := newBackend(t, 8)
	o := newOwner(t, 1)
	c := tile.Coord{X: 1, Y: 1, Mip: 1}

	_ = b.Map(&o.tex, []tile.Coord{c}, []uint32{2})
	if err := b.Unmap(&o.tex, []tile.Coord{c}); err != nil {
		t.Fatalf("Unmap() error = %v", err)
	}
	if got := b.Entries(1)[o.tex.Layout.TileIndex(c)]; got != tile.InvalidSlot {
		t.Errorf("entry after Unmap = %d, want InvalidSlot", got)
	}

	if err := b.MapPacked(&o.tex, []uint32{7}); err != nil {
		t.Fatalf("MapPacked() error = %v", err)
	}
	entries := b.Entries(1)
	if got := entries[o.tex.Layout.NumTiles()]; got != 7 {
		t.Errorf("packed entry = %d, want 7", got)
	}
}

func TestMapSlotOutOfRange(t *testing.T) {
	b, _, _ := newBackend(t, 2)
	o := newOwner(t, 1)
	err := b.Map(&o.tex, []tile.Coord{{}}, []uint32{2})
	if !errors.Is(err, backend.ErrSlotOutOfRange) {
		t.Errorf("Map() error = %v, want ErrSlotOutOfRange", err)
	}
}

func TestReleaseDestroysPageTable(t *testing.T) {
	b, _, dev := newBackend(t, 4)
	o := newOwner(t, 3)
	_ = b.Map(&o.tex, []tile.Coord{{}}, []uint32{0})
	if b.PageTable(3) == nil {
		t.Fatal("PageTable() = nil after Map")
	}

	b.Release(&o.tex)
	if b.PageTable(3) != nil {
		t.Error("PageTable() != nil after Release")
	}
	if dev.buffersDestroyed != 1 {
		t.Errorf("buffers destroyed = %d, want 1", dev.buffersDestroyed)
	}
}

// =============================================================================
// Fence Tests
// =============================================================================

func TestFenceFollowsQueue(t *testing.T) {
	b, q, _ := newBackend(t, 4)
	q.setHold(true)

	if err := b.SignalFence(1); err != nil {
		t.Fatalf("SignalFence() error = %v", err)
	}
	if err := b.SignalFence(2); err != nil {
		t.Fatalf("SignalFence() error = %v", err)
	}
	if got := b.CompletedFence(); got != 0 {
		t.Errorf("CompletedFence() = %d while held, want 0", got)
	}

	q.mu.Lock()
	q.released = 1
	q.mu.Unlock()
	if got := b.CompletedFence(); got != 1 {
		t.Errorf("CompletedFence() = %d, want 1", got)
	}

	q.setHold(false)
	if got := b.CompletedFence(); got != 2 {
		t.Errorf("CompletedFence() = %d, want 2", got)
	}
}

// =============================================================================
// Upload Tests
// =============================================================================

func TestStreamLoadsWritesAtlas(t *testing.T) {
	b, q, _ := newBackend(t, 512)
	o := newOwner(t, 1)
	pool := batch.NewPool(1)

	ul := pool.Allocate(o)
	coords := []tile.Coord{{X: 0, Y: 0}, {X: 2, Y: 3}}
	slots := []uint32{3, 300}
	for i, c := range coords {
		ul.AddLoad(c, slots[i])
	}
	if err := b.StreamLoads(ul); err != nil {
		t.Fatalf("StreamLoads() error = %v", err)
	}
	if !ul.CopyIssued() {
		t.Error("CopyIssued() = false after StreamLoads")
	}
	if err := waitCompleted(t, b, ul); err != nil {
		t.Fatalf("Completed() error = %v", err)
	}

	writes := q.textureWrites()
	if len(writes) != 2 {
		t.Fatalf("texture writes = %d, want 2", len(writes))
	}
	want := make([]byte, tile.Bytes)
	for i, c := range coords {
		tile.FillPattern(c, want)
		found := false
		for _, w := range writes {
			if w.origin == SlotOrigin(slots[i]) {
				found = true
				if !bytes.Equal(w.data, want) {
					t.Errorf("slot %d does not hold the contents of %v", slots[i], c)
				}
				if w.layout.BytesPerRow != slotBytesPerRow || w.size.Width != slotTexels {
					t.Errorf("write layout = %+v size %+v", w.layout, w.size)
				}
			}
		}
		if !found {
			t.Errorf("no write at the origin of slot %d", slots[i])
		}
	}
	if b.TilesCopied() != 2 {
		t.Errorf("TilesCopied() = %d, want 2", b.TilesCopied())
	}
}

func TestCompletedWaitsForSubmission(t *testing.T) {
	b, q, _ := newBackend(t, 8)
	o := newOwner(t, 1)
	pool := batch.NewPool(1)
	q.setHold(true)

	ul := pool.Allocate(o)
	ul.AddLoad(tile.Coord{}, 0)
	_ = b.StreamLoads(ul)

	deadline := time.Now().Add(2 * time.Second)
	for {
		done, err := b.Completed(ul)
		if err != nil {
			t.Fatalf("Completed() error = %v", err)
		}
		if done {
			t.Fatal("Completed() = true before the queue finished")
		}
		if len(q.textureWrites()) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tile was never written")
		}
		time.Sleep(100 * time.Microsecond)
	}

	if done, _ := b.Completed(ul); done {
		t.Error("Completed() = true while submission held")
	}
	q.setHold(false)
	if err := waitCompleted(t, b, ul); err != nil {
		t.Errorf("Completed() error = %v", err)
	}
}

func TestStreamPackedMips(t *testing.T) {
	b, q, _ := newBackend(t, 8)
	o := newOwner(t, 1)
	pool := batch.NewPool(1)

	ul := pool.Allocate(o)
	ul.AddPackedMipRequest([]uint32{4})
	if err := b.StreamPackedMips(ul); err != nil {
		t.Fatalf("StreamPackedMips() error = %v", err)
	}
	if err := waitCompleted(t, b, ul); err != nil {
		t.Fatalf("Completed() error = %v", err)
	}

	writes := q.textureWrites()
	if len(writes) != 1 || writes[0].origin != SlotOrigin(4) {
		t.Fatalf("texture writes = %+v, want one at slot 4", writes)
	}
	packed, _ := o.tex.Source.ReadPackedMips()
	if !bytes.Equal(writes[0].data[:len(packed)], packed) {
		t.Error("packed slot does not start with the packed tail")
	}
}

func TestClosedBackend(t *testing.T) {
	b, _, dev := newBackend(t, 4)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if dev.texturesDestroyed != 1 {
		t.Errorf("textures destroyed = %d, want 1", dev.texturesDestroyed)
	}
	o := newOwner(t, 1)
	if err := b.Map(&o.tex, nil, nil); !errors.Is(err, backend.ErrClosed) {
		t.Errorf("Map() after Close error = %v, want ErrClosed", err)
	}
	if err := b.SignalFence(1); !errors.Is(err, backend.ErrClosed) {
		t.Errorf("SignalFence() after Close error = %v, want ErrClosed", err)
	}
}

func TestHeadlessRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.Headless) {
		t.Fatal("headless backend not registered")
	}
	be, err := backend.Open(backend.Headless, backend.Options{HeapSlots: 16})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer be.Close()
	if be.Capacity() != 16 {
		t.Errorf("Capacity() = %d, want 16", be.Capacity())
	}
}
