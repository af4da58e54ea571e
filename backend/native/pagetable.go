// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/tilestream/tile"
)

// pageTable is the GPU page table of one texture: one little-endian uint32
// heap slot per standard tile followed by one per packed tile. The CPU
// shadow is the source of truth; changed spans are written through the
// queue.
type pageTable struct {
	layout *tile.Layout
	buf    hal.Buffer
	shadow []uint32

	// Dirty span of shadow, [lo, hi).
	lo, hi int
}

func newPageTable(dev Device, id uint64, layout *tile.Layout) (*pageTable, error) {
	n := int(layout.NumTiles() + layout.NumPackedTiles)
	buf, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("tilestream page table %d", id),
		Size:  uint64(max(n, 1)) * 4,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create page table of texture %d: %w", id, err)
	}
	pt := &pageTable{layout: layout, buf: buf, shadow: make([]uint32, n)}
	for i := range pt.shadow {
		pt.shadow[i] = tile.InvalidSlot
	}
	pt.lo, pt.hi = 0, n
	return pt, nil
}

func (pt *pageTable) set(i int, slot uint32) {
	if pt.shadow[i] == slot {
		return
	}
	pt.shadow[i] = slot
	if pt.lo >= pt.hi {
		pt.lo, pt.hi = i, i+1
		return
	}
	pt.lo = min(pt.lo, i)
	pt.hi = max(pt.hi, i+1)
}

func (pt *pageTable) mapTile(c tile.Coord, slot uint32) {
	pt.set(int(pt.layout.TileIndex(c)), slot)
}

// mapPacked rebinds the packed entries. Missing trailing slots unmap.
func (pt *pageTable) mapPacked(slots []uint32) {
	base := int(pt.layout.NumTiles())
	for i := range int(pt.layout.NumPackedTiles) {
		s := tile.InvalidSlot
		if i < len(slots) {
			s = slots[i]
		}
		pt.set(base+i, s)
	}
}

// flush writes the dirty span to the GPU buffer.
func (pt *pageTable) flush(q hal.Queue) error {
	if pt.lo >= pt.hi {
		return nil
	}
	data := make([]byte, (pt.hi-pt.lo)*4)
	for i, v := range pt.shadow[pt.lo:pt.hi] {
		binary.LittleEndian.PutUint32(data[i*4:], v)
	}
	if err := q.WriteBuffer(pt.buf, uint64(pt.lo)*4, data); err != nil {
		return err
	}
	pt.lo, pt.hi = 0, 0
	return nil
}
