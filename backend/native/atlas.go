// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/tilestream/tile"
)

// Atlas geometry. A heap slot holds 64 KiB of raw tile bytes, stored as a
// 128x128 block of RGBA8 texels. Layers of the atlas array texture hold
// atlasColumns x atlasColumns slots each.
const (
	slotTexels      = 128
	slotBytesPerRow = slotTexels * 4
	atlasColumns    = 16
	slotsPerLayer   = atlasColumns * atlasColumns
	atlasFormat     = gputypes.TextureFormatRGBA8Unorm
)

// slotOrigin returns the atlas position of heap slot s.
func slotOrigin(s uint32) hal.Origin3D {
	i := s % slotsPerLayer
	return hal.Origin3D{
		X: (i % atlasColumns) * slotTexels,
		Y: (i / atlasColumns) * slotTexels,
		Z: s / slotsPerLayer,
	}
}

// atlasLayers returns the number of array layers needed for n slots.
func atlasLayers(n int) uint32 {
	return uint32((n + slotsPerLayer - 1) / slotsPerLayer)
}

func createAtlas(dev Device, slots int) (hal.Texture, error) {
	tex, err := dev.CreateTexture(&hal.TextureDescriptor{
		Label: "tilestream heap",
		Size: hal.Extent3D{
			Width:              atlasColumns * slotTexels,
			Height:             atlasColumns * slotTexels,
			DepthOrArrayLayers: atlasLayers(slots),
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        atlasFormat,
		Usage:         gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create heap atlas: %w", err)
	}
	return tex, nil
}

// writeSlot uploads one tile worth of bytes into slot s. data must hold
// exactly tile.Bytes bytes.
func writeSlot(q hal.Queue, atlas hal.Texture, s uint32, data []byte) error {
	if len(data) != tile.Bytes {
		return fmt.Errorf("native: slot %d: %d bytes, want %d", s, len(data), tile.Bytes)
	}
	dst := &hal.ImageCopyTexture{
		Texture:  atlas,
		MipLevel: 0,
		Origin:   slotOrigin(s),
		Aspect:   gputypes.TextureAspectAll,
	}
	layout := &hal.ImageDataLayout{
		BytesPerRow:  slotBytesPerRow,
		RowsPerImage: slotTexels,
	}
	size := &hal.Extent3D{Width: slotTexels, Height: slotTexels, DepthOrArrayLayers: 1}
	return q.WriteTexture(dst, data, layout, size)
}
