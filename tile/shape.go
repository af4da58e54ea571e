package tile

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"
)

// Bytes is the size of one tile and of one physical heap slot.
const Bytes = 64 << 10

// ErrUnsupportedFormat is returned for formats that cannot be tiled.
var ErrUnsupportedFormat = errors.New("tile: unsupported texture format")

// Shape is the texel footprint of one tile for a given format.
type Shape struct {
	// Width and Height are in texels.
	Width, Height uint32

	// BlockWidth and BlockHeight are the compression block size in texels
	// (1x1 for uncompressed formats).
	BlockWidth, BlockHeight uint32

	// BlockBytes is the size of one block (one texel when uncompressed).
	BlockBytes uint32
}

// RowPitch returns the number of bytes in one row of blocks.
func (s Shape) RowPitch() uint32 {
	return s.Width / s.BlockWidth * s.BlockBytes
}

// Rows returns the number of block rows in a tile.
func (s Shape) Rows() uint32 {
	return s.Height / s.BlockHeight
}

// Size returns the tile size in bytes, always Bytes for a valid shape.
func (s Shape) Size() int {
	return int(s.RowPitch()) * int(s.Rows())
}

// ShapeFor returns the standard 64 KiB tile shape of format.
//
// The number of blocks in a tile is split so that the tile is square when
// it can be and twice as wide as tall otherwise, which yields 128x128 for
// 32-bit formats and 512x256 texels for BC1.
func ShapeFor(format gputypes.TextureFormat) (Shape, error) {
	bw, bh, bb := blockInfo(format)
	if bb == 0 {
		return Shape{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	blocks := uint32(Bytes) / bb
	k := uint32(bits.TrailingZeros32(blocks))
	rows := uint32(1) << (k / 2)
	cols := blocks / rows
	return Shape{
		Width:       cols * bw,
		Height:      rows * bh,
		BlockWidth:  bw,
		BlockHeight: bh,
		BlockBytes:  bb,
	}, nil
}

// blockInfo returns the block dimensions and byte size of format, or zero
// byte size when the format is not tileable.
func blockInfo(f gputypes.TextureFormat) (w, h, size uint32) {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint:
		return 1, 1, 1
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Snorm,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint,
		gputypes.TextureFormatR16Float,
		gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatRG8Snorm,
		gputypes.TextureFormatRG8Uint, gputypes.TextureFormatRG8Sint:
		return 1, 1, 2
	case gputypes.TextureFormatR32Float, gputypes.TextureFormatR32Uint,
		gputypes.TextureFormatR32Sint,
		gputypes.TextureFormatRG16Unorm, gputypes.TextureFormatRG16Snorm,
		gputypes.TextureFormatRG16Uint, gputypes.TextureFormatRG16Sint,
		gputypes.TextureFormatRG16Float,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatRGBA8Snorm, gputypes.TextureFormatRGBA8Uint,
		gputypes.TextureFormatRGBA8Sint,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatRGB10A2Uint, gputypes.TextureFormatRGB10A2Unorm,
		gputypes.TextureFormatRG11B10Ufloat, gputypes.TextureFormatRGB9E5Ufloat:
		return 1, 1, 4
	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG32Uint,
		gputypes.TextureFormatRG32Sint,
		gputypes.TextureFormatRGBA16Unorm, gputypes.TextureFormatRGBA16Snorm,
		gputypes.TextureFormatRGBA16Uint, gputypes.TextureFormatRGBA16Sint,
		gputypes.TextureFormatRGBA16Float:
		return 1, 1, 8
	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint,
		gputypes.TextureFormatRGBA32Sint:
		return 1, 1, 16
	case gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureFormatBC1RGBAUnormSrgb,
		gputypes.TextureFormatBC4RUnorm, gputypes.TextureFormatBC4RSnorm,
		gputypes.TextureFormatETC2RGB8Unorm, gputypes.TextureFormatETC2RGB8UnormSrgb,
		gputypes.TextureFormatETC2RGB8A1Unorm, gputypes.TextureFormatETC2RGB8A1UnormSrgb,
		gputypes.TextureFormatEACR11Unorm, gputypes.TextureFormatEACR11Snorm:
		return 4, 4, 8
	case gputypes.TextureFormatBC2RGBAUnorm, gputypes.TextureFormatBC2RGBAUnormSrgb,
		gputypes.TextureFormatBC3RGBAUnorm, gputypes.TextureFormatBC3RGBAUnormSrgb,
		gputypes.TextureFormatBC5RGUnorm, gputypes.TextureFormatBC5RGSnorm,
		gputypes.TextureFormatBC6HRGBUfloat, gputypes.TextureFormatBC6HRGBFloat,
		gputypes.TextureFormatBC7RGBAUnorm, gputypes.TextureFormatBC7RGBAUnormSrgb,
		gputypes.TextureFormatETC2RGBA8Unorm, gputypes.TextureFormatETC2RGBA8UnormSrgb,
		gputypes.TextureFormatEACRG11Unorm, gputypes.TextureFormatEACRG11Snorm:
		return 4, 4, 16
	}
	return 0, 0, 0
}
