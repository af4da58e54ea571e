package tile

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"
)

var (
	// ErrInvalidSize is returned for zero-sized textures or mip counts
	// larger than the full chain.
	ErrInvalidSize = errors.New("tile: invalid texture size")

	// ErrUnsupportedDimension is returned for 3D textures and arrays.
	ErrUnsupportedDimension = errors.New("tile: only single-layer 2D textures can be streamed")

	// ErrNothingToStream is returned when every mip is smaller than a tile.
	ErrNothingToStream = errors.New("tile: texture has no standard mips")
)

// Mip describes one level of the chain.
type Mip struct {
	// Width and Height are in texels.
	Width, Height uint32

	// TilesX and TilesY are the tile grid dimensions. Zero for packed mips.
	TilesX, TilesY uint32

	// PackedOffset and PackedSize locate a packed mip inside the packed blob.
	PackedOffset, PackedSize int
}

// Layout is the tiling of a streamed texture.
type Layout struct {
	Format gputypes.TextureFormat
	Size   gputypes.Extent3D
	Shape  Shape

	// Mips holds every level, standard mips first.
	Mips []Mip

	NumStandardMips uint32
	NumPackedMips   uint32

	// NumPackedTiles is the number of heap slots reserved for the packed tail.
	NumPackedTiles uint32
}

// NewLayout computes the tiling of a 2D texture. mipLevels of zero means the
// full chain down to 1x1.
func NewLayout(format gputypes.TextureFormat, size gputypes.Extent3D, mipLevels uint32) (Layout, error) {
	if size.Width == 0 || size.Height == 0 {
		return Layout{}, fmt.Errorf("%w: %dx%d", ErrInvalidSize, size.Width, size.Height)
	}
	if size.DepthOrArrayLayers > 1 {
		return Layout{}, ErrUnsupportedDimension
	}
	shape, err := ShapeFor(format)
	if err != nil {
		return Layout{}, err
	}

	full := uint32(bits.Len32(max(size.Width, size.Height)))
	if mipLevels == 0 {
		mipLevels = full
	}
	if mipLevels > full {
		return Layout{}, fmt.Errorf("%w: %d mips requested, chain has %d", ErrInvalidSize, mipLevels, full)
	}

	l := Layout{
		Format: format,
		Size:   gputypes.NewExtent2D(size.Width, size.Height),
		Shape:  shape,
		Mips:   make([]Mip, mipLevels),
	}

	packedBytes := 0
	for m := range mipLevels {
		w := max(size.Width>>m, 1)
		h := max(size.Height>>m, 1)
		mip := Mip{Width: w, Height: h}
		if l.NumPackedMips == 0 && w >= shape.Width && h >= shape.Height {
			mip.TilesX = (w + shape.Width - 1) / shape.Width
			mip.TilesY = (h + shape.Height - 1) / shape.Height
			l.NumStandardMips++
		} else {
			mip.PackedOffset = packedBytes
			mip.PackedSize = mipBytes(shape, w, h)
			packedBytes += mip.PackedSize
			l.NumPackedMips++
		}
		l.Mips[m] = mip
	}

	if l.NumStandardMips == 0 {
		return Layout{}, ErrNothingToStream
	}
	l.NumPackedTiles = uint32((packedBytes + Bytes - 1) / Bytes)
	return l, nil
}

func mipBytes(s Shape, w, h uint32) int {
	bx := (w + s.BlockWidth - 1) / s.BlockWidth
	by := (h + s.BlockHeight - 1) / s.BlockHeight
	return int(bx) * int(by) * int(s.BlockBytes)
}

// MaxMip returns the number of standard mips. A min-mip value equal to
// MaxMip means no standard tile is resident at that location.
func (l *Layout) MaxMip() uint32 {
	return l.NumStandardMips
}

// TilesX returns the tile grid width of standard mip m.
func (l *Layout) TilesX(m uint32) uint32 {
	return l.Mips[m].TilesX
}

// TilesY returns the tile grid height of standard mip m.
func (l *Layout) TilesY(m uint32) uint32 {
	return l.Mips[m].TilesY
}

// Contains reports whether c addresses a tile of a standard mip.
func (l *Layout) Contains(c Coord) bool {
	return c.Mip < l.NumStandardMips && c.X < l.Mips[c.Mip].TilesX && c.Y < l.Mips[c.Mip].TilesY
}

// NumTiles returns the number of tiles across all standard mips.
func (l *Layout) NumTiles() uint32 {
	var n uint32
	for m := range l.NumStandardMips {
		n += l.Mips[m].TilesX * l.Mips[m].TilesY
	}
	return n
}

// TileIndex returns the position of c in a dense array holding every
// standard tile, mip 0 first, row-major within a mip.
func (l *Layout) TileIndex(c Coord) uint32 {
	var base uint32
	for m := range c.Mip {
		base += l.Mips[m].TilesX * l.Mips[m].TilesY
	}
	return base + c.Y*l.Mips[c.Mip].TilesX + c.X
}

// PackedBytes returns the size of the packed tail.
func (l *Layout) PackedBytes() int {
	if l.NumPackedMips == 0 {
		return 0
	}
	last := l.Mips[len(l.Mips)-1]
	return last.PackedOffset + last.PackedSize
}

// Covering returns the tile of standard mip s that covers mip-0 tile
// (x, y). The result is clamped to the grid of s, which can be narrower
// than a plain shift suggests for sizes that are not multiples of the tile
// shape.
func (l *Layout) Covering(x, y, s uint32) Coord {
	return Coord{
		X:   min(x>>s, l.Mips[s].TilesX-1),
		Y:   min(y>>s, l.Mips[s].TilesY-1),
		Mip: s,
	}
}
