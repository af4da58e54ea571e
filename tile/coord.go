package tile

import "fmt"

// InvalidSlot marks a tile that owns no physical heap slot.
const InvalidSlot = ^uint32(0)

// Coord addresses one tile of a standard mip.
// X and Y are in tile units within mip level Mip.
type Coord struct {
	X, Y uint32
	Mip  uint32
}

// Parent returns the coordinate of the tile one mip coarser that covers c.
func (c Coord) Parent() Coord {
	return Coord{X: c.X >> 1, Y: c.Y >> 1, Mip: c.Mip + 1}
}

// AtMip returns the tile at mip level s covering mip-0 column (x, y).
func AtMip(x, y, s uint32) Coord {
	return Coord{X: x >> s, Y: y >> s, Mip: s}
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)@%d", c.X, c.Y, c.Mip)
}
