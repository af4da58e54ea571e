package tile

import "fmt"

// Pattern is a Source that synthesizes tile contents from their
// coordinates. Every tile has distinct, reproducible bytes, which makes it
// useful for soak runs and for checking that data landed in the right
// slot.
type Pattern struct {
	layout Layout
}

var _ Source = (*Pattern)(nil)

// NewPattern returns a pattern source for l.
func NewPattern(l Layout) *Pattern {
	return &Pattern{layout: l}
}

// Layout returns the texture layout.
func (p *Pattern) Layout() Layout { return p.layout }

// ReadTile fills dst with the pattern of c.
func (p *Pattern) ReadTile(c Coord, dst []byte) error {
	if !p.layout.Contains(c) {
		return fmt.Errorf("tile: pattern has no tile %v", c)
	}
	FillPattern(c, dst)
	return nil
}

// ReadPackedMips returns the pattern of the packed tail.
func (p *Pattern) ReadPackedMips() ([]byte, error) {
	data := make([]byte, p.layout.PackedBytes())
	for i := range data {
		data[i] = byte(i*3 + 1)
	}
	return data, nil
}

// FillPattern writes the pattern bytes of c into dst.
func FillPattern(c Coord, dst []byte) {
	seed := byte(c.X*7 ^ c.Y*13 ^ c.Mip*31)
	for i := range dst {
		dst[i] = byte(i) ^ seed ^ byte(i>>8)
	}
}
