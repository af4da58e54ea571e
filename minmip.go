package tilestream

import "github.com/gogpu/tilestream/tile"

// UpdateMinMipMap recomputes the local residency map if any tile changed
// residency since the last call, and reports whether it did.
//
// Each entry is the finest mip m such that the tiles covering the column
// at m and at every coarser standard mip are all Resident. When nothing is
// referenced every entry is NumStandardMips.
func (r *Resource) UpdateMinMipMap() bool {
	if !r.residencyChanged.Swap(false) {
		return false
	}

	if !r.grid.AnyReferenced() {
		for i := range r.minMipMap {
			r.minMipMap[i] = r.maxMip
		}
		return true
	}

	l := &r.tex.Layout
	finest := uint8(r.grid.MinFullyResidentMip()) //nolint:gosec // G115: at most maxMip
	i := 0
	for y := range r.tilesY {
		for x := range r.tilesX {
			s := finest
			minMip := s
			for s > 0 {
				s--
				if r.grid.Residency(l.Covering(x, y, uint32(s))) != tile.Resident {
					break
				}
				minMip = s
			}
			r.minMipMap[i] = minMip
			i++
		}
	}
	return true
}
