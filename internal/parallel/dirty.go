package parallel

import (
	"math/bits"
	"sync/atomic"
)

// DirtyRanges tracks which parts of a byte buffer changed, using an atomic
// bitmap with one bit per block.
//
// Mark may be called from any goroutine. Consume clears the bits it reads,
// so a range marked concurrently with Consume is reported either by that
// Consume or by the next one.
type DirtyRanges struct {
	words     []atomic.Uint64
	size      int
	blockSize int
	blocks    int
}

// NewDirtyRanges creates a tracker for a buffer of size bytes split into
// blocks of blockSize bytes. All blocks start clean.
func NewDirtyRanges(size, blockSize int) *DirtyRanges {
	if blockSize <= 0 {
		blockSize = 1
	}
	blocks := (size + blockSize - 1) / blockSize
	return &DirtyRanges{
		words:     make([]atomic.Uint64, (blocks+63)/64),
		size:      size,
		blockSize: blockSize,
		blocks:    blocks,
	}
}

// Size returns the tracked buffer size.
func (d *DirtyRanges) Size() int { return d.size }

// Mark marks bytes [offset, offset+length) as dirty. The range is clamped
// to the buffer.
func (d *DirtyRanges) Mark(offset, length int) {
	if length <= 0 || offset >= d.size || offset+length <= 0 {
		return
	}
	end := min(offset+length, d.size)
	offset = max(offset, 0)

	for b := offset / d.blockSize; b <= (end-1)/d.blockSize; b++ {
		d.words[b/64].Or(1 << (b & 63))
	}
}

// MarkAll marks the whole buffer dirty.
func (d *DirtyRanges) MarkAll() {
	full := d.blocks / 64
	for i := 0; i < full; i++ {
		d.words[i].Store(^uint64(0))
	}
	if rem := d.blocks % 64; rem > 0 {
		d.words[full].Or((uint64(1) << rem) - 1)
	}
}

// IsEmpty reports whether nothing is dirty.
func (d *DirtyRanges) IsEmpty() bool {
	for i := range d.words {
		if d.words[i].Load() != 0 {
			return false
		}
	}
	return true
}

// Consume reports each maximal run of dirty blocks as a byte range and
// clears them. The last range is clamped to the buffer size.
func (d *DirtyRanges) Consume(fn func(offset, length int)) {
	start := -1
	flush := func(endBlock int) {
		if start < 0 {
			return
		}
		off := start * d.blockSize
		end := min(endBlock*d.blockSize, d.size)
		fn(off, end-off)
		start = -1
	}

	for w := range d.words {
		word := d.words[w].Swap(0)
		for bit := 0; bit < 64; {
			b := w*64 + bit
			if word == 0 {
				flush(b)
				break
			}
			tz := bits.TrailingZeros64(word)
			if tz > 0 {
				flush(b)
				bit += tz
				word >>= tz
				continue
			}
			if start < 0 {
				start = b
			}
			ones := bits.TrailingZeros64(^word)
			bit += ones
			if ones == 64 {
				word = 0
			} else {
				word >>= ones
			}
			if bit == 64 {
				// Run may continue into the next word.
				break
			}
		}
	}
	flush(d.blocks)
}
