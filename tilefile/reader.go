// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tilefile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/gogpu/tilestream/internal/cache"
	"github.com/gogpu/tilestream/tile"
)

// DefaultCacheBytes is the decoded tile cache budget of a Reader.
const DefaultCacheBytes = 32 << 20

// Option configures Open.
type Option func(*readerOptions)

type readerOptions struct {
	cacheBytes int64
}

// WithCacheBytes sets the decoded tile cache budget. Zero disables the
// cache.
func WithCacheBytes(n int64) Option {
	return func(o *readerOptions) { o.cacheBytes = n }
}

// CacheStats reports decoded tile cache activity.
type CacheStats struct {
	Hits, Misses, Evictions uint64
	Bytes                   int64
}

// Reader serves tiles of a container. It implements tile.Source and is
// safe for concurrent use.
type Reader struct {
	r      io.ReaderAt
	closer io.Closer
	layout tile.Layout
	index  []indexEntry
	dec    *zstd.Decoder
	tiles  *cache.Cache[tile.Coord]
}

var _ tile.Source = (*Reader)(nil)

// Open reads the header and index of the container in r, which is size
// bytes long.
func Open(r io.ReaderAt, size int64, opts ...Option) (*Reader, error) {
	o := readerOptions{cacheBytes: DefaultCacheBytes}
	for _, opt := range opts {
		opt(&o)
	}

	sr := io.NewSectionReader(r, 0, size)
	h, err := readHeader(sr)
	if err != nil {
		return nil, err
	}
	l, err := h.layout()
	if err != nil {
		return nil, err
	}

	n := int(h.NumTiles) + 1
	if int64(headerSize+n*entrySize) > size {
		return nil, fmt.Errorf("%w: index past end of file", ErrCorrupt)
	}
	index := make([]indexEntry, n)
	if err := binary.Read(sr, binary.LittleEndian, index); err != nil {
		return nil, fmt.Errorf("%w: index: %w", ErrCorrupt, err)
	}
	for i, e := range index {
		if e.Offset+uint64(e.Length) > uint64(size) {
			return nil, fmt.Errorf("%w: entry %d past end of file", ErrCorrupt, i)
		}
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}
	return &Reader{
		r:      r,
		layout: l,
		index:  index,
		dec:    dec,
		tiles:  cache.New[tile.Coord](o.cacheBytes, hashCoord),
	}, nil
}

// OpenFile opens the container at path. Close releases the file.
func OpenFile(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	rd, err := Open(f, st.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("tilefile: %s: %w", path, err)
	}
	rd.closer = f
	return rd, nil
}

func hashCoord(c tile.Coord) uint64 {
	return (uint64(c.X)*0x9e3779b97f4a7c15 ^ uint64(c.Y)*0xc2b2ae3d27d4eb4f) + uint64(c.Mip)
}

// Layout returns the texture layout.
func (r *Reader) Layout() tile.Layout { return r.layout }

// ReadTile decodes c into dst.
func (r *Reader) ReadTile(c tile.Coord, dst []byte) error {
	if !r.layout.Contains(c) {
		return fmt.Errorf("%w: %v", ErrTileOutOfRange, c)
	}
	if data, ok := r.tiles.Get(c); ok {
		copy(dst, data)
		return nil
	}
	data, err := r.decode(int(r.layout.TileIndex(c)), tile.Bytes)
	if err != nil {
		return fmt.Errorf("tile %v: %w", c, err)
	}
	r.tiles.Add(c, data)
	copy(dst, data)
	return nil
}

// ReadPackedMips decodes the packed tail.
func (r *Reader) ReadPackedMips() ([]byte, error) {
	data, err := r.decode(len(r.index)-1, r.layout.PackedBytes())
	if err != nil {
		return nil, fmt.Errorf("packed mips: %w", err)
	}
	return data, nil
}

func (r *Reader) decode(i, want int) ([]byte, error) {
	e := r.index[i]
	buf := make([]byte, e.Length)
	if _, err := r.r.ReadAt(buf, int64(e.Offset)); err != nil {
		return nil, err
	}
	out, err := r.dec.DecodeAll(buf, make([]byte, 0, want))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if len(out) != want {
		return nil, fmt.Errorf("%w: entry %d decodes to %d bytes, want %d", ErrCorrupt, i, len(out), want)
	}
	return out, nil
}

// CacheStats returns decoded tile cache counters.
func (r *Reader) CacheStats() CacheStats {
	s := r.tiles.Stats()
	return CacheStats{Hits: s.Hits, Misses: s.Misses, Evictions: s.Evictions, Bytes: s.Bytes}
}

// Close releases the decoder and, for OpenFile, the file.
func (r *Reader) Close() error {
	r.dec.Close()
	r.tiles.Clear()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// OpenBytes opens a container held in memory.
func OpenBytes(data []byte, opts ...Option) (*Reader, error) {
	return Open(bytes.NewReader(data), int64(len(data)), opts...)
}
