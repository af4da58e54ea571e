// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package tilefile reads and writes tile containers: textures cut into
// standard 64 KiB tiles, each compressed on its own so that any tile can be
// streamed without touching the rest of the file.
//
// # Format
//
// All integers are little-endian.
//
//	header   magic "TSTF", version, texture format, width, height,
//	         mip count, number of standard tiles
//	index    one (offset, length) entry per standard tile, in
//	         tile.Layout.TileIndex order, then one entry for the packed tail
//	payload  zstd frames, one per index entry
//
// A decompressed tile is exactly tile.Bytes long. The decompressed packed
// tail holds every packed mip at its tile.Mip.PackedOffset.
package tilefile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/tilestream/tile"
)

// Magic identifies a tile container.
const Magic = "TSTF"

// Version is the container version written by Build.
const Version = 1

// Errors returned by Open and Reader.
var (
	// ErrBadMagic is returned when the input is not a tile container.
	ErrBadMagic = errors.New("tilefile: bad magic")

	// ErrCorrupt is returned for malformed headers, indexes or payloads.
	ErrCorrupt = errors.New("tilefile: corrupt container")

	// ErrTileOutOfRange is returned by ReadTile for coordinates outside the
	// layout.
	ErrTileOutOfRange = errors.New("tilefile: tile out of range")
)

type header struct {
	Magic     [4]byte
	Version   uint16
	_         uint16
	Format    uint32
	Width     uint32
	Height    uint32
	MipLevels uint32
	NumTiles  uint32
}

type indexEntry struct {
	Offset uint64
	Length uint32
}

var (
	headerSize = binary.Size(header{})
	entrySize  = binary.Size(indexEntry{})
)

func (h *header) layout() (tile.Layout, error) {
	l, err := tile.NewLayout(gputypes.TextureFormat(h.Format), gputypes.NewExtent2D(h.Width, h.Height), h.MipLevels)
	if err != nil {
		return tile.Layout{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if l.NumTiles() != h.NumTiles {
		return tile.Layout{}, fmt.Errorf("%w: %d tiles, layout has %d", ErrCorrupt, h.NumTiles, l.NumTiles())
	}
	return l, nil
}

func readHeader(r io.Reader) (header, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("%w: header: %w", ErrCorrupt, err)
	}
	if string(h.Magic[:]) != Magic {
		return h, ErrBadMagic
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	return h, nil
}
