// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tilefile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"io"

	"github.com/gogpu/gputypes"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/draw"

	"github.com/gogpu/tilestream/tile"
)

// BuildOptions configures Build.
type BuildOptions struct {
	// MipLevels limits the mip chain. Zero means the full chain.
	MipLevels uint32

	// Scaler downsamples each mip from the previous one. Nil means
	// draw.BiLinear.
	Scaler draw.Scaler

	// Level is the zstd encoder level. Zero means zstd.SpeedDefault.
	Level zstd.EncoderLevel
}

// Build writes img as an RGBA8 tile container to w.
func Build(w io.Writer, img image.Image, opts BuildOptions) error {
	b := img.Bounds()
	l, err := tile.NewLayout(gputypes.TextureFormatRGBA8Unorm,
		gputypes.NewExtent2D(uint32(b.Dx()), uint32(b.Dy())), opts.MipLevels)
	if err != nil {
		return err
	}
	if opts.Scaler == nil {
		opts.Scaler = draw.BiLinear
	}
	if opts.Level == 0 {
		opts.Level = zstd.SpeedDefault
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(opts.Level))
	if err != nil {
		return err
	}
	defer enc.Close()

	payloads := make([][]byte, 0, l.NumTiles()+1)
	packed := make([]byte, l.PackedBytes())
	raw := make([]byte, tile.Bytes)

	mip := toRGBA(img)
	for m := range uint32(len(l.Mips)) {
		if m > 0 {
			mip = downsample(opts.Scaler, mip, l.Mips[m].Width, l.Mips[m].Height)
		}
		if m >= l.NumStandardMips {
			info := l.Mips[m]
			copyMip(packed[info.PackedOffset:info.PackedOffset+info.PackedSize], mip)
			continue
		}
		for y := range l.Mips[m].TilesY {
			for x := range l.Mips[m].TilesX {
				cutTile(raw, mip, l.Shape, x, y)
				payloads = append(payloads, enc.EncodeAll(raw, nil))
			}
		}
	}
	payloads = append(payloads, enc.EncodeAll(packed, nil))

	return writeContainer(w, &l, payloads)
}

func writeContainer(w io.Writer, l *tile.Layout, payloads [][]byte) error {
	bw := bufio.NewWriterSize(w, 256*1024)

	h := header{
		Version:   Version,
		Format:    uint32(l.Format),
		Width:     l.Size.Width,
		Height:    l.Size.Height,
		MipLevels: uint32(len(l.Mips)),
		NumTiles:  l.NumTiles(),
	}
	copy(h.Magic[:], Magic)
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("tilefile: write header: %w", err)
	}

	off := uint64(headerSize + len(payloads)*entrySize)
	index := make([]indexEntry, len(payloads))
	for i, p := range payloads {
		index[i] = indexEntry{Offset: off, Length: uint32(len(p))}
		off += uint64(len(p))
	}
	if err := binary.Write(bw, binary.LittleEndian, index); err != nil {
		return fmt.Errorf("tilefile: write index: %w", err)
	}
	for _, p := range payloads {
		if _, err := bw.Write(p); err != nil {
			return fmt.Errorf("tilefile: write payload: %w", err)
		}
	}
	return bw.Flush()
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return dst
}

func downsample(s draw.Scaler, src *image.RGBA, w, h uint32) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	s.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
	return dst
}

// cutTile copies tile (tx, ty) of img into dst. Texels past the image edge
// repeat the last row and column.
func cutTile(dst []byte, img *image.RGBA, s tile.Shape, tx, ty uint32) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	pitch := int(s.RowPitch())
	x0, y0 := int(tx*s.Width), int(ty*s.Height)
	for row := range int(s.Height) {
		sy := min(y0+row, h-1)
		srcRow := img.Pix[sy*img.Stride:]
		out := dst[row*pitch : (row+1)*pitch]
		n := max(min(w-x0, int(s.Width)), 0)
		copy(out, srcRow[x0*4:(x0+n)*4])
		last := srcRow[(w-1)*4 : w*4]
		for i := n * 4; i < len(out); i += 4 {
			copy(out[i:i+4], last)
		}
	}
}

// copyMip writes img row by row without padding.
func copyMip(dst []byte, img *image.RGBA) {
	rowBytes := img.Rect.Dx() * 4
	for y := range img.Rect.Dy() {
		copy(dst[y*rowBytes:(y+1)*rowBytes], img.Pix[y*img.Stride:])
	}
}
