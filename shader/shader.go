// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader holds the GPU side of residency consumption: a compute
// shader that turns a resource's region of the residency map into LOD
// clamps, and LODClamps, its CPU equivalent.
//
// The clamp of a column is the finest mip a sampler may use there without
// reading unmapped tiles. Renderers sample with
//
//	lod = max(desiredLOD, clamp)
package shader

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/naga"
)

//go:embed lod_clamp.wgsl
var lodClampWGSL string

// WorkgroupSize is the workgroup width of the LOD clamp shader.
const WorkgroupSize = 64

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// ErrInvalidSPIRV is returned when the compiler output is not a SPIR-V
// module.
var ErrInvalidSPIRV = errors.New("shader: compiler output is not SPIR-V")

// Source returns the WGSL source of the LOD clamp shader.
func Source() string { return lodClampWGSL }

var compileOnce = sync.OnceValues(func() ([]uint32, error) {
	spirvBytes, err := naga.Compile(lodClampWGSL)
	if err != nil {
		return nil, fmt.Errorf("shader: compile lod clamp: %w", err)
	}
	if len(spirvBytes) < 4 || len(spirvBytes)%4 != 0 {
		return nil, ErrInvalidSPIRV
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, ErrInvalidSPIRV
	}
	return words, nil
})

// Compile returns the LOD clamp shader as SPIR-V words. The module is
// compiled once.
func Compile() ([]uint32, error) {
	words, err := compileOnce()
	if err != nil {
		return nil, err
	}
	return append([]uint32(nil), words...), nil
}

// Params is the uniform block of the LOD clamp shader.
type Params struct {
	// Offset is the byte offset of the resource region in the residency map.
	Offset uint32
	// Width and Height are the min-mip map dimensions of the resource.
	Width, Height uint32
	// MaxMip is the number of standard mips of the resource.
	MaxMip uint32
}

// Bytes returns p in uniform buffer layout.
func (p Params) Bytes() []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:], p.Offset)
	binary.LittleEndian.PutUint32(b[4:], p.Width)
	binary.LittleEndian.PutUint32(b[8:], p.Height)
	binary.LittleEndian.PutUint32(b[12:], p.MaxMip)
	return b
}

// Workgroups returns the dispatch size covering every column of p.
func (p Params) Workgroups() uint32 {
	n := p.Width * p.Height
	return (n + WorkgroupSize - 1) / WorkgroupSize
}

// LODClamps computes on the CPU what the shader writes: one clamp per
// column of the region p describes in residency.
func LODClamps(residency []byte, p Params) []float32 {
	n := int(p.Width * p.Height)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(min(uint32(residency[int(p.Offset)+i]), p.MaxMip))
	}
	return out
}

// LODClamp returns the clamp at normalized texture coordinate (u, v),
// sampling the region nearest-neighbour. Coordinates outside [0, 1] are
// clamped to the edge.
func LODClamp(residency []byte, p Params, u, v float32) float32 {
	x := texelIndex(u, p.Width)
	y := texelIndex(v, p.Height)
	b := residency[int(p.Offset)+int(y*p.Width+x)]
	return float32(min(uint32(b), p.MaxMip))
}

func texelIndex(t float32, n uint32) uint32 {
	if t <= 0 {
		return 0
	}
	return min(uint32(t*float32(n)), n-1)
}
