// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"strings"
	"testing"
)

func TestSourceEmbedded(t *testing.T) {
	src := Source()
	if src == "" {
		t.Fatal("Source() is empty")
	}
	for _, want := range []string{"@compute", "@workgroup_size(64)", "fn main"} {
		if !strings.Contains(src, want) {
			t.Errorf("Source() missing %q", want)
		}
	}
}

func TestCompile(t *testing.T) {
	words, err := Compile()
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "not yet implemented") || strings.Contains(errStr, "not supported") {
			t.Skipf("Skipping: naga feature not yet implemented: %v", err)
		}
		if strings.Contains(errStr, "runtime-sized") || strings.Contains(errStr, "lowering error") {
			t.Skipf("Skipping: naga lowering limitation: %v", err)
		}
		t.Fatalf("Compile() error = %v", err)
	}
	if len(words) == 0 {
		t.Fatal("SPIR-V output is empty")
	}
	if words[0] != spirvMagic {
		t.Errorf("SPIR-V magic = %#x, want %#x", words[0], spirvMagic)
	}

	// The returned slice is a copy.
	words[0] = 0
	again, err := Compile()
	if err != nil {
		t.Fatalf("second Compile() error = %v", err)
	}
	if again[0] != spirvMagic {
		t.Error("Compile() returned shared storage")
	}
}

func TestParamsBytes(t *testing.T) {
	b := Params{Offset: 1, Width: 2, Height: 3, MaxMip: 0x01020304}.Bytes()
	want := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 3, 2, 1}
	if string(b) != string(want) {
		t.Errorf("Bytes() = %v, want %v", b, want)
	}
}

func TestWorkgroups(t *testing.T) {
	tests := []struct {
		w, h uint32
		want uint32
	}{
		{1, 1, 1},
		{8, 8, 1},
		{8, 9, 2},
		{32, 32, 16},
	}
	for _, tt := range tests {
		if got := (Params{Width: tt.w, Height: tt.h}).Workgroups(); got != tt.want {
			t.Errorf("Workgroups(%dx%d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestLODClamps(t *testing.T) {
	// Two regions; the second starts at offset 4.
	residency := []byte{9, 9, 9, 9, 0, 1, 2, 7}
	p := Params{Offset: 4, Width: 2, Height: 2, MaxMip: 3}

	got := LODClamps(residency, p)
	want := []float32{0, 1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LODClamps()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLODClamp(t *testing.T) {
	residency := []byte{0, 1, 2, 3}
	p := Params{Width: 2, Height: 2, MaxMip: 4}

	tests := []struct {
		u, v float32
		want float32
	}{
		{0, 0, 0},
		{0.75, 0, 1},
		{0.25, 0.75, 2},
		{1, 1, 3},
		{-1, 2, 2},
	}
	for _, tt := range tests {
		if got := LODClamp(residency, p, tt.u, tt.v); got != tt.want {
			t.Errorf("LODClamp(%v, %v) = %v, want %v", tt.u, tt.v, got, tt.want)
		}
	}
}
