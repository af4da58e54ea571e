package parallel

import (
	"sync"
	"testing"
)

type span struct{ off, n int }

func consumeAll(d *DirtyRanges) []span {
	var out []span
	d.Consume(func(off, n int) { out = append(out, span{off, n}) })
	return out
}

func TestDirtyRanges_Create(t *testing.T) {
	d := NewDirtyRanges(1000, 64)
	if d.Size() != 1000 {
		t.Errorf("Size() = %d, want 1000", d.Size())
	}
	if !d.IsEmpty() {
		t.Error("new tracker should be empty")
	}
	if got := consumeAll(d); len(got) != 0 {
		t.Errorf("Consume() on clean tracker = %v", got)
	}
}

func TestDirtyRanges_Mark(t *testing.T) {
	tests := []struct {
		name  string
		marks []span
		want  []span
	}{
		{"single byte", []span{{10, 1}}, []span{{0, 16}}},
		{"spanning blocks", []span{{10, 20}}, []span{{0, 32}}},
		{"disjoint", []span{{0, 1}, {40, 1}}, []span{{0, 16}, {32, 16}}},
		{"adjacent merge", []span{{0, 16}, {16, 16}}, []span{{0, 32}}},
		{"tail clamped", []span{{95, 50}}, []span{{80, 20}}},
		{"out of range", []span{{200, 4}}, nil},
		{"negative offset", []span{{-8, 10}}, []span{{0, 16}}},
		{"zero length", []span{{5, 0}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDirtyRanges(100, 16)
			for _, m := range tt.marks {
				d.Mark(m.off, m.n)
			}
			got := consumeAll(d)
			if len(got) != len(tt.want) {
				t.Fatalf("Consume() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("range %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
			if !d.IsEmpty() {
				t.Error("tracker not empty after Consume")
			}
		})
	}
}

func TestDirtyRanges_RunAcrossWords(t *testing.T) {
	// 200 blocks of 1 byte: bits 60..70 straddle the first word boundary.
	d := NewDirtyRanges(200, 1)
	d.Mark(60, 11)
	got := consumeAll(d)
	if len(got) != 1 || got[0] != (span{60, 11}) {
		t.Errorf("Consume() = %v, want [{60 11}]", got)
	}
}

func TestDirtyRanges_FullWord(t *testing.T) {
	d := NewDirtyRanges(128, 1)
	d.Mark(0, 64)
	got := consumeAll(d)
	if len(got) != 1 || got[0] != (span{0, 64}) {
		t.Errorf("Consume() = %v, want [{0 64}]", got)
	}
}

func TestDirtyRanges_MarkAll(t *testing.T) {
	d := NewDirtyRanges(1000, 7)
	d.MarkAll()
	got := consumeAll(d)
	if len(got) != 1 || got[0] != (span{0, 1000}) {
		t.Errorf("Consume() = %v, want [{0 1000}]", got)
	}
}

func TestDirtyRanges_ConcurrentMark(t *testing.T) {
	d := NewDirtyRanges(4096, 1)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := g; i < 4096; i += 8 {
				d.Mark(i, 1)
			}
		}()
	}
	wg.Wait()

	got := consumeAll(d)
	if len(got) != 1 || got[0] != (span{0, 4096}) {
		t.Errorf("Consume() = %v, want [{0 4096}]", got)
	}
}

func BenchmarkDirtyRanges_Consume(b *testing.B) {
	d := NewDirtyRanges(1<<20, 64)
	for i := 0; i < b.N; i++ {
		d.Mark((i*4099)%(1<<20), 256)
		d.Consume(func(int, int) {})
	}
}
