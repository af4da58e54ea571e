package main

import (
	"io"
	"os"
	"time"

	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/tilestream"
	"github.com/gogpu/tilestream/tile"
)

// reporter prints progress: a rewritten status line on terminals, a line
// every logEvery frames otherwise.
type reporter struct {
	w     io.Writer
	p     *message.Printer
	tty   bool
	width int
}

const logEvery = 100

func newReporter(w io.Writer) *reporter {
	r := &reporter{w: w, p: message.NewPrinter(language.English), width: 80}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.tty = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			r.width = cols
		}
	}
	return r
}

func (r *reporter) progress(frame, frames int, s tilestream.Stats) {
	line := r.p.Sprintf("[%d/%d] %v", frame, frames, s)
	if r.tty {
		if len(line) > r.width-1 {
			line = line[:r.width-1]
		}
		r.p.Fprintf(r.w, "\r\033[K%s", line)
		return
	}
	if frame%logEvery == 0 || frame == frames {
		r.p.Fprintln(r.w, line)
	}
}

func (r *reporter) summary(elapsed time.Duration, s tilestream.Stats, sim simSummary) {
	if r.tty {
		r.p.Fprintln(r.w)
	}
	r.p.Fprintf(r.w, "frames:            %d in %v\n", s.Frames, elapsed.Round(time.Millisecond))
	r.p.Fprintf(r.w, "tiles uploaded:    %d (%d bytes)\n", s.TilesUploaded, s.TilesUploaded*tile.Bytes)
	r.p.Fprintf(r.w, "tiles evicted:     %d\n", s.TilesEvicted)
	r.p.Fprintf(r.w, "packed mips:       %d\n", s.PackedMipsLoaded)
	r.p.Fprintf(r.w, "batches completed: %d\n", s.BatchesCompleted)
	r.p.Fprintf(r.w, "heap:              %d of %d slots used\n", s.HeapSlotsUsed(), s.HeapSlots)
	r.p.Fprintf(r.w, "residency map:     %d uploads, %d bytes\n", sim.ResidencyUploads, sim.ResidencyBytes)
	r.p.Fprintf(r.w, "mean LOD clamp:    %.2f\n", sim.MeanLODClamp)
}
