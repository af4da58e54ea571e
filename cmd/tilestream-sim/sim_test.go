package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/tilestream"
	"github.com/gogpu/tilestream/backend"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sim.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// =============================================================================
// Config Tests
// =============================================================================

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Backend != backend.Reference || cfg.Frames != 600 {
		t.Errorf("defaults = %q, %d frames; want reference, 600", cfg.Backend, cfg.Frames)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("validate() error = %v", err)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, `
backend: immediate
frames: 42
texture:
  size: 2048
  count: 3
tour:
  stops: 4
manager:
  heap_slots: 512
  poll_interval: 1ms
device:
  copy_latency: 5ms
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Backend != "immediate" || cfg.Frames != 42 {
		t.Errorf("Backend, Frames = %q, %d; want immediate, 42", cfg.Backend, cfg.Frames)
	}
	if cfg.Texture.Size != 2048 || cfg.Texture.Count != 3 {
		t.Errorf("Texture = %+v", cfg.Texture)
	}
	// Unset fields keep their defaults.
	if cfg.Tour.Focus != 2 || cfg.Tour.Stops != 4 {
		t.Errorf("Tour = %+v", cfg.Tour)
	}

	mc := cfg.managerConfig()
	if mc.HeapSlots != 512 || mc.PollInterval != time.Millisecond {
		t.Errorf("managerConfig() = %+v", mc)
	}
	if mc.Backend.CopyLatency != 5*time.Millisecond {
		t.Errorf("CopyLatency = %v, want 5ms", mc.Backend.CopyLatency)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"frames", "frames: 0", "frames"},
		{"stops", "tour: {stops: 1}", "tour.stops"},
		{"count", "texture: {count: 0}", "texture.count"},
		{"manager", "manager: {heap_slots: 8, max_tile_copies_per_batch: 16}", "HeapSlots"},
		{"syntax", "frames: [", "sim.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("loadConfig() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

// =============================================================================
// Tour Tests
// =============================================================================

func TestTourVisitsStopsInOrder(t *testing.T) {
	tr := newTour(tourConfig{Stops: 5, Seed: 7, Speed: 1}, 64, 32)
	if len(tr.stops) != 5 {
		t.Fatalf("len(stops) = %d, want 5", len(tr.stops))
	}
	for _, p := range tr.stops {
		if p.X < 0 || p.X >= 64 || p.Y < 0 || p.Y >= 32 {
			t.Errorf("stop %v outside the 64x32 grid", p)
		}
	}

	// With Speed 1, whole frames land exactly on stops.
	for i := 1; i <= 5; i++ {
		got := tr.advance(1)
		want := tr.stops[(i+1)%5]
		if got.dist(want) > 1e-9 {
			t.Errorf("advance #%d = %v, want stop %v", i, got, want)
		}
	}
}

func TestCatmullRomEndpoints(t *testing.T) {
	if got := catmullRom(0, 1, 2, 3, 0); got != 1 {
		t.Errorf("catmullRom(t=0) = %v, want 1", got)
	}
	if got := catmullRom(0, 1, 2, 3, 1); math.Abs(got-2) > 1e-12 {
		t.Errorf("catmullRom(t=1) = %v, want 2", got)
	}
	if got := catmullRom(0, 1, 2, 3, 0.5); math.Abs(got-1.5) > 1e-12 {
		t.Errorf("catmullRom(t=0.5) = %v, want 1.5 on a line", got)
	}
}

func TestFillFeedback(t *testing.T) {
	const w, h = 16, 16
	fb := make([]byte, w*h)
	fillFeedback(fb, w, h, point{X: 0.5, Y: 0.5}, tourConfig{Focus: 1, Radius: 10})

	if fb[0] != 0 {
		t.Errorf("feedback under the camera = %d, want 0", fb[0])
	}
	if fb[w*h-1] != 0xff {
		t.Errorf("feedback beyond the radius = %d, want 0xff", fb[w*h-1])
	}
	// Detail never increases with distance along a row.
	for x := 1; x < 8; x++ {
		if fb[x] < fb[x-1] {
			t.Errorf("feedback[%d] = %d finer than feedback[%d] = %d", x, fb[x], x-1, fb[x-1])
		}
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func smallConfig() simConfig {
	cfg := defaults()
	cfg.Backend = backend.Immediate
	cfg.Frames = 20
	cfg.Texture.Size = 1024
	cfg.Manager.HeapSlots = 256
	cfg.Device = deviceConfig{}
	return cfg
}

func TestRunPattern(t *testing.T) {
	if err := run(context.Background(), smallConfig()); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

func TestRunImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 512, 512))
	for y := range 512 {
		for x := range 512 {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "gradient.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := smallConfig()
	cfg.Texture.Image = path
	cfg.Backend = backend.Headless
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, smallConfig()); err != context.Canceled {
		t.Errorf("run() error = %v, want context.Canceled", err)
	}
}

func TestReporterSummary(t *testing.T) {
	var buf bytes.Buffer
	r := newReporter(&buf)
	r.progress(100, 200, statsFor(1234))
	r.summary(time.Second, statsFor(1234), simSummary{MeanLODClamp: 1.5})

	out := buf.String()
	for _, want := range []string{"[100/200]", "tiles uploaded:    1,234", "mean LOD clamp:    1.50"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func statsFor(uploaded uint64) tilestream.Stats {
	return tilestream.Stats{Frames: 200, HeapSlots: 256, TilesUploaded: uploaded}
}
