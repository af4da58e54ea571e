// Command tilestream-sim streams a texture through a tilestream Manager
// while a simulated camera flies over it, and reports what the streamer
// did.
//
// Usage:
//
//	tilestream-sim [-config sim.yaml] [-image photo.png] [-backend reference] [-frames 600] [-v]
//
// Flags override the matching configuration file fields.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gogpu/tilestream"
	"github.com/gogpu/tilestream/backend"
	_ "github.com/gogpu/tilestream/backend/native"
	_ "github.com/gogpu/tilestream/backend/reference"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		imagePath  = flag.String("image", "", "image to stream (PNG, JPEG, TIFF or BMP)")
		backendArg = flag.String("backend", "", "backend name, one of the registered backends")
		frames     = flag.Int("frames", 0, "number of frames to simulate")
		verbose    = flag.Bool("v", false, "log streaming activity")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tilestream-sim: %v\n", err)
		os.Exit(2)
	}
	if *imagePath != "" {
		cfg.Texture.Image = *imagePath
	}
	if *backendArg != "" {
		cfg.Backend = *backendArg
	}
	if *frames > 0 {
		cfg.Frames = *frames
	}
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	tilestream.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "tilestream-sim: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg simConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "tilestream-sim-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	src, closer, err := openSource(cfg.Texture, dir)
	if err != nil {
		return err
	}
	defer closer.Close()

	m, err := tilestream.Open(cfg.Backend, cfg.managerConfig())
	if err != nil {
		return fmt.Errorf("%w (available: %v)", err, backend.Available())
	}
	defer m.Close()

	sim := newSimulation(m, cfg)
	for i := range cfg.Texture.Count {
		r, err := m.CreateResource(src, tilestream.WithName(fmt.Sprintf("texture-%d", i)))
		if err != nil {
			return err
		}
		sim.add(r)
	}

	rep := newReporter(os.Stdout)
	start := time.Now()
	for frame := range cfg.Frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sim.step(uint64(frame) + 1); err != nil {
			return err
		}
		rep.progress(frame+1, cfg.Frames, m.Stats())
		if cfg.FrameTime > 0 {
			time.Sleep(cfg.FrameTime)
		}
	}

	finishCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := m.Finish(finishCtx); err != nil {
		return err
	}
	m.UpdateResidencyMap()
	rep.summary(time.Since(start), m.Stats(), sim.summary())
	return nil
}
