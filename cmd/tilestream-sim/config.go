package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/tilestream"
	"github.com/gogpu/tilestream/backend"
)

type simConfig struct {
	Backend string `yaml:"backend"`
	Frames  int    `yaml:"frames"`

	// FrameTime paces the loop. Zero runs frames back to back.
	FrameTime time.Duration `yaml:"frame_time"`

	// GPULatency is how many frames feedback takes to become readable.
	GPULatency int `yaml:"gpu_latency_frames"`

	Texture textureConfig `yaml:"texture"`
	Tour    tourConfig    `yaml:"tour"`
	Manager managerConfig `yaml:"manager"`
	Device  deviceConfig  `yaml:"device"`
}

type textureConfig struct {
	// Image is a PNG, JPEG, TIFF or BMP file. Empty streams a generated
	// pattern of Size x Size texels.
	Image string `yaml:"image"`
	Size  int    `yaml:"size"`

	// Count is the number of resources streaming the same texture.
	Count int `yaml:"count"`

	// CacheMiB is the decoded tile cache of an image texture.
	CacheMiB int `yaml:"cache_mib"`
}

type tourConfig struct {
	Stops  int     `yaml:"stops"`
	Seed   uint64  `yaml:"seed"`
	Speed  float64 `yaml:"speed"`
	Height float64 `yaml:"height"`
	Focus  float64 `yaml:"focus"`
	Radius float64 `yaml:"radius"`
}

type managerConfig struct {
	NumSwapBuffers               int           `yaml:"num_swap_buffers"`
	MaxBatches                   int           `yaml:"max_batches"`
	MaxTileCopiesPerBatch        int           `yaml:"max_tile_copies_per_batch"`
	MaxTileCopiesInFlight        int           `yaml:"max_tile_copies_in_flight"`
	MaxTileMappingUpdatesPerCall int           `yaml:"max_tile_mapping_updates_per_call"`
	HeapSlots                    int           `yaml:"heap_slots"`
	PollInterval                 time.Duration `yaml:"poll_interval"`
}

type deviceConfig struct {
	Workers        int           `yaml:"workers"`
	CopyLatency    time.Duration `yaml:"copy_latency"`
	MappingLatency time.Duration `yaml:"mapping_latency"`
}

func defaults() simConfig {
	return simConfig{
		Backend:    backend.Reference,
		Frames:     600,
		GPULatency: 1,
		Texture:    textureConfig{Size: 16384, Count: 1, CacheMiB: 64},
		Tour:       tourConfig{Stops: 8, Seed: 1, Speed: 0.02, Height: 1, Focus: 2, Radius: 48},
		Manager:    managerConfig{HeapSlots: 2048},
		Device:     deviceConfig{CopyLatency: 2 * time.Millisecond, MappingLatency: time.Millisecond},
	}
}

func loadConfig(path string) (simConfig, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c simConfig) validate() error {
	switch {
	case c.Frames <= 0:
		return fmt.Errorf("frames must be positive, got %d", c.Frames)
	case c.GPULatency < 0:
		return fmt.Errorf("gpu_latency_frames must not be negative, got %d", c.GPULatency)
	case c.Texture.Image == "" && c.Texture.Size <= 0:
		return fmt.Errorf("texture.size must be positive without texture.image")
	case c.Texture.Count <= 0:
		return fmt.Errorf("texture.count must be positive, got %d", c.Texture.Count)
	case c.Tour.Stops < 2:
		return fmt.Errorf("tour.stops must be at least 2, got %d", c.Tour.Stops)
	case c.Tour.Focus <= 0:
		return fmt.Errorf("tour.focus must be positive, got %v", c.Tour.Focus)
	}
	return c.managerConfig().Validate()
}

func (c simConfig) managerConfig() tilestream.Config {
	m := c.Manager
	return tilestream.Config{
		NumSwapBuffers:               m.NumSwapBuffers,
		MaxBatches:                   m.MaxBatches,
		MaxTileCopiesPerBatch:        m.MaxTileCopiesPerBatch,
		MaxTileCopiesInFlight:        m.MaxTileCopiesInFlight,
		MaxTileMappingUpdatesPerCall: m.MaxTileMappingUpdatesPerCall,
		HeapSlots:                    m.HeapSlots,
		PollInterval:                 m.PollInterval,
		Backend: backend.Options{
			Workers:        c.Device.Workers,
			CopyLatency:    c.Device.CopyLatency,
			MappingLatency: c.Device.MappingLatency,
		},
	}
}
