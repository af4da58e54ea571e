package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/gogpu/gputypes"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/gogpu/tilestream/tile"
	"github.com/gogpu/tilestream/tilefile"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openSource returns the texture to stream: a tile container built from
// cfg.Image in dir, or a generated pattern.
func openSource(cfg textureConfig, dir string) (tile.Source, io.Closer, error) {
	if cfg.Image == "" {
		l, err := tile.NewLayout(gputypes.TextureFormatRGBA8Unorm,
			gputypes.NewExtent2D(uint32(cfg.Size), uint32(cfg.Size)), 0)
		if err != nil {
			return nil, nil, err
		}
		return tile.NewPattern(l), nopCloser{}, nil
	}

	img, err := decodeImage(cfg.Image)
	if err != nil {
		return nil, nil, err
	}
	path := filepath.Join(dir, filepath.Base(cfg.Image)+".tstf")
	if err := buildFile(path, img); err != nil {
		return nil, nil, err
	}
	r, err := tilefile.OpenFile(path, tilefile.WithCacheBytes(int64(cfg.CacheMiB)<<20))
	if err != nil {
		return nil, nil, err
	}
	return r, r, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	logger.Info("image decoded", "path", path, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, nil
}

func buildFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tilefile.Build(f, img, tilefile.BuildOptions{}); err != nil {
		f.Close()
		return fmt.Errorf("build %s: %w", path, err)
	}
	return f.Close()
}
