package main

import (
	"math"
	"math/rand/v2"
	"slices"
)

type point struct{ X, Y float64 }

func (p point) dist(q point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// tour flies a camera over a texture through a loop of stops, in min-mip
// map columns.
type tour struct {
	stops []point
	mu    float64
	cfg   tourConfig
}

// newTour picks cfg.Stops random stops inside a w x h column grid and
// orders them nearest-first from the origin.
func newTour(cfg tourConfig, w, h uint32) *tour {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed))
	pending := make([]point, cfg.Stops)
	for i := range pending {
		pending[i] = point{X: rng.Float64() * float64(w), Y: rng.Float64() * float64(h)}
	}

	stops := make([]point, 0, len(pending))
	last := point{}
	for len(pending) > 0 {
		i := 0
		for j := range pending {
			if pending[j].dist(last) < pending[i].dist(last) {
				i = j
			}
		}
		last = pending[i]
		stops = append(stops, last)
		pending = slices.Delete(pending, i, i+1)
	}
	return &tour{stops: stops, cfg: cfg}
}

// advance moves the camera by delta frames and returns its position.
func (t *tour) advance(delta float64) point {
	t.mu += delta * t.cfg.Speed
	n := len(t.stops)
	i := int(math.Floor(t.mu)) % n
	f := t.mu - math.Floor(t.mu)

	// Ease in and out of each stop.
	f = (math.Sin(f*math.Pi-math.Pi/2) + 1) / 2

	p0 := t.stops[i]
	p1 := t.stops[(i+1)%n]
	p2 := t.stops[(i+2)%n]
	p3 := t.stops[(i+3)%n]
	return point{
		X: catmullRom(p0.X, p1.X, p2.X, p3.X, f),
		Y: catmullRom(p0.Y, p1.Y, p2.Y, p3.Y, f),
	}
}

func catmullRom(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return 0.5 * (2*p1 + (p2-p0)*t + (2*p0-5*p1+4*p2-p3)*t2 + (3*p1-p0-3*p2+p3)*t3)
}

// fillFeedback writes the desired mip of every column seen from cam. Detail
// falls off by one mip each time the distance, plus the camera height,
// doubles past Focus. Columns beyond Radius are not visible and want
// nothing.
func fillFeedback(fb []byte, w, h uint32, cam point, cfg tourConfig) {
	for y := range h {
		for x := range w {
			c := point{X: float64(x) + 0.5, Y: float64(y) + 0.5}
			d := c.dist(cam)
			i := y*w + x
			if cfg.Radius > 0 && d > cfg.Radius {
				fb[i] = 0xff
				continue
			}
			lod := math.Log2(1 + (d+cfg.Height)/cfg.Focus)
			fb[i] = byte(min(math.Floor(lod), 254))
		}
	}
}
