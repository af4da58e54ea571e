package main

import (
	"github.com/gogpu/tilestream"
	"github.com/gogpu/tilestream/shader"
)

type streamed struct {
	res  *tilestream.Resource
	tour *tour
	fb   []byte
}

// simulation drives a Manager the way a renderer would: feedback is
// written every frame and becomes readable GPULatency frames later.
type simulation struct {
	m       *tilestream.Manager
	cfg     simConfig
	items   []*streamed
	gpuMap  []byte
	updates int
	bytes   int
}

type simSummary struct {
	ResidencyUploads int
	ResidencyBytes   int
	MeanLODClamp     float64
}

func newSimulation(m *tilestream.Manager, cfg simConfig) *simulation {
	return &simulation{m: m, cfg: cfg}
}

func (s *simulation) add(r *tilestream.Resource) {
	tc := s.cfg.Tour
	tc.Seed += uint64(len(s.items))
	w, h := r.MinMipMapWidth(), r.MinMipMapHeight()
	s.items = append(s.items, &streamed{
		res:  r,
		tour: newTour(tc, w, h),
		fb:   make([]byte, w*h),
	})
}

func (s *simulation) step(frame uint64) error {
	for _, it := range s.items {
		cam := it.tour.advance(1)
		fillFeedback(it.fb, it.res.MinMipMapWidth(), it.res.MinMipMapHeight(), cam, s.cfg.Tour)
		if err := it.res.QueueFeedback(it.fb, frame); err != nil {
			return err
		}
	}

	completed := uint64(0)
	if frame > uint64(s.cfg.GPULatency) {
		completed = frame - uint64(s.cfg.GPULatency)
	}
	if err := s.m.Update(completed); err != nil {
		return err
	}
	s.m.UpdateResidencyMap()
	s.upload()
	return nil
}

// upload mirrors the dirty ranges of the residency map into gpuMap, as a
// renderer would copy them into its GPU buffer.
func (s *simulation) upload() {
	if n := len(s.m.ResidencyMap()); len(s.gpuMap) != n {
		s.gpuMap = make([]byte, n)
	}
	s.m.ConsumeResidencyMapUpdates(func(off int, data []byte) {
		copy(s.gpuMap[off:], data)
		s.updates++
		s.bytes += len(data)
	})
}

func (s *simulation) summary() simSummary {
	s.upload()
	var sum float64
	var n int
	for _, it := range s.items {
		p := shader.Params{
			Offset: uint32(it.res.MinMipMapOffset()),
			Width:  it.res.MinMipMapWidth(),
			Height: it.res.MinMipMapHeight(),
			MaxMip: it.res.NumStandardMips(),
		}
		for _, c := range shader.LODClamps(s.gpuMap, p) {
			sum += float64(c)
			n++
		}
	}
	out := simSummary{ResidencyUploads: s.updates, ResidencyBytes: s.bytes}
	if n > 0 {
		out.MeanLODClamp = sum / float64(n)
	}
	return out
}
