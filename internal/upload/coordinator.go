// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package upload drives update lists from submission to completion.
//
// The Coordinator owns the batch pool and two goroutines. The submit
// goroutine issues mapping updates and starts streaming for newly
// submitted lists. The fence monitor advances in-flight lists as mapping
// fences and copies complete, delivers notifications to the owning
// resource and frees the lists.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/tilestream/backend"
	"github.com/gogpu/tilestream/batch"
)

// ErrStopped is returned by Finish after Stop.
var ErrStopped = errors.New("upload: coordinator stopped")

// Config controls batching and polling.
type Config struct {
	// PoolSize is the number of update lists.
	PoolSize int

	// MaxTileCopiesPerBatch bounds the loads of one list.
	MaxTileCopiesPerBatch int

	// MaxTileCopiesInFlight bounds loads across all submitted lists.
	MaxTileCopiesInFlight int

	// MaxMappingUpdatesPerCall bounds the coordinates passed to one Map or
	// Unmap call.
	MaxMappingUpdatesPerCall int

	// PollInterval is the fence monitor period while work is in flight.
	PollInterval time.Duration
}

// Stats are cumulative counters, readable from any goroutine.
type Stats struct {
	// TilesUploaded counts standard tiles whose copy completed.
	TilesUploaded uint64

	// TilesEvicted counts completed unmaps.
	TilesEvicted uint64

	// PackedMipsLoaded counts completed packed-mip requests.
	PackedMipsLoaded uint64

	// BatchesCompleted counts lists returned to the pool after completion.
	BatchesCompleted uint64

	// MappingFence is the last mapping fence signalled.
	MappingFence uint64

	// CopiesInFlight is the number of submitted loads not yet complete.
	CopiesInFlight int

	// BatchesInFlight is the number of lists that are not Free.
	BatchesInFlight int
}

// Coordinator moves update lists through the upload pipeline.
type Coordinator struct {
	cfg  Config
	be   backend.Backend
	pool *batch.Pool

	submitSignal  chan struct{}
	monitorSignal chan struct{}

	// nextFence is owned by the submit goroutine.
	nextFence uint64

	copiesInFlight atomic.Int64
	uploaded       atomic.Uint64
	evicted        atomic.Uint64
	packed         atomic.Uint64
	completed      atomic.Uint64
	lastFence      atomic.Uint64

	errOnce sync.Once
	err     atomic.Pointer[error]

	cancel  context.CancelFunc
	group   *errgroup.Group
	stopped atomic.Bool
}

// New creates a coordinator. Call Start to run its goroutines.
func New(cfg Config, be backend.Backend) *Coordinator {
	return &Coordinator{
		cfg:           cfg,
		be:            be,
		pool:          batch.NewPool(cfg.PoolSize),
		submitSignal:  make(chan struct{}, 1),
		monitorSignal: make(chan struct{}, 1),
		nextFence:     1,
	}
}

// Start launches the submit and fence monitor goroutines. They run until
// ctx is cancelled, Stop is called or the backend fails.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.group, ctx = errgroup.WithContext(ctx)
	c.group.Go(func() error { return c.submitLoop(ctx) })
	c.group.Go(func() error { return c.monitorLoop(ctx) })
	slogger().Info("upload: coordinator started",
		"batches", c.cfg.PoolSize,
		"copies_per_batch", c.cfg.MaxTileCopiesPerBatch)
}

// Stop terminates the goroutines and waits for them. Lists still in
// flight are abandoned. Stop returns the backend error that ended the
// pipeline, if any. Safe to call more than once.
func (c *Coordinator) Stop() error {
	if c.stopped.CompareAndSwap(false, true) && c.cancel != nil {
		c.cancel()
		_ = c.group.Wait()
		slogger().Info("upload: coordinator stopped")
	}
	return c.Err()
}

// Err returns the first backend error, or nil.
func (c *Coordinator) Err() error {
	if p := c.err.Load(); p != nil {
		return *p
	}
	return nil
}

func (c *Coordinator) fail(err error) error {
	c.errOnce.Do(func() {
		c.err.Store(&err)
		slogger().Error("upload: backend failure", "err", err)
	})
	return err
}

// Allocate claims an update list for owner, or returns nil when none is
// free.
func (c *Coordinator) Allocate(owner batch.Owner) *batch.UpdateList {
	return c.pool.Allocate(owner)
}

// Submit hands a filled list to the submit goroutine.
func (c *Coordinator) Submit(ul *batch.UpdateList) {
	c.copiesInFlight.Add(int64(ul.NumLoads()))
	ul.Transition(batch.Allocated, batch.Submitted)
	notify(c.submitSignal)
	notify(c.monitorSignal)
}

// FreeEmpty returns an allocated list that carries no work.
func (c *Coordinator) FreeEmpty(ul *batch.UpdateList) {
	c.pool.FreeEmpty(ul)
}

// MaxLoads returns how many loads the next list may carry, honouring both
// the per-batch and the in-flight limits.
func (c *Coordinator) MaxLoads() int {
	budget := c.cfg.MaxTileCopiesInFlight - int(c.copiesInFlight.Load())
	return max(min(c.cfg.MaxTileCopiesPerBatch, budget), 0)
}

// Idle reports whether every list is Free.
func (c *Coordinator) Idle() bool {
	return c.pool.Idle()
}

// Finish blocks until every list is Free, the pipeline fails or ctx is
// done.
func (c *Coordinator) Finish(ctx context.Context) error {
	ticker := time.NewTicker(max(c.cfg.PollInterval, time.Millisecond))
	defer ticker.Stop()

	for {
		if err := c.Err(); err != nil {
			return err
		}
		if c.pool.Idle() {
			return nil
		}
		if c.stopped.Load() {
			return ErrStopped
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats returns a snapshot of the counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		TilesUploaded:    c.uploaded.Load(),
		TilesEvicted:     c.evicted.Load(),
		PackedMipsLoaded: c.packed.Load(),
		BatchesCompleted: c.completed.Load(),
		MappingFence:     c.lastFence.Load(),
		CopiesInFlight:   int(c.copiesInFlight.Load()),
		BatchesInFlight:  c.pool.Outstanding(),
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// =============================================================================
// Submit goroutine
// =============================================================================

func (c *Coordinator) submitLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.submitSignal:
		}
		if err := c.submitPass(); err != nil {
			return c.fail(err)
		}
	}
}

// submitPass advances every Submitted list and signals one mapping fence
// covering all of them.
func (c *Coordinator) submitPass() error {
	fence := c.nextFence
	advanced := 0

	for i := range c.pool.Len() {
		ul := c.pool.At(i)
		if ul.State() != batch.Submitted {
			continue
		}
		if err := c.submitList(ul, fence); err != nil {
			return err
		}
		advanced++
	}

	if advanced == 0 {
		return nil
	}
	if err := c.be.SignalFence(fence); err != nil {
		return fmt.Errorf("upload: signal fence %d: %w", fence, err)
	}
	c.lastFence.Store(fence)
	c.nextFence++
	notify(c.monitorSignal)

	slogger().Debug("upload: submit pass", "batches", advanced, "fence", fence)
	return nil
}

func (c *Coordinator) submitList(ul *batch.UpdateList, fence uint64) error {
	tex := ul.Texture()
	ul.MappingFence = fence

	chunk := max(c.cfg.MaxMappingUpdatesPerCall, 1)
	for start := 0; start < len(ul.Evictions); start += chunk {
		end := min(start+chunk, len(ul.Evictions))
		if err := c.be.Unmap(tex, ul.Evictions[start:end]); err != nil {
			return fmt.Errorf("upload: unmap texture %d: %w", tex.ID, err)
		}
	}

	switch {
	case ul.NumLoads() > 0:
		for start := 0; start < len(ul.Coords); start += chunk {
			end := min(start+chunk, len(ul.Coords))
			if err := c.be.Map(tex, ul.Coords[start:end], ul.Slots[start:end]); err != nil {
				return fmt.Errorf("upload: map texture %d: %w", tex.ID, err)
			}
		}
		if err := c.be.StreamLoads(ul); err != nil {
			return fmt.Errorf("upload: stream texture %d: %w", tex.ID, err)
		}
		ul.Transition(batch.Submitted, batch.Uploading)

	case !ul.HasPackedMips():
		ul.Transition(batch.Submitted, batch.CopyPending)

	default:
		if err := c.be.MapPacked(tex, ul.PackedSlots); err != nil {
			return fmt.Errorf("upload: map packed mips of texture %d: %w", tex.ID, err)
		}
		ul.Transition(batch.Submitted, batch.PackedMapping)
	}
	return nil
}

// =============================================================================
// Fence monitor goroutine
// =============================================================================

func (c *Coordinator) monitorLoop(ctx context.Context) error {
	poll := max(c.cfg.PollInterval, time.Microsecond)
	timer := time.NewTimer(poll)
	defer timer.Stop()

	for {
		if err := c.monitorPass(); err != nil {
			return c.fail(err)
		}

		if c.pool.Idle() {
			select {
			case <-ctx.Done():
				return nil
			case <-c.monitorSignal:
			}
			continue
		}

		timer.Reset(poll)
		select {
		case <-ctx.Done():
			return nil
		case <-c.monitorSignal:
		case <-timer.C:
		}
	}
}

func (c *Coordinator) monitorPass() error {
	completedFence := c.be.CompletedFence()
	uploads := false

	for i := range c.pool.Len() {
		ul := c.pool.At(i)
		switch ul.State() {
		case batch.PackedMapping:
			if completedFence < ul.MappingFence {
				continue
			}
			if err := c.be.StreamPackedMips(ul); err != nil {
				return fmt.Errorf("upload: stream packed mips of texture %d: %w", ul.Texture().ID, err)
			}
			ul.Transition(batch.PackedMapping, batch.Uploading)

		case batch.Uploading:
			if ul.CopyIssued() {
				ul.Transition(batch.Uploading, batch.CopyPending)
				uploads = true
			}

		case batch.CopyPending:
			done, err := c.listComplete(ul, completedFence)
			if err != nil {
				return err
			}
			if done {
				c.complete(ul)
			}
		}
	}

	if uploads {
		c.be.SignalUpload()
	}
	return nil
}

// listComplete reports whether every mapping and copy of ul has finished.
func (c *Coordinator) listComplete(ul *batch.UpdateList, completedFence uint64) (bool, error) {
	if completedFence < ul.MappingFence {
		return false, nil
	}
	if ul.NumLoads() == 0 && !ul.HasPackedMips() {
		return true, nil
	}
	done, err := c.be.Completed(ul)
	if err != nil {
		return false, fmt.Errorf("upload: copy for texture %d: %w", ul.Texture().ID, err)
	}
	return done, nil
}

func (c *Coordinator) complete(ul *batch.UpdateList) {
	owner := ul.Owner()
	if n := ul.NumEvictions(); n > 0 {
		owner.NotifyEvicted(ul.Evictions)
		c.evicted.Add(uint64(n))
	}
	if n := ul.NumLoads(); n > 0 {
		owner.NotifyCopyComplete(ul.Coords)
		c.uploaded.Add(uint64(n))
		c.copiesInFlight.Add(-int64(n))
	}
	if ul.HasPackedMips() {
		owner.NotifyPackedMips()
		c.packed.Add(1)
	}
	c.completed.Add(1)
	c.pool.Free(ul)
}
