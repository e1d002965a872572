// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package driver runs the frame loop around a compute engine.
//
// Every frame the driver services device events, dispatches the working
// chunk when the cadence is due, polls for a result and renders. None of
// these steps block: a dispatch that is still in flight when the next one
// is due is rejected and logged, and a result that takes longer than the
// configured timeout only produces a warning.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/sandbox/compute"
	"github.com/gogpu/sandbox/voxel"
)

// Engine is the compute surface the driver needs. *compute.Engine
// implements it.
type Engine interface {
	Dispatch(voxel.Chunk) error
	Poll() (voxel.Chunk, bool, error)
	ProcessEvents()
}

// Renderer draws one frame. Render errors wrapping wgpu.ErrSurfaceLost
// trigger Reconfigure; wgpu.ErrOutOfMemory and wgpu.ErrDeviceLost stop the
// loop; anything else is logged and retried next frame.
type Renderer interface {
	Render() error
	Reconfigure() error
}

// ResultHandler receives every chunk read back, with the frame it arrived in.
type ResultHandler func(frame uint64, c voxel.Chunk)

// Stats counts frame loop activity.
type Stats struct {
	Frames     uint64
	Dispatches uint64
	Rejected   uint64
	Results    uint64
	Changed    uint64
	Failures   uint64
	Timeouts   uint64
}

// Option configures a Driver.
type Option func(*options)

type options struct {
	renderer Renderer
	handler  ResultHandler
}

// WithRenderer sets the renderer called at the end of every frame.
func WithRenderer(r Renderer) Option {
	return func(o *options) {
		o.renderer = r
	}
}

// WithResultHandler sets the callback receiving results.
func WithResultHandler(h ResultHandler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// Driver is the frame loop. Frame and Run must be called from one
// goroutine; HandleKey may be called from any goroutine.
type Driver struct {
	engine   Engine
	cfg      Config
	renderer Renderer
	handler  ResultHandler

	seed voxel.Chunk
	work voxel.Chunk

	frame uint64

	// waiting is set from a successful dispatch until its outcome is polled.
	waiting bool
	since   uint64
	warned  bool

	lastSum uint64
	haveSum bool

	exit   atomic.Bool
	reseed atomic.Bool

	stats Stats
}

// New creates a driver for engine. cfg is validated.
func New(engine Engine, cfg Config, opts ...Option) (*Driver, error) {
	if engine == nil {
		return nil, errors.New("driver: engine is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed, err := cfg.SeedChunk()
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return &Driver{
		engine:   engine,
		cfg:      cfg,
		renderer: o.renderer,
		handler:  o.handler,
		seed:     seed,
		work:     seed,
	}, nil
}

// Frame runs one frame: process events, dispatch when due, poll, hand a
// result to the handler, render. It returns an error only when the loop
// must stop.
func (d *Driver) Frame() error {
	f := d.frame
	d.frame++
	d.stats.Frames++

	d.engine.ProcessEvents()

	if d.reseed.Swap(false) {
		d.work = d.seed
		slogger().Info("driver: chunk reseeded", "frame", f)
	}

	if f%uint64(d.cfg.DispatchEvery) == 0 {
		d.dispatch(f)
	}

	if err := d.poll(f); err != nil {
		return err
	}

	return d.render()
}

func (d *Driver) dispatch(f uint64) {
	err := d.engine.Dispatch(d.work)
	switch {
	case err == nil:
		d.stats.Dispatches++
		d.waiting = true
		d.since = f
		d.warned = false
		slogger().Debug("driver: dispatched", "frame", f)
	case errors.Is(err, compute.ErrDispatchInFlight):
		d.stats.Rejected++
		slogger().Warn("driver: dispatch rejected", "frame", f, "pending_since", d.since)
	default:
		d.stats.Failures++
		slogger().Warn("driver: dispatch failed", "frame", f, "err", err)
	}
}

func (d *Driver) poll(f uint64) error {
	c, ok, err := d.engine.Poll()
	switch {
	case err != nil:
		d.waiting = false
		d.stats.Failures++
		if errors.Is(err, voxel.ErrIntegrity) || errors.Is(err, compute.ErrClosed) {
			return fmt.Errorf("driver: frame %d: %w", f, err)
		}
		slogger().Warn("driver: result failed", "frame", f, "err", err)
	case ok:
		d.waiting = false
		d.stats.Results++
		sum := c.Sum64()
		changed := !d.haveSum || sum != d.lastSum
		if changed {
			d.stats.Changed++
		}
		d.lastSum, d.haveSum = sum, true
		slogger().Info("driver: result",
			"frame", f,
			"latency_frames", f-d.since,
			"sand", c.Count(voxel.Sand),
			"changed", changed)
		if d.cfg.Feedback {
			d.work = c
		}
		if d.handler != nil {
			d.handler(f, c)
		}
	case d.waiting && !d.warned && d.cfg.ResultTimeoutFrames > 0 &&
		f-d.since >= uint64(d.cfg.ResultTimeoutFrames):
		d.warned = true
		d.stats.Timeouts++
		slogger().Warn("driver: result overdue", "frame", f, "dispatched", d.since)
	}
	return nil
}

func (d *Driver) render() error {
	if d.renderer == nil {
		return nil
	}
	err := d.renderer.Render()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wgpu.ErrSurfaceLost):
		slogger().Info("driver: surface lost, reconfiguring")
		if rerr := d.renderer.Reconfigure(); rerr != nil {
			slogger().Warn("driver: reconfigure failed", "err", rerr)
		}
		return nil
	case errors.Is(err, wgpu.ErrOutOfMemory), errors.Is(err, wgpu.ErrDeviceLost):
		return fmt.Errorf("driver: render: %w", err)
	default:
		slogger().Warn("driver: render failed", "err", err)
		return nil
	}
}

// Run calls Frame until ctx is done, the frame budget is reached, exit is
// requested or a frame fails. It returns nil on a clean exit.
func (d *Driver) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if d.cfg.FrameRate > 0 {
		t := time.NewTicker(time.Second / time.Duration(d.cfg.FrameRate))
		defer t.Stop()
		tick = t.C
	}

	slogger().Info("driver: running",
		"dispatch_every", d.cfg.DispatchEvery,
		"frames", d.cfg.Frames,
		"frame_rate", d.cfg.FrameRate,
		"feedback", d.cfg.Feedback)

	for {
		if d.cfg.Frames > 0 && d.frame >= uint64(d.cfg.Frames) {
			return nil
		}
		if d.exit.Load() {
			slogger().Info("driver: exit requested", "frame", d.frame)
			return nil
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		if err := d.Frame(); err != nil {
			return err
		}
	}
}

// HandleKey reacts to a key press: Escape requests exit, F11 is logged
// and R reseeds the working chunk. It reports whether the key was handled.
func (d *Driver) HandleKey(key gpucontext.Key, _ gpucontext.Modifiers) bool {
	switch key {
	case gpucontext.KeyEscape:
		d.exit.Store(true)
	case gpucontext.KeyF11:
		slogger().Info("driver: fullscreen toggle requested")
	case gpucontext.KeyR:
		d.reseed.Store(true)
	default:
		return false
	}
	return true
}

// Attach registers HandleKey for key presses from src.
func (d *Driver) Attach(src gpucontext.EventSource) {
	src.OnKeyPress(func(key gpucontext.Key, mods gpucontext.Modifiers) {
		d.HandleKey(key, mods)
	})
}

// Exiting reports whether exit was requested.
func (d *Driver) Exiting() bool { return d.exit.Load() }

// Working returns the chunk the next dispatch sends.
func (d *Driver) Working() voxel.Chunk { return d.work }

// Stats returns the frame loop counters.
func (d *Driver) Stats() Stats { return d.stats }
