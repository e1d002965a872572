// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/sandbox/voxel"
)

// Stats counts engine activity since creation.
type Stats struct {
	// Dispatched is the number of dispatches submitted to the device.
	Dispatched uint64
	// Completed is the number of results returned by Poll.
	Completed uint64
	// Failed is the number of polls that returned a mapping or integrity error.
	Failed uint64
	// Rejected is the number of dispatches refused with ErrDispatchInFlight.
	Rejected uint64
	// Dropped is the number of completions discarded because the
	// channel was full.
	Dropped uint64
}

// Engine dispatches a compute program over chunks and reads results back
// asynchronously. See the package documentation for the protocol.
//
// Dispatch, Poll and ProcessEvents are meant to be called from a single
// frame loop goroutine. Map callbacks may run on any goroutine.
type Engine struct {
	device  Device
	program Program
	staging Buffer
	label   string

	// done carries one mapping outcome: nil for success.
	done chan error

	inFlight atomic.Bool

	closeOnce sync.Once
	closed    atomic.Bool

	dispatched atomic.Uint64
	completed  atomic.Uint64
	failed     atomic.Uint64
	rejected   atomic.Uint64
	dropped    atomic.Uint64
}

// New creates an engine for the program described by desc on device.
//
// The program's binding must be exactly one chunk in size.
func New(device Device, desc *ProgramDescriptor) (*Engine, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: descriptor is nil", ErrProgramContract)
	}
	if desc.EntryPoint == "" {
		return nil, fmt.Errorf("%w: entry point is empty", ErrProgramContract)
	}
	if desc.BindingSize != voxel.Size {
		return nil, fmt.Errorf("%w: binding size %d, want %d",
			ErrProgramContract, desc.BindingSize, voxel.Size)
	}

	label := desc.Label
	if label == "" {
		label = desc.EntryPoint
	}

	program, err := device.CreateProgram(desc)
	if err != nil {
		return nil, fmt.Errorf("compute: create program %q: %w", label, err)
	}

	staging, err := device.CreateStagingBuffer(label+" staging", voxel.Size)
	if err != nil {
		program.Release()
		return nil, fmt.Errorf("compute: create staging buffer: %w", err)
	}

	slogger().Info("compute: engine created",
		"program", label,
		"entry_point", program.EntryPoint(),
		"chunk_bytes", voxel.Size)

	return &Engine{
		device:  device,
		program: program,
		staging: staging,
		label:   label,
		done:    make(chan error, 1),
	}, nil
}

// Dispatch submits the program over c and requests a read mapping of the
// result. It never waits for the device.
//
// Dispatch returns ErrDispatchInFlight while a previous result has not been
// drained by Poll. Any other error leaves the engine idle and usable.
func (e *Engine) Dispatch(c voxel.Chunk) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		e.rejected.Add(1)
		return ErrDispatchInFlight
	}
	if err := e.submit(&c); err != nil {
		e.inFlight.Store(false)
		return err
	}
	e.dispatched.Add(1)
	slogger().Debug("compute: dispatched", "program", e.label, "sand", c.Count(voxel.Sand))
	return nil
}

// submit records and submits one dispatch. Transient resources are
// released on every path; the device keeps them alive while in use.
func (e *Engine) submit(c *voxel.Chunk) error {
	storage, err := e.device.CreateStorageBuffer(e.label+" voxels", c.Bytes())
	if err != nil {
		return fmt.Errorf("compute: create storage buffer: %w", err)
	}
	defer storage.Release()

	bg, err := e.device.CreateBindGroup(e.label+" bind group", e.program, 0, storage)
	if err != nil {
		return fmt.Errorf("compute: create bind group: %w", err)
	}
	defer bg.Release()

	enc, err := e.device.CreateCommandEncoder(e.label + " encoder")
	if err != nil {
		return fmt.Errorf("compute: create command encoder: %w", err)
	}
	if err := enc.Dispatch(e.program, bg, 1, 1, 1); err != nil {
		enc.Discard()
		return fmt.Errorf("compute: record dispatch: %w", err)
	}
	if err := enc.CopyBufferToBuffer(storage, 0, e.staging, 0, voxel.Size); err != nil {
		enc.Discard()
		return fmt.Errorf("compute: record readback copy: %w", err)
	}
	cmd, err := enc.Finish()
	if err != nil {
		return fmt.Errorf("compute: finish commands: %w", err)
	}
	defer cmd.Release()

	if err := e.device.Submit(cmd); err != nil {
		return fmt.Errorf("compute: submit: %w", err)
	}
	if err := e.staging.MapRead(e.complete); err != nil {
		return fmt.Errorf("compute: map staging buffer: %w", err)
	}
	return nil
}

// complete is the staging buffer map callback.
func (e *Engine) complete(status error) {
	select {
	case e.done <- status:
	default:
		e.dropped.Add(1)
		slogger().Warn("compute: completion dropped", "program", e.label, "status", status)
	}
}

// ProcessEvents services device events so that pending mappings complete.
// The frame loop calls it once per frame.
func (e *Engine) ProcessEvents() {
	if e.closed.Load() {
		return
	}
	e.device.Poll()
}

// Poll returns the result of the in-flight dispatch if its mapping has
// completed. It never waits.
//
// With nothing completed Poll returns (Chunk{}, false, nil). A failed
// mapping returns an error wrapping ErrMapFailed; the engine stays usable.
// Device data that is not a valid chunk returns an error wrapping
// voxel.ErrIntegrity. The staging buffer is unmapped and the engine
// accepts a new dispatch on every path that consumed a completion.
func (e *Engine) Poll() (voxel.Chunk, bool, error) {
	if e.closed.Load() {
		return voxel.Chunk{}, false, ErrClosed
	}

	var status error
	select {
	case status = <-e.done:
	default:
		return voxel.Chunk{}, false, nil
	}
	defer e.inFlight.Store(false)

	if status != nil {
		e.failed.Add(1)
		slogger().Warn("compute: buffer error", "program", e.label, "err", status)
		return voxel.Chunk{}, false, fmt.Errorf("%w: %w", ErrMapFailed, status)
	}

	c, err := e.readStaging()
	if err != nil {
		e.failed.Add(1)
		slogger().Error("compute: readback rejected", "program", e.label, "err", err)
		return voxel.Chunk{}, false, err
	}
	e.completed.Add(1)
	return c, true, nil
}

// readStaging decodes the mapped staging buffer and unmaps it.
func (e *Engine) readStaging() (c voxel.Chunk, err error) {
	defer func() {
		if uerr := e.staging.Unmap(); uerr != nil && err == nil {
			err = fmt.Errorf("compute: unmap staging buffer: %w", uerr)
		}
	}()

	data, err := e.staging.MappedRange()
	if err != nil {
		return voxel.Chunk{}, fmt.Errorf("compute: read staging buffer: %w", err)
	}
	return voxel.FromBytes(data)
}

// InFlight reports whether a dispatch is awaiting Poll.
func (e *Engine) InFlight() bool { return e.inFlight.Load() }

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Dispatched: e.dispatched.Load(),
		Completed:  e.completed.Load(),
		Failed:     e.failed.Load(),
		Rejected:   e.rejected.Load(),
		Dropped:    e.dropped.Load(),
	}
}

// Close releases the program and the staging buffer. A pending mapping is
// canceled and its outcome discarded. Close does not release the device.
// It is safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.inFlight.Load() {
			// Cancels a pending map; an already mapped buffer is unmapped.
			_ = e.staging.Unmap()
		}
		e.staging.Release()
		e.program.Release()
		slogger().Info("compute: engine closed", "program", e.label, "dispatched", e.dispatched.Load())
	})
}
