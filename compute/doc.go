// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package compute runs a compute program over a voxel chunk and reads the
// result back without blocking the caller.
//
// An [Engine] owns one compiled program, one host-readable staging buffer
// sized exactly one chunk, and a completion channel with capacity one.
// [Engine.Dispatch] uploads a chunk, records a single-workgroup dispatch
// followed by a copy into the staging buffer, submits the work and requests
// an asynchronous read mapping. The device reports the mapping outcome
// through a callback that runs inside device event processing; the callback
// only performs a non-blocking send on the channel. [Engine.Poll] performs a
// non-blocking receive once per frame and turns a completed mapping into a
// [voxel.Chunk].
//
// At most one dispatch is in flight. A dispatch issued before the previous
// result has been drained by Poll is rejected with [ErrDispatchInFlight].
//
// The engine drives a [Device], the small slice of a WebGPU device it needs.
// internal/gpu implements Device on github.com/gogpu/wgpu; [CPUDevice] is a
// reference implementation that executes programs through Go kernels.
//
// Typical frame loop:
//
//	for {
//	    if frame%every == 0 {
//	        if err := eng.Dispatch(chunk); err != nil && !errors.Is(err, compute.ErrDispatchInFlight) {
//	            return err
//	        }
//	    }
//	    eng.ProcessEvents()
//	    result, ok, err := eng.Poll()
//	    ...
//	}
package compute
