// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import "errors"

// Engine errors.
var (
	// ErrNilDevice is returned by New when no device is supplied.
	ErrNilDevice = errors.New("compute: device is nil")

	// ErrProgramContract is returned when a program descriptor does not
	// describe a single chunk-sized storage binding with an entry point.
	ErrProgramContract = errors.New("compute: program violates the chunk binding contract")

	// ErrDispatchInFlight is returned by Dispatch while a previous result
	// has not yet been drained by Poll.
	ErrDispatchInFlight = errors.New("compute: dispatch already in flight")

	// ErrMapFailed wraps a failed staging buffer mapping reported by Poll.
	// The engine stays usable after it.
	ErrMapFailed = errors.New("compute: staging buffer mapping failed")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("compute: engine is closed")
)

// Device errors shared by Device implementations.
var (
	// ErrMapCanceled is delivered to a map callback when the mapping is
	// canceled by Unmap or Release before it completes.
	ErrMapCanceled = errors.New("compute: buffer mapping canceled")

	// ErrMapPending is returned when a buffer already has a mapping
	// pending or active.
	ErrMapPending = errors.New("compute: buffer is already mapped or mapping is pending")

	// ErrNotMapped is returned when reading a buffer that is not mapped.
	ErrNotMapped = errors.New("compute: buffer is not mapped")

	// ErrReleased is returned when using a released resource.
	ErrReleased = errors.New("compute: resource has been released")
)
