// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

// Device is the subset of a WebGPU device the engine drives.
//
// Resource creation and command recording are synchronous. Buffer mapping is
// asynchronous: MapRead registers a callback that a later call to Poll
// invokes with the mapping outcome. Implementations may invoke map callbacks
// on any goroutine but never from inside MapRead itself.
type Device interface {
	// CreateStorageBuffer creates a buffer usable as a read-write storage
	// binding and as a copy source, initialized with contents.
	CreateStorageBuffer(label string, contents []byte) (Buffer, error)

	// CreateStagingBuffer creates a host-readable buffer of size bytes
	// that can be the destination of a buffer copy.
	CreateStagingBuffer(label string, size uint64) (Buffer, error)

	// CreateProgram compiles a compute program with a single storage
	// binding at group 0, binding 0.
	CreateProgram(desc *ProgramDescriptor) (Program, error)

	// CreateBindGroup binds buf at the given binding slot of the program's
	// layout.
	CreateBindGroup(label string, program Program, binding uint32, buf Buffer) (BindGroup, error)

	// CreateCommandEncoder starts recording commands.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit hands recorded commands to the device queue without waiting
	// for them to execute.
	Submit(cmd CommandBuffer) error

	// Poll services device events without blocking. Completed buffer
	// mappings invoke their callbacks from here.
	Poll()

	// Release destroys the device. Pending mappings are canceled.
	Release()
}

// Buffer is a device buffer.
type Buffer interface {
	// Size returns the buffer size in bytes.
	Size() uint64

	// MapRead requests an asynchronous read mapping of the whole buffer.
	// callback receives nil on success or the reason the mapping failed.
	MapRead(callback func(error)) error

	// MappedRange returns the mapped contents. The slice is valid until
	// Unmap.
	MappedRange() ([]byte, error)

	// Unmap ends a mapping. A pending mapping is canceled and its
	// callback receives ErrMapCanceled.
	Unmap() error

	// Release schedules the buffer for destruction once the device no
	// longer uses it.
	Release()
}

// Program is a compiled compute program.
type Program interface {
	// EntryPoint returns the name of the program's compute entry point.
	EntryPoint() string
	Release()
}

// BindGroup binds resources to a program's layout.
type BindGroup interface {
	Release()
}

// CommandEncoder records device commands.
type CommandEncoder interface {
	// Dispatch records a compute pass running program with bg bound at
	// group 0 over x*y*z workgroups.
	Dispatch(program Program, bg BindGroup, x, y, z uint32) error

	// CopyBufferToBuffer records a copy of size bytes from src to dst.
	CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset, size uint64) error

	// Finish ends recording. The encoder cannot be used afterwards.
	Finish() (CommandBuffer, error)

	// Discard abandons recording without producing a command buffer.
	// It is a no-op after Finish.
	Discard()
}

// CommandBuffer is a finished command recording.
type CommandBuffer interface {
	Release()
}

// ProgramDescriptor describes a compute program operating on one storage
// binding of BindingSize bytes.
type ProgramDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Source is the WGSL source of the program.
	Source string

	// EntryPoint names the compute entry point.
	EntryPoint string

	// BindingSize is the byte size of the storage binding at group 0,
	// binding 0.
	BindingSize uint64

	// Kernel is a Go rendition of the program used by devices that do not
	// execute WGSL, such as CPUDevice. It transforms the binding in place.
	Kernel func(binding []byte)
}
