// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"errors"
	"fmt"
	"sync"
)

// CPU device errors.
var (
	// ErrNoKernel is returned by CPUDevice.CreateProgram for programs
	// without a Go kernel.
	ErrNoKernel = errors.New("compute: program has no CPU kernel")

	// ErrForeignResource is returned when a resource created by another
	// device is passed to a CPUDevice.
	ErrForeignResource = errors.New("compute: resource belongs to another device")

	// ErrBufferUsage is returned when a buffer is used in a way its
	// creation did not allow.
	ErrBufferUsage = errors.New("compute: buffer usage mismatch")
)

// MapState is the mapping state of a CPU buffer.
type MapState int

const (
	// MapStateUnmapped means the buffer is not mapped.
	MapStateUnmapped MapState = iota
	// MapStatePending means a map operation is pending.
	MapStatePending
	// MapStateMapped means the buffer is mapped.
	MapStateMapped
)

// String returns the string representation of MapState.
func (s MapState) String() string {
	switch s {
	case MapStateUnmapped:
		return "Unmapped"
	case MapStatePending:
		return "Pending"
	case MapStateMapped:
		return "Mapped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// FaultFunc inspects a buffer about to complete a read mapping. It may
// modify data in place or return an error to fail the mapping.
type FaultFunc func(mapping int, data []byte) error

// CPUOption configures a CPUDevice.
type CPUOption func(*CPUDevice)

// WithLatency delays every read mapping by polls calls to Poll. The
// default of zero completes a mapping on the first Poll after it was
// requested.
func WithLatency(polls int) CPUOption {
	return func(d *CPUDevice) {
		if polls < 0 {
			polls = 0
		}
		d.latency = polls
	}
}

// WithFault installs f to run before each read mapping completes.
// mapping counts completed mappings from zero.
func WithFault(f FaultFunc) CPUOption {
	return func(d *CPUDevice) {
		d.fault = f
	}
}

// CPUDevice executes programs on the host through their Go kernels.
//
// Work runs at Submit. Read mappings complete only from Poll, mirroring a
// GPU whose map callbacks fire during device event processing. CPUDevice
// is safe for concurrent use.
type CPUDevice struct {
	mu       sync.Mutex
	latency  int
	fault    FaultFunc
	pending  []*cpuBuffer
	mappings int
	released bool
}

// NewCPUDevice creates a CPU device.
func NewCPUDevice(opts ...CPUOption) *CPUDevice {
	d := &CPUDevice{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateStorageBuffer implements Device.
func (d *CPUDevice) CreateStorageBuffer(label string, contents []byte) (Buffer, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("compute: storage buffer %q: size is 0", label)
	}
	data := make([]byte, len(contents))
	copy(data, contents)
	return &cpuBuffer{device: d, label: label, data: data}, nil
}

// CreateStagingBuffer implements Device.
func (d *CPUDevice) CreateStagingBuffer(label string, size uint64) (Buffer, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, fmt.Errorf("compute: staging buffer %q: size is 0", label)
	}
	return &cpuBuffer{device: d, label: label, data: make([]byte, size), mappable: true}, nil
}

// CreateProgram implements Device. The WGSL source is not compiled; the
// program runs desc.Kernel.
func (d *CPUDevice) CreateProgram(desc *ProgramDescriptor) (Program, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: descriptor is nil", ErrProgramContract)
	}
	if desc.Kernel == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoKernel, desc.Label)
	}
	return &cpuProgram{device: d, desc: *desc}, nil
}

// CreateBindGroup implements Device.
func (d *CPUDevice) CreateBindGroup(label string, program Program, binding uint32, buf Buffer) (BindGroup, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	p, ok := program.(*cpuProgram)
	if !ok || p.device != d {
		return nil, fmt.Errorf("%w: program", ErrForeignResource)
	}
	b, ok := buf.(*cpuBuffer)
	if !ok || b.device != d {
		return nil, fmt.Errorf("%w: buffer", ErrForeignResource)
	}
	if binding != 0 {
		return nil, fmt.Errorf("compute: bind group %q: no binding %d in layout", label, binding)
	}
	if b.mappable {
		return nil, fmt.Errorf("%w: %q is not a storage buffer", ErrBufferUsage, b.label)
	}
	if b.Size() != p.desc.BindingSize {
		return nil, fmt.Errorf("compute: bind group %q: buffer size %d, binding size %d",
			label, b.Size(), p.desc.BindingSize)
	}
	return &cpuBindGroup{program: p, buffer: b}, nil
}

// CreateCommandEncoder implements Device.
func (d *CPUDevice) CreateCommandEncoder(string) (CommandEncoder, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	return &cpuEncoder{device: d}, nil
}

// Submit implements Device. Recorded commands execute before Submit
// returns.
func (d *CPUDevice) Submit(cmd CommandBuffer) error {
	if err := d.alive(); err != nil {
		return err
	}
	cb, ok := cmd.(*cpuCommandBuffer)
	if !ok || cb.device != d {
		return fmt.Errorf("%w: command buffer", ErrForeignResource)
	}
	if cb.submitted {
		return errors.New("compute: command buffer already submitted")
	}
	cb.submitted = true
	for _, op := range cb.ops {
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}

// Poll implements Device. Mappings whose latency has elapsed complete and
// their callbacks run on the calling goroutine.
func (d *CPUDevice) Poll() {
	d.mu.Lock()
	var ready []*cpuBuffer
	keep := d.pending[:0]
	for _, b := range d.pending {
		if b.wait > 0 {
			b.wait--
			keep = append(keep, b)
			continue
		}
		ready = append(ready, b)
	}
	d.pending = keep
	fault := d.fault
	d.mu.Unlock()

	for _, b := range ready {
		b.resolve(d.nextMapping(), fault)
	}
}

// Pending returns the number of read mappings awaiting Poll.
func (d *CPUDevice) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Release implements Device. Pending mappings are canceled.
func (d *CPUDevice) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.released = true
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, b := range pending {
		b.cancel(ErrMapCanceled)
	}
}

func (d *CPUDevice) alive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	return nil
}

func (d *CPUDevice) nextMapping() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.mappings
	d.mappings++
	return n
}

func (d *CPUDevice) enqueue(b *cpuBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b.wait = d.latency
	d.pending = append(d.pending, b)
}

func (d *CPUDevice) dequeue(b *cpuBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, p := range d.pending {
		if p == b {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			return
		}
	}
}

// cpuBuffer is a host-memory buffer with the WebGPU mapping state machine.
type cpuBuffer struct {
	device   *CPUDevice
	label    string
	mappable bool

	// mu protects the fields below.
	mu       sync.Mutex
	data     []byte
	state    MapState
	callback func(error)
	wait     int // guarded by device.mu
	released bool
}

func (b *cpuBuffer) Size() uint64 { return uint64(len(b.data)) }

// MapState returns the current mapping state.
func (b *cpuBuffer) MapState() MapState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *cpuBuffer) MapRead(callback func(error)) error {
	if callback == nil {
		return errors.New("compute: map callback is nil")
	}
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return ErrReleased
	}
	if !b.mappable {
		b.mu.Unlock()
		return fmt.Errorf("%w: %q is not mappable", ErrBufferUsage, b.label)
	}
	if b.state != MapStateUnmapped {
		b.mu.Unlock()
		return ErrMapPending
	}
	b.state = MapStatePending
	b.callback = callback
	b.mu.Unlock()

	b.device.enqueue(b)
	return nil
}

// resolve completes a pending mapping and invokes its callback outside
// the lock.
func (b *cpuBuffer) resolve(mapping int, fault FaultFunc) {
	b.mu.Lock()
	if b.state != MapStatePending {
		b.mu.Unlock()
		return
	}
	var err error
	if fault != nil {
		err = fault(mapping, b.data)
	}
	if err != nil {
		b.state = MapStateUnmapped
	} else {
		b.state = MapStateMapped
	}
	callback := b.callback
	b.callback = nil
	b.mu.Unlock()

	callback(err)
}

// cancel aborts a pending mapping with err.
func (b *cpuBuffer) cancel(err error) {
	b.mu.Lock()
	if b.state != MapStatePending {
		b.mu.Unlock()
		return
	}
	b.state = MapStateUnmapped
	callback := b.callback
	b.callback = nil
	b.mu.Unlock()

	callback(err)
}

func (b *cpuBuffer) MappedRange() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrReleased
	}
	if b.state != MapStateMapped {
		return nil, fmt.Errorf("%w: state %v", ErrNotMapped, b.state)
	}
	return b.data, nil
}

func (b *cpuBuffer) Unmap() error {
	b.mu.Lock()
	switch {
	case b.released:
		b.mu.Unlock()
		return ErrReleased
	case b.state == MapStatePending:
		b.mu.Unlock()
		b.device.dequeue(b)
		b.cancel(ErrMapCanceled)
		return nil
	case b.state == MapStateUnmapped:
		b.mu.Unlock()
		return ErrNotMapped
	}
	b.state = MapStateUnmapped
	b.mu.Unlock()
	return nil
}

func (b *cpuBuffer) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	pending := b.state == MapStatePending
	b.mu.Unlock()

	if pending {
		b.device.dequeue(b)
		b.cancel(ErrMapCanceled)
	}

	b.mu.Lock()
	b.released = true
	b.state = MapStateUnmapped
	b.mu.Unlock()
}

// bytes returns the buffer contents for command execution. The buffer must
// be unmapped, as a mapped or pending buffer cannot be used by the device.
func (b *cpuBuffer) bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, fmt.Errorf("%w: buffer %q", ErrReleased, b.label)
	}
	if b.state != MapStateUnmapped {
		return nil, fmt.Errorf("%w: buffer %q used while %v", ErrMapPending, b.label, b.state)
	}
	return b.data, nil
}

type cpuProgram struct {
	device *CPUDevice
	desc   ProgramDescriptor
}

func (p *cpuProgram) EntryPoint() string { return p.desc.EntryPoint }
func (p *cpuProgram) Release()           {}

type cpuBindGroup struct {
	program *cpuProgram
	buffer  *cpuBuffer
}

func (*cpuBindGroup) Release() {}

// cpuEncoder records commands as closures run at Submit. Buffers are
// captured by reference and must not be released before Submit.
type cpuEncoder struct {
	device   *CPUDevice
	ops      []func() error
	finished bool
}

func (e *cpuEncoder) Dispatch(program Program, bg BindGroup, x, y, z uint32) error {
	if e.finished {
		return errors.New("compute: encoder already finished")
	}
	p, ok := program.(*cpuProgram)
	if !ok || p.device != e.device {
		return fmt.Errorf("%w: program", ErrForeignResource)
	}
	g, ok := bg.(*cpuBindGroup)
	if !ok || g.program.device != e.device {
		return fmt.Errorf("%w: bind group", ErrForeignResource)
	}
	groups := int(x) * int(y) * int(z)
	buf := g.buffer
	e.ops = append(e.ops, func() error {
		data, err := buf.bytes()
		if err != nil {
			return err
		}
		for range groups {
			p.desc.Kernel(data)
		}
		return nil
	})
	return nil
}

func (e *cpuEncoder) CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset, size uint64) error {
	if e.finished {
		return errors.New("compute: encoder already finished")
	}
	s, ok := src.(*cpuBuffer)
	if !ok || s.device != e.device {
		return fmt.Errorf("%w: copy source", ErrForeignResource)
	}
	t, ok := dst.(*cpuBuffer)
	if !ok || t.device != e.device {
		return fmt.Errorf("%w: copy destination", ErrForeignResource)
	}
	if srcOffset+size > s.Size() || dstOffset+size > t.Size() {
		return fmt.Errorf("compute: copy of %d bytes out of range (src %d+%d, dst %d+%d)",
			size, srcOffset, s.Size(), dstOffset, t.Size())
	}
	e.ops = append(e.ops, func() error {
		from, err := s.bytes()
		if err != nil {
			return err
		}
		to, err := t.bytes()
		if err != nil {
			return err
		}
		copy(to[dstOffset:dstOffset+size], from[srcOffset:srcOffset+size])
		return nil
	})
	return nil
}

func (e *cpuEncoder) Finish() (CommandBuffer, error) {
	if e.finished {
		return nil, errors.New("compute: encoder already finished")
	}
	e.finished = true
	return &cpuCommandBuffer{device: e.device, ops: e.ops}, nil
}

func (e *cpuEncoder) Discard() {
	e.finished = true
	e.ops = nil
}

type cpuCommandBuffer struct {
	device    *CPUDevice
	ops       []func() error
	submitted bool
}

func (*cpuCommandBuffer) Release() {}
