//go:build !nogpu

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpu

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/wgpu"

	"github.com/gogpu/sandbox/compute"
)

// buffer wraps a wgpu buffer and its pending map.
type buffer struct {
	device *Device
	buf    *wgpu.Buffer
	size   uint64
}

func (b *buffer) Size() uint64 { return b.size }

// MapRead starts MapAsync on the whole buffer. The device resolves the
// returned handle from Poll and then invokes callback.
func (b *buffer) MapRead(callback func(error)) error {
	if callback == nil {
		return errors.New("gpu: map callback is nil")
	}
	handle, err := b.buf.MapAsync(wgpu.MapModeRead, 0, b.size)
	if err != nil {
		if errors.Is(err, wgpu.ErrMapAlreadyPending) || errors.Is(err, wgpu.ErrMapAlreadyMapped) {
			return fmt.Errorf("%w: %w", compute.ErrMapPending, err)
		}
		return fmt.Errorf("gpu: map buffer: %w", err)
	}
	b.device.track(&pendingMap{buf: b, handle: handle, callback: callback})
	return nil
}

// MappedRange copies the mapped contents out of device memory.
func (b *buffer) MappedRange() ([]byte, error) {
	rng, err := b.buf.MappedRange(0, b.size)
	if err != nil {
		if errors.Is(err, wgpu.ErrMapNotMapped) {
			return nil, fmt.Errorf("%w: %w", compute.ErrNotMapped, err)
		}
		return nil, fmt.Errorf("gpu: mapped range: %w", err)
	}
	defer rng.Release()
	return slices.Clone(rng.Bytes()), nil
}

// Unmap ends the mapping. A map still tracked by the device is canceled
// and its callback receives compute.ErrMapCanceled.
func (b *buffer) Unmap() error {
	if pm := b.device.untrack(b); pm != nil {
		pm.handle.Release()
		_ = b.buf.Unmap()
		pm.callback(compute.ErrMapCanceled)
		return nil
	}
	if err := b.buf.Unmap(); err != nil {
		if errors.Is(err, wgpu.ErrMapNotMapped) {
			return fmt.Errorf("%w: %w", compute.ErrNotMapped, err)
		}
		return fmt.Errorf("gpu: unmap: %w", err)
	}
	return nil
}

func (b *buffer) Release() {
	if pm := b.device.untrack(b); pm != nil {
		pm.handle.Release()
		_ = b.buf.Unmap()
		pm.callback(compute.ErrMapCanceled)
	}
	b.buf.Release()
}

// program bundles the compute pipeline objects built for one program.
type program struct {
	device     *Device
	entryPoint string

	module     *wgpu.ShaderModule
	layout     *wgpu.BindGroupLayout
	pipeLayout *wgpu.PipelineLayout
	pipeline   *wgpu.ComputePipeline
}

func (p *program) EntryPoint() string { return p.entryPoint }

// Release destroys pipeline objects in reverse creation order. It is safe
// on a partially built program.
func (p *program) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		p.pipeLayout.Release()
		p.pipeLayout = nil
	}
	if p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
	if p.module != nil {
		p.module.Release()
		p.module = nil
	}
}

type bindGroup struct {
	device *Device
	group  *wgpu.BindGroup
}

func (g *bindGroup) Release() { g.group.Release() }

// encoder records a compute pass and buffer copies.
type encoder struct {
	device *Device
	enc    *wgpu.CommandEncoder
	label  string
	done   bool
}

func (e *encoder) Dispatch(prog compute.Program, bg compute.BindGroup, x, y, z uint32) error {
	p, ok := prog.(*program)
	if !ok || p.device != e.device {
		return fmt.Errorf("%w: program", ErrForeignResource)
	}
	g, ok := bg.(*bindGroup)
	if !ok || g.device != e.device {
		return fmt.Errorf("%w: bind group", ErrForeignResource)
	}
	pass, err := e.enc.BeginComputePass(&wgpu.ComputePassDescriptor{Label: e.label + "_pass"})
	if err != nil {
		return fmt.Errorf("gpu: begin compute pass: %w", err)
	}
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, g.group, nil)
	pass.Dispatch(x, y, z)
	if err := pass.End(); err != nil {
		return fmt.Errorf("gpu: end compute pass: %w", err)
	}
	return nil
}

// CopyBufferToBuffer records a copy. Validation errors surface from Finish.
func (e *encoder) CopyBufferToBuffer(src compute.Buffer, srcOffset uint64, dst compute.Buffer, dstOffset, size uint64) error {
	s, ok := src.(*buffer)
	if !ok || s.device != e.device {
		return fmt.Errorf("%w: copy source", ErrForeignResource)
	}
	t, ok := dst.(*buffer)
	if !ok || t.device != e.device {
		return fmt.Errorf("%w: copy destination", ErrForeignResource)
	}
	e.enc.CopyBufferToBuffer(s.buf, srcOffset, t.buf, dstOffset, size)
	return nil
}

func (e *encoder) Finish() (compute.CommandBuffer, error) {
	e.done = true
	cb, err := e.enc.Finish()
	if err != nil {
		return nil, fmt.Errorf("gpu: finish encoder: %w", err)
	}
	return &commandBuffer{device: e.device, cb: cb}, nil
}

func (e *encoder) Discard() {
	if e.done {
		return
	}
	e.done = true
	e.enc.DiscardEncoding()
}

type commandBuffer struct {
	device *Device
	cb     *wgpu.CommandBuffer
}

func (c *commandBuffer) Release() { c.cb.Release() }
