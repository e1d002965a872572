//go:build !nogpu

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpu

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/sandbox/compute"
	"github.com/gogpu/sandbox/shaders"

	// Register every HAL backend available on this platform.
	_ "github.com/gogpu/wgpu/hal/allbackends"
)

// Device errors.
var (
	// ErrNoQueue is returned when the device has no command queue.
	ErrNoQueue = errors.New("gpu: device has no queue")

	// ErrUnknownBackend is returned by ParseBackends for unknown names.
	ErrUnknownBackend = errors.New("gpu: unknown backend")

	// ErrProvider is returned when a device provider does not expose a
	// usable wgpu device.
	ErrProvider = errors.New("gpu: provider does not expose a wgpu device")

	// ErrForeignResource is returned when a resource created by another
	// device is passed to a Device.
	ErrForeignResource = errors.New("gpu: resource belongs to another device")
)

// Config selects the adapter Open requests.
type Config struct {
	// Backends restricts the HAL backends considered. Zero means all.
	Backends wgpu.Backends

	// PowerPreference is passed to adapter selection.
	PowerPreference wgpu.PowerPreference

	// ForceFallbackAdapter requests a software adapter.
	ForceFallbackAdapter bool

	// Label is the device debug label.
	Label string
}

var backendNames = map[string]wgpu.Backends{
	"all":    wgpu.BackendsAll,
	"vulkan": wgpu.BackendsVulkan,
	"metal":  wgpu.BackendsMetal,
	"dx12":   wgpu.BackendsDX12,
	"gl":     wgpu.BackendsGL,
}

// ParseBackends maps a backend name (all, vulkan, metal, dx12, gl) to a
// backend mask.
func ParseBackends(name string) (wgpu.Backends, error) {
	b, ok := backendNames[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(backendNames))
		for n := range backendNames {
			names = append(names, n)
		}
		slices.Sort(names)
		return 0, fmt.Errorf("%w: %q (have %s)", ErrUnknownBackend, name, strings.Join(names, ", "))
	}
	return b, nil
}

// Device implements compute.Device on a gogpu/wgpu device.
//
// Read mappings are requested with Buffer.MapAsync and resolved from Poll,
// which drives wgpu.Device.Poll and then checks every pending map handle.
// Callbacks run on the goroutine calling Poll, outside the device lock.
type Device struct {
	mu sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     wgpu.AdapterInfo

	pending  []*pendingMap
	external bool // device owned by a provider; not released by Release
	released bool
}

var _ compute.Device = (*Device)(nil)

// pendingMap tracks one MapAsync in flight.
type pendingMap struct {
	buf      *buffer
	handle   *wgpu.MapPending
	callback func(error)
}

// Open creates an instance, selects an adapter and opens a device on it.
func Open(cfg Config) (*Device, error) {
	desc := &wgpu.InstanceDescriptor{Backends: cfg.Backends}
	if cfg.Backends == 0 {
		desc = nil
	}
	instance, err := wgpu.CreateInstance(desc)
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference:      cfg.PowerPreference,
		ForceFallbackAdapter: cfg.ForceFallbackAdapter,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("gpu: request adapter: %w", err)
	}

	label := cfg.Label
	if label == "" {
		label = "sandbox"
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: label})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("gpu: request device: %w", err)
	}

	queue := device.Queue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, ErrNoQueue
	}

	info := adapter.Info()
	slogger().Info("gpu: device opened",
		"adapter", info.Name,
		"backend", info.Backend.String(),
		"type", info.DeviceType)

	return &Device{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    queue,
		info:     info,
	}, nil
}

// FromProvider wraps the device of a host application. The host keeps
// ownership: Release does not destroy it.
//
// The provider's Device must be a *wgpu.Device, or the provider must expose
// HAL handles through HalDevice() any and HalQueue() any.
func FromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is nil", ErrProvider)
	}

	if dev, ok := provider.Device().(*wgpu.Device); ok && dev != nil {
		queue, _ := provider.Queue().(*wgpu.Queue)
		if queue == nil {
			queue = dev.Queue()
		}
		if queue == nil {
			return nil, ErrNoQueue
		}
		slogger().Info("gpu: using shared device", "adapter", provider.AdapterInfo().Name)
		return &Device{device: dev, queue: queue, external: true}, nil
	}

	dev, err := fromHALProvider(provider)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// fromHALProvider wraps HAL handles exposed by a provider.
func fromHALProvider(provider any) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrProvider
	}
	halDevice, ok := hp.HalDevice().(hal.Device)
	if !ok || halDevice == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrProvider)
	}
	halQueue, ok := hp.HalQueue().(hal.Queue)
	if !ok || halQueue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProvider)
	}
	device, err := wgpu.NewDeviceFromHAL(halDevice, halQueue,
		gputypes.Features(0), gputypes.DefaultLimits(), "sandbox shared")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	queue := device.Queue()
	if queue == nil {
		return nil, ErrNoQueue
	}
	slogger().Info("gpu: using shared HAL device")
	return &Device{device: device, queue: queue, external: true}, nil
}

// Info returns the adapter metadata. It is zero for provider devices.
func (d *Device) Info() wgpu.AdapterInfo { return d.info }

// CreateStorageBuffer implements compute.Device.
func (d *Device) CreateStorageBuffer(label string, contents []byte) (compute.Buffer, error) {
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(len(contents)),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer %q: %w", label, err)
	}
	if err := d.queue.WriteBuffer(buf, 0, contents); err != nil {
		buf.Release()
		return nil, fmt.Errorf("gpu: upload buffer %q: %w", label, err)
	}
	return &buffer{device: d, buf: buf, size: uint64(len(contents))}, nil
}

// CreateStagingBuffer implements compute.Device.
func (d *Device) CreateStagingBuffer(label string, size uint64) (compute.Buffer, error) {
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer %q: %w", label, err)
	}
	return &buffer{device: d, buf: buf, size: size}, nil
}

// CreateProgram implements compute.Device. The WGSL source is checked
// against the chunk binding contract before it is compiled.
func (d *Device) CreateProgram(desc *compute.ProgramDescriptor) (compute.Program, error) {
	if err := shaders.CheckContract(desc); err != nil {
		return nil, err
	}

	p := &program{device: d, entryPoint: desc.EntryPoint}
	var err error
	p.module, err = d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSL:  desc.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: compile %s shader: %w", desc.Label, err)
	}

	p.layout, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: desc.Label + "_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageCompute,
				Buffer: &gputypes.BufferBindingLayout{
					Type:           gputypes.BufferBindingTypeStorage,
					MinBindingSize: desc.BindingSize,
				},
			},
		},
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("gpu: create %s bind group layout: %w", desc.Label, err)
	}

	p.pipeLayout, err = d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label + "_pipe_layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.layout},
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("gpu: create %s pipeline layout: %w", desc.Label, err)
	}

	p.pipeline, err = d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:      desc.Label + "_pipeline",
		Layout:     p.pipeLayout,
		Module:     p.module,
		EntryPoint: desc.EntryPoint,
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("gpu: create %s compute pipeline: %w", desc.Label, err)
	}

	slogger().Debug("gpu: program created", "label", desc.Label, "entry_point", desc.EntryPoint)
	return p, nil
}

// CreateBindGroup implements compute.Device.
func (d *Device) CreateBindGroup(label string, prog compute.Program, binding uint32, buf compute.Buffer) (compute.BindGroup, error) {
	p, ok := prog.(*program)
	if !ok || p.device != d {
		return nil, fmt.Errorf("%w: program", ErrForeignResource)
	}
	b, ok := buf.(*buffer)
	if !ok || b.device != d {
		return nil, fmt.Errorf("%w: buffer", ErrForeignResource)
	}
	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  label,
		Layout: p.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: binding, Buffer: b.buf, Offset: 0, Size: b.size},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group %q: %w", label, err)
	}
	return &bindGroup{device: d, group: bg}, nil
}

// CreateCommandEncoder implements compute.Device.
func (d *Device) CreateCommandEncoder(label string) (compute.CommandEncoder, error) {
	enc, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("gpu: create command encoder: %w", err)
	}
	return &encoder{device: d, enc: enc, label: label}, nil
}

// Submit implements compute.Device.
func (d *Device) Submit(cmd compute.CommandBuffer) error {
	cb, ok := cmd.(*commandBuffer)
	if !ok || cb.device != d {
		return fmt.Errorf("%w: command buffer", ErrForeignResource)
	}
	if _, err := d.queue.Submit(cb.cb); err != nil {
		return fmt.Errorf("gpu: submit: %w", err)
	}
	return nil
}

// Poll implements compute.Device. It drains completed submissions without
// waiting and resolves every map whose submission has finished.
func (d *Device) Poll() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.device.Poll(wgpu.PollPoll)

	type result struct {
		callback func(error)
		err      error
	}
	var ready []result
	keep := d.pending[:0]
	for _, pm := range d.pending {
		done, err := pm.handle.Status()
		if !done {
			keep = append(keep, pm)
			continue
		}
		pm.handle.Release()
		ready = append(ready, result{callback: pm.callback, err: err})
	}
	clear(d.pending[len(keep):])
	d.pending = keep
	d.mu.Unlock()

	for _, r := range ready {
		r.callback(r.err)
	}
}

// Release implements compute.Device. Pending maps are canceled.
func (d *Device) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.released = true
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, pm := range pending {
		pm.handle.Release()
		_ = pm.buf.buf.Unmap()
		pm.callback(compute.ErrMapCanceled)
	}

	if d.external {
		return
	}
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
	slogger().Info("gpu: device released")
}

// track registers a pending map for Poll.
func (d *Device) track(pm *pendingMap) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, pm)
}

// untrack removes and returns the pending map of buf, if any.
func (d *Device) untrack(buf *buffer) *pendingMap {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, pm := range d.pending {
		if pm.buf == buf {
			d.pending = slices.Delete(d.pending, i, i+1)
			return pm
		}
	}
	return nil
}
