package sandbox

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/sandbox/compute"
)

// Backend names accepted by WithBackend.
const (
	BackendAuto   = "auto"
	BackendCPU    = "cpu"
	BackendGPU    = "gpu"
	BackendVulkan = "vulkan"
	BackendMetal  = "metal"
	BackendDX12   = "dx12"
	BackendGL     = "gl"
)

// DefaultProgram is the program Open builds when none is named.
const DefaultProgram = "identity"

// Option configures a Sandbox during Open.
//
// Example:
//
//	// GPU when available, CPU otherwise
//	sb, err := sandbox.Open()
//
//	// Force the CPU device with three polls of simulated latency
//	sb, err := sandbox.Open(sandbox.WithBackend("cpu"), sandbox.WithCPULatency(3))
type Option func(*options)

// options holds optional configuration for Open.
type options struct {
	backend  string
	program  string
	desc     *compute.ProgramDescriptor
	latency  int
	fallback *bool
	provider gpucontext.DeviceProvider
	label    string
}

// defaultOptions returns the default Open options.
func defaultOptions() options {
	return options{
		backend: BackendAuto,
		program: DefaultProgram,
		label:   "sandbox",
	}
}

// cpuFallback reports whether a failed GPU open falls back to the CPU
// device. Unless set explicitly, only the auto backend falls back.
func (o *options) cpuFallback() bool {
	if o.fallback != nil {
		return *o.fallback
	}
	return o.backend == BackendAuto
}

// WithBackend selects the device: auto, cpu, gpu, vulkan, metal, dx12 or gl.
// Names are case-insensitive.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithProgram selects a built-in program by name (see shaders.Names).
func WithProgram(name string) Option {
	return func(o *options) {
		o.program = name
		o.desc = nil
	}
}

// WithProgramDescriptor supplies a custom program. The descriptor must
// satisfy the program contract; on the CPU device it also needs a Kernel.
func WithProgramDescriptor(desc *compute.ProgramDescriptor) Option {
	return func(o *options) {
		o.desc = desc
	}
}

// WithCPULatency sets how many device polls the CPU device waits before
// completing a read mapping.
func WithCPULatency(polls int) Option {
	return func(o *options) {
		o.latency = polls
	}
}

// WithCPUFallback controls whether a failed GPU open falls back to the CPU
// device instead of returning ErrNoDevice.
func WithCPUFallback(enabled bool) Option {
	return func(o *options) {
		o.fallback = &enabled
	}
}

// WithDeviceProvider shares the device of a host application (for example
// a gogpu window). The provider keeps ownership of the device.
//
// Example:
//
//	sb, err := sandbox.Open(sandbox.WithDeviceProvider(app.GPUContextProvider()))
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithLabel sets the debug label prefix of device objects.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}
