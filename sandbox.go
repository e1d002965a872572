// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/sandbox/compute"
	"github.com/gogpu/sandbox/shaders"
)

// Sandbox errors.
var (
	// ErrNoDevice is returned by Open when no GPU device could be opened and
	// CPU fallback is disabled.
	ErrNoDevice = errors.New("sandbox: no GPU device available")

	// ErrUnknownBackend is returned by Open for an unknown backend name.
	ErrUnknownBackend = errors.New("sandbox: unknown backend")
)

var knownBackends = []string{
	BackendAuto, BackendCPU, BackendGPU,
	BackendVulkan, BackendMetal, BackendDX12, BackendGL,
}

// Sandbox owns a device and the compute engine built on it.
type Sandbox struct {
	device  compute.Device
	engine  *compute.Engine
	backend string
	program string

	closeOnce sync.Once
}

// Open selects a device, builds the engine for the configured program and
// returns the sandbox that owns both.
//
// With the auto backend a failed GPU open falls back to the CPU device and
// logs a warning. Other GPU backends return an error wrapping ErrNoDevice
// unless WithCPUFallback(true) is given.
func Open(opts ...Option) (*Sandbox, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.backend = strings.ToLower(o.backend)
	if o.backend == "" {
		o.backend = BackendAuto
	}
	if !isKnownBackend(o.backend) {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownBackend, o.backend, strings.Join(knownBackends, ", "))
	}

	desc := o.desc
	program := o.program
	if desc == nil {
		d, err := shaders.Lookup(o.program)
		if err != nil {
			return nil, fmt.Errorf("sandbox: %w", err)
		}
		desc = d
	} else {
		program = desc.Label
		if program == "" {
			program = desc.EntryPoint
		}
	}

	device, backend, err := openDevice(&o)
	if err != nil {
		return nil, err
	}

	engine, err := compute.New(device, desc)
	if err != nil {
		device.Release()
		return nil, fmt.Errorf("sandbox: %w", err)
	}

	slogger().Info("sandbox: opened", "backend", backend, "program", program)

	return &Sandbox{
		device:  device,
		engine:  engine,
		backend: backend,
		program: program,
	}, nil
}

func isKnownBackend(name string) bool {
	for _, b := range knownBackends {
		if b == name {
			return true
		}
	}
	return false
}

// openDevice resolves the backend option into a device and the name of the
// backend actually in use.
func openDevice(o *options) (compute.Device, string, error) {
	if o.provider != nil {
		return openProvider(o.provider)
	}
	if o.backend == BackendCPU {
		return newCPUDevice(o), BackendCPU, nil
	}

	device, backend, err := openGPU(o)
	if err == nil {
		return device, backend, nil
	}
	if !o.cpuFallback() {
		return nil, "", fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	slogger().Warn("sandbox: GPU not available, using CPU device", "err", err)
	return newCPUDevice(o), BackendCPU, nil
}

func newCPUDevice(o *options) compute.Device {
	return compute.NewCPUDevice(compute.WithLatency(o.latency))
}

// Engine returns the compute engine.
func (s *Sandbox) Engine() *compute.Engine { return s.engine }

// Device returns the device the engine runs on.
func (s *Sandbox) Device() compute.Device { return s.device }

// Backend returns the name of the backend in use, for example "cpu" or
// "vulkan".
func (s *Sandbox) Backend() string { return s.backend }

// Program returns the name of the program the engine runs.
func (s *Sandbox) Program() string { return s.program }

// Close closes the engine and releases the device. A device shared through
// WithDeviceProvider stays alive. Close is idempotent.
func (s *Sandbox) Close() {
	s.closeOnce.Do(func() {
		s.engine.Close()
		s.device.Release()
		slogger().Info("sandbox: closed", "backend", s.backend)
	})
}
