//go:build !nogpu

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package sandbox

import (
	"log/slog"
	"strings"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/sandbox/compute"
	"github.com/gogpu/sandbox/internal/gpu"
)

// openGPU opens a WebGPU device restricted to the backend option.
func openGPU(o *options) (compute.Device, string, error) {
	name := o.backend
	if name == BackendAuto || name == BackendGPU {
		name = "all"
	}
	backends, err := gpu.ParseBackends(name)
	if err != nil {
		return nil, "", err
	}
	dev, err := gpu.Open(gpu.Config{Backends: backends, Label: o.label})
	if err != nil {
		return nil, "", err
	}
	return dev, strings.ToLower(dev.Info().Backend.String()), nil
}

// openProvider wraps a device owned by the host application.
func openProvider(p gpucontext.DeviceProvider) (compute.Device, string, error) {
	dev, err := gpu.FromProvider(p)
	if err != nil {
		return nil, "", err
	}
	return dev, "provider", nil
}

func setGPULogger(l *slog.Logger) {
	gpu.SetLogger(l)
}
