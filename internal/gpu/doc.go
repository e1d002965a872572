//go:build !nogpu

// Package gpu implements the compute device port on gogpu/wgpu, the Pure Go
// WebGPU implementation (zero CGO) with Vulkan, Metal, DX12, GLES and
// software backends.
//
// # Architecture Overview
//
//	compute.Engine -> Device (port) -> wgpu.Device -> HAL backend
//
// Key components:
//
//   - Device: instance, adapter, device and queue; tracks pending read maps
//   - buffer: storage and staging buffers; MapRead starts Buffer.MapAsync
//   - program: shader module, bind group layout, pipeline layout and
//     compute pipeline for one WGSL program
//   - encoder: compute pass recording and buffer copies
//
// # Read mapping
//
// A read mapping is requested with Buffer.MapAsync, which returns a
// wgpu.MapPending handle. Device.Poll services device events with
// wgpu.PollPoll and then checks each pending handle; completed handles fire
// their callback outside the device lock. Nothing blocks on the GPU.
//
// # Shared devices
//
// FromProvider wraps the device of a host application exposing a
// gpucontext.DeviceProvider. The host keeps ownership.
//
// # Logging
//
// The package logs through a silent slog logger until SetLogger is called,
// usually through sandbox.SetLogger.
package gpu
