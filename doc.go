// Package sandbox runs a small voxel chunk through a GPU compute program and
// reads the result back without ever blocking the frame loop.
//
// # Overview
//
// A dispatch uploads a 4x4x4 chunk into a storage buffer, runs one workgroup
// of a compute program over it and copies the result into a host-readable
// staging buffer. The staging buffer is mapped asynchronously; the mapping
// completion is delivered through a capacity-1 channel that the frame loop
// drains with Poll once per frame.
//
// # Quick Start
//
//	import "github.com/gogpu/sandbox"
//
//	sb, err := sandbox.Open(sandbox.WithProgram("sandfall"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sb.Close()
//
//	eng := sb.Engine()
//	var c voxel.Chunk
//	c.Set(0, 1, 0, voxel.Sand)
//	_ = eng.Dispatch(c)
//
//	for {
//	    eng.ProcessEvents()
//	    if res, ok, err := eng.Poll(); err != nil {
//	        log.Fatal(err)
//	    } else if ok {
//	        fmt.Print(res.String())
//	        break
//	    }
//	}
//
// # Devices
//
// Open picks a device from the backend option:
//   - "auto" (default): a WebGPU adapter, falling back to the CPU device
//   - "gpu", "vulkan", "metal", "dx12", "gl": a WebGPU adapter only
//   - "cpu": the reference CPU device, which runs Go kernels
//
// A host application that already owns a device passes it with
// WithDeviceProvider. Building with -tags nogpu leaves only the CPU device.
//
// # Architecture
//
// The module is organized into:
//   - voxel: the Chunk boundary type and its byte layout
//   - compute: the Engine, the device port and the CPU device
//   - shaders: embedded WGSL programs and the program contract check
//   - driver: the frame loop (cadence, polling, rendering, input)
//   - internal/gpu: the device port on gogpu/wgpu
//
// # Logging
//
// Logging is silent by default. SetLogger enables it for every package.
package sandbox
