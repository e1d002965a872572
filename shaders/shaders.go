// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package shaders provides the compute programs the sandbox can dispatch.
//
// Each program pairs an embedded WGSL source with a Go kernel that performs
// the same transformation on the host, so a program runs unchanged on the
// WebGPU device and on the CPU device.
package shaders

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/sandbox/compute"
	"github.com/gogpu/sandbox/voxel"
)

//go:embed identity.wgsl
var identityWGSL string

//go:embed sandfall.wgsl
var sandfallWGSL string

// EntryPoint is the compute entry point of every built-in program.
const EntryPoint = "main"

// Built-in program names.
const (
	Identity = "identity"
	Sandfall = "sandfall"
)

// ErrUnknownProgram is returned by Lookup for names it does not know.
var ErrUnknownProgram = errors.New("shaders: unknown program")

// IdentityProgram returns the program that leaves the chunk unchanged.
func IdentityProgram() *compute.ProgramDescriptor {
	return &compute.ProgramDescriptor{
		Label:       Identity,
		Source:      identityWGSL,
		EntryPoint:  EntryPoint,
		BindingSize: voxel.Size,
		Kernel:      func([]byte) {},
	}
}

// SandfallProgram returns the program that lets every sand voxel with air
// below it fall one cell.
func SandfallProgram() *compute.ProgramDescriptor {
	return &compute.ProgramDescriptor{
		Label:       Sandfall,
		Source:      sandfallWGSL,
		EntryPoint:  EntryPoint,
		BindingSize: voxel.Size,
		Kernel:      sandfall,
	}
}

var programs = map[string]func() *compute.ProgramDescriptor{
	Identity: IdentityProgram,
	Sandfall: SandfallProgram,
}

// Lookup returns a fresh descriptor for the named program.
func Lookup(name string) (*compute.ProgramDescriptor, error) {
	p, ok := programs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownProgram, name, Names())
	}
	return p(), nil
}

// Names returns the built-in program names in sorted order.
func Names() []string {
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// sandfall mirrors sandfall.wgsl on the byte image of a chunk.
func sandfall(b []byte) {
	const layer = voxel.Width * voxel.Depth
	for y := 1; y < voxel.Height; y++ {
		for i := range layer {
			above := y*layer + i
			below := above - layer
			if b[above] == byte(voxel.Sand) && b[below] == byte(voxel.Air) {
				b[below] = byte(voxel.Sand)
				b[above] = byte(voxel.Air)
			}
		}
	}
}
