// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package voxel defines the chunk data model exchanged with GPU programs.
//
// A Chunk is a fixed-size, plain-old-data grid of one-byte voxel states. Its
// memory image is identical on host and device, so it crosses the GPU
// boundary as an opaque byte blob: [Chunk.Bytes] on upload and [FromBytes]
// on readback. FromBytes is the only way back from device memory and it
// verifies both the exact byte size and the validity of every cell.
package voxel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Chunk extents. The outer array index is the vertical axis.
const (
	Width  = 4
	Depth  = 4
	Height = 4

	// Alignment is the byte boundary the device representation is padded to.
	Alignment = 16

	// Size is the byte size of a Chunk on host and device.
	Size = Width * Depth * Height

	layer = Width * Depth
)

// The chunk image must be a whole number of alignment units; otherwise the
// device-side array would carry padding the host type does not.
var _ = [1]struct{}{}[Size%Alignment]

// Integrity errors. Both ErrSize and ErrInvalidState wrap ErrIntegrity.
var (
	// ErrIntegrity reports device data that cannot be a Chunk.
	ErrIntegrity = errors.New("voxel: integrity violation")

	// ErrSize is returned when a byte image is not exactly Size bytes.
	ErrSize = fmt.Errorf("%w: chunk byte size mismatch", ErrIntegrity)

	// ErrInvalidState is returned when a cell holds an unknown state byte.
	ErrInvalidState = fmt.Errorf("%w: invalid voxel state", ErrIntegrity)
)

// State is the content of one voxel cell, stored as a single byte.
type State uint8

const (
	// Air is the zero state; a zero Chunk is all air.
	Air State = iota
	// Sand is a granular solid.
	Sand

	stateCount
)

// Valid reports whether s is a known state.
func (s State) Valid() bool { return s < stateCount }

// String returns the state name.
func (s State) String() string {
	switch s {
	case Air:
		return "Air"
	case Sand:
		return "Sand"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Chunk is a Width × Depth × Height grid of voxel states.
//
// Voxels are indexed Voxels[y][z][x]; cell (x, y, z) is byte y*16 + z*4 + x
// of the device image. The zero value is a valid all-air chunk.
type Chunk struct {
	Voxels [Height][Depth][Width]uint8
}

// InBounds reports whether (x, y, z) addresses a cell of a Chunk.
func InBounds(x, y, z int) bool {
	return x >= 0 && x < Width && y >= 0 && y < Height && z >= 0 && z < Depth
}

// Index returns the byte offset of cell (x, y, z) in the device image.
// The coordinates must be in bounds.
func Index(x, y, z int) int {
	return y*layer + z*Width + x
}

// At returns the state of cell (x, y, z). Out-of-bounds cells read as Air.
func (c *Chunk) At(x, y, z int) State {
	if !InBounds(x, y, z) {
		return Air
	}
	return State(c.Voxels[y][z][x])
}

// Set stores s at cell (x, y, z). Out-of-bounds writes are ignored.
func (c *Chunk) Set(x, y, z int, s State) {
	if !InBounds(x, y, z) {
		return
	}
	c.Voxels[y][z][x] = uint8(s)
}

// Fill sets every cell to s.
func (c *Chunk) Fill(s State) {
	for y := range c.Voxels {
		for z := range c.Voxels[y] {
			for x := range c.Voxels[y][z] {
				c.Voxels[y][z][x] = uint8(s)
			}
		}
	}
}

// Count returns the number of cells holding s.
func (c *Chunk) Count(s State) int {
	n := 0
	for y := range c.Voxels {
		for z := range c.Voxels[y] {
			for x := range c.Voxels[y][z] {
				if State(c.Voxels[y][z][x]) == s {
					n++
				}
			}
		}
	}
	return n
}

// Bytes returns a copy of the device image of c.
func (c *Chunk) Bytes() []byte {
	b := make([]byte, 0, Size)
	for y := range c.Voxels {
		for z := range c.Voxels[y] {
			b = append(b, c.Voxels[y][z][:]...)
		}
	}
	return b
}

// FromBytes decodes a device image into a Chunk.
//
// The image must be exactly Size bytes and every byte must be a valid
// State. Violations return errors wrapping ErrIntegrity.
func FromBytes(b []byte) (Chunk, error) {
	var c Chunk
	if len(b) != Size {
		return c, fmt.Errorf("%w: got %d bytes, want %d", ErrSize, len(b), Size)
	}
	for y := range c.Voxels {
		for z := range c.Voxels[y] {
			off := y*layer + z*Width
			copy(c.Voxels[y][z][:], b[off:off+Width])
		}
	}
	if err := c.Validate(); err != nil {
		return Chunk{}, err
	}
	return c, nil
}

// Validate reports the first cell that does not hold a valid State.
func (c *Chunk) Validate() error {
	for y := range c.Voxels {
		for z := range c.Voxels[y] {
			for x, v := range c.Voxels[y][z] {
				if !State(v).Valid() {
					return fmt.Errorf("%w: byte %d at (%d,%d,%d)", ErrInvalidState, v, x, y, z)
				}
			}
		}
	}
	return nil
}

// Sum64 returns the xxhash of the device image of c.
func (c *Chunk) Sum64() uint64 {
	d := xxhash.New()
	for y := range c.Voxels {
		for z := range c.Voxels[y] {
			_, _ = d.Write(c.Voxels[y][z][:])
		}
	}
	return d.Sum64()
}

// String renders c layer by layer from the top, one row per z.
// Air is '.', Sand is '#' and invalid bytes are '?'.
func (c *Chunk) String() string {
	var sb strings.Builder
	for y := Height - 1; y >= 0; y-- {
		fmt.Fprintf(&sb, "y=%d", y)
		for z := 0; z < Depth; z++ {
			sb.WriteByte(' ')
			for x := 0; x < Width; x++ {
				switch State(c.Voxels[y][z][x]) {
				case Air:
					sb.WriteByte('.')
				case Sand:
					sb.WriteByte('#')
				default:
					sb.WriteByte('?')
				}
			}
		}
		if y > 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
