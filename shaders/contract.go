// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaders

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/sandbox/compute"
)

// ErrInvalidSource is returned when WGSL source fails to parse, lower or
// validate.
var ErrInvalidSource = errors.New("shaders: invalid WGSL source")

// EntryPointInfo describes one entry point of a WGSL module.
type EntryPointInfo struct {
	Name      string
	Compute   bool
	Workgroup [3]uint32
}

// Invocations returns the number of invocations in one workgroup.
// Omitted workgroup dimensions count as 1.
func (e EntryPointInfo) Invocations() uint32 {
	return max(e.Workgroup[0], 1) * max(e.Workgroup[1], 1) * max(e.Workgroup[2], 1)
}

// BindingInfo describes one resource binding of a WGSL module.
type BindingInfo struct {
	Name    string
	Group   uint32
	Binding uint32
	Storage bool
	// Size is the byte size of the bound type.
	Size uint64
}

// Reflection is the interface of a WGSL module.
type Reflection struct {
	EntryPoints []EntryPointInfo
	Bindings    []BindingInfo
}

// Reflect parses, lowers and validates WGSL source and reports its entry
// points and resource bindings.
func Reflect(source string) (*Reflection, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("%w: %d validation errors, first: %s",
			ErrInvalidSource, len(verrs), verrs[0].Message)
	}

	r := &Reflection{}
	for _, ep := range module.EntryPoints {
		r.EntryPoints = append(r.EntryPoints, EntryPointInfo{
			Name:      ep.Name,
			Compute:   ep.Stage == ir.StageCompute,
			Workgroup: ep.Workgroup,
		})
	}
	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		r.Bindings = append(r.Bindings, BindingInfo{
			Name:    gv.Name,
			Group:   gv.Binding.Group,
			Binding: gv.Binding.Binding,
			Storage: gv.Space == ir.SpaceStorage,
			Size:    uint64(ir.TypeSize(module, gv.Type)),
		})
	}
	return r, nil
}

// CheckContract verifies that desc.Source declares a compute entry point
// named desc.EntryPoint with a workgroup of one invocation, and exactly one
// resource: a storage binding at group 0, binding 0 of desc.BindingSize
// bytes. Violations wrap compute.ErrProgramContract.
func CheckContract(desc *compute.ProgramDescriptor) error {
	if desc == nil {
		return fmt.Errorf("%w: descriptor is nil", compute.ErrProgramContract)
	}
	r, err := Reflect(desc.Source)
	if err != nil {
		return fmt.Errorf("shaders: program %q: %w", desc.Label, err)
	}

	var ep *EntryPointInfo
	for i := range r.EntryPoints {
		if r.EntryPoints[i].Name == desc.EntryPoint {
			ep = &r.EntryPoints[i]
			break
		}
	}
	switch {
	case ep == nil:
		return fmt.Errorf("%w: program %q has no entry point %q",
			compute.ErrProgramContract, desc.Label, desc.EntryPoint)
	case !ep.Compute:
		return fmt.Errorf("%w: program %q entry point %q is not a compute stage",
			compute.ErrProgramContract, desc.Label, desc.EntryPoint)
	case ep.Invocations() != 1:
		return fmt.Errorf("%w: program %q workgroup size %v, want a single invocation",
			compute.ErrProgramContract, desc.Label, ep.Workgroup)
	}

	if len(r.Bindings) != 1 {
		return fmt.Errorf("%w: program %q declares %d bindings, want 1",
			compute.ErrProgramContract, desc.Label, len(r.Bindings))
	}
	b := r.Bindings[0]
	switch {
	case b.Group != 0 || b.Binding != 0:
		return fmt.Errorf("%w: program %q binds %q at @group(%d) @binding(%d), want 0/0",
			compute.ErrProgramContract, desc.Label, b.Name, b.Group, b.Binding)
	case !b.Storage:
		return fmt.Errorf("%w: program %q binding %q is not a storage buffer",
			compute.ErrProgramContract, desc.Label, b.Name)
	case b.Size != desc.BindingSize:
		return fmt.Errorf("%w: program %q binding %q is %d bytes, want %d",
			compute.ErrProgramContract, desc.Label, b.Name, b.Size, desc.BindingSize)
	}
	return nil
}
