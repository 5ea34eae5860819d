// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/unitensor/container"
	"github.com/born-ml/unitensor/internal/ops"
)

// Option configures a single operation call.
//
// Example:
//
//	z, _ := tensor.Zeros(tensor.Shape{3})
//	_, err := tensor.Add(x, y, tensor.Out(z), tensor.OnBackend("gorgonia"))
type Option = ops.Option

// Out writes the result into out, an *Array or a Container of them.
// The shape of out must match the result.
func Out(out any) Option { return ops.Out(out) }

// OnBackend runs the call on the named backend, ignoring the backend stack.
func OnBackend(name string) Option { return ops.OnBackend(name) }

// WithNest sets how Container arguments are mapped. By default only key
// chains present in every Container argument are visited.
func WithNest(opts ...container.Option) Option { return ops.WithNest(opts...) }

// PromoteContainers promotes every Container leaf to one common dtype
// instead of promoting leaf by leaf.
func PromoteContainers() Option { return ops.PromoteContainers() }

// DType sets the result dtype of creation and reduction calls.
func DType(dt DataType) Option { return ops.DType(dt) }

// OnDevice places created arrays on device d.
func OnDevice(d Device) Option { return ops.OnDevice(d) }

// Axes restricts a reduction to the given axes.
func Axes(axes ...int) Option { return ops.Axes(axes...) }

// KeepDims keeps reduced axes with size 1.
func KeepDims() Option { return ops.KeepDims() }
