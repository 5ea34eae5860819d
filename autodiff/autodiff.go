// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides automatic differentiation capabilities.
//
// This package implements reverse-mode automatic differentiation (backpropagation)
// using a gradient tape. The "autodiff" backend wraps the cpu backend; arrays
// on it that were passed through Track record every differentiable operation
// applied to them.
//
// Example:
//
//	import (
//	    "github.com/born-ml/unitensor/autodiff"
//	    "github.com/born-ml/unitensor/tensor"
//	    _ "github.com/born-ml/unitensor/backend/all"
//	)
//
//	func main() {
//	    x, _ := autodiff.Track([]float32{1, 2, 3})
//	    y, _ := tensor.AsArray(tensor.Multiply(x, x)) // recorded on the tape
//	    s, _ := tensor.AsArray(tensor.Sum(y))
//
//	    grads, _ := autodiff.Backward(s)
//	    dx, _ := grads.Of(x) // 2x
//	}
package autodiff

import (
	"fmt"

	"github.com/born-ml/unitensor/internal/array"
	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/backend/autodiff"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Name is the registry name of the autodiff backend.
const Name = autodiff.Name

// Backend is the autodiff-enabled backend.
type Backend = autodiff.Backend

// Variable is the native handle of the autodiff backend.
type Variable = autodiff.Variable

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// New creates a new autodiff backend wrapping the given backend. Most callers
// use the registered "autodiff" backend instead.
//
// Example:
//
//	b := autodiff.New(cpu.New())
func New(inner backend.Backend) *Backend {
	return autodiff.New(inner)
}

// Default returns the registered autodiff backend.
func Default() (*Backend, error) {
	b, err := backend.Load(Name)
	if err != nil {
		return nil, err
	}
	ad, ok := b.(*Backend)
	if !ok {
		return nil, fmt.Errorf("backend %q is %T, not an autodiff backend", Name, b)
	}
	return ad, nil
}

// Track returns a gradient-tracked copy of x on the autodiff backend. x may
// be anything tensor.New accepts; only floating point arrays can be tracked.
func Track(x any) (*array.Array, error) {
	b, err := Default()
	if err != nil {
		return nil, err
	}
	a, err := array.New(x, array.WithBackend(Name))
	if err != nil {
		return nil, err
	}
	v, err := b.Variable(a.Data())
	if err != nil {
		return nil, err
	}
	return array.Wrap(v, Name, a.DynamicBackend()), nil
}

// Gradients holds the result of Backward.
type Gradients struct {
	grads autodiff.Gradients
}

// Backward computes the gradients of y with respect to every tracked array
// y depends on.
func Backward(y *array.Array) (*Gradients, error) {
	b, err := Default()
	if err != nil {
		return nil, err
	}
	v, err := variable(y)
	if err != nil {
		return nil, err
	}
	grads, err := b.Backward(v)
	if err != nil {
		return nil, err
	}
	return &Gradients{grads: grads}, nil
}

// Of returns the gradient reaching x as an untracked array, or nil if x did
// not contribute to the result.
func (g *Gradients) Of(x *array.Array) (*array.Array, error) {
	v, err := variable(x)
	if err != nil {
		return nil, err
	}
	grad := g.grads.Of(v)
	if grad == nil {
		return nil, nil
	}
	return array.Wrap(grad, Name, false), nil
}

// Tape returns the gradient tape of the registered autodiff backend.
func Tape() (*GradientTape, error) {
	b, err := Default()
	if err != nil {
		return nil, err
	}
	return b.Tape(), nil
}

func variable(a *array.Array) (*Variable, error) {
	v, ok := a.Data().(*Variable)
	if !ok {
		return nil, &tensor.Error{
			Kind:    tensor.ErrBackendMismatch,
			Op:      "backward",
			Backend: Name,
			Err:     fmt.Errorf("array lives on %q, not %q", a.Backend(), Name),
		}
	}
	return v, nil
}
