// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package backend provides the backend registry of unitensor.
//
// # Overview
//
// A backend wraps one native tensor library behind the Backend interface.
// Backends register themselves by name in init; importing
// backend/all registers every built-in one:
//   - cpu: pure Go kernels, mutable in place
//   - gonum: float64 storage computed with gonum
//   - gorgonia: dense tensors of github.com/pdevine/tensor
//   - autodiff: gradient-tracking decorator over cpu
//
// # Selecting a backend
//
// The current backend is the top of a process-wide stack. Use pushes a
// backend for the duration of a function:
//
//	err := backend.Use("gonum", func(b backend.Backend) error {
//	    x, err := tensor.Ones(tensor.Shape{3}) // lives on gonum
//	    ...
//	})
//
// The stack is shared by every goroutine. Callers needing per-goroutine
// selection pass tensor.OnBackend to each call instead.
package backend

import (
	"github.com/born-ml/unitensor/internal/backend"
)

// Backend is the interface every native tensor library is wrapped in.
type Backend = backend.Backend

// Native is a tensor handle owned by exactly one backend.
type Native = backend.Native

// Capabilities describes what a backend supports.
type Capabilities = backend.Capabilities

// Loader constructs a backend on first use.
type Loader = backend.Loader

// Register makes a backend available under name. It panics if name is
// already registered.
func Register(name string, loader Loader) {
	backend.Register(name, loader)
}

// Names returns every registered backend name, sorted.
func Names() []string {
	return backend.Names()
}

// Load returns the named backend, constructing it on first use.
func Load(name string) (Backend, error) {
	return backend.Load(name)
}

// SetBackend pushes name onto the backend stack. release pops it.
//
// Example:
//
//	release, err := backend.SetBackend("gorgonia")
//	if err != nil {
//	    return err
//	}
//	defer release()
func SetBackend(name string) (release func(), err error) {
	return backend.SetBackend(name)
}

// PreviousBackend pops the backend stack and returns the popped name.
func PreviousBackend() string {
	return backend.PreviousBackend()
}

// Use runs fn with name as the current backend and pops it on every exit
// path.
func Use(name string, fn func(Backend) error) error {
	return backend.Use(name, fn)
}

// Current returns the backend a call with args would run on.
func Current(args ...any) (Backend, error) {
	return backend.Current(args...)
}

// Stack returns the backend stack, top first.
func Stack() []string {
	return backend.Stack()
}

// Owner returns the backend owning native v, or nil.
func Owner(v any) Backend {
	return backend.Owner(v)
}
