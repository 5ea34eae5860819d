// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the unified, backend-independent array API of unitensor.
//
// # Overview
//
// Every operation in this package accepts Arrays, native handles of any
// registered backend, Go literals and Containers, and runs through the same
// dispatch pipeline:
//   - Go scalars and slices are converted to Arrays
//   - dtypes are promoted and shapes broadcast where the operation needs it
//   - Containers are mapped leaf by leaf
//   - Out writes the result into an existing Array
//   - the backend is resolved and the native result wrapped again
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/unitensor/tensor"
//	    _ "github.com/born-ml/unitensor/backend/all"
//	)
//
//	func main() {
//	    x, _ := tensor.New([]float32{1, 2, 3})
//	    y, _ := tensor.Add(x, []float32{4, 5, 6}) // [5 7 9]
//	    fmt.Println(y)
//	}
//
// # Backends
//
// Backends register themselves by name. The backend of a call is, in order:
// the OnBackend option, the top of the backend stack (see the backend
// package), the backend of the first Array argument, the UNITENSOR_BACKEND
// environment variable, and finally "cpu".
//
//	err := backend.Use("gonum", func(backend.Backend) error {
//	    z, err := tensor.Zeros(tensor.Shape{2, 2}) // a gonum array
//	    ...
//	})
//
// # Views
//
// Indexing and shape manipulation return views. A view and the array it was
// derived from stay consistent: writing into either is visible through the
// other, on every backend.
//
//	x, _ := tensor.New([]float32{1, 2, 3})
//	y, _ := x.GetItem(tensor.Query{tensor.Range(0, 2)})
//	_ = x.SetItem(tensor.Query{tensor.Index(0)}, 10) // y is now [10 2]
//
// # Containers
//
// A Container is an ordered tree of arrays addressed by key chains such as
// "layer1/weight". Passing one to an operation maps the operation over its
// leaves:
//
//	params := container.FromMap(map[string]any{"w": w, "b": b})
//	scaled, _ := tensor.Multiply(params, 0.5) // a Container
//
// # Errors
//
// Failures are returned as *Error values carrying the operation name and the
// shapes and dtypes involved. Match them with errors.Is against the Err*
// kinds:
//
//	if errors.Is(err, tensor.ErrBroadcast) { ... }
package tensor
