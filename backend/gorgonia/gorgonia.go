// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gorgonia provides a backend on the dense tensors of
// github.com/pdevine/tensor.
//
// Float16 and BFloat16 are not supported. Importing the package registers
// the backend as "gorgonia".
package gorgonia

import (
	"github.com/born-ml/unitensor/backend"
	internalgorgonia "github.com/born-ml/unitensor/internal/backend/gorgonia"
)

// Name is the registry name of the gorgonia backend.
const Name = internalgorgonia.Name

// Backend is the gorgonia backend.
type Backend = internalgorgonia.Backend

// Tensor is the gorgonia backend's native handle.
type Tensor = internalgorgonia.Tensor

// Compile-time check that Backend implements backend.Backend.
var _ backend.Backend = (*Backend)(nil)

// New creates a gorgonia backend.
func New() *Backend {
	return internalgorgonia.New()
}
