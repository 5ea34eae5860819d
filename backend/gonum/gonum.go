// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gonum provides a backend computing with gonum.org/v1/gonum.
//
// Tensors store float64 values with a logical dtype and are immutable:
// writes such as SetItem produce new storage through ScatterND, and the
// array layer rebinds the result. Importing the package registers the
// backend as "gonum".
package gonum

import (
	"github.com/born-ml/unitensor/backend"
	internalgonum "github.com/born-ml/unitensor/internal/backend/gonum"
)

// Name is the registry name of the gonum backend.
const Name = internalgonum.Name

// Backend is the gonum backend.
type Backend = internalgonum.Backend

// Tensor is the gonum backend's native handle.
type Tensor = internalgonum.Tensor

// Compile-time check that Backend implements backend.Backend.
var _ backend.Backend = (*Backend)(nil)

// New creates a gonum backend.
func New() *Backend {
	return internalgonum.New()
}
