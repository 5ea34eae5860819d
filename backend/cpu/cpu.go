// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go reference backend.
//
// # Overview
//
// The cpu backend:
//   - Runs without CGO
//   - Supports every dtype, including float16 and bfloat16
//   - Mutates its tensors in place for SetItem and out= calls
//   - Splits large element-wise loops across UNITENSOR_NUM_THREADS workers
//
// Importing the package registers the backend as "cpu".
package cpu

import (
	"github.com/born-ml/unitensor/backend"
	internalcpu "github.com/born-ml/unitensor/internal/backend/cpu"
	"github.com/born-ml/unitensor/internal/parallel"
)

// Name is the registry name of the cpu backend.
const Name = internalcpu.Name

// Backend represents the CPU backend implementation.
type Backend = internalcpu.Backend

// Compile-time check that Backend implements backend.Backend.
var _ backend.Backend = (*Backend)(nil)

// New creates a new CPU backend using UNITENSOR_NUM_THREADS workers.
//
// Example:
//
//	b := cpu.New()
//	x, _ := b.FromHost(raw, tensor.CPU)
func New() *Backend {
	return internalcpu.New()
}

// NewWithWorkers creates a CPU backend splitting work across n goroutines.
// n <= 1 disables parallel execution.
func NewWithWorkers(n int) *Backend {
	return internalcpu.NewWithConfig(parallel.WithWorkers(n))
}
