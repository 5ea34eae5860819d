// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/unitensor/internal/tensor"
)

// RawTensor is the host representation every backend converts to and from.
//
// RawTensor provides:
//   - Shape and type information via Shape(), DType(), Device()
//   - Type-safe data access via AsFloat32(), AsInt64(), etc.
//   - Element access across dtypes via Float64At() and SetFloat64()
//   - Deep copies via Clone()
//
// Most users should use Array instead.
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
//	data := raw.AsFloat32()  // Type-safe access
//	x, _ := tensor.New(raw)  // Materialised on the current backend
type RawTensor = tensor.RawTensor

// NewRaw creates a zero-filled raw tensor with the given shape, dtype, and device.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromFloat64s creates a raw tensor of dtype holding values.
func FromFloat64s(shape Shape, dtype DataType, values []float64) (*RawTensor, error) {
	return tensor.FromFloat64s(shape, dtype, values)
}
