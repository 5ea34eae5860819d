// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/unitensor/internal/array"
	// The default backend is always available.
	_ "github.com/born-ml/unitensor/internal/backend/cpu"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Type aliases for public API

// Array wraps a native tensor of one backend.
//
// Array provides:
//   - Lazy metadata via Shape(), DType(), Device(), Strides()
//   - Views via GetItem(), Reshape(), PermuteDims(), T() and friends
//   - In-place mutation via SetItem() and Assign()
//   - Arithmetic methods (Add, Sub, Mul, ...) routed through dispatch
//   - Serialization via State(), MarshalBinary() and MarshalJSON()
type Array = array.Array

// NestedArray is a ragged batch of arrays of equal rank.
type NestedArray = array.NestedArray

// State is the persisted form of an Array: its host data, backend name and
// device.
type State = array.State

// ArrayOption configures New.
type ArrayOption = array.Option

// DataType represents the element type of an array.
type DataType = tensor.DataType

// Data type constants.
const (
	Bool     DataType = tensor.Bool
	Uint8    DataType = tensor.Uint8
	Int8     DataType = tensor.Int8
	Int16    DataType = tensor.Int16
	Int32    DataType = tensor.Int32
	Int64    DataType = tensor.Int64
	Float16  DataType = tensor.Float16
	BFloat16 DataType = tensor.BFloat16
	Float32  DataType = tensor.Float32
	Float64  DataType = tensor.Float64
)

// Device represents the device where array data resides.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	CUDA   Device = tensor.CUDA
	Vulkan Device = tensor.Vulkan
	Metal  Device = tensor.Metal
	WebGPU Device = tensor.WebGPU
)

// Shape represents the dimensions of an array.
// Example: Shape{2, 3, 4} represents a 3D array with dimensions 2×3×4.
type Shape = tensor.Shape

// Query selects part of an array: a list of Index, Slice and Ellipsis items.
type Query = tensor.Query

// Query items.
type (
	QueryItem = tensor.QueryItem
	Index     = tensor.Index
	Slice     = tensor.Slice
	Ellipsis  = tensor.Ellipsis
)

// All selects a whole axis, like ":".
func All() Slice { return tensor.All() }

// Range selects [start, stop) along an axis.
func Range(start, stop int) Slice { return tensor.Range(start, stop) }

// RangeStep selects [start, stop) with a step along an axis.
func RangeStep(start, stop, step int) Slice { return tensor.RangeStep(start, stop, step) }

// ParseQuery parses an index expression such as "0, 1:3, ...".
func ParseQuery(s string) (Query, error) { return tensor.ParseQuery(s) }

// Array constructors

// New wraps value in an Array.
//
// value may be an *Array (storage is shared), a native handle of a
// registered backend, a *RawTensor, or a Go scalar or nested slice.
//
// Example:
//
//	x, err := tensor.New([][]float64{{1, 2}, {3, 4}}, tensor.WithDType(tensor.Float64))
func New(value any, opts ...ArrayOption) (*Array, error) {
	return array.New(value, opts...)
}

// WithBackend places the new array on the named backend.
func WithBackend(name string) ArrayOption { return array.WithBackend(name) }

// WithDType sets the dtype of the new array.
func WithDType(dt DataType) ArrayOption { return array.WithDType(dt) }

// WithDevice sets the device of the new array.
func WithDevice(d Device) ArrayOption { return array.WithDevice(d) }

// WithDynamicBackend lets the array migrate to the current backend on use.
func WithDynamicBackend(dynamic bool) ArrayOption { return array.WithDynamicBackend(dynamic) }

// NewNested groups arrays of equal rank into a ragged batch.
func NewNested(items ...*Array) (*NestedArray, error) {
	return array.NewNested(items...)
}

// FromState rebuilds an Array on the backend recorded in s.
func FromState(s State) (*Array, error) {
	return array.FromState(s)
}

// Save writes named arrays to a safetensors file.
//
// Example:
//
//	err := tensor.Save("model.safetensors", map[string]*tensor.Array{"layer/w": w})
func Save(path string, arrays map[string]*Array) error {
	return array.Save(path, arrays)
}

// Load reads the arrays written by Save, each on its recorded backend.
func Load(path string) (map[string]*Array, error) {
	return array.Load(path)
}

// Type utilities

// PromoteTypes returns the dtype two operands are promoted to.
func PromoteTypes(a, b DataType) DataType {
	return tensor.PromoteTypes(a, b)
}

// ResultType returns the dtype all operands are promoted to.
func ResultType(dtypes ...DataType) DataType {
	return tensor.ResultType(dtypes...)
}

// ParseDataType parses a dtype name such as "float32" or "int64".
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

// BroadcastShapes computes the broadcast shape for two shapes following NumPy broadcasting rules.
// Returns the resulting shape and whether broadcasting is needed.
//
// Example:
//
//	resultShape, needsBroadcast, err := tensor.BroadcastShapes(
//	    tensor.Shape{3, 1},
//	    tensor.Shape{3, 4},
//	)
//	// resultShape = [3, 4], needsBroadcast = true
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}
