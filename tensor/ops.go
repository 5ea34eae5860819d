// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/unitensor/container"
	"github.com/born-ml/unitensor/internal/ops"
)

// Every operation returns an *Array, or a *container.Container when any
// argument is a Container. Operations with several outputs return []*Array.

// Creation functions

// Asarray converts x to an Array. An Array without options is returned as
// is.
//
// Example:
//
//	x, _ := tensor.Asarray([]int{1, 2, 3}, tensor.DType(tensor.Int32))
func Asarray(x any, opts ...Option) (any, error) { return ops.Asarray(x, opts...) }

// Zeros creates an array filled with zeros.
//
// Example:
//
//	x, _ := tensor.Zeros(tensor.Shape{2, 3}, tensor.DType(tensor.Float64))
func Zeros(shape Shape, opts ...Option) (any, error) { return ops.Zeros(shape, opts...) }

// Ones creates an array filled with ones.
func Ones(shape Shape, opts ...Option) (any, error) { return ops.Ones(shape, opts...) }

// Full creates an array filled with v. The dtype follows v unless DType is
// given.
func Full(shape Shape, v any, opts ...Option) (any, error) { return ops.Full(shape, v, opts...) }

// Arange creates a 1D array with values from start to stop (exclusive).
//
// Example:
//
//	x, _ := tensor.Arange(0, 10, 1) // [0, 1, 2, ..., 9]
func Arange(start, stop, step float64, opts ...Option) (any, error) {
	return ops.Arange(start, stop, step, opts...)
}

// Element-wise functions

// Add returns x + y.
//
// Example:
//
//	y, _ := tensor.Add([]float32{1, 2, 3}, []float32{4, 5, 6}) // [5 7 9]
func Add(x, y any, opts ...Option) (any, error) { return ops.Add(x, y, opts...) }

// Subtract returns x - y.
func Subtract(x, y any, opts ...Option) (any, error) { return ops.Subtract(x, y, opts...) }

// Multiply returns x * y.
func Multiply(x, y any, opts ...Option) (any, error) { return ops.Multiply(x, y, opts...) }

// Divide returns x / y. Integer division truncates.
func Divide(x, y any, opts ...Option) (any, error) { return ops.Divide(x, y, opts...) }

// Pow returns x raised to y.
func Pow(x, y any, opts ...Option) (any, error) { return ops.Pow(x, y, opts...) }

// Maximum returns the element-wise maximum.
func Maximum(x, y any, opts ...Option) (any, error) { return ops.Maximum(x, y, opts...) }

// Minimum returns the element-wise minimum.
func Minimum(x, y any, opts ...Option) (any, error) { return ops.Minimum(x, y, opts...) }

// Equal returns x == y as a bool array.
func Equal(x, y any, opts ...Option) (any, error) { return ops.Equal(x, y, opts...) }

// NotEqual returns x != y as a bool array.
func NotEqual(x, y any, opts ...Option) (any, error) { return ops.NotEqual(x, y, opts...) }

// Less returns x < y as a bool array.
func Less(x, y any, opts ...Option) (any, error) { return ops.Less(x, y, opts...) }

// LessEqual returns x <= y as a bool array.
func LessEqual(x, y any, opts ...Option) (any, error) { return ops.LessEqual(x, y, opts...) }

// Greater returns x > y as a bool array.
func Greater(x, y any, opts ...Option) (any, error) { return ops.Greater(x, y, opts...) }

// GreaterEqual returns x >= y as a bool array.
func GreaterEqual(x, y any, opts ...Option) (any, error) { return ops.GreaterEqual(x, y, opts...) }

// Negative returns -x.
func Negative(x any, opts ...Option) (any, error) { return ops.Negative(x, opts...) }

// Abs returns |x|.
func Abs(x any, opts ...Option) (any, error) { return ops.Abs(x, opts...) }

// Exp returns e^x.
func Exp(x any, opts ...Option) (any, error) { return ops.Exp(x, opts...) }

// Log returns the natural logarithm of x.
func Log(x any, opts ...Option) (any, error) { return ops.Log(x, opts...) }

// Sqrt returns the square root of x.
func Sqrt(x any, opts ...Option) (any, error) { return ops.Sqrt(x, opts...) }

// Linear algebra

// MatMul returns the matrix product of x and y.
//
// Example:
//
//	y, _ := tensor.MatMul([][]float32{{1, 2}, {3, 4}}, [][]float32{{5}, {6}}) // [[17] [39]]
func MatMul(x, y any, opts ...Option) (any, error) { return ops.MatMul(x, y, opts...) }

// Manipulation functions

// Reshape returns a view of x with a new shape. One dimension may be -1.
func Reshape(x any, shape Shape, opts ...Option) (any, error) {
	return ops.Reshape(x, shape, opts...)
}

// Flatten returns a 1D view of x.
func Flatten(x any, opts ...Option) (any, error) { return ops.Flatten(x, opts...) }

// PermuteDims returns a view of x with its axes reordered. Nil axes
// reverse them.
func PermuteDims(x any, axes []int, opts ...Option) (any, error) {
	return ops.PermuteDims(x, axes, opts...)
}

// ExpandDims returns a view of x with a size-1 axis inserted at axis.
func ExpandDims(x any, axis int, opts ...Option) (any, error) {
	return ops.ExpandDims(x, axis, opts...)
}

// Squeeze returns a view of x without the given size-1 axes, or without
// all of them when axes is nil.
func Squeeze(x any, axes []int, opts ...Option) (any, error) {
	return ops.Squeeze(x, axes, opts...)
}

// BroadcastTo returns a view of x broadcast to shape.
func BroadcastTo(x any, shape Shape, opts ...Option) (any, error) {
	return ops.BroadcastTo(x, shape, opts...)
}

// BroadcastArrays broadcasts every argument to their common shape.
func BroadcastArrays(xs []any, opts ...Option) (any, error) {
	return ops.BroadcastArrays(xs, opts...)
}

// Concat joins xs along axis.
//
// Example:
//
//	c, _ := tensor.Concat([]any{a, b}, 0) // (2, 3) + (2, 3) -> (4, 3)
func Concat(xs []any, axis int, opts ...Option) (any, error) {
	return ops.Concat(xs, axis, opts...)
}

// Astype returns a copy of x cast to dt.
func Astype(x any, dt DataType, opts ...Option) (any, error) {
	return ops.Astype(x, dt, opts...)
}

// Copy returns a copy of x sharing no storage with it.
func Copy(x any, opts ...Option) (any, error) { return ops.Copy(x, opts...) }

// Reductions

// Sum adds the elements of x over Axes, or over every axis.
//
// Example:
//
//	s, _ := tensor.Sum(x, tensor.Axes(0), tensor.KeepDims())
func Sum(x any, opts ...Option) (any, error) { return ops.Sum(x, opts...) }

// Mean averages the elements of x. Integer inputs give float64.
func Mean(x any, opts ...Option) (any, error) { return ops.Mean(x, opts...) }

// Max returns the largest element of x.
func Max(x any, opts ...Option) (any, error) { return ops.Max(x, opts...) }

// Min returns the smallest element of x.
func Min(x any, opts ...Option) (any, error) { return ops.Min(x, opts...) }

// Prod multiplies the elements of x.
func Prod(x any, opts ...Option) (any, error) { return ops.Prod(x, opts...) }

// Result helpers

// AsArray asserts that an operation returned a single Array.
//
// Example:
//
//	y, err := tensor.AsArray(tensor.Add(x, 1))
func AsArray(v any, err error) (*Array, error) { return ops.AsArray(v, err) }

// AsContainer asserts that an operation returned a Container.
func AsContainer(v any, err error) (*container.Container, error) { return ops.AsContainer(v, err) }
