package autodiff

import (
	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/tensor"
)

// record holds the variables every operation keeps.
type record struct {
	inputs []*Variable
	output *Variable
}

func (r record) Inputs() []*Variable { return r.inputs }
func (r record) Output() *Variable   { return r.output }

// BinaryOp records a + b, a - b, a * b or a / b.
//
// Gradients of broadcast operands are summed back to their shapes.
type BinaryOp struct {
	record
	op backend.BinaryOp
}

// Backward computes input gradients for the element-wise operation.
func (o *BinaryOp) Backward(grad backend.Native, inner backend.Backend) ([]backend.Native, error) {
	a, b := o.inputs[0].value, o.inputs[1].value
	var ga, gb backend.Native
	var err error
	switch o.op {
	case backend.OpAdd:
		ga, gb = grad, grad
	case backend.OpSubtract:
		ga = grad
		gb, err = inner.Unary(backend.OpNegative, grad)
	case backend.OpMultiply:
		if ga, err = inner.Binary(backend.OpMultiply, grad, b); err == nil {
			gb, err = inner.Binary(backend.OpMultiply, grad, a)
		}
	case backend.OpDivide:
		// d(a/b)/db = -(a/b)/b
		if ga, err = inner.Binary(backend.OpDivide, grad, b); err == nil {
			gb, err = chain(
				func() (backend.Native, error) { return inner.Binary(backend.OpMultiply, ga, o.output.value) },
				func(x backend.Native) (backend.Native, error) { return inner.Unary(backend.OpNegative, x) },
			)
		}
	}
	if err != nil {
		return nil, err
	}
	if ga, err = reduceBroadcast(ga, inner.Shape(a), inner); err != nil {
		return nil, err
	}
	if gb, err = reduceBroadcast(gb, inner.Shape(b), inner); err != nil {
		return nil, err
	}
	return []backend.Native{ga, gb}, nil
}

// UnaryOp records negative, exp, log or sqrt.
type UnaryOp struct {
	record
	op backend.UnaryOp
}

// Backward computes the input gradient for the element-wise function.
func (o *UnaryOp) Backward(grad backend.Native, inner backend.Backend) ([]backend.Native, error) {
	x, y := o.inputs[0].value, o.output.value
	var g backend.Native
	var err error
	switch o.op {
	case backend.OpNegative:
		g, err = inner.Unary(backend.OpNegative, grad)
	case backend.OpExp:
		g, err = inner.Binary(backend.OpMultiply, grad, y)
	case backend.OpLog:
		g, err = inner.Binary(backend.OpDivide, grad, x)
	case backend.OpSqrt:
		// d(sqrt x)/dx = 1 / (2 sqrt x)
		g, err = chain(
			func() (backend.Native, error) { return inner.Binary(backend.OpAdd, y, y) },
			func(twice backend.Native) (backend.Native, error) { return inner.Binary(backend.OpDivide, grad, twice) },
		)
	}
	if err != nil {
		return nil, err
	}
	return []backend.Native{g}, nil
}

// MatMulOp records a @ b for matrices.
type MatMulOp struct {
	record
}

// Backward computes grad @ b^T and a^T @ grad.
func (o *MatMulOp) Backward(grad backend.Native, inner backend.Backend) ([]backend.Native, error) {
	a, b := o.inputs[0].value, o.inputs[1].value
	bT, err := inner.PermuteDims(b, []int{1, 0})
	if err != nil {
		return nil, err
	}
	ga, err := inner.MatMul(grad, bT)
	if err != nil {
		return nil, err
	}
	aT, err := inner.PermuteDims(a, []int{1, 0})
	if err != nil {
		return nil, err
	}
	gb, err := inner.MatMul(aT, grad)
	if err != nil {
		return nil, err
	}
	return []backend.Native{ga, gb}, nil
}

// ReduceOp records a sum or mean over axes.
type ReduceOp struct {
	record
	op   backend.ReduceOp
	kept tensor.Shape
}

// Backward broadcasts the gradient back over the reduced axes.
func (o *ReduceOp) Backward(grad backend.Native, inner backend.Backend) ([]backend.Native, error) {
	x := o.inputs[0].value
	shape := inner.Shape(x)
	g, err := inner.Reshape(grad, o.kept)
	if err != nil {
		return nil, err
	}
	if g, err = inner.BroadcastTo(g, shape); err != nil {
		return nil, err
	}
	if o.op == backend.OpMean {
		n := shape.NumElements() / max(o.kept.NumElements(), 1)
		count, err := scalar(inner, float64(n), inner.DType(g))
		if err != nil {
			return nil, err
		}
		if g, err = inner.Binary(backend.OpDivide, g, count); err != nil {
			return nil, err
		}
	}
	return []backend.Native{g}, nil
}

// ReshapeOp records reshape, expand_dims and squeeze.
type ReshapeOp struct {
	record
}

// Backward reshapes the gradient to the input's shape.
func (o *ReshapeOp) Backward(grad backend.Native, inner backend.Backend) ([]backend.Native, error) {
	g, err := inner.Reshape(grad, inner.Shape(o.inputs[0].value))
	if err != nil {
		return nil, err
	}
	return []backend.Native{g}, nil
}

// PermuteOp records permute_dims.
type PermuteOp struct {
	record
	axes []int
}

// Backward applies the inverse permutation.
func (o *PermuteOp) Backward(grad backend.Native, inner backend.Backend) ([]backend.Native, error) {
	inv := make([]int, len(o.axes))
	for i, ax := range o.axes {
		inv[ax] = i
	}
	g, err := inner.PermuteDims(grad, inv)
	if err != nil {
		return nil, err
	}
	return []backend.Native{g}, nil
}

// CastOp records astype between floating-point types.
type CastOp struct {
	record
}

// Backward casts the gradient back to the input's dtype.
func (o *CastOp) Backward(grad backend.Native, inner backend.Backend) ([]backend.Native, error) {
	g, err := inner.Cast(grad, inner.DType(o.inputs[0].value))
	if err != nil {
		return nil, err
	}
	return []backend.Native{g}, nil
}

func chain(first func() (backend.Native, error), then func(backend.Native) (backend.Native, error)) (backend.Native, error) {
	x, err := first()
	if err != nil {
		return nil, err
	}
	return then(x)
}

func scalar(inner backend.Backend, v float64, dt tensor.DataType) (backend.Native, error) {
	r, err := tensor.FromFloat64s(tensor.Shape{}, dt, []float64{v})
	if err != nil {
		return nil, err
	}
	return inner.FromHost(r, tensor.CPU)
}

// reduceBroadcast sums grad over the axes along which an operand of shape
// target was broadcast.
//
//	Forward:  a[3,1] + b[3,4] -> c[3,4]
//	Backward: grad_c[3,4] -> grad_a[3,1]
func reduceBroadcast(grad backend.Native, target tensor.Shape, inner backend.Backend) (backend.Native, error) {
	shape := inner.Shape(grad)
	if shape.Equal(target) {
		return grad, nil
	}
	lead := len(shape) - len(target)
	var axes []int
	for i := range shape {
		if i < lead || (target[i-lead] == 1 && shape[i] != 1) {
			axes = append(axes, i)
		}
	}
	g := grad
	if len(axes) > 0 {
		var err error
		if g, err = inner.Reduce(backend.OpSum, grad, axes, true); err != nil {
			return nil, err
		}
	}
	return inner.Reshape(g, target)
}
