package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/parallel"
	"github.com/born-ml/unitensor/internal/tensor"
)

// computeType is the dtype kernels run in for dt. Half precision types
// compute in float32 and bool arithmetic computes in uint8.
func computeType(dt tensor.DataType) tensor.DataType {
	switch dt {
	case tensor.Float16, tensor.BFloat16:
		return tensor.Float32
	case tensor.Bool:
		return tensor.Uint8
	}
	return dt
}

func castTo(r *tensor.RawTensor, dt tensor.DataType) *tensor.RawTensor {
	if r.DType() == dt {
		return r
	}
	return r.Cast(dt)
}

// Binary computes op(a, b) with NumPy-style broadcasting. Operands of
// different dtypes are promoted first; comparisons return bool.
func (k Kernels) Binary(op backend.BinaryOp, a, b *tensor.RawTensor) (*tensor.RawTensor, error) {
	outShape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, err
	}

	dt := tensor.PromoteTypes(a.DType(), b.DType())
	ct := computeType(dt)
	a, b = castTo(a, ct), castTo(b, ct)

	var out *tensor.RawTensor
	switch ct {
	case tensor.Uint8:
		out, err = binaryTyped[uint8](k, op, a, b, outShape)
	case tensor.Int8:
		out, err = binaryTyped[int8](k, op, a, b, outShape)
	case tensor.Int16:
		out, err = binaryTyped[int16](k, op, a, b, outShape)
	case tensor.Int32:
		out, err = binaryTyped[int32](k, op, a, b, outShape)
	case tensor.Int64:
		out, err = binaryTyped[int64](k, op, a, b, outShape)
	case tensor.Float32:
		out, err = binaryTyped[float32](k, op, a, b, outShape)
	case tensor.Float64:
		out, err = binaryTyped[float64](k, op, a, b, outShape)
	default:
		return nil, fmt.Errorf("%s: unsupported dtype %s", op, dt)
	}
	if err != nil {
		return nil, err
	}

	if !op.IsComparison() {
		out = castTo(out, dt)
	}
	return out, nil
}

func binaryTyped[T tensor.Element](k Kernels, op backend.BinaryOp, a, b *tensor.RawTensor, outShape tensor.Shape) (*tensor.RawTensor, error) {
	av, bv := tensor.View[T](a), tensor.View[T](b)
	ai := tensor.NewBroadcaster(outShape, a.Shape())
	bi := tensor.NewBroadcaster(outShape, b.Shape())
	n := outShape.NumElements()

	if op.IsComparison() {
		cmp, err := compareFunc[T](op)
		if err != nil {
			return nil, err
		}
		out, err := tensor.NewRaw(outShape, tensor.Bool, tensor.CPU)
		if err != nil {
			return nil, err
		}
		ov := out.AsBool()
		parallel.For(n, func(i int) {
			ov[i] = cmp(av[ai.Index(i)], bv[bi.Index(i)])
		}, k.cfg)
		return out, nil
	}

	fn, err := arithFunc[T](op)
	if err != nil {
		return nil, err
	}
	out, err := tensor.NewRaw(outShape, tensor.DTypeOf[T](), tensor.CPU)
	if err != nil {
		return nil, err
	}
	ov := tensor.View[T](out)
	parallel.For(n, func(i int) {
		ov[i] = fn(av[ai.Index(i)], bv[bi.Index(i)])
	}, k.cfg)
	return out, nil
}

func arithFunc[T tensor.Element](op backend.BinaryOp) (func(x, y T) T, error) {
	switch op {
	case backend.OpAdd:
		return func(x, y T) T { return x + y }, nil
	case backend.OpSubtract:
		return func(x, y T) T { return x - y }, nil
	case backend.OpMultiply:
		return func(x, y T) T { return x * y }, nil
	case backend.OpDivide:
		if tensor.DTypeOf[T]().IsFloat() {
			return func(x, y T) T { return x / y }, nil
		}
		return func(x, y T) T {
			if y == 0 {
				return 0
			}
			return x / y
		}, nil
	case backend.OpPow:
		return func(x, y T) T { return T(math.Pow(float64(x), float64(y))) }, nil
	case backend.OpMaximum:
		return func(x, y T) T { return max(x, y) }, nil
	case backend.OpMinimum:
		return func(x, y T) T { return min(x, y) }, nil
	}
	return nil, fmt.Errorf("%w: binary op %q", tensor.ErrNotImplemented, op)
}

func compareFunc[T tensor.Element](op backend.BinaryOp) (func(x, y T) bool, error) {
	switch op {
	case backend.OpEqual:
		return func(x, y T) bool { return x == y }, nil
	case backend.OpNotEqual:
		return func(x, y T) bool { return x != y }, nil
	case backend.OpLess:
		return func(x, y T) bool { return x < y }, nil
	case backend.OpLessEqual:
		return func(x, y T) bool { return x <= y }, nil
	case backend.OpGreater:
		return func(x, y T) bool { return x > y }, nil
	case backend.OpGreaterEqual:
		return func(x, y T) bool { return x >= y }, nil
	}
	return nil, fmt.Errorf("%w: comparison %q", tensor.ErrNotImplemented, op)
}

// Unary computes op(x) element-wise. Integer inputs to exp, log and sqrt
// are computed in float64 and truncated back.
func (k Kernels) Unary(op backend.UnaryOp, x *tensor.RawTensor) (*tensor.RawTensor, error) {
	dt := x.DType()
	ct := computeType(dt)
	xc := castTo(x, ct)

	var (
		out *tensor.RawTensor
		err error
	)
	switch ct {
	case tensor.Uint8:
		out, err = unaryTyped[uint8](k, op, xc)
	case tensor.Int8:
		out, err = unaryTyped[int8](k, op, xc)
	case tensor.Int16:
		out, err = unaryTyped[int16](k, op, xc)
	case tensor.Int32:
		out, err = unaryTyped[int32](k, op, xc)
	case tensor.Int64:
		out, err = unaryTyped[int64](k, op, xc)
	case tensor.Float32:
		out, err = unaryTyped[float32](k, op, xc)
	case tensor.Float64:
		out, err = unaryTyped[float64](k, op, xc)
	default:
		return nil, fmt.Errorf("%s: unsupported dtype %s", op, dt)
	}
	if err != nil {
		return nil, err
	}
	return castTo(out, dt), nil
}

func unaryTyped[T tensor.Element](k Kernels, op backend.UnaryOp, x *tensor.RawTensor) (*tensor.RawTensor, error) {
	fn, err := unaryFunc[T](op)
	if err != nil {
		return nil, err
	}
	out, err := tensor.NewRaw(x.Shape(), x.DType(), tensor.CPU)
	if err != nil {
		return nil, err
	}
	xv, ov := tensor.View[T](x), tensor.View[T](out)
	parallel.For(len(xv), func(i int) {
		ov[i] = fn(xv[i])
	}, k.cfg)
	return out, nil
}

func unaryFunc[T tensor.Element](op backend.UnaryOp) (func(x T) T, error) {
	switch op {
	case backend.OpNegative:
		return func(x T) T { return -x }, nil
	case backend.OpAbs:
		return func(x T) T {
			if x < 0 {
				return -x
			}
			return x
		}, nil
	case backend.OpExp:
		return func(x T) T { return T(math.Exp(float64(x))) }, nil
	case backend.OpLog:
		return func(x T) T { return T(math.Log(float64(x))) }, nil
	case backend.OpSqrt:
		return func(x T) T { return T(math.Sqrt(float64(x))) }, nil
	}
	return nil, fmt.Errorf("%w: unary op %q", tensor.ErrNotImplemented, op)
}
