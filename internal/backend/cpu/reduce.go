package cpu

import (
	"fmt"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/tensor"
)

// NormalizeAxes maps axes into [0, ndim) and rejects duplicates.
// An empty list selects every axis.
func NormalizeAxes(axes []int, ndim int) ([]int, error) {
	if len(axes) == 0 {
		all := make([]int, ndim)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	seen := make([]bool, ndim)
	out := make([]int, len(axes))
	for i, ax := range axes {
		a, err := tensor.NormalizeAxis(ax, ndim)
		if err != nil {
			return nil, err
		}
		if seen[a] {
			return nil, fmt.Errorf("duplicate axis %d", ax)
		}
		seen[a] = true
		out[i] = a
	}
	return out, nil
}

// ReducedShape returns the output shape of reducing shape over axes, with and
// without the reduced dimensions kept as size 1.
func ReducedShape(shape tensor.Shape, axes []int) (kept, dropped tensor.Shape) {
	reduced := make([]bool, len(shape))
	for _, ax := range axes {
		reduced[ax] = true
	}
	kept = make(tensor.Shape, len(shape))
	dropped = tensor.Shape{}
	for d, dim := range shape {
		if reduced[d] {
			kept[d] = 1
			continue
		}
		kept[d] = dim
		dropped = append(dropped, dim)
	}
	return kept, dropped
}

// Reduce applies op over axes (all axes when empty).
//
// Sum, prod and mean of bool count as int64; mean of integers is float64.
// Max and min of an empty selection fail.
func (k Kernels) Reduce(op backend.ReduceOp, x *tensor.RawTensor, axes []int, keepDims bool) (*tensor.RawTensor, error) {
	shape := x.Shape()
	norm, err := NormalizeAxes(axes, len(shape))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	kept, dropped := ReducedShape(shape, norm)
	if (op == backend.OpMax || op == backend.OpMin) && kept.NumElements() > 0 && x.NumElements() == 0 {
		return nil, fmt.Errorf("%s: zero-size reduction has no identity", op)
	}

	dt := x.DType()
	switch {
	case dt == tensor.Bool && op != backend.OpMax && op != backend.OpMin:
		dt = tensor.Int64
	case op == backend.OpMean && !dt.IsFloat():
		dt = tensor.Float64
	}
	ct := computeType(dt)
	xc := castTo(x, ct)

	var out *tensor.RawTensor
	switch ct {
	case tensor.Uint8:
		out, err = reduceTyped[uint8](op, xc, norm, kept)
	case tensor.Int8:
		out, err = reduceTyped[int8](op, xc, norm, kept)
	case tensor.Int16:
		out, err = reduceTyped[int16](op, xc, norm, kept)
	case tensor.Int32:
		out, err = reduceTyped[int32](op, xc, norm, kept)
	case tensor.Int64:
		out, err = reduceTyped[int64](op, xc, norm, kept)
	case tensor.Float32:
		out, err = reduceTyped[float32](op, xc, norm, kept)
	case tensor.Float64:
		out, err = reduceTyped[float64](op, xc, norm, kept)
	default:
		return nil, fmt.Errorf("%s: unsupported dtype %s", op, dt)
	}
	if err != nil {
		return nil, err
	}

	out = castTo(out, dt)
	if keepDims {
		return out, nil
	}
	return out.Reshape(dropped)
}

func reduceTyped[T tensor.Element](op backend.ReduceOp, x *tensor.RawTensor, axes []int, kept tensor.Shape) (*tensor.RawTensor, error) {
	out, err := tensor.NewRaw(kept, x.DType(), tensor.CPU)
	if err != nil {
		return nil, err
	}
	xv, ov := tensor.View[T](x), tensor.View[T](out)

	var combine func(acc, v T) T
	switch op {
	case backend.OpSum, backend.OpMean:
		combine = func(acc, v T) T { return acc + v }
	case backend.OpProd:
		combine = func(acc, v T) T { return acc * v }
		for i := range ov {
			ov[i] = 1
		}
	case backend.OpMax:
		combine = func(acc, v T) T { return max(acc, v) }
	case backend.OpMin:
		combine = func(acc, v T) T { return min(acc, v) }
	default:
		return nil, fmt.Errorf("%w: reduction %q", tensor.ErrNotImplemented, op)
	}

	// Broadcasting the kept shape back over the input maps every input
	// element to its output slot.
	slot := tensor.NewBroadcaster(x.Shape(), kept)
	seen := make([]bool, len(ov))
	firstWins := op == backend.OpMax || op == backend.OpMin
	for i, v := range xv {
		j := slot.Index(i)
		if firstWins && !seen[j] {
			ov[j] = v
			seen[j] = true
			continue
		}
		ov[j] = combine(ov[j], v)
	}

	if op == backend.OpMean && len(ov) > 0 {
		count := len(xv) / len(ov)
		for i := range ov {
			ov[i] /= T(count)
		}
	}
	return out, nil
}
