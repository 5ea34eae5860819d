package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/unitensor/internal/array"
	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/dispatch"
	"github.com/born-ml/unitensor/internal/tensor"
)

// View primitives return arrays tracked in their operand's view graph, so
// writes through either side stay consistent.
var (
	reshapePrim = &dispatch.Primitive{
		Name:     backend.OpReshape,
		Requires: []string{backend.OpReshape},
		View: func(x *array.Array, kw dispatch.Kwargs) (*array.Array, error) {
			shape, err := kw.Shape(kwShape)
			if err != nil {
				return nil, err
			}
			return x.Reshape(shape)
		},
	}

	flattenPrim = &dispatch.Primitive{
		Name:     "flatten",
		Requires: []string{backend.OpReshape},
		View: func(x *array.Array, _ dispatch.Kwargs) (*array.Array, error) {
			return x.Flatten()
		},
	}

	permuteDimsPrim = &dispatch.Primitive{
		Name:     backend.OpPermuteDims,
		Requires: []string{backend.OpPermuteDims},
		View: func(x *array.Array, kw dispatch.Kwargs) (*array.Array, error) {
			axes, err := kw.Ints(kwAxes)
			if err != nil {
				return nil, err
			}
			return x.PermuteDims(axes...)
		},
	}

	expandDimsPrim = &dispatch.Primitive{
		Name:     backend.OpExpandDims,
		Requires: []string{backend.OpExpandDims},
		View: func(x *array.Array, kw dispatch.Kwargs) (*array.Array, error) {
			axis, err := kw.Int(kwAxis, 0)
			if err != nil {
				return nil, err
			}
			return x.ExpandDims(axis)
		},
	}

	squeezePrim = &dispatch.Primitive{
		Name:     backend.OpSqueeze,
		Requires: []string{backend.OpSqueeze},
		View: func(x *array.Array, kw dispatch.Kwargs) (*array.Array, error) {
			axes, err := kw.Ints(kwAxes)
			if err != nil {
				return nil, err
			}
			return x.Squeeze(axes...)
		},
	}

	broadcastToPrim = &dispatch.Primitive{
		Name:     backend.OpBroadcastTo,
		Requires: []string{backend.OpBroadcastTo},
		View: func(x *array.Array, kw dispatch.Kwargs) (*array.Array, error) {
			shape, err := kw.Shape(kwShape)
			if err != nil {
				return nil, err
			}
			return x.BroadcastTo(shape)
		},
	}
)

var (
	concatPrim = &dispatch.Primitive{
		Name:     backend.OpConcat,
		Promote:  true,
		Requires: []string{backend.OpConcat},
		Impl: func(b backend.Backend, args []backend.Native, kw dispatch.Kwargs) ([]backend.Native, error) {
			axis, err := kw.Int(kwAxis, 0)
			if err != nil {
				return nil, err
			}
			if len(args) == 0 {
				return nil, errors.Wrap(tensor.ErrInvalidInputKind, "concat needs at least one array")
			}
			return single(b.Concat(args, axis))
		},
	}

	astypePrim = &dispatch.Primitive{
		Name:     backend.OpCast,
		Requires: []string{backend.OpCast},
		Impl: func(b backend.Backend, args []backend.Native, kw dispatch.Kwargs) ([]backend.Native, error) {
			dt, ok, err := kw.DType(kwDType)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.Wrap(tensor.ErrInvalidInputKind, "astype needs a dtype")
			}
			if b.DType(args[0]) == dt {
				return single(copyNative(b, args[0]))
			}
			return single(b.Cast(args[0], dt))
		},
	}

	copyPrim = &dispatch.Primitive{
		Name: "copy",
		Impl: func(b backend.Backend, args []backend.Native, _ dispatch.Kwargs) ([]backend.Native, error) {
			return single(copyNative(b, args[0]))
		},
	}

	broadcastArraysPrim = &dispatch.Primitive{
		Name:     "broadcast_arrays",
		Requires: []string{backend.OpBroadcastTo},
		Impl: func(b backend.Backend, args []backend.Native, _ dispatch.Kwargs) ([]backend.Native, error) {
			shapes := make([]tensor.Shape, len(args))
			for i, x := range args {
				shapes[i] = b.Shape(x)
			}
			shape, err := tensor.BroadcastAll(shapes...)
			if err != nil {
				return nil, err
			}
			out := make([]backend.Native, len(args))
			for i, x := range args {
				if out[i], err = b.BroadcastTo(x, shape); err != nil {
					return nil, err
				}
			}
			return out, nil
		},
	}
)

// Reshape returns a view of x with a new shape. One dimension may be -1.
func Reshape(x any, shape tensor.Shape, opts ...Option) (any, error) {
	return call(reshapePrim, []any{x}, dispatch.Kwargs{kwShape: shape.Clone()}, opts)
}

// Flatten returns a 1-D view of x.
func Flatten(x any, opts ...Option) (any, error) {
	return call(flattenPrim, []any{x}, nil, opts)
}

// PermuteDims returns a view of x with its axes reordered. No axes reverses
// them.
func PermuteDims(x any, axes []int, opts ...Option) (any, error) {
	return call(permuteDimsPrim, []any{x}, dispatch.Kwargs{kwAxes: append([]int(nil), axes...)}, opts)
}

// ExpandDims returns a view of x with a size-1 axis inserted at axis.
func ExpandDims(x any, axis int, opts ...Option) (any, error) {
	return call(expandDimsPrim, []any{x}, dispatch.Kwargs{kwAxis: axis}, opts)
}

// Squeeze returns a view of x without the given size-1 axes, or without all
// of them when axes is empty.
func Squeeze(x any, axes []int, opts ...Option) (any, error) {
	return call(squeezePrim, []any{x}, dispatch.Kwargs{kwAxes: append([]int(nil), axes...)}, opts)
}

// BroadcastTo returns a view of x broadcast to shape.
func BroadcastTo(x any, shape tensor.Shape, opts ...Option) (any, error) {
	return call(broadcastToPrim, []any{x}, dispatch.Kwargs{kwShape: shape.Clone()}, opts)
}

// BroadcastArrays broadcasts every argument to their common shape. The
// result holds one new array per argument.
func BroadcastArrays(xs []any, opts ...Option) (any, error) {
	return call(broadcastArraysPrim, append([]any(nil), xs...), nil, opts)
}

// Concat joins xs along axis after promoting them to a common dtype.
func Concat(xs []any, axis int, opts ...Option) (any, error) {
	return call(concatPrim, append([]any(nil), xs...), dispatch.Kwargs{kwAxis: axis}, opts)
}

// Astype returns a copy of x cast to dt.
func Astype(x any, dt tensor.DataType, opts ...Option) (any, error) {
	return call(astypePrim, []any{x}, dispatch.Kwargs{kwDType: dt}, opts)
}

// Copy returns a copy of x that shares no storage or view graph with it.
func Copy(x any, opts ...Option) (any, error) {
	return call(copyPrim, []any{x}, nil, opts)
}
