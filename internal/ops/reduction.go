package ops

import (
	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/dispatch"
)

var reducePrims = make(map[backend.ReduceOp]*dispatch.Primitive, len(backend.ReduceOps))

func init() {
	for _, op := range backend.ReduceOps {
		reducePrims[op] = &dispatch.Primitive{
			Name:     string(op),
			Requires: []string{string(op)},
			Impl: func(b backend.Backend, args []backend.Native, kw dispatch.Kwargs) ([]backend.Native, error) {
				axes, err := kw.Ints(kwAxes)
				if err != nil {
					return nil, err
				}
				keep, err := kw.Bool(kwKeepDims)
				if err != nil {
					return nil, err
				}
				out, err := b.Reduce(op, args[0], axes, keep)
				if err != nil {
					return nil, err
				}
				dt, ok, err := kw.DType(kwDType)
				if err != nil {
					return nil, err
				}
				if ok && b.DType(out) != dt {
					return single(b.Cast(out, dt))
				}
				return []backend.Native{out}, nil
			},
		}
	}
}

// Reduce applies a reduction over Axes (every axis by default).
func Reduce(op backend.ReduceOp, x any, opts ...Option) (any, error) {
	return call(reducePrims[op], []any{x}, nil, opts)
}

// Sum adds the elements of x.
func Sum(x any, opts ...Option) (any, error) { return Reduce(backend.OpSum, x, opts...) }

// Mean averages the elements of x. Integer inputs give float64.
func Mean(x any, opts ...Option) (any, error) { return Reduce(backend.OpMean, x, opts...) }

// Max returns the largest element of x.
func Max(x any, opts ...Option) (any, error) { return Reduce(backend.OpMax, x, opts...) }

// Min returns the smallest element of x.
func Min(x any, opts ...Option) (any, error) { return Reduce(backend.OpMin, x, opts...) }

// Prod multiplies the elements of x.
func Prod(x any, opts ...Option) (any, error) { return Reduce(backend.OpProd, x, opts...) }
