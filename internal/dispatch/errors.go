package dispatch

import (
	"errors"

	"github.com/born-ml/unitensor/internal/array"
	"github.com/born-ml/unitensor/internal/tensor"
)

// fail converts err into a *tensor.Error for c. Errors already carrying the
// primitive's name pass through. A backend's ErrNotImplemented surfaces as
// ErrNotImplementedForBackend.
func fail(c *Call, err error) error {
	if terr, ok := err.(*tensor.Error); ok && terr.Op == c.Prim.Name {
		return err
	}

	kind := tensor.KindOf(err)
	if kind == nil || errors.Is(kind, tensor.ErrNotImplemented) {
		kind = tensor.ErrNotImplementedForBackend
	}
	out := &tensor.Error{Kind: kind, Op: c.Prim.Name, Err: err}
	if c.resolved != nil {
		out.Backend = c.resolved.Name()
	} else if c.Backend != "" {
		out.Backend = c.Backend
	}
	out.Shapes, out.DTypes = operands(c)
	return out
}

// operands describes the array arguments of c.
func operands(c *Call) ([]tensor.Shape, []tensor.DataType) {
	var (
		shapes []tensor.Shape
		dtypes []tensor.DataType
	)
	for _, arg := range c.Args {
		switch x := arg.(type) {
		case *array.Array:
			shapes, dtypes = append(shapes, x.Shape()), append(dtypes, x.DType())
		default:
			if c.resolved != nil && c.resolved.Owns(x) {
				shapes = append(shapes, c.resolved.Shape(x))
				dtypes = append(dtypes, c.resolved.DType(x))
			}
		}
	}
	return shapes, dtypes
}

func newError(kind error, c *Call, err error) error {
	shapes, dtypes := operands(c)
	e := &tensor.Error{Kind: kind, Op: c.Prim.Name, Shapes: shapes, DTypes: dtypes, Err: err}
	if c.resolved != nil {
		e.Backend = c.resolved.Name()
	}
	return e
}
