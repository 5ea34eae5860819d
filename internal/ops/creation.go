package ops

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/unitensor/internal/array"
	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/dispatch"
	"github.com/born-ml/unitensor/internal/envconfig"
	"github.com/born-ml/unitensor/internal/tensor"
)

var (
	asarrayPrim = &dispatch.Primitive{
		Name: "asarray",
		Impl: func(b backend.Backend, args []backend.Native, kw dispatch.Kwargs) ([]backend.Native, error) {
			dt, ok, err := kw.DType(kwDType)
			if err != nil {
				return nil, err
			}
			if !ok || b.DType(args[0]) == dt {
				return single(copyNative(b, args[0]))
			}
			return single(b.Cast(args[0], dt))
		},
	}

	fullPrim = &dispatch.Primitive{
		Name: "full",
		Impl: func(b backend.Backend, _ []backend.Native, kw dispatch.Kwargs) ([]backend.Native, error) {
			shape, err := kw.Shape(kwShape)
			if err != nil {
				return nil, err
			}
			fill := kw[kwFill]
			dt, ok, err := kw.DType(kwDType)
			if err != nil {
				return nil, err
			}
			if !ok {
				if dt, err = array.LiteralDType(fill); err != nil {
					return nil, err
				}
			}
			raw, err := tensor.NewRaw(shape, dt, device(kw))
			if err != nil {
				return nil, errors.Wrapf(tensor.ErrShapeMismatch, "%v", err)
			}
			if err := fillRaw(raw, fill); err != nil {
				return nil, err
			}
			return single(b.FromHost(raw, raw.Device()))
		},
	}

	arangePrim = &dispatch.Primitive{
		Name: "arange",
		Impl: func(b backend.Backend, _ []backend.Native, kw dispatch.Kwargs) ([]backend.Native, error) {
			start, err := kw.Float(kwStart, 0)
			if err != nil {
				return nil, err
			}
			stop, err := kw.Float(kwStop, 0)
			if err != nil {
				return nil, err
			}
			step, err := kw.Float(kwStep, 1)
			if err != nil {
				return nil, err
			}
			if step == 0 {
				return nil, errors.Wrap(tensor.ErrInvalidInputKind, "arange step must not be zero")
			}
			dt, ok, err := kw.DType(kwDType)
			if err != nil {
				return nil, err
			}
			if !ok {
				dt = envconfig.DefaultFloat()
				if integral(start) && integral(stop) && integral(step) {
					dt = envconfig.DefaultInt()
				}
			}
			n := max(0, int(math.Ceil((stop-start)/step)))
			raw, err := tensor.NewRaw(tensor.Shape{n}, dt, device(kw))
			if err != nil {
				return nil, err
			}
			for i := range n {
				raw.SetFloat64(i, start+float64(i)*step)
			}
			return single(b.FromHost(raw, raw.Device()))
		},
	}
)

func integral(v float64) bool {
	return v == math.Trunc(v)
}

// fillRaw sets every element of raw to v.
func fillRaw(raw *tensor.RawTensor, v any) error {
	var set func(i int)
	switch x := v.(type) {
	case bool:
		set = func(i int) { raw.SetBool(i, x) }
	case int:
		set = func(i int) { raw.SetInt64(i, int64(x)) }
	case int8:
		set = func(i int) { raw.SetInt64(i, int64(x)) }
	case int16:
		set = func(i int) { raw.SetInt64(i, int64(x)) }
	case int32:
		set = func(i int) { raw.SetInt64(i, int64(x)) }
	case int64:
		set = func(i int) { raw.SetInt64(i, x) }
	case uint8:
		set = func(i int) { raw.SetInt64(i, int64(x)) }
	case float32:
		set = func(i int) { raw.SetFloat64(i, float64(x)) }
	case float64:
		set = func(i int) { raw.SetFloat64(i, x) }
	default:
		return errors.Wrapf(tensor.ErrInvalidInputKind, "fill value %T", v)
	}
	for i := range raw.NumElements() {
		set(i)
	}
	return nil
}

// copyNative returns a copy of x detached from any variable tracking.
func copyNative(b backend.Backend, x backend.Native) (backend.Native, error) {
	plain, err := b.VariableData(x)
	if err != nil {
		return nil, err
	}
	raw, err := b.ToHost(plain)
	if err != nil {
		return nil, err
	}
	return b.FromHost(raw.Clone(), raw.Device())
}

// Asarray converts x to an Array. An Array argument without options is
// returned as is; otherwise the result is a new array, cast to DType and
// placed on OnBackend when given.
func Asarray(x any, opts ...Option) (any, error) {
	c := &dispatch.Call{}
	for _, opt := range opts {
		opt(c)
	}
	if a, ok := x.(*array.Array); ok {
		if c.Backend != "" && c.Backend != a.Backend() {
			moved, err := array.New(a, array.WithBackend(c.Backend))
			if err != nil {
				return nil, err
			}
			a, x = moved, moved
		}
		if len(c.Kwargs) == 0 && c.Out == nil {
			return a, nil
		}
	}
	if array.IsLiteral(x) && c.Out == nil {
		// Built at the requested dtype, not cast from the default float.
		var aopts []array.Option
		dt, ok, err := c.Kwargs.DType(kwDType)
		if err != nil {
			return nil, err
		}
		if ok {
			aopts = append(aopts, array.WithDType(dt))
		}
		if c.Backend != "" {
			aopts = append(aopts, array.WithBackend(c.Backend))
		}
		aopts = append(aopts, array.WithDevice(device(c.Kwargs)))
		a, err := array.New(x, aopts...)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return call(asarrayPrim, []any{x}, nil, opts)
}

// Zeros returns an array of zeros. The dtype defaults to the default float.
func Zeros(shape tensor.Shape, opts ...Option) (any, error) {
	return full(shape, 0.0, opts)
}

// Ones returns an array of ones. The dtype defaults to the default float.
func Ones(shape tensor.Shape, opts ...Option) (any, error) {
	return full(shape, 1.0, opts)
}

// Full returns an array filled with v. The dtype defaults to the dtype of
// the literal v.
func Full(shape tensor.Shape, v any, opts ...Option) (any, error) {
	return full(shape, v, opts)
}

func full(shape tensor.Shape, v any, opts []Option) (any, error) {
	return call(fullPrim, nil, dispatch.Kwargs{kwShape: shape.Clone(), kwFill: v}, opts)
}

// Arange returns evenly spaced values in [start, stop). The dtype is the
// default int when every bound is integral, the default float otherwise.
func Arange(start, stop, step float64, opts ...Option) (any, error) {
	return call(arangePrim, nil, dispatch.Kwargs{kwStart: start, kwStop: stop, kwStep: step}, opts)
}
