// Package ops defines the operations of the unified API. Each operation is
// a dispatch.Primitive run through the default pipeline, so every function
// accepts Arrays, backend natives, Go literals and Containers, honours out
// and resolves its backend the same way.
//
// Results are an *array.Array, a []*array.Array for several outputs, or a
// *container.Container when any argument is a Container.
package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/unitensor/internal/array"
	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/container"
	"github.com/born-ml/unitensor/internal/dispatch"
	"github.com/born-ml/unitensor/internal/tensor"
)

var pipeline = dispatch.Default()

func init() {
	array.SetOperators(operators{})
}

// Option configures one call.
type Option func(*dispatch.Call)

// Out writes the result into out, an *array.Array or a Container of them.
func Out(out any) Option {
	return func(c *dispatch.Call) { c.Out = out }
}

// OnBackend runs the call on the named backend regardless of the
// current-backend stack.
func OnBackend(name string) Option {
	return func(c *dispatch.Call) { c.Backend = name }
}

// WithNest sets the container mapping options. Without it containers are
// mapped over the intersection of their key chains.
func WithNest(opts ...container.Option) Option {
	return func(c *dispatch.Call) { c.Nest = opts }
}

// PromoteContainers promotes every container leaf to one common dtype.
func PromoteContainers() Option {
	return func(c *dispatch.Call) { c.PromoteContainers = true }
}

// DType sets the result dtype of creation and reduction calls.
func DType(dt tensor.DataType) Option {
	return Kwarg(kwDType, dt)
}

// OnDevice places created arrays on device d.
func OnDevice(d tensor.Device) Option {
	return Kwarg(kwDevice, d)
}

// Axes restricts a reduction to the given axes.
func Axes(axes ...int) Option {
	return Kwarg(kwAxes, axes)
}

// KeepDims keeps reduced axes as size 1.
func KeepDims() Option {
	return Kwarg(kwKeepDims, true)
}

// Kwarg sets a raw keyword option. v may be a Container, which maps the
// call over its leaves.
func Kwarg(key string, v any) Option {
	return func(c *dispatch.Call) {
		if c.Kwargs == nil {
			c.Kwargs = dispatch.Kwargs{}
		}
		c.Kwargs[key] = v
	}
}

// Keyword option names.
const (
	kwDType    = "dtype"
	kwDevice   = "device"
	kwAxes     = "axes"
	kwAxis     = "axis"
	kwKeepDims = "keepdims"
	kwShape    = "shape"
	kwFill     = "fill_value"
	kwStart    = "start"
	kwStop     = "stop"
	kwStep     = "step"
)

func call(prim *dispatch.Primitive, args []any, kw dispatch.Kwargs, opts []Option) (any, error) {
	c := &dispatch.Call{Prim: prim, Args: args, Kwargs: kw}
	for _, opt := range opts {
		opt(c)
	}
	return pipeline.Do(c)
}

// single adapts a one-output backend call to an ImplFunc result.
func single(n backend.Native, err error) ([]backend.Native, error) {
	if err != nil {
		return nil, err
	}
	return []backend.Native{n}, nil
}

// device returns the device option, the CPU by default.
func device(kw dispatch.Kwargs) tensor.Device {
	if d, ok := kw[kwDevice].(tensor.Device); ok {
		return d
	}
	return tensor.CPU
}

// AsArray asserts that an operation's result is a single Array.
func AsArray(v any, err error) (*array.Array, error) {
	if err != nil {
		return nil, err
	}
	a, ok := v.(*array.Array)
	if !ok {
		return nil, errors.Wrapf(tensor.ErrInvalidInputKind, "result is %T, not an array", v)
	}
	return a, nil
}

// AsContainer asserts that an operation's result is a Container.
func AsContainer(v any, err error) (*container.Container, error) {
	if err != nil {
		return nil, err
	}
	c, ok := v.(*container.Container)
	if !ok {
		return nil, errors.Wrapf(tensor.ErrInvalidInputKind, "result is %T, not a container", v)
	}
	return c, nil
}

// operators backs the arithmetic methods of array.Array.
type operators struct{}

func (operators) Binary(op backend.BinaryOp, x *array.Array, y any) (*array.Array, error) {
	return AsArray(Binary(op, x, y))
}

func (operators) Unary(op backend.UnaryOp, x *array.Array) (*array.Array, error) {
	return AsArray(Unary(op, x))
}
