package dispatch

import (
	"log/slog"
	"slices"

	"github.com/pkg/errors"

	"github.com/born-ml/unitensor/internal/array"
	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/container"
	"github.com/born-ml/unitensor/internal/envconfig"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Stage names.
const (
	StageCoerce    = "coerce"
	StagePromote   = "promote"
	StageNest      = "nest"
	StageWriteback = "writeback"
	StageWrap      = "wrap"
	StageUnwrap    = "unwrap"
	StageInvoke    = "invoke"
)

// Coerce converts positional arguments to Arrays. Native handles adopt their
// backend; Go literals are materialised next to the first array argument.
// Sequence literals are converted before scalars so they can type them: a
// weak scalar (Go int, float64 or bool) takes the dtype of the first array
// argument when the kinds are compatible. Containers pass through, and when
// the call holds one, scalars are left for each leaf call to coerce.
func Coerce() Stage {
	return Stage{Name: StageCoerce, Run: func(_ *Pipeline, c *Call, next Handler) (any, error) {
		args := make([]any, len(c.Args))
		for i, v := range c.Args {
			if a, ok := v.(*array.Array); ok {
				args[i] = a
				continue
			}
			if _, ok := v.(*container.Container); ok || v == nil {
				args[i] = v
				continue
			}
			if !backend.IsNative(v) {
				continue
			}
			a, err := array.New(v)
			if err != nil {
				return nil, err
			}
			args[i] = a
		}

		nested := hasContainer(c)
		for _, scalars := range []bool{false, true} {
			ref := firstArray(args)
			for i, v := range c.Args {
				if args[i] != nil || v == nil || isScalar(v) != scalars {
					continue
				}
				if scalars && nested {
					args[i] = v
					continue
				}
				a, err := coerceValue(c, v, ref)
				if err != nil {
					return nil, errors.Wrapf(err, "argument %d", i)
				}
				args[i] = a
			}
		}
		for i, v := range args {
			if v == nil {
				return nil, errors.Wrapf(tensor.ErrInvalidInputKind, "argument %d is nil", i)
			}
		}
		c.Args = args

		switch out := c.Out.(type) {
		case nil, *array.Array, *container.Container:
		default:
			if !backend.IsNative(out) {
				return nil, errors.Wrapf(tensor.ErrInvalidInputKind, "out: %T is not an array", out)
			}
			a, err := array.New(out)
			if err != nil {
				return nil, err
			}
			c.Out = a
		}
		return next(c)
	}}
}

// hasContainer reports whether any argument, keyword value or out of c is a
// Container.
func hasContainer(c *Call) bool {
	for _, v := range c.Args {
		if _, ok := v.(*container.Container); ok {
			return true
		}
	}
	for _, v := range c.Kwargs {
		if _, ok := v.(*container.Container); ok {
			return true
		}
	}
	_, ok := c.Out.(*container.Container)
	return ok
}

// isScalar reports whether v is a Go scalar literal.
func isScalar(v any) bool {
	switch v.(type) {
	case bool, int, int8, int16, int32, int64, uint8, float32, float64:
		return true
	}
	return false
}

func firstArray(args []any) *array.Array {
	for _, v := range args {
		if a, ok := v.(*array.Array); ok {
			return a
		}
	}
	return nil
}

func coerceValue(c *Call, v any, ref *array.Array) (*array.Array, error) {
	var opts []array.Option
	switch {
	case c.Backend != "":
		opts = append(opts, array.WithBackend(c.Backend))
	case ref != nil:
		opts = append(opts, array.WithBackend(ref.Backend()))
	}
	if raw, ok := v.(*tensor.RawTensor); ok {
		return array.New(raw, opts...)
	}
	if !array.IsLiteral(v) {
		return nil, errors.Wrapf(tensor.ErrInvalidInputKind, "%T", v)
	}
	if dt, ok := weakDType(v, ref); ok {
		opts = append(opts, array.WithDType(dt))
	}
	return array.New(v, opts...)
}

// weakDType returns the dtype a weak scalar adopts next to ref.
func weakDType(v any, ref *array.Array) (tensor.DataType, bool) {
	if ref == nil {
		return 0, false
	}
	dt := ref.DType()
	switch v.(type) {
	case int:
		return dt, dt.IsInt() || dt.IsFloat()
	case float64:
		return dt, dt.IsFloat()
	case bool:
		return dt, dt == tensor.Bool
	}
	return 0, false
}

// Promote casts the array operands of promoting primitives to their result
// dtype and checks that broadcasting primitives get compatible shapes.
// Container arguments defer promotion to each leaf unless
// Call.PromoteContainers is set, in which case one dtype is computed over
// every array leaf.
func Promote() Stage {
	return Stage{Name: StagePromote, Run: func(_ *Pipeline, c *Call, next Handler) (any, error) {
		if !c.Prim.Promote && !c.Prim.Broadcast {
			return next(c)
		}
		var (
			dtypes     []tensor.DataType
			shapes     []tensor.Shape
			containers bool
		)
		for _, v := range c.Args {
			switch x := v.(type) {
			case *array.Array:
				dtypes, shapes = append(dtypes, x.DType()), append(shapes, x.Shape())
			case *container.Container:
				containers = true
				for _, leaf := range x.Leaves() {
					if a, ok := leaf.(*array.Array); ok {
						dtypes = append(dtypes, a.DType())
					}
				}
			}
		}
		if containers && !c.PromoteContainers {
			return next(c)
		}
		if c.Prim.Broadcast && !containers {
			if _, err := tensor.BroadcastAll(shapes...); err != nil {
				return nil, newError(tensor.ErrBroadcast, c, err)
			}
		}
		if !c.Prim.Promote || len(dtypes) == 0 {
			return next(c)
		}

		dt := tensor.ResultType(dtypes...)
		args := make([]any, len(c.Args))
		for i, v := range c.Args {
			switch x := v.(type) {
			case *array.Array:
				a, err := castArray(x, dt)
				if err != nil {
					return nil, err
				}
				args[i] = a
			case *container.Container:
				cast, err := x.Map(func(leaf any, _ string) (any, error) {
					if a, ok := leaf.(*array.Array); ok {
						return castArray(a, dt)
					}
					return leaf, nil
				})
				if err != nil {
					return nil, err
				}
				args[i] = cast
			default:
				args[i] = v
			}
		}
		c.Args = args
		return next(c)
	}}
}

// castArray returns a cast copy of a, or a itself when it already has dt.
func castArray(a *array.Array, dt tensor.DataType) (*array.Array, error) {
	if a.DType() == dt {
		return a, nil
	}
	b, err := backend.Load(a.Backend())
	if err != nil {
		return nil, err
	}
	data, err := b.Cast(a.Data(), dt)
	if err != nil {
		return nil, errors.Wrapf(err, "cast %v to %v", a.DType(), dt)
	}
	return array.Wrap(data, b.Name(), a.DynamicBackend()), nil
}

// Nest maps the call over Container arguments, keyword values and out. Each
// leaf position re-enters the whole pipeline with the containers replaced
// by their leaves; the results are assembled into a Container. When out is
// a Container every leaf is computed and checked against its out leaf
// before any of them is written, and out is returned.
func Nest() Stage {
	return Stage{Name: StageNest, Run: func(p *Pipeline, c *Call, next Handler) (any, error) {
		var (
			cs   []*container.Container
			sets []func(sub *Call, v any)
		)
		for i, v := range c.Args {
			if ct, ok := v.(*container.Container); ok {
				cs = append(cs, ct)
				sets = append(sets, func(sub *Call, leaf any) { sub.Args[i] = leaf })
			}
		}
		keys := make([]string, 0, len(c.Kwargs))
		for k := range c.Kwargs {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if ct, ok := c.Kwargs[k].(*container.Container); ok {
				cs = append(cs, ct)
				sets = append(sets, func(sub *Call, leaf any) { sub.Kwargs[k] = leaf })
			}
		}
		out, hasOut := c.Out.(*container.Container)
		if hasOut {
			cs = append(cs, out)
		}
		if len(cs) == 0 {
			return next(c)
		}

		opts := c.Nest
		if opts == nil {
			opts = []container.Option{container.Intersect()}
		}
		slog.Debug("nested dispatch", "op", c.Prim.Name, "containers", len(cs))

		type pending struct {
			out, res *array.Array
		}
		var writes []pending
		res, err := container.MultiMap(func(leaves []any, _ string) (any, error) {
			sub := c.clone()
			for j, set := range sets {
				set(sub, leaves[j])
			}
			if !hasOut {
				return p.Do(sub)
			}
			sub.Out = nil
			r, err := p.Do(sub)
			if err != nil || leaves[len(leaves)-1] == nil {
				return r, err
			}
			o, err := outArray(leaves[len(leaves)-1])
			if err != nil {
				return nil, err
			}
			a, ok := r.(*array.Array)
			if !ok {
				return nil, errors.Wrapf(tensor.ErrInvalidInputKind, "out given for %T result", r)
			}
			if err := checkOut(c, a, o); err != nil {
				return nil, err
			}
			if err := o.CheckWritable(c.Prim.Name); err != nil {
				return nil, err
			}
			writes = append(writes, pending{out: o, res: a})
			return o, nil
		}, cs, opts...)
		if err != nil {
			return nil, err
		}
		if !hasOut {
			return res, nil
		}
		for _, w := range writes {
			if err := w.out.Assign(w.res); err != nil {
				return nil, err
			}
		}
		return out, nil
	}}
}

// outArray returns the Array an out leaf refers to.
func outArray(v any) (*array.Array, error) {
	if a, ok := v.(*array.Array); ok {
		return a, nil
	}
	if !backend.IsNative(v) {
		return nil, errors.Wrapf(tensor.ErrInvalidInputKind, "out: %T is not an array", v)
	}
	return array.New(v)
}

// checkOut fails with ErrShapeMismatch when r cannot be written into out.
func checkOut(c *Call, r, out *array.Array) error {
	if r.Shape().Equal(out.Shape()) {
		return nil
	}
	return &tensor.Error{
		Kind: tensor.ErrShapeMismatch, Op: c.Prim.Name, Backend: r.Backend(),
		Shapes: []tensor.Shape{r.Shape(), out.Shape()},
		DTypes: []tensor.DataType{r.DType(), out.DType()},
		Err:    errors.Errorf("result shape %v does not match out shape %v", r.Shape(), out.Shape()),
	}
}

// Writeback handles out. Backends with native-out support compute straight
// into out when the primitive has an Into variant. Otherwise the result is
// checked against out's shape, copied in (in place when the backend allows,
// by rebinding otherwise) and out's views are reconciled. out is left
// untouched on failure. The result of the call is out.
func Writeback() Stage {
	return Stage{Name: StageWriteback, Run: func(_ *Pipeline, c *Call, next Handler) (any, error) {
		if c.Out == nil {
			return next(c)
		}
		out, ok := c.Out.(*array.Array)
		if !ok {
			return nil, errors.Wrapf(tensor.ErrInvalidInputKind, "out: %T is not an array", c.Out)
		}
		if err := out.CheckWritable(c.Prim.Name); err != nil {
			return nil, err
		}
		b, err := c.Resolve()
		if err != nil {
			return nil, err
		}

		if c.Prim.Into != nil && b.Capabilities().NativeOut && out.Backend() == b.Name() && !out.IsVariable() {
			c.into = out.Data()
			if _, err := next(c); err != nil {
				return nil, err
			}
			if err := out.MarkModified(c.Prim.Name); err != nil {
				return nil, err
			}
			return out, nil
		}

		res, err := next(c)
		if err != nil {
			return nil, err
		}
		r, ok := res.(*array.Array)
		if !ok {
			return nil, errors.Wrapf(tensor.ErrInvalidInputKind, "out given for %T result", res)
		}
		if err := checkOut(c, r, out); err != nil {
			return nil, err
		}
		if err := out.Assign(r); err != nil {
			return nil, err
		}
		return out, nil
	}}
}

// Wrap turns the natives returned by invoke into Arrays of the resolved
// backend: one Array, or a slice for several outputs. Results are dynamic
// when any array argument is. View primitives are answered here by the
// array layer so the result joins its operand's view graph.
func Wrap() Stage {
	return Stage{Name: StageWrap, Run: func(_ *Pipeline, c *Call, next Handler) (any, error) {
		b, err := c.Resolve()
		if err != nil {
			return nil, err
		}
		dynamic := envconfig.DynamicBackend()
		for _, v := range c.Args {
			if a, ok := v.(*array.Array); ok && a.DynamicBackend() {
				dynamic = true
			}
		}

		if c.Prim.View != nil && c.into == nil {
			var x *array.Array
			if len(c.Args) == 1 {
				x, _ = c.Args[0].(*array.Array)
			}
			if x == nil {
				return nil, errors.Wrapf(tensor.ErrInvalidInputKind, "%s takes one array", c.Prim.Name)
			}
			if missing := b.Capabilities().Missing(c.Prim.Requires); len(missing) > 0 {
				return nil, newError(tensor.ErrNotImplementedForBackend, c, errors.Errorf("%s does not support %v", b.Name(), missing))
			}
			if _, err := x.Native(b); err != nil {
				return nil, err
			}
			return c.Prim.View(x, c.Kwargs)
		}

		res, err := next(c)
		if err != nil || res == nil {
			return res, err
		}
		natives, ok := res.([]backend.Native)
		if !ok {
			return res, nil
		}
		out := make([]*array.Array, len(natives))
		for i, n := range natives {
			out[i] = array.Wrap(n, b.Name(), dynamic)
		}
		if len(out) == 1 {
			return out[0], nil
		}
		return out, nil
	}}
}

// Unwrap replaces Array arguments with natives of the resolved backend.
// Dynamic arrays living elsewhere migrate; others fail with
// ErrBackendMismatch.
func Unwrap() Stage {
	return Stage{Name: StageUnwrap, Run: func(_ *Pipeline, c *Call, next Handler) (any, error) {
		b, err := c.Resolve()
		if err != nil {
			return nil, err
		}
		args := make([]any, len(c.Args))
		for i, v := range c.Args {
			switch x := v.(type) {
			case *array.Array:
				n, err := x.Native(b)
				if err != nil {
					return nil, err
				}
				args[i] = n
			default:
				if !b.Owns(x) {
					return nil, newError(tensor.ErrBackendMismatch, c, errors.Errorf("argument %d: %T is not a %s native", i, x, b.Name()))
				}
				args[i] = x
			}
		}
		c.Args = args
		return next(c)
	}}
}

// Invoke calls the primitive on the resolved backend. It never calls next.
func Invoke() Stage {
	return Stage{Name: StageInvoke, Run: func(_ *Pipeline, c *Call, _ Handler) (any, error) {
		b, err := c.Resolve()
		if err != nil {
			return nil, err
		}
		if missing := b.Capabilities().Missing(c.Prim.Requires); len(missing) > 0 {
			return nil, newError(tensor.ErrNotImplementedForBackend, c, errors.Errorf("%s does not support %v", b.Name(), missing))
		}
		args := make([]backend.Native, len(c.Args))
		for i, v := range c.Args {
			args[i] = v
		}
		if c.into != nil {
			return nil, c.Prim.Into(b, c.into, args, c.Kwargs)
		}
		if c.Prim.Impl == nil {
			return nil, newError(tensor.ErrNotImplementedForBackend, c, errors.Errorf("%s has no implementation", c.Prim.Name))
		}
		return c.Prim.Impl(b, args, c.Kwargs)
	}}
}
