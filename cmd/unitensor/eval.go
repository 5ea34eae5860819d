package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/unitensor/container"
	"github.com/born-ml/unitensor/tensor"
)

// params are the eval flags shared by every operation.
type params struct {
	backend  string
	dtype    tensor.DataType
	hasDType bool
	axes     []int
	axis     int
	shape    tensor.Shape
	keepDims bool
}

func evalParams(cmd *cobra.Command) (params, error) {
	var p params
	flags := cmd.Flags()
	p.backend, _ = flags.GetString("backend")
	p.axes, _ = flags.GetIntSlice("axes")
	p.axis, _ = flags.GetInt("axis")
	shape, _ := flags.GetIntSlice("shape")
	p.shape = tensor.Shape(shape)
	p.keepDims, _ = flags.GetBool("keepdims")
	if s, _ := flags.GetString("dtype"); s != "" {
		dt, err := tensor.ParseDataType(s)
		if err != nil {
			return params{}, err
		}
		p.dtype, p.hasDType = dt, true
	}
	return p, nil
}

// options turns p into call options. Reductions also take axes.
func (p params) options(reduce bool) []tensor.Option {
	var opts []tensor.Option
	if p.backend != "" {
		opts = append(opts, tensor.OnBackend(p.backend))
	}
	if p.hasDType {
		opts = append(opts, tensor.DType(p.dtype))
	}
	if reduce {
		if len(p.axes) > 0 {
			opts = append(opts, tensor.Axes(p.axes...))
		}
		if p.keepDims {
			opts = append(opts, tensor.KeepDims())
		}
	}
	return opts
}

type operation struct {
	arity int // -1 for any number of operands
	run   func(args []any, p params) (any, error)
}

func binary(fn func(x, y any, opts ...tensor.Option) (any, error)) operation {
	return operation{arity: 2, run: func(args []any, p params) (any, error) {
		return fn(args[0], args[1], p.options(false)...)
	}}
}

func unary(fn func(x any, opts ...tensor.Option) (any, error)) operation {
	return operation{arity: 1, run: func(args []any, p params) (any, error) {
		return fn(args[0], p.options(false)...)
	}}
}

func reduction(fn func(x any, opts ...tensor.Option) (any, error)) operation {
	return operation{arity: 1, run: func(args []any, p params) (any, error) {
		return fn(args[0], p.options(true)...)
	}}
}

func creation(fn func(shape tensor.Shape, opts ...tensor.Option) (any, error)) operation {
	return operation{arity: 0, run: func(_ []any, p params) (any, error) {
		return fn(p.shape, p.options(false)...)
	}}
}

var operations = map[string]operation{
	"add":           binary(tensor.Add),
	"subtract":      binary(tensor.Subtract),
	"multiply":      binary(tensor.Multiply),
	"divide":        binary(tensor.Divide),
	"pow":           binary(tensor.Pow),
	"maximum":       binary(tensor.Maximum),
	"minimum":       binary(tensor.Minimum),
	"equal":         binary(tensor.Equal),
	"not_equal":     binary(tensor.NotEqual),
	"less":          binary(tensor.Less),
	"less_equal":    binary(tensor.LessEqual),
	"greater":       binary(tensor.Greater),
	"greater_equal": binary(tensor.GreaterEqual),
	"matmul":        binary(tensor.MatMul),
	"negative":      unary(tensor.Negative),
	"abs":           unary(tensor.Abs),
	"exp":           unary(tensor.Exp),
	"log":           unary(tensor.Log),
	"sqrt":          unary(tensor.Sqrt),
	"flatten":       unary(tensor.Flatten),
	"copy":          unary(tensor.Copy),
	"asarray":       unary(tensor.Asarray),
	"sum":           reduction(tensor.Sum),
	"mean":          reduction(tensor.Mean),
	"max":           reduction(tensor.Max),
	"min":           reduction(tensor.Min),
	"prod":          reduction(tensor.Prod),
	"zeros":         creation(tensor.Zeros),
	"ones":          creation(tensor.Ones),
	"reshape": {arity: 1, run: func(args []any, p params) (any, error) {
		return tensor.Reshape(args[0], p.shape, p.options(false)...)
	}},
	"broadcast_to": {arity: 1, run: func(args []any, p params) (any, error) {
		return tensor.BroadcastTo(args[0], p.shape, p.options(false)...)
	}},
	"permute_dims": {arity: 1, run: func(args []any, p params) (any, error) {
		return tensor.PermuteDims(args[0], p.axes, p.options(false)...)
	}},
	"squeeze": {arity: 1, run: func(args []any, p params) (any, error) {
		return tensor.Squeeze(args[0], p.axes, p.options(false)...)
	}},
	"expand_dims": {arity: 1, run: func(args []any, p params) (any, error) {
		return tensor.ExpandDims(args[0], p.axis, p.options(false)...)
	}},
	"astype": {arity: 1, run: func(args []any, p params) (any, error) {
		if !p.hasDType {
			return nil, fmt.Errorf("astype needs --dtype")
		}
		return tensor.Astype(args[0], p.dtype, p.options(false)...)
	}},
	"concat": {arity: -1, run: func(args []any, p params) (any, error) {
		return tensor.Concat(args, p.axis, p.options(false)...)
	}},
	"broadcast_arrays": {arity: -1, run: func(args []any, p params) (any, error) {
		return tensor.BroadcastArrays(args, p.options(false)...)
	}},
	"full": {arity: 1, run: func(args []any, p params) (any, error) {
		return tensor.Full(p.shape, args[0], p.options(false)...)
	}},
}

func operationNames() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// parseArg decodes one JSON argument. Integral numbers become int, others
// float64; objects become Containers.
func parseArg(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("argument %q: %w", s, err)
	}
	return convert(v)
}

func convert(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil && !strings.ContainsAny(x.String(), ".eE") {
			return int(i), nil
		}
		return x.Float64()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			c, err := convert(e)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			c, err := convert(e)
			if err != nil {
				return nil, err
			}
			m[k] = c
		}
		return container.FromMap(m), nil
	default:
		return v, nil
	}
}

func marshal(res any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(res); err != nil {
		return nil, err
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}
