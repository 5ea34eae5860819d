package array

import (
	"fmt"
	"reflect"

	"github.com/born-ml/unitensor/internal/envconfig"
	"github.com/born-ml/unitensor/internal/tensor"
)

// literalKind orders the weak kinds of untyped Go literals.
type literalKind int

const (
	kindNone literalKind = iota
	kindBool
	kindInt
	kindFloat
)

type literal struct {
	shape  tensor.Shape
	floats []float64
	ints   []int64
	bools  []bool
	kind   literalKind
	strong []tensor.DataType // dtypes of explicitly typed leaves
}

// IsLiteral reports whether v is a Go scalar or a (nested) slice of scalars.
func IsLiteral(v any) bool {
	if v == nil {
		return false
	}
	return isLiteralValue(reflect.ValueOf(v))
}

func isLiteralValue(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return true
		}
		return isLiteralValue(rv.Index(0))
	case reflect.Interface:
		return !rv.IsNil() && isLiteralValue(rv.Elem())
	}
	return false
}

// LiteralDType returns the dtype FromLiteral would infer for v.
//
// Go int and float64 are weak: they map to the configured defaults
// (UNITENSOR_DEFAULT_INT, UNITENSOR_DEFAULT_FLOAT). Explicitly sized types
// keep their dtype and are promoted together.
func LiteralDType(v any) (tensor.DataType, error) {
	lit, err := parseLiteral(v)
	if err != nil {
		return 0, err
	}
	return lit.dtype(), nil
}

// FromLiteral converts a Go scalar, typed slice or nested []any into a host
// tensor. An optional dtype overrides the inferred one.
func FromLiteral(v any, dtype ...tensor.DataType) (*tensor.RawTensor, error) {
	lit, err := parseLiteral(v)
	if err != nil {
		return nil, err
	}
	dt := lit.dtype()
	if len(dtype) > 0 {
		dt = dtype[0]
	}
	raw, err := tensor.NewRaw(lit.shape, dt, tensor.CPU)
	if err != nil {
		return nil, err
	}
	for i := range raw.NumElements() {
		switch {
		case lit.floats != nil:
			raw.SetFloat64(i, lit.floats[i])
		case lit.ints != nil:
			raw.SetInt64(i, lit.ints[i])
		case lit.bools != nil:
			raw.SetBool(i, lit.bools[i])
		}
	}
	return raw, nil
}

func (l *literal) dtype() tensor.DataType {
	if len(l.strong) > 0 {
		dt := tensor.ResultType(l.strong...)
		if l.kind == kindFloat && !dt.IsFloat() {
			return tensor.PromoteTypes(dt, envconfig.DefaultFloat())
		}
		return dt
	}
	switch l.kind {
	case kindFloat:
		return envconfig.DefaultFloat()
	case kindInt:
		return envconfig.DefaultInt()
	case kindBool:
		return tensor.Bool
	}
	return envconfig.DefaultFloat()
}

func parseLiteral(v any) (*literal, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil literal", tensor.ErrInvalidInputKind)
	}
	l := &literal{}
	var vals []reflect.Value
	shape, err := l.walk(reflect.ValueOf(v), 0, &vals)
	if err != nil {
		return nil, err
	}
	l.shape = shape

	// Every element is stored in the widest representation present.
	switch l.kind {
	case kindFloat:
		l.floats = make([]float64, len(vals))
	case kindInt:
		l.ints = make([]int64, len(vals))
	default:
		l.bools = make([]bool, len(vals))
	}
	for i, rv := range vals {
		switch l.kind {
		case kindFloat:
			l.floats[i] = toFloat(rv)
		case kindInt:
			l.ints[i] = toInt(rv)
		default:
			l.bools[i] = rv.Bool()
		}
	}
	return l, nil
}

// walk collects scalars in row-major order and returns the shape below rv.
func (l *literal) walk(rv reflect.Value, depth int, out *[]reflect.Value) (tensor.Shape, error) {
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: nil element in literal", tensor.ErrInvalidInputKind)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Bool:
		l.note(kindBool, rv)
		*out = append(*out, rv)
		return tensor.Shape{}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Uint8:
		l.note(kindInt, rv)
		*out = append(*out, rv)
		return tensor.Shape{}, nil
	case reflect.Float32, reflect.Float64:
		l.note(kindFloat, rv)
		*out = append(*out, rv)
		return tensor.Shape{}, nil
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		if n == 0 {
			if k := elemKind(rv.Type().Elem()); k != kindNone {
				l.note(k, reflect.Zero(rv.Type().Elem()))
			}
			return tensor.Shape{0}, nil
		}
		var inner tensor.Shape
		for i := range n {
			s, err := l.walk(rv.Index(i), depth+1, out)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				inner = s
			} else if !inner.Equal(s) {
				return nil, fmt.Errorf("%w: ragged literal at depth %d: %v vs %v", tensor.ErrInvalidInputKind, depth, inner, s)
			}
		}
		return append(tensor.Shape{n}, inner...), nil
	}
	return nil, fmt.Errorf("%w: %s in literal", tensor.ErrInvalidInputKind, rv.Type())
}

func (l *literal) note(k literalKind, rv reflect.Value) {
	l.kind = max(l.kind, k)
	switch rv.Kind() {
	case reflect.Int8:
		l.strong = append(l.strong, tensor.Int8)
	case reflect.Int16:
		l.strong = append(l.strong, tensor.Int16)
	case reflect.Int32:
		l.strong = append(l.strong, tensor.Int32)
	case reflect.Int64:
		l.strong = append(l.strong, tensor.Int64)
	case reflect.Uint8:
		l.strong = append(l.strong, tensor.Uint8)
	case reflect.Float32:
		l.strong = append(l.strong, tensor.Float32)
	}
}

func elemKind(t reflect.Type) literalKind {
	switch t.Kind() {
	case reflect.Bool:
		return kindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Uint8:
		return kindInt
	case reflect.Float32, reflect.Float64:
		return kindFloat
	}
	return kindNone
}

func toFloat(rv reflect.Value) float64 {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Bool:
		if rv.Bool() {
			return 1
		}
		return 0
	case reflect.Uint8:
		return float64(rv.Uint())
	}
	return float64(rv.Int())
}

func toInt(rv reflect.Value) int64 {
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return 1
		}
		return 0
	case reflect.Uint8:
		return int64(rv.Uint())
	}
	return rv.Int()
}
