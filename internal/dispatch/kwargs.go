package dispatch

import (
	"maps"

	"github.com/pkg/errors"

	"github.com/born-ml/unitensor/internal/tensor"
)

// Kwargs holds the keyword options of a call, such as "axis" or "dtype".
type Kwargs map[string]any

// Clone returns a shallow copy of k.
func (k Kwargs) Clone() Kwargs {
	if k == nil {
		return Kwargs{}
	}
	return maps.Clone(k)
}

func badKwarg(key string, v any, want string) error {
	return errors.Wrapf(tensor.ErrInvalidInputKind, "keyword %q: %T is not %s", key, v, want)
}

// Int returns the integer option key, or def when it is unset.
func (k Kwargs) Int(key string, def int) (int, error) {
	v, ok := k[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case float64:
		if x == float64(int(x)) {
			return int(x), nil
		}
	}
	return 0, badKwarg(key, v, "an integer")
}

// Ints returns the integer list option key. A single integer is a list of
// one; unset is nil.
func (k Kwargs) Ints(key string) ([]int, error) {
	v, ok := k[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []int:
		return append([]int(nil), x...), nil
	case tensor.Shape:
		return append([]int(nil), x...), nil
	case []any:
		out := make([]int, len(x))
		for i, e := range x {
			n, err := Kwargs{key: e}.Int(key, 0)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	n, err := k.Int(key, 0)
	if err != nil {
		return nil, badKwarg(key, v, "an integer list")
	}
	return []int{n}, nil
}

// Shape returns the shape option key.
func (k Kwargs) Shape(key string) (tensor.Shape, error) {
	if _, ok := k[key]; !ok {
		return nil, errors.Wrapf(tensor.ErrInvalidInputKind, "keyword %q is required", key)
	}
	dims, err := k.Ints(key)
	if err != nil {
		return nil, err
	}
	return tensor.Shape(dims), nil
}

// Bool returns the boolean option key, false when unset.
func (k Kwargs) Bool(key string) (bool, error) {
	v, ok := k[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, badKwarg(key, v, "a bool")
	}
	return b, nil
}

// Float returns the numeric option key, or def when it is unset.
func (k Kwargs) Float(key string, def float64) (float64, error) {
	v, ok := k[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, badKwarg(key, v, "a number")
}

// DType returns the dtype option key. It accepts a tensor.DataType or its
// name. ok is false when the option is unset.
func (k Kwargs) DType(key string) (dt tensor.DataType, ok bool, err error) {
	v, set := k[key]
	if !set || v == nil {
		return 0, false, nil
	}
	switch x := v.(type) {
	case tensor.DataType:
		return x, true, nil
	case string:
		dt, err := tensor.ParseDataType(x)
		if err != nil {
			return 0, false, errors.Wrapf(tensor.ErrInvalidInputKind, "keyword %q: %v", key, err)
		}
		return dt, true, nil
	}
	return 0, false, badKwarg(key, v, "a dtype")
}
