// Package tensor provides the backend-independent building blocks of unitensor:
// data types and their promotion table, shapes and broadcasting, index queries,
// the host-portable RawTensor payload and the error kinds shared by every layer.
package tensor

import (
	"fmt"
	"strings"
)

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Bool DataType = iota
	Uint8
	Int8
	Int16
	Int32
	Int64
	Float16
	BFloat16
	Float32
	Float64
)

// AllDataTypes lists every supported data type in promotion-lattice order.
var AllDataTypes = []DataType{Bool, Uint8, Int8, Int16, Int32, Int64, Float16, BFloat16, Float32, Float64}

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Bool, Uint8, Int8:
		return 1
	case Int16, Float16, BFloat16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	default:
		panic(fmt.Sprintf("unknown data type %d", int(dt)))
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Bool:
		return "bool"
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// IsFloat reports whether dt is a floating point type.
func (dt DataType) IsFloat() bool {
	switch dt {
	case Float16, BFloat16, Float32, Float64:
		return true
	}
	return false
}

// IsInt reports whether dt is an integer type (signed or unsigned).
func (dt DataType) IsInt() bool {
	switch dt {
	case Uint8, Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

// ParseDataType parses a data type name such as "float32" or "int64".
func ParseDataType(s string) (DataType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, dt := range AllDataTypes {
		if dt.String() == name {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}
