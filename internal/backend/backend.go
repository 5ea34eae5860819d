// Package backend defines the fixed operation interface every numerical
// engine implements, the capability flags it advertises and the process-wide
// registry that loads engines and tracks the current one.
package backend

import (
	"slices"

	"github.com/born-ml/unitensor/internal/tensor"
)

// Native is an opaque backend-native tensor handle.
// It is produced and consumed by exactly one backend.
type Native any

// BinaryOp names an element-wise binary operation.
type BinaryOp string

// Element-wise binary operations.
const (
	OpAdd          BinaryOp = "add"
	OpSubtract     BinaryOp = "subtract"
	OpMultiply     BinaryOp = "multiply"
	OpDivide       BinaryOp = "divide"
	OpPow          BinaryOp = "pow"
	OpMaximum      BinaryOp = "maximum"
	OpMinimum      BinaryOp = "minimum"
	OpEqual        BinaryOp = "equal"
	OpNotEqual     BinaryOp = "not_equal"
	OpLess         BinaryOp = "less"
	OpLessEqual    BinaryOp = "less_equal"
	OpGreater      BinaryOp = "greater"
	OpGreaterEqual BinaryOp = "greater_equal"
)

// IsComparison reports whether op produces a boolean result.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return true
	}
	return false
}

// UnaryOp names an element-wise unary operation.
type UnaryOp string

// Element-wise unary operations.
const (
	OpNegative UnaryOp = "negative"
	OpAbs      UnaryOp = "abs"
	OpExp      UnaryOp = "exp"
	OpLog      UnaryOp = "log"
	OpSqrt     UnaryOp = "sqrt"
)

// ReduceOp names a reduction.
type ReduceOp string

// Reductions.
const (
	OpSum  ReduceOp = "sum"
	OpMean ReduceOp = "mean"
	OpMax  ReduceOp = "max"
	OpMin  ReduceOp = "min"
	OpProd ReduceOp = "prod"
)

// Structural operation names used in Capabilities.Operations.
const (
	OpMatMul      = "matmul"
	OpReshape     = "reshape"
	OpPermuteDims = "permute_dims"
	OpExpandDims  = "expand_dims"
	OpSqueeze     = "squeeze"
	OpBroadcastTo = "broadcast_to"
	OpCast        = "astype"
	OpConcat      = "concat"
	OpGetItem     = "getitem"
	OpSetItem     = "setitem"
	OpScatterND   = "scatter_nd"
	OpCopyInto    = "copy_into"
)

// BinaryOps lists every binary operation.
var BinaryOps = []BinaryOp{
	OpAdd, OpSubtract, OpMultiply, OpDivide, OpPow, OpMaximum, OpMinimum,
	OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual,
}

// UnaryOps lists every unary operation.
var UnaryOps = []UnaryOp{OpNegative, OpAbs, OpExp, OpLog, OpSqrt}

// ReduceOps lists every reduction.
var ReduceOps = []ReduceOp{OpSum, OpMean, OpMax, OpMin, OpProd}

// RequiredOps must be supported by every backend; Load rejects a backend
// whose capabilities do not list all of them.
var RequiredOps = []string{
	string(OpAdd), string(OpSubtract), string(OpMultiply), string(OpDivide),
	OpReshape, OpPermuteDims, OpExpandDims, OpSqueeze, OpBroadcastTo,
	OpCast, OpGetItem, OpScatterND, string(OpSum),
}

// AllOps returns every operation name a backend may list.
func AllOps() []string {
	ops := make([]string, 0, len(BinaryOps)+len(UnaryOps)+len(ReduceOps)+12)
	for _, op := range BinaryOps {
		ops = append(ops, string(op))
	}
	for _, op := range UnaryOps {
		ops = append(ops, string(op))
	}
	for _, op := range ReduceOps {
		ops = append(ops, string(op))
	}
	return append(ops,
		OpMatMul, OpReshape, OpPermuteDims, OpExpandDims, OpSqueeze, OpBroadcastTo,
		OpCast, OpConcat, OpGetItem, OpSetItem, OpScatterND, OpCopyInto)
}

// Capabilities describes what a backend supports.
type Capabilities struct {
	// InPlace is true when native handles can be mutated (SetItem, CopyInto).
	InPlace bool
	// NativeOut is true when BinaryInto writes into a caller-provided handle.
	NativeOut bool
	// NativeViews is true when manipulation results alias their input.
	NativeViews bool
	// Variables is true when the backend tracks gradient variables.
	Variables bool

	// DTypes supported by the backend. Unlisted means unsupported.
	DTypes map[tensor.DataType]bool
	// Operations supported by the backend. Unlisted means unsupported.
	Operations map[string]bool
}

// Supports reports whether op is listed.
func (c Capabilities) Supports(op string) bool {
	return c.Operations[op]
}

// Missing returns the required ops the capabilities do not list.
func (c Capabilities) Missing(required []string) []string {
	var missing []string
	for _, op := range required {
		if !c.Operations[op] {
			missing = append(missing, op)
		}
	}
	return missing
}

// SupportedDTypes returns the listed dtypes in lattice order.
func (c Capabilities) SupportedDTypes() []tensor.DataType {
	var out []tensor.DataType
	for _, dt := range tensor.AllDataTypes {
		if c.DTypes[dt] {
			out = append(out, dt)
		}
	}
	return out
}

// SupportedOps returns the listed operation names sorted.
func (c Capabilities) SupportedOps() []string {
	out := make([]string, 0, len(c.Operations))
	for op, ok := range c.Operations {
		if ok {
			out = append(out, op)
		}
	}
	slices.Sort(out)
	return out
}

// OpSet builds an Operations map from names.
func OpSet(ops ...string) map[string]bool {
	m := make(map[string]bool, len(ops))
	for _, op := range ops {
		m[op] = true
	}
	return m
}

// DTypeSet builds a DTypes map.
func DTypeSet(dtypes ...tensor.DataType) map[tensor.DataType]bool {
	m := make(map[tensor.DataType]bool, len(dtypes))
	for _, dt := range dtypes {
		m[dt] = true
	}
	return m
}

// Backend is the fixed operation interface of a numerical engine.
//
// Operations a backend cannot perform return tensor.ErrNotImplemented.
// Unless stated otherwise operations return new handles and leave their
// inputs untouched.
type Backend interface {
	Name() string
	Capabilities() Capabilities
	// Owns reports whether v is a native handle of this backend.
	Owns(v any) bool

	// FromHost builds a native handle from a host tensor.
	FromHost(raw *tensor.RawTensor, device tensor.Device) (Native, error)
	// ToHost detaches x into a contiguous host tensor.
	ToHost(x Native) (*tensor.RawTensor, error)

	DType(x Native) tensor.DataType
	Shape(x Native) tensor.Shape
	Device(x Native) tensor.Device
	Strides(x Native) []int

	// GetItem selects a region. The result is a copy unless
	// Capabilities().NativeViews is set.
	GetItem(x Native, q tensor.Query) (Native, error)
	// SetItem writes value (broadcast to the region) into x in place.
	SetItem(x Native, q tensor.Query, value Native) error
	// ScatterND returns a copy of x with updates written at the given
	// coordinates. updates is 1-D with one element per coordinate.
	ScatterND(x Native, indices [][]int, updates Native) (Native, error)

	Binary(op BinaryOp, a, b Native) (Native, error)
	// BinaryInto writes op(a, b) into out, which must have the result shape.
	BinaryInto(op BinaryOp, a, b, out Native) error
	Unary(op UnaryOp, x Native) (Native, error)
	MatMul(a, b Native) (Native, error)

	Reshape(x Native, shape tensor.Shape) (Native, error)
	PermuteDims(x Native, axes []int) (Native, error)
	ExpandDims(x Native, axis int) (Native, error)
	Squeeze(x Native, axes []int) (Native, error)
	BroadcastTo(x Native, shape tensor.Shape) (Native, error)
	Cast(x Native, dtype tensor.DataType) (Native, error)
	Concat(xs []Native, axis int) (Native, error)
	Reduce(op ReduceOp, x Native, axes []int, keepDims bool) (Native, error)

	// CopyInto overwrites dst's elements with src's in place.
	CopyInto(dst, src Native) error

	IsVariable(x Native) bool
	// VariableData returns the plain handle behind a variable.
	VariableData(x Native) (Native, error)
	// Variable wraps x as a gradient-tracked variable.
	Variable(x Native) (Native, error)
}
