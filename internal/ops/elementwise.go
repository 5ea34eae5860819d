package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/dispatch"
	"github.com/born-ml/unitensor/internal/tensor"
)

var (
	binaryPrims = make(map[backend.BinaryOp]*dispatch.Primitive, len(backend.BinaryOps))
	unaryPrims  = make(map[backend.UnaryOp]*dispatch.Primitive, len(backend.UnaryOps))
)

func init() {
	for _, op := range backend.BinaryOps {
		binaryPrims[op] = &dispatch.Primitive{
			Name:      string(op),
			Promote:   true,
			Broadcast: true,
			Requires:  []string{string(op)},
			Impl: func(b backend.Backend, args []backend.Native, _ dispatch.Kwargs) ([]backend.Native, error) {
				return single(b.Binary(op, args[0], args[1]))
			},
			Into: func(b backend.Backend, out backend.Native, args []backend.Native, _ dispatch.Kwargs) error {
				return b.BinaryInto(op, args[0], args[1], out)
			},
		}
	}
	for _, op := range backend.UnaryOps {
		unaryPrims[op] = &dispatch.Primitive{
			Name:     string(op),
			Requires: []string{string(op)},
			Impl: func(b backend.Backend, args []backend.Native, _ dispatch.Kwargs) ([]backend.Native, error) {
				return single(b.Unary(op, args[0]))
			},
		}
	}
}

// Binary applies an element-wise binary operation with promotion and
// broadcasting.
func Binary(op backend.BinaryOp, x, y any, opts ...Option) (any, error) {
	prim, ok := binaryPrims[op]
	if !ok {
		return nil, &tensor.Error{Kind: tensor.ErrNotImplemented, Op: string(op), Err: errors.Errorf("unknown binary operation %q", op)}
	}
	return call(prim, []any{x, y}, nil, opts)
}

// Unary applies an element-wise unary operation.
func Unary(op backend.UnaryOp, x any, opts ...Option) (any, error) {
	prim, ok := unaryPrims[op]
	if !ok {
		return nil, &tensor.Error{Kind: tensor.ErrNotImplemented, Op: string(op), Err: errors.Errorf("unknown unary operation %q", op)}
	}
	return call(prim, []any{x}, nil, opts)
}

// Add returns x + y.
func Add(x, y any, opts ...Option) (any, error) { return Binary(backend.OpAdd, x, y, opts...) }

// Subtract returns x - y.
func Subtract(x, y any, opts ...Option) (any, error) {
	return Binary(backend.OpSubtract, x, y, opts...)
}

// Multiply returns x * y.
func Multiply(x, y any, opts ...Option) (any, error) {
	return Binary(backend.OpMultiply, x, y, opts...)
}

// Divide returns x / y. Integer division truncates; division by zero gives 0.
func Divide(x, y any, opts ...Option) (any, error) {
	return Binary(backend.OpDivide, x, y, opts...)
}

// Pow returns x raised to y.
func Pow(x, y any, opts ...Option) (any, error) { return Binary(backend.OpPow, x, y, opts...) }

// Maximum returns the element-wise maximum.
func Maximum(x, y any, opts ...Option) (any, error) {
	return Binary(backend.OpMaximum, x, y, opts...)
}

// Minimum returns the element-wise minimum.
func Minimum(x, y any, opts ...Option) (any, error) {
	return Binary(backend.OpMinimum, x, y, opts...)
}

// Equal returns x == y as bool.
func Equal(x, y any, opts ...Option) (any, error) { return Binary(backend.OpEqual, x, y, opts...) }

// NotEqual returns x != y as bool.
func NotEqual(x, y any, opts ...Option) (any, error) {
	return Binary(backend.OpNotEqual, x, y, opts...)
}

// Less returns x < y as bool.
func Less(x, y any, opts ...Option) (any, error) { return Binary(backend.OpLess, x, y, opts...) }

// LessEqual returns x <= y as bool.
func LessEqual(x, y any, opts ...Option) (any, error) {
	return Binary(backend.OpLessEqual, x, y, opts...)
}

// Greater returns x > y as bool.
func Greater(x, y any, opts ...Option) (any, error) {
	return Binary(backend.OpGreater, x, y, opts...)
}

// GreaterEqual returns x >= y as bool.
func GreaterEqual(x, y any, opts ...Option) (any, error) {
	return Binary(backend.OpGreaterEqual, x, y, opts...)
}

// Negative returns -x.
func Negative(x any, opts ...Option) (any, error) { return Unary(backend.OpNegative, x, opts...) }

// Abs returns |x|.
func Abs(x any, opts ...Option) (any, error) { return Unary(backend.OpAbs, x, opts...) }

// Exp returns e^x.
func Exp(x any, opts ...Option) (any, error) { return Unary(backend.OpExp, x, opts...) }

// Log returns the natural logarithm of x.
func Log(x any, opts ...Option) (any, error) { return Unary(backend.OpLog, x, opts...) }

// Sqrt returns the square root of x.
func Sqrt(x any, opts ...Option) (any, error) { return Unary(backend.OpSqrt, x, opts...) }
