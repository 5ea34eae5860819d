package array

import (
	"errors"
	"sync/atomic"

	"github.com/born-ml/unitensor/internal/backend"
)

// Operators evaluates the arithmetic methods of Array. Package ops installs
// the dispatch pipeline as the implementation.
type Operators interface {
	Binary(op backend.BinaryOp, x *Array, y any) (*Array, error)
	Unary(op backend.UnaryOp, x *Array) (*Array, error)
}

var operators atomic.Pointer[Operators]

// SetOperators installs the implementation of the arithmetic methods.
func SetOperators(o Operators) {
	operators.Store(&o)
}

var errNoOperators = errors.New("array: no operators installed")

func (a *Array) binary(op backend.BinaryOp, y any) (*Array, error) {
	o := operators.Load()
	if o == nil {
		return nil, errNoOperators
	}
	return (*o).Binary(op, a, y)
}

func (a *Array) unary(op backend.UnaryOp) (*Array, error) {
	o := operators.Load()
	if o == nil {
		return nil, errNoOperators
	}
	return (*o).Unary(op, a)
}

// Add returns a + y.
func (a *Array) Add(y any) (*Array, error) { return a.binary(backend.OpAdd, y) }

// Sub returns a - y.
func (a *Array) Sub(y any) (*Array, error) { return a.binary(backend.OpSubtract, y) }

// Mul returns a * y.
func (a *Array) Mul(y any) (*Array, error) { return a.binary(backend.OpMultiply, y) }

// Div returns a / y.
func (a *Array) Div(y any) (*Array, error) { return a.binary(backend.OpDivide, y) }

// Pow returns a ** y.
func (a *Array) Pow(y any) (*Array, error) { return a.binary(backend.OpPow, y) }

// Eq returns a == y element-wise.
func (a *Array) Eq(y any) (*Array, error) { return a.binary(backend.OpEqual, y) }

// Ne returns a != y element-wise.
func (a *Array) Ne(y any) (*Array, error) { return a.binary(backend.OpNotEqual, y) }

// Lt returns a < y element-wise.
func (a *Array) Lt(y any) (*Array, error) { return a.binary(backend.OpLess, y) }

// Le returns a <= y element-wise.
func (a *Array) Le(y any) (*Array, error) { return a.binary(backend.OpLessEqual, y) }

// Gt returns a > y element-wise.
func (a *Array) Gt(y any) (*Array, error) { return a.binary(backend.OpGreater, y) }

// Ge returns a >= y element-wise.
func (a *Array) Ge(y any) (*Array, error) { return a.binary(backend.OpGreaterEqual, y) }

// Neg returns -a.
func (a *Array) Neg() (*Array, error) { return a.unary(backend.OpNegative) }

// Abs returns |a|.
func (a *Array) Abs() (*Array, error) { return a.unary(backend.OpAbs) }
