// Package autodiff implements gradient tracking with the decorator pattern.
//
// Backend wraps any other backend and hands out *Variable handles. Variables
// created with Backend.Variable track gradients: differentiable operations
// on them are recorded on a GradientTape, and Backend.Backward walks the
// tape in reverse.
//
//	b := autodiff.New(cpu.New())
//	x, _ := b.Variable(xNative)
//	y, _ := b.Binary(backend.OpMultiply, x, x) // y = x²
//	grads, _ := b.Backward(y.(*autodiff.Variable))
//	dx := grads.Of(x.(*autodiff.Variable))    // 2x
//
// Operations without a recorded derivative return untracked results.
package autodiff

import (
	"fmt"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/backend/cpu"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Name is the registry name of the autodiff backend.
const Name = "autodiff"

func init() {
	backend.Register(Name, func() (backend.Backend, error) {
		inner, err := backend.LoadAsValue(cpu.Name)
		if err != nil {
			return nil, err
		}
		return New(inner), nil
	})
}

// Variable is the autodiff backend's native handle: an inner-backend native
// plus gradient tracking state.
type Variable struct {
	value        backend.Native
	requiresGrad bool
}

// Value returns the wrapped inner-backend native.
func (v *Variable) Value() backend.Native {
	return v.value
}

// RequiresGrad reports whether v tracks gradients.
func (v *Variable) RequiresGrad() bool {
	return v.requiresGrad
}

// String renders the variable's tracking state.
func (v *Variable) String() string {
	return fmt.Sprintf("autodiff.Variable(%v, requires_grad=%t)", v.value, v.requiresGrad)
}

// Backend decorates an inner backend with gradient tracking.
type Backend struct {
	inner backend.Backend
	tape  *GradientTape
}

// New creates an autodiff backend wrapping inner.
func New(inner backend.Backend) *Backend {
	return &Backend{inner: inner, tape: NewGradientTape()}
}

// Inner returns the wrapped backend.
func (b *Backend) Inner() backend.Backend { return b.inner }

// Tape returns the gradient tape.
func (b *Backend) Tape() *GradientTape { return b.tape }

// Name returns the backend name.
func (*Backend) Name() string { return Name }

// Capabilities returns the inner backend's capabilities with Variables set.
func (b *Backend) Capabilities() backend.Capabilities {
	caps := b.inner.Capabilities()
	caps.Variables = true
	caps.NativeViews = false
	return caps
}

// Owns reports whether v is a *Variable.
func (*Backend) Owns(v any) bool {
	_, ok := v.(*Variable)
	return ok
}

func unwrap(x backend.Native) (*Variable, error) {
	v, ok := x.(*Variable)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %T is not an autodiff variable", tensor.ErrBackendMismatch, x)
	}
	return v, nil
}

func mustUnwrap(x backend.Native) *Variable {
	v, err := unwrap(x)
	if err != nil {
		panic(err)
	}
	return v
}

func unwrapAll(xs ...backend.Native) ([]*Variable, []backend.Native, error) {
	vars := make([]*Variable, len(xs))
	values := make([]backend.Native, len(xs))
	for i, x := range xs {
		v, err := unwrap(x)
		if err != nil {
			return nil, nil, err
		}
		vars[i], values[i] = v, v.value
	}
	return vars, values, nil
}

func tracked(vars []*Variable) bool {
	for _, v := range vars {
		if v.requiresGrad {
			return true
		}
	}
	return false
}

// lift wraps an inner result. When any input tracks gradients and mk is
// non-nil, the result tracks gradients and the operation mk builds is taped.
func (b *Backend) lift(out backend.Native, err error, inputs []*Variable, mk func(rec record) Operation) (backend.Native, error) {
	if err != nil {
		return nil, err
	}
	v := &Variable{value: out}
	if mk != nil && tracked(inputs) && b.inner.DType(out).IsFloat() {
		v.requiresGrad = true
		b.tape.Record(mk(record{inputs: inputs, output: v}))
	}
	return v, nil
}

// FromHost materialises raw on the inner backend as an untracked variable.
func (b *Backend) FromHost(r *tensor.RawTensor, device tensor.Device) (backend.Native, error) {
	out, err := b.inner.FromHost(r, device)
	if err != nil {
		return nil, err
	}
	return &Variable{value: out}, nil
}

// ToHost detaches x to its host representation.
func (b *Backend) ToHost(x backend.Native) (*tensor.RawTensor, error) {
	v, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	return b.inner.ToHost(v.value)
}

// DType returns x's data type.
func (b *Backend) DType(x backend.Native) tensor.DataType { return b.inner.DType(mustUnwrap(x).value) }

// Shape returns x's shape.
func (b *Backend) Shape(x backend.Native) tensor.Shape { return b.inner.Shape(mustUnwrap(x).value) }

// Device returns x's device.
func (b *Backend) Device(x backend.Native) tensor.Device { return b.inner.Device(mustUnwrap(x).value) }

// Strides returns x's element strides.
func (b *Backend) Strides(x backend.Native) []int { return b.inner.Strides(mustUnwrap(x).value) }

// GetItem selects a region. The result is not tracked.
func (b *Backend) GetItem(x backend.Native, q tensor.Query) (backend.Native, error) {
	v, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	out, err := b.inner.GetItem(v.value, q)
	return b.lift(out, err, nil, nil)
}

// SetItem writes value into x in place. Tracked variables may not be
// mutated.
func (b *Backend) SetItem(x backend.Native, q tensor.Query, value backend.Native) error {
	vars, values, err := unwrapAll(x, value)
	if err != nil {
		return err
	}
	if vars[0].requiresGrad {
		return fmt.Errorf("%w: in-place write to a variable that requires gradients", tensor.ErrNotImplemented)
	}
	return b.inner.SetItem(values[0], q, values[1])
}

// ScatterND returns a copy of x with updates written at indices.
func (b *Backend) ScatterND(x backend.Native, indices [][]int, updates backend.Native) (backend.Native, error) {
	_, values, err := unwrapAll(x, updates)
	if err != nil {
		return nil, err
	}
	out, err := b.inner.ScatterND(values[0], indices, values[1])
	return b.lift(out, err, nil, nil)
}

func differentiable(op backend.BinaryOp) bool {
	switch op {
	case backend.OpAdd, backend.OpSubtract, backend.OpMultiply, backend.OpDivide:
		return true
	}
	return false
}

// Binary computes op(a, c), recording add, subtract, multiply and divide.
func (b *Backend) Binary(op backend.BinaryOp, a, c backend.Native) (backend.Native, error) {
	vars, values, err := unwrapAll(a, c)
	if err != nil {
		return nil, err
	}
	out, err := b.inner.Binary(op, values[0], values[1])
	if !differentiable(op) {
		return b.lift(out, err, vars, nil)
	}
	return b.lift(out, err, vars, func(rec record) Operation { return &BinaryOp{record: rec, op: op} })
}

// BinaryInto computes op(a, c) into out. out must not track gradients.
func (b *Backend) BinaryInto(op backend.BinaryOp, a, c, out backend.Native) error {
	vars, values, err := unwrapAll(a, c, out)
	if err != nil {
		return err
	}
	if vars[2].requiresGrad {
		return fmt.Errorf("%w: in-place write to a variable that requires gradients", tensor.ErrNotImplemented)
	}
	return b.inner.BinaryInto(op, values[0], values[1], values[2])
}

// Unary computes op(x), recording negative, exp, log and sqrt.
func (b *Backend) Unary(op backend.UnaryOp, x backend.Native) (backend.Native, error) {
	vars, values, err := unwrapAll(x)
	if err != nil {
		return nil, err
	}
	out, err := b.inner.Unary(op, values[0])
	if op == backend.OpAbs {
		return b.lift(out, err, vars, nil)
	}
	return b.lift(out, err, vars, func(rec record) Operation { return &UnaryOp{record: rec, op: op} })
}

// MatMul computes a @ c, recording matrix products.
func (b *Backend) MatMul(a, c backend.Native) (backend.Native, error) {
	vars, values, err := unwrapAll(a, c)
	if err != nil {
		return nil, err
	}
	out, err := b.inner.MatMul(values[0], values[1])
	if len(b.inner.Shape(values[0])) != 2 || len(b.inner.Shape(values[1])) != 2 {
		return b.lift(out, err, vars, nil)
	}
	return b.lift(out, err, vars, func(rec record) Operation { return &MatMulOp{record: rec} })
}

func (b *Backend) reshaped(x backend.Native, fn func(backend.Native) (backend.Native, error)) (backend.Native, error) {
	vars, values, err := unwrapAll(x)
	if err != nil {
		return nil, err
	}
	out, err := fn(values[0])
	return b.lift(out, err, vars, func(rec record) Operation { return &ReshapeOp{record: rec} })
}

// Reshape returns x with a new shape.
func (b *Backend) Reshape(x backend.Native, shape tensor.Shape) (backend.Native, error) {
	return b.reshaped(x, func(v backend.Native) (backend.Native, error) { return b.inner.Reshape(v, shape) })
}

// ExpandDims inserts a size-1 axis.
func (b *Backend) ExpandDims(x backend.Native, axis int) (backend.Native, error) {
	return b.reshaped(x, func(v backend.Native) (backend.Native, error) { return b.inner.ExpandDims(v, axis) })
}

// Squeeze removes size-1 axes.
func (b *Backend) Squeeze(x backend.Native, axes []int) (backend.Native, error) {
	return b.reshaped(x, func(v backend.Native) (backend.Native, error) { return b.inner.Squeeze(v, axes) })
}

// PermuteDims reorders x's axes.
func (b *Backend) PermuteDims(x backend.Native, axes []int) (backend.Native, error) {
	vars, values, err := unwrapAll(x)
	if err != nil {
		return nil, err
	}
	_, norm, err := cpu.PermuteShape(b.inner.Shape(values[0]), axes)
	if err != nil {
		return nil, err
	}
	out, err := b.inner.PermuteDims(values[0], norm)
	return b.lift(out, err, vars, func(rec record) Operation { return &PermuteOp{record: rec, axes: norm} })
}

// BroadcastTo broadcasts x to shape, recorded as a sum back to x's shape.
func (b *Backend) BroadcastTo(x backend.Native, shape tensor.Shape) (backend.Native, error) {
	vars, values, err := unwrapAll(x)
	if err != nil {
		return nil, err
	}
	out, err := b.inner.BroadcastTo(values[0], shape)
	return b.lift(out, err, vars, func(rec record) Operation { return &broadcastOp{record: rec} })
}

type broadcastOp struct {
	record
}

func (o *broadcastOp) Backward(grad backend.Native, inner backend.Backend) ([]backend.Native, error) {
	g, err := reduceBroadcast(grad, inner.Shape(o.inputs[0].value), inner)
	if err != nil {
		return nil, err
	}
	return []backend.Native{g}, nil
}

// Cast converts x to dtype. Float-to-float casts are recorded.
func (b *Backend) Cast(x backend.Native, dtype tensor.DataType) (backend.Native, error) {
	vars, values, err := unwrapAll(x)
	if err != nil {
		return nil, err
	}
	out, err := b.inner.Cast(values[0], dtype)
	if !b.inner.DType(values[0]).IsFloat() {
		return b.lift(out, err, vars, nil)
	}
	return b.lift(out, err, vars, func(rec record) Operation { return &CastOp{record: rec} })
}

// Concat joins xs along axis. The result is not tracked.
func (b *Backend) Concat(xs []backend.Native, axis int) (backend.Native, error) {
	_, values, err := unwrapAll(xs...)
	if err != nil {
		return nil, err
	}
	out, err := b.inner.Concat(values, axis)
	return b.lift(out, err, nil, nil)
}

// Reduce applies a reduction, recording sum and mean.
func (b *Backend) Reduce(op backend.ReduceOp, x backend.Native, axes []int, keepDims bool) (backend.Native, error) {
	vars, values, err := unwrapAll(x)
	if err != nil {
		return nil, err
	}
	out, err := b.inner.Reduce(op, values[0], axes, keepDims)
	if op != backend.OpSum && op != backend.OpMean {
		return b.lift(out, err, vars, nil)
	}
	shape := b.inner.Shape(values[0])
	norm, nerr := cpu.NormalizeAxes(axes, len(shape))
	if nerr != nil {
		return b.lift(out, err, vars, nil)
	}
	kept, _ := cpu.ReducedShape(shape, norm)
	return b.lift(out, err, vars, func(rec record) Operation { return &ReduceOp{record: rec, op: op, kept: kept} })
}

// CopyInto overwrites dst with src. dst must not track gradients.
func (b *Backend) CopyInto(dst, src backend.Native) error {
	vars, values, err := unwrapAll(dst, src)
	if err != nil {
		return err
	}
	if vars[0].requiresGrad {
		return fmt.Errorf("%w: in-place write to a variable that requires gradients", tensor.ErrNotImplemented)
	}
	return b.inner.CopyInto(values[0], values[1])
}

// IsVariable reports whether x tracks gradients.
func (*Backend) IsVariable(x backend.Native) bool {
	v, ok := x.(*Variable)
	return ok && v.requiresGrad
}

// VariableData returns an untracked variable sharing x's value.
func (*Backend) VariableData(x backend.Native) (backend.Native, error) {
	v, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	return &Variable{value: v.value}, nil
}

// Variable returns a new gradient-tracked leaf sharing x's value.
func (b *Backend) Variable(x backend.Native) (backend.Native, error) {
	v, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	if dt := b.inner.DType(v.value); !dt.IsFloat() {
		return nil, &tensor.Error{Kind: tensor.ErrNotImplementedForBackend, Op: "variable", Backend: Name, DTypes: []tensor.DataType{dt}}
	}
	return &Variable{value: v.value, requiresGrad: true}, nil
}

// Backward computes the gradients of y with respect to every tracked
// variable recorded on the tape.
func (b *Backend) Backward(y *Variable) (Gradients, error) {
	return b.tape.Backward(y, b.inner)
}
