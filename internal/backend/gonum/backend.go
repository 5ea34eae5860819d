// Package gonum implements an immutable backend on gonum's float64
// routines. Tensors keep a logical dtype and store values as float64,
// rounded to the dtype after every operation.
package gonum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/backend/cpu"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Name is the registry name of the gonum backend.
const Name = "gonum"

func init() {
	backend.Register(Name, func() (backend.Backend, error) {
		return New(), nil
	})
}

// Tensor is the gonum backend's native handle. It is never mutated after
// construction.
type Tensor struct {
	shape tensor.Shape
	dtype tensor.DataType
	data  []float64
}

// Data returns a copy of the stored values.
func (t *Tensor) Data() []float64 {
	return append([]float64(nil), t.data...)
}

// String renders the tensor's shape and dtype.
func (t *Tensor) String() string {
	return fmt.Sprintf("gonum.Tensor(%v, %s)", t.shape, t.dtype)
}

// Backend is the gonum backend.
type Backend struct {
	k cpu.Kernels
}

// New creates a gonum backend.
func New() *Backend {
	return &Backend{k: cpu.DefaultKernels()}
}

// Name returns the backend name.
func (*Backend) Name() string { return Name }

// Capabilities returns the backend's capability flags. Storage is immutable,
// so in-place writes are not offered.
func (*Backend) Capabilities() backend.Capabilities {
	ops := backend.OpSet(backend.AllOps()...)
	delete(ops, backend.OpSetItem)
	delete(ops, backend.OpCopyInto)
	return backend.Capabilities{
		DTypes:     backend.DTypeSet(tensor.AllDataTypes...),
		Operations: ops,
	}
}

// Owns reports whether v is a *Tensor.
func (*Backend) Owns(v any) bool {
	_, ok := v.(*Tensor)
	return ok
}

func unwrap(x backend.Native) (*Tensor, error) {
	t, ok := x.(*Tensor)
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: %T is not a gonum tensor", tensor.ErrBackendMismatch, x)
	}
	return t, nil
}

func mustUnwrap(x backend.Native) *Tensor {
	t, err := unwrap(x)
	if err != nil {
		panic(err)
	}
	return t
}

// newTensor rounds data to dtype and wraps it.
func newTensor(shape tensor.Shape, dtype tensor.DataType, data []float64) *Tensor {
	if dtype != tensor.Float64 {
		scratch, _ := tensor.NewRaw(tensor.Shape{}, dtype, tensor.CPU)
		for i, v := range data {
			scratch.SetFloat64(0, v)
			data[i] = scratch.Float64At(0)
		}
	}
	return &Tensor{shape: shape.Clone(), dtype: dtype, data: data}
}

func (t *Tensor) raw() *tensor.RawTensor {
	r, _ := tensor.FromFloat64s(t.shape, t.dtype, t.data) // sizes always agree
	return r
}

func fromRaw(r *tensor.RawTensor) *Tensor {
	return &Tensor{shape: r.Shape().Clone(), dtype: r.DType(), data: r.Float64s()}
}

// viaHost runs a cpu kernel on the host form of x.
func viaHost(x *Tensor, kernel func(*tensor.RawTensor) (*tensor.RawTensor, error)) (backend.Native, error) {
	r, err := kernel(x.raw())
	if err != nil {
		return nil, err
	}
	return fromRaw(r), nil
}

// FromHost converts raw into a gonum tensor.
func (*Backend) FromHost(r *tensor.RawTensor, _ tensor.Device) (backend.Native, error) {
	return fromRaw(r), nil
}

// ToHost converts x into a host tensor.
func (*Backend) ToHost(x backend.Native) (*tensor.RawTensor, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	return t.raw(), nil
}

// DType returns x's logical data type.
func (*Backend) DType(x backend.Native) tensor.DataType { return mustUnwrap(x).dtype }

// Shape returns x's shape.
func (*Backend) Shape(x backend.Native) tensor.Shape { return mustUnwrap(x).shape.Clone() }

// Device is always CPU.
func (*Backend) Device(backend.Native) tensor.Device { return tensor.CPU }

// Strides returns row-major strides.
func (*Backend) Strides(x backend.Native) []int { return mustUnwrap(x).shape.ComputeStrides() }

// GetItem copies the selected region.
func (b *Backend) GetItem(x backend.Native, q tensor.Query) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	outShape, idx, err := q.Resolve(t.shape)
	if err != nil {
		return nil, err
	}
	data := make([]float64, len(idx))
	for i, j := range idx {
		data[i] = t.data[j]
	}
	return &Tensor{shape: outShape, dtype: t.dtype, data: data}, nil
}

// SetItem is not supported: gonum tensors are immutable.
func (*Backend) SetItem(backend.Native, tensor.Query, backend.Native) error {
	return fmt.Errorf("%w: gonum tensors are immutable", tensor.ErrNotImplemented)
}

// ScatterND returns a copy of x with updates written at indices.
func (b *Backend) ScatterND(x backend.Native, indices [][]int, updates backend.Native) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	u, err := unwrap(updates)
	if err != nil {
		return nil, err
	}
	return viaHost(t, func(r *tensor.RawTensor) (*tensor.RawTensor, error) {
		return b.k.ScatterND(r, indices, u.raw())
	})
}

// Binary computes op(a, c) in float64.
func (b *Backend) Binary(op backend.BinaryOp, a, c backend.Native) (backend.Native, error) {
	ta, err := unwrap(a)
	if err != nil {
		return nil, err
	}
	tc, err := unwrap(c)
	if err != nil {
		return nil, err
	}
	outShape, _, err := tensor.BroadcastShapes(ta.shape, tc.shape)
	if err != nil {
		return nil, err
	}
	dt := tensor.PromoteTypes(ta.dtype, tc.dtype)
	n := outShape.NumElements()
	out := make([]float64, n)

	if ta.shape.Equal(tc.shape) {
		switch op {
		case backend.OpAdd:
			return newTensor(outShape, dt, floats.AddTo(out, ta.data, tc.data)), nil
		case backend.OpSubtract:
			return newTensor(outShape, dt, floats.SubTo(out, ta.data, tc.data)), nil
		case backend.OpMultiply:
			return newTensor(outShape, dt, floats.MulTo(out, ta.data, tc.data)), nil
		case backend.OpDivide:
			if dt.IsFloat() {
				return newTensor(outShape, dt, floats.DivTo(out, ta.data, tc.data)), nil
			}
		}
	}

	fn, err := binaryFunc(op, dt)
	if err != nil {
		return nil, err
	}
	ai := tensor.NewBroadcaster(outShape, ta.shape)
	ci := tensor.NewBroadcaster(outShape, tc.shape)
	for i := range out {
		out[i] = fn(ta.data[ai.Index(i)], tc.data[ci.Index(i)])
	}
	if op.IsComparison() {
		dt = tensor.Bool
	}
	return newTensor(outShape, dt, out), nil
}

func boolf(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func binaryFunc(op backend.BinaryOp, dt tensor.DataType) (func(x, y float64) float64, error) {
	switch op {
	case backend.OpAdd:
		return func(x, y float64) float64 { return x + y }, nil
	case backend.OpSubtract:
		return func(x, y float64) float64 { return x - y }, nil
	case backend.OpMultiply:
		return func(x, y float64) float64 { return x * y }, nil
	case backend.OpDivide:
		if !dt.IsFloat() {
			return func(x, y float64) float64 {
				if y == 0 {
					return 0
				}
				return math.Trunc(x / y)
			}, nil
		}
		return func(x, y float64) float64 { return x / y }, nil
	case backend.OpPow:
		return math.Pow, nil
	case backend.OpMaximum:
		return math.Max, nil
	case backend.OpMinimum:
		return math.Min, nil
	case backend.OpEqual:
		return func(x, y float64) float64 { return boolf(x == y) }, nil
	case backend.OpNotEqual:
		return func(x, y float64) float64 { return boolf(x != y) }, nil
	case backend.OpLess:
		return func(x, y float64) float64 { return boolf(x < y) }, nil
	case backend.OpLessEqual:
		return func(x, y float64) float64 { return boolf(x <= y) }, nil
	case backend.OpGreater:
		return func(x, y float64) float64 { return boolf(x > y) }, nil
	case backend.OpGreaterEqual:
		return func(x, y float64) float64 { return boolf(x >= y) }, nil
	}
	return nil, fmt.Errorf("%w: binary op %q", tensor.ErrNotImplemented, op)
}

// BinaryInto is not supported: gonum tensors are immutable.
func (*Backend) BinaryInto(backend.BinaryOp, backend.Native, backend.Native, backend.Native) error {
	return fmt.Errorf("%w: gonum tensors are immutable", tensor.ErrNotImplemented)
}

// Unary computes op(x) in float64.
func (*Backend) Unary(op backend.UnaryOp, x backend.Native) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	var fn func(float64) float64
	switch op {
	case backend.OpNegative:
		fn = func(v float64) float64 { return -v }
	case backend.OpAbs:
		fn = math.Abs
	case backend.OpExp:
		fn = math.Exp
	case backend.OpLog:
		fn = math.Log
	case backend.OpSqrt:
		fn = math.Sqrt
	default:
		return nil, fmt.Errorf("%w: unary op %q", tensor.ErrNotImplemented, op)
	}
	out := make([]float64, len(t.data))
	for i, v := range t.data {
		out[i] = fn(v)
	}
	return newTensor(t.shape, t.dtype, out), nil
}

// MatMul multiplies batches of matrices with mat.Dense.
func (b *Backend) MatMul(a, c backend.Native) (backend.Native, error) {
	ta, err := unwrap(a)
	if err != nil {
		return nil, err
	}
	tc, err := unwrap(c)
	if err != nil {
		return nil, err
	}
	a2, c2, batch, outShape, err := cpu.MatMulShapes(ta.shape, tc.shape)
	if err != nil {
		return nil, err
	}
	m, k := a2[len(a2)-2], a2[len(a2)-1]
	n := c2[len(c2)-1]
	dt := tensor.PromoteTypes(ta.dtype, tc.dtype)

	out := make([]float64, batch.NumElements()*m*n)
	if m == 0 || k == 0 || n == 0 {
		return newTensor(outShape, dt, out), nil
	}
	aBatch := tensor.NewBroadcaster(batch, a2[:len(a2)-2])
	cBatch := tensor.NewBroadcaster(batch, c2[:len(c2)-2])
	for bi := 0; bi < batch.NumElements(); bi++ {
		aOff, cOff := aBatch.Index(bi)*m*k, cBatch.Index(bi)*k*n
		am := mat.NewDense(m, k, ta.data[aOff:aOff+m*k])
		cm := mat.NewDense(k, n, tc.data[cOff:cOff+k*n])
		om := mat.NewDense(m, n, out[bi*m*n:(bi+1)*m*n])
		om.Mul(am, cm)
	}
	return newTensor(outShape, dt, out), nil
}

// Reshape returns x with a new shape. One dimension may be -1.
func (*Backend) Reshape(x backend.Native, shape tensor.Shape) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	resolved, err := shape.Resolve(len(t.data))
	if err != nil {
		return nil, fmt.Errorf("%w: reshape: %v", tensor.ErrShapeMismatch, err)
	}
	return &Tensor{shape: resolved, dtype: t.dtype, data: t.Data()}, nil
}

// PermuteDims reorders x's axes.
func (b *Backend) PermuteDims(x backend.Native, axes []int) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	return viaHost(t, func(r *tensor.RawTensor) (*tensor.RawTensor, error) { return b.k.PermuteDims(r, axes) })
}

// ExpandDims inserts a size-1 axis.
func (*Backend) ExpandDims(x backend.Native, axis int) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	shape, err := cpu.ExpandShape(t.shape, axis)
	if err != nil {
		return nil, err
	}
	return &Tensor{shape: shape, dtype: t.dtype, data: t.Data()}, nil
}

// Squeeze removes size-1 axes.
func (*Backend) Squeeze(x backend.Native, axes []int) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	shape, err := cpu.SqueezeShape(t.shape, axes)
	if err != nil {
		return nil, err
	}
	return &Tensor{shape: shape, dtype: t.dtype, data: t.Data()}, nil
}

// BroadcastTo broadcasts x to shape.
func (*Backend) BroadcastTo(x backend.Native, shape tensor.Shape) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	if err := cpu.CheckBroadcastTo(t.shape, shape); err != nil {
		return nil, err
	}
	bc := tensor.NewBroadcaster(shape, t.shape)
	out := make([]float64, shape.NumElements())
	for i := range out {
		out[i] = t.data[bc.Index(i)]
	}
	return &Tensor{shape: shape.Clone(), dtype: t.dtype, data: out}, nil
}

// Cast converts x to dtype.
func (*Backend) Cast(x backend.Native, dtype tensor.DataType) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	return newTensor(t.shape, dtype, t.Data()), nil
}

// Concat joins xs along axis.
func (b *Backend) Concat(xs []backend.Native, axis int) (backend.Native, error) {
	rs := make([]*tensor.RawTensor, len(xs))
	for i, x := range xs {
		t, err := unwrap(x)
		if err != nil {
			return nil, err
		}
		rs[i] = t.raw()
	}
	r, err := b.k.Concat(rs, axis)
	if err != nil {
		return nil, err
	}
	return fromRaw(r), nil
}

// Reduce applies a reduction. Full reductions use gonum/floats.
func (b *Backend) Reduce(op backend.ReduceOp, x backend.Native, axes []int, keepDims bool) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	norm, err := cpu.NormalizeAxes(axes, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(norm) < len(t.shape) || len(t.data) == 0 || t.dtype == tensor.Bool {
		return viaHost(t, func(r *tensor.RawTensor) (*tensor.RawTensor, error) {
			return b.k.Reduce(op, r, axes, keepDims)
		})
	}

	var v float64
	dt := t.dtype
	switch op {
	case backend.OpSum:
		v = floats.Sum(t.data)
	case backend.OpMean:
		v = floats.Sum(t.data) / float64(len(t.data))
		if !dt.IsFloat() {
			dt = tensor.Float64
		}
	case backend.OpProd:
		v = floats.Prod(t.data)
	case backend.OpMax:
		v = floats.Max(t.data)
	case backend.OpMin:
		v = floats.Min(t.data)
	default:
		return nil, fmt.Errorf("%w: reduction %q", tensor.ErrNotImplemented, op)
	}
	kept, dropped := cpu.ReducedShape(t.shape, norm)
	shape := dropped
	if keepDims {
		shape = kept
	}
	return newTensor(shape, dt, []float64{v}), nil
}

// CopyInto is not supported: gonum tensors are immutable.
func (*Backend) CopyInto(backend.Native, backend.Native) error {
	return fmt.Errorf("%w: gonum tensors are immutable", tensor.ErrNotImplemented)
}

// IsVariable is always false.
func (*Backend) IsVariable(backend.Native) bool { return false }

// VariableData returns x unchanged.
func (*Backend) VariableData(x backend.Native) (backend.Native, error) { return x, nil }

// Variable is not supported.
func (*Backend) Variable(backend.Native) (backend.Native, error) {
	return nil, fmt.Errorf("%w: gonum variables", tensor.ErrNotImplemented)
}
