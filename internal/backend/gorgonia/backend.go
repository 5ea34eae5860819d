// Package gorgonia implements a backend on gorgonia's dense tensors.
//
// Every native tensor keeps its logical shape alongside a flat *Dense of the
// same length, so element-wise engine calls never see broadcasting or
// scalar-shape special cases. Operations the engine lacks, or only offers
// for some dtypes, run on the host through the cpu kernels.
package gorgonia

import (
	"fmt"

	gt "github.com/pdevine/tensor"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/backend/cpu"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Name is the registry name of the gorgonia backend.
const Name = "gorgonia"

func init() {
	backend.Register(Name, func() (backend.Backend, error) {
		return New(), nil
	})
}

var dtypes = map[tensor.DataType]gt.Dtype{
	tensor.Bool:    gt.Bool,
	tensor.Uint8:   gt.Uint8,
	tensor.Int8:    gt.Int8,
	tensor.Int16:   gt.Int16,
	tensor.Int32:   gt.Int32,
	tensor.Int64:   gt.Int64,
	tensor.Float32: gt.Float32,
	tensor.Float64: gt.Float64,
}

// Tensor is the gorgonia backend's native handle. dense is nil for tensors
// without elements.
type Tensor struct {
	shape tensor.Shape
	dtype tensor.DataType
	dense *gt.Dense
}

// Dense returns the flat engine tensor backing t.
func (t *Tensor) Dense() *gt.Dense {
	return t.dense
}

// String renders the tensor's shape and dtype.
func (t *Tensor) String() string {
	return fmt.Sprintf("gorgonia.Tensor(%v, %s)", t.shape, t.dtype)
}

// Backend is the gorgonia backend.
type Backend struct {
	k cpu.Kernels
}

// New creates a gorgonia backend.
func New() *Backend {
	return &Backend{k: cpu.DefaultKernels()}
}

// Name returns the backend name.
func (*Backend) Name() string { return Name }

// Capabilities returns the backend's capability flags. Half-precision
// floats have no engine type and are not supported.
func (*Backend) Capabilities() backend.Capabilities {
	supported := make([]tensor.DataType, 0, len(dtypes))
	for dt := range dtypes {
		supported = append(supported, dt)
	}
	return backend.Capabilities{
		InPlace:    true,
		NativeOut:  true,
		DTypes:     backend.DTypeSet(supported...),
		Operations: backend.OpSet(backend.AllOps()...),
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
		return nil, fmt.Errorf("%w: %T is not a gorgonia tensor", tensor.ErrBackendMismatch, x)
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

func unsupported(op string, dt tensor.DataType) error {
	return &tensor.Error{
		Kind:    tensor.ErrNotImplementedForBackend,
		Op:      op,
		Backend: Name,
		DTypes:  []tensor.DataType{dt},
	}
}

func flat[T tensor.Element](r *tensor.RawTensor) *gt.Dense {
	data := append([]T(nil), tensor.View[T](r)...)
	return gt.New(gt.WithShape(len(data)), gt.WithBacking(data))
}

// fromRaw copies r into a new native tensor.
func fromRaw(r *tensor.RawTensor) (*Tensor, error) {
	if _, ok := dtypes[r.DType()]; !ok {
		return nil, unsupported("from_host", r.DType())
	}
	t := &Tensor{shape: r.Shape().Clone(), dtype: r.DType()}
	if r.NumElements() == 0 {
		return t, nil
	}
	switch r.DType() {
	case tensor.Bool:
		data := append([]bool(nil), r.AsBool()...)
		t.dense = gt.New(gt.WithShape(len(data)), gt.WithBacking(data))
	case tensor.Uint8:
		t.dense = flat[uint8](r)
	case tensor.Int8:
		t.dense = flat[int8](r)
	case tensor.Int16:
		t.dense = flat[int16](r)
	case tensor.Int32:
		t.dense = flat[int32](r)
	case tensor.Int64:
		t.dense = flat[int64](r)
	case tensor.Float32:
		t.dense = flat[float32](r)
	default:
		t.dense = flat[float64](r)
	}
	return t, nil
}

func fill[T tensor.Element](dst []T, data any) {
	switch v := data.(type) {
	case []T:
		copy(dst, v)
	case T:
		dst[0] = v
	}
}

// toRaw copies d into a host tensor of the given shape. d may be a scalar
// engine tensor.
func toRaw(d *gt.Dense, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	r, _ := tensor.NewRaw(shape, dtype, tensor.CPU) // shape validated on entry
	if d == nil || r.NumElements() == 0 {
		return r
	}
	data := d.Data()
	switch dtype {
	case tensor.Bool:
		dst := r.AsBool()
		switch v := data.(type) {
		case []bool:
			copy(dst, v)
		case bool:
			dst[0] = v
		}
	case tensor.Uint8:
		fill(tensor.View[uint8](r), data)
	case tensor.Int8:
		fill(tensor.View[int8](r), data)
	case tensor.Int16:
		fill(tensor.View[int16](r), data)
	case tensor.Int32:
		fill(tensor.View[int32](r), data)
	case tensor.Int64:
		fill(tensor.View[int64](r), data)
	case tensor.Float32:
		fill(tensor.View[float32](r), data)
	case tensor.Float64:
		fill(tensor.View[float64](r), data)
	}
	return r
}

func (t *Tensor) raw() *tensor.RawTensor {
	return toRaw(t.dense, t.shape, t.dtype)
}

func dense(x gt.Tensor) (*gt.Dense, error) {
	d, ok := x.(*gt.Dense)
	if !ok {
		return nil, fmt.Errorf("gorgonia: unexpected engine result %T", x)
	}
	return d, nil
}

// viaHost runs a cpu kernel on the host form of x.
func viaHost(x *Tensor, kernel func(*tensor.RawTensor) (*tensor.RawTensor, error)) (backend.Native, error) {
	r, err := kernel(x.raw())
	if err != nil {
		return nil, err
	}
	return fromRaw(r)
}

// writeBack replaces t's contents with r's, which must have t's size.
func (t *Tensor) writeBack(r *tensor.RawTensor) error {
	if t.dense == nil {
		return nil
	}
	src, err := fromRaw(r)
	if err != nil {
		return err
	}
	return gt.Copy(t.dense, src.dense)
}

// FromHost copies raw into a gorgonia tensor. Every device maps to CPU.
func (*Backend) FromHost(r *tensor.RawTensor, _ tensor.Device) (backend.Native, error) {
	return fromRaw(r)
}

// ToHost copies x into a host tensor.
func (*Backend) ToHost(x backend.Native) (*tensor.RawTensor, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	return t.raw(), nil
}

// DType returns x's data type.
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
	return viaHost(t, func(r *tensor.RawTensor) (*tensor.RawTensor, error) { return b.k.GetItem(r, q) })
}

// SetItem writes value into the selected region of x in place.
func (b *Backend) SetItem(x backend.Native, q tensor.Query, value backend.Native) error {
	t, err := unwrap(x)
	if err != nil {
		return err
	}
	v, err := unwrap(value)
	if err != nil {
		return err
	}
	r := t.raw()
	if err := b.k.SetItem(r, q, v.raw()); err != nil {
		return err
	}
	return t.writeBack(r)
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

type engineFunc func(a, b interface{}, opts ...gt.FuncOpt) (gt.Tensor, error)

// engineBinary returns the engine function for op on dt, or nil when the
// cpu kernels must be used. Integer division and powers keep the kernel
// semantics.
func engineBinary(op backend.BinaryOp, dt tensor.DataType) engineFunc {
	if dt == tensor.Bool {
		return nil
	}
	switch op {
	case backend.OpAdd:
		return gt.Add
	case backend.OpSubtract:
		return gt.Sub
	case backend.OpMultiply:
		return gt.Mul
	case backend.OpMaximum:
		return gt.MaxBetween
	case backend.OpMinimum:
		return gt.MinBetween
	case backend.OpEqual:
		return gt.ElEq
	case backend.OpNotEqual:
		return gt.ElNe
	case backend.OpLess:
		return gt.Lt
	case backend.OpLessEqual:
		return gt.Lte
	case backend.OpGreater:
		return gt.Gt
	case backend.OpGreaterEqual:
		return gt.Gte
	}
	if !dt.IsFloat() {
		return nil
	}
	switch op {
	case backend.OpDivide:
		return gt.Div
	case backend.OpPow:
		return gt.Pow
	}
	return nil
}

// prepare returns t's elements as a flat engine tensor of dtype dt
// broadcast to shape.
func (b *Backend) prepare(t *Tensor, dt tensor.DataType, shape tensor.Shape) (*gt.Dense, error) {
	if t.dtype == dt && t.shape.Equal(shape) {
		return t.dense, nil
	}
	r := t.raw().Cast(dt)
	if !t.shape.Equal(shape) {
		var err error
		if r, err = b.k.BroadcastTo(r, shape); err != nil {
			return nil, err
		}
	}
	p, err := fromRaw(r)
	if err != nil {
		return nil, err
	}
	return p.dense, nil
}

// Binary computes op(a, c). Operands are promoted and broadcast before the
// engine sees them.
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
	fn := engineBinary(op, dt)
	if fn == nil || outShape.NumElements() == 0 {
		r, err := b.k.Binary(op, ta.raw(), tc.raw())
		if err != nil {
			return nil, err
		}
		return fromRaw(r)
	}

	da, err := b.prepare(ta, dt, outShape)
	if err != nil {
		return nil, err
	}
	dc, err := b.prepare(tc, dt, outShape)
	if err != nil {
		return nil, err
	}
	res, err := fn(da, dc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	d, err := dense(res)
	if err != nil {
		return nil, err
	}
	if op.IsComparison() {
		dt = tensor.Bool
	}
	return &Tensor{shape: outShape, dtype: dt, dense: d}, nil
}

// BinaryInto computes op(a, c) and writes the result into out.
func (b *Backend) BinaryInto(op backend.BinaryOp, a, c, out backend.Native) error {
	if _, err := unwrap(out); err != nil {
		return err
	}
	res, err := b.Binary(op, a, c)
	if err != nil {
		return err
	}
	return b.CopyInto(out, res)
}

// Unary computes op(x). Floating-point inputs use the engine.
func (b *Backend) Unary(op backend.UnaryOp, x backend.Native) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	var fn func(gt.Tensor, ...gt.FuncOpt) (gt.Tensor, error)
	switch op {
	case backend.OpNegative:
		fn = gt.Neg
	case backend.OpAbs:
		fn = gt.Abs
	case backend.OpExp:
		fn = gt.Exp
	case backend.OpLog:
		fn = gt.Log
	case backend.OpSqrt:
		fn = gt.Sqrt
	}
	if fn == nil || !t.dtype.IsFloat() || t.dense == nil {
		return viaHost(t, func(r *tensor.RawTensor) (*tensor.RawTensor, error) { return b.k.Unary(op, r) })
	}
	res, err := fn(t.dense)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	d, err := dense(res)
	if err != nil {
		return nil, err
	}
	return &Tensor{shape: t.shape.Clone(), dtype: t.dtype, dense: d}, nil
}

// MatMul computes a @ c. Non-empty float matrices use the engine.
func (b *Backend) MatMul(a, c backend.Native) (backend.Native, error) {
	ta, err := unwrap(a)
	if err != nil {
		return nil, err
	}
	tc, err := unwrap(c)
	if err != nil {
		return nil, err
	}
	dt := tensor.PromoteTypes(ta.dtype, tc.dtype)
	if len(ta.shape) != 2 || len(tc.shape) != 2 || !dt.IsFloat() ||
		ta.dense == nil || tc.dense == nil || ta.shape[1] != tc.shape[0] {
		r, err := b.k.MatMul(ta.raw(), tc.raw())
		if err != nil {
			return nil, err
		}
		return fromRaw(r)
	}

	m, k, n := ta.shape[0], ta.shape[1], tc.shape[1]
	da, err := b.prepare(ta, dt, ta.shape)
	if err != nil {
		return nil, err
	}
	dc, err := b.prepare(tc, dt, tc.shape)
	if err != nil {
		return nil, err
	}
	am := gt.New(gt.WithShape(m, k), gt.WithBacking(da.Data()))
	cm := gt.New(gt.WithShape(k, n), gt.WithBacking(dc.Data()))
	res, err := gt.MatMul(am, cm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", backend.OpMatMul, err)
	}
	d, err := dense(res)
	if err != nil {
		return nil, err
	}
	if err := d.Reshape(m * n); err != nil {
		return nil, err
	}
	return &Tensor{shape: tensor.Shape{m, n}, dtype: dt, dense: d}, nil
}

// withShape returns a copy of t with a new logical shape.
func (t *Tensor) withShape(shape tensor.Shape) *Tensor {
	out := &Tensor{shape: shape, dtype: t.dtype}
	if t.dense != nil {
		out.dense = t.dense.Clone().(*gt.Dense)
	}
	return out
}

// Reshape returns x with a new shape. One dimension may be -1.
func (*Backend) Reshape(x backend.Native, shape tensor.Shape) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	resolved, err := shape.Resolve(t.shape.NumElements())
	if err != nil {
		return nil, fmt.Errorf("%w: reshape: %v", tensor.ErrShapeMismatch, err)
	}
	return t.withShape(resolved), nil
}

// PermuteDims reorders x's axes with the engine's transpose.
func (*Backend) PermuteDims(x backend.Native, axes []int) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	outShape, norm, err := cpu.PermuteShape(t.shape, axes)
	if err != nil {
		return nil, err
	}
	if len(t.shape) < 2 || t.dense == nil {
		return t.withShape(outShape), nil
	}
	view := gt.New(gt.WithShape(t.shape...), gt.WithBacking(t.dense.Data()))
	res, err := gt.Transpose(view, norm...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", backend.OpPermuteDims, err)
	}
	d, err := dense(res)
	if err != nil {
		return nil, err
	}
	if err := d.Reshape(outShape.NumElements()); err != nil {
		return nil, err
	}
	return &Tensor{shape: outShape, dtype: t.dtype, dense: d}, nil
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
	return t.withShape(shape), nil
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
	return t.withShape(shape), nil
}

// BroadcastTo broadcasts x to shape.
func (b *Backend) BroadcastTo(x backend.Native, shape tensor.Shape) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	return viaHost(t, func(r *tensor.RawTensor) (*tensor.RawTensor, error) { return b.k.BroadcastTo(r, shape) })
}

// Cast converts x to dtype.
func (*Backend) Cast(x backend.Native, dtype tensor.DataType) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	if _, ok := dtypes[dtype]; !ok {
		return nil, unsupported(backend.OpCast, dtype)
	}
	if dtype == t.dtype {
		return t.withShape(t.shape.Clone()), nil
	}
	return fromRaw(t.raw().Cast(dtype))
}

// Concat joins xs along axis. Same-dtype, non-empty inputs use the engine.
func (b *Backend) Concat(xs []backend.Native, axis int) (backend.Native, error) {
	ts := make([]*Tensor, len(xs))
	engine := len(xs) > 0
	for i, x := range xs {
		t, err := unwrap(x)
		if err != nil {
			return nil, err
		}
		ts[i] = t
		engine = engine && t.dense != nil && t.dtype == ts[0].dtype && len(t.shape) == len(ts[0].shape)
	}
	var ax int
	if engine {
		var err error
		ax, err = tensor.NormalizeAxis(axis, len(ts[0].shape))
		engine = err == nil
		for _, t := range ts {
			for d := range t.shape {
				engine = engine && (d == ax || t.shape[d] == ts[0].shape[d])
			}
		}
	}
	if !engine {
		rs := make([]*tensor.RawTensor, len(ts))
		for i, t := range ts {
			rs[i] = t.raw()
		}
		r, err := b.k.Concat(rs, axis)
		if err != nil {
			return nil, err
		}
		return fromRaw(r)
	}

	views := make([]gt.Tensor, len(ts))
	outShape := ts[0].shape.Clone()
	outShape[ax] = 0
	for i, t := range ts {
		views[i] = gt.New(gt.WithShape(t.shape...), gt.WithBacking(t.dense.Data()))
		outShape[ax] += t.shape[ax]
	}
	res, err := gt.Concat(ax, views[0], views[1:]...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", backend.OpConcat, err)
	}
	d, err := dense(res)
	if err != nil {
		return nil, err
	}
	if len(views) == 1 {
		d = d.Clone().(*gt.Dense)
	}
	if err := d.Reshape(outShape.NumElements()); err != nil {
		return nil, err
	}
	return &Tensor{shape: outShape, dtype: ts[0].dtype, dense: d}, nil
}

// Reduce applies a reduction. Full float sums use the engine.
func (b *Backend) Reduce(op backend.ReduceOp, x backend.Native, axes []int, keepDims bool) (backend.Native, error) {
	t, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	norm, err := cpu.NormalizeAxes(axes, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if op != backend.OpSum || len(norm) < len(t.shape) || t.dense == nil || !t.dtype.IsFloat() {
		return viaHost(t, func(r *tensor.RawTensor) (*tensor.RawTensor, error) {
			return b.k.Reduce(op, r, axes, keepDims)
		})
	}
	res, err := gt.Sum(t.dense)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	d, err := dense(res)
	if err != nil {
		return nil, err
	}
	kept, dropped := cpu.ReducedShape(t.shape, norm)
	shape := dropped
	if keepDims {
		shape = kept
	}
	return fromRaw(toRaw(d, shape, t.dtype))
}

// CopyInto overwrites dst with src in place, converting src's dtype.
func (b *Backend) CopyInto(dst, src backend.Native) error {
	td, err := unwrap(dst)
	if err != nil {
		return err
	}
	ts, err := unwrap(src)
	if err != nil {
		return err
	}
	r := td.raw()
	if err := b.k.CopyInto(r, ts.raw()); err != nil {
		return err
	}
	return td.writeBack(r)
}

// IsVariable is always false.
func (*Backend) IsVariable(backend.Native) bool { return false }

// VariableData returns x unchanged.
func (*Backend) VariableData(x backend.Native) (backend.Native, error) { return x, nil }

// Variable is not supported.
func (*Backend) Variable(backend.Native) (backend.Native, error) {
	return nil, fmt.Errorf("%w: gorgonia variables", tensor.ErrNotImplemented)
}
