// Package cpu implements the pure-Go reference backend. Its kernels operate
// directly on host tensors and are reused by the other backends for the
// operations their engines lack.
package cpu

import (
	"fmt"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/envconfig"
	"github.com/born-ml/unitensor/internal/parallel"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Name is the registry name of the cpu backend.
const Name = "cpu"

func init() {
	backend.Register(Name, func() (backend.Backend, error) {
		return New(), nil
	})
}

// Kernels are the host-tensor implementations of every backend operation.
type Kernels struct {
	cfg parallel.Config
}

// NewKernels creates kernels with the given parallel configuration.
func NewKernels(cfg parallel.Config) Kernels {
	return Kernels{cfg: cfg}
}

// DefaultKernels creates kernels using UNITENSOR_NUM_THREADS workers.
func DefaultKernels() Kernels {
	return NewKernels(parallel.WithWorkers(envconfig.NumThreads()))
}

// Tensor is the cpu backend's native handle. It owns its storage and is
// mutated in place by SetItem and CopyInto.
type Tensor struct {
	raw *tensor.RawTensor
}

// NewTensor wraps raw without copying.
func NewTensor(raw *tensor.RawTensor) *Tensor {
	return &Tensor{raw: raw}
}

// Raw returns the underlying host tensor.
func (t *Tensor) Raw() *tensor.RawTensor {
	return t.raw
}

// String renders the tensor's shape and dtype.
func (t *Tensor) String() string {
	return fmt.Sprintf("cpu.Tensor(%v, %s)", t.raw.Shape(), t.raw.DType())
}

// Backend is the cpu backend.
type Backend struct {
	k Kernels
}

// New creates a cpu backend.
func New() *Backend {
	return &Backend{k: DefaultKernels()}
}

// NewWithConfig creates a cpu backend with an explicit parallel configuration.
func NewWithConfig(cfg parallel.Config) *Backend {
	return &Backend{k: NewKernels(cfg)}
}

// Name returns the backend name.
func (*Backend) Name() string {
	return Name
}

// Capabilities returns the backend's capability flags.
func (*Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		InPlace:    true,
		NativeOut:  true,
		DTypes:     backend.DTypeSet(tensor.AllDataTypes...),
		Operations: backend.OpSet(backend.AllOps()...),
	}
}

// Owns reports whether v is a *Tensor.
func (*Backend) Owns(v any) bool {
	_, ok := v.(*Tensor)
	return ok
}

func raw(x backend.Native) (*tensor.RawTensor, error) {
	t, ok := x.(*Tensor)
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: %T is not a cpu tensor", tensor.ErrBackendMismatch, x)
	}
	return t.raw, nil
}

func mustRaw(x backend.Native) *tensor.RawTensor {
	r, err := raw(x)
	if err != nil {
		panic(err)
	}
	return r
}

func wrap(r *tensor.RawTensor, err error) (backend.Native, error) {
	if err != nil {
		return nil, err
	}
	return &Tensor{raw: r}, nil
}

// FromHost copies raw into a new cpu tensor. Every device maps to CPU.
func (*Backend) FromHost(r *tensor.RawTensor, _ tensor.Device) (backend.Native, error) {
	return &Tensor{raw: r.Clone().WithDevice(tensor.CPU)}, nil
}

// ToHost returns a copy of x's storage.
func (*Backend) ToHost(x backend.Native) (*tensor.RawTensor, error) {
	r, err := raw(x)
	if err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

// DType returns x's data type.
func (*Backend) DType(x backend.Native) tensor.DataType { return mustRaw(x).DType() }

// Shape returns x's shape.
func (*Backend) Shape(x backend.Native) tensor.Shape { return mustRaw(x).Shape().Clone() }

// Device returns x's device.
func (*Backend) Device(x backend.Native) tensor.Device { return mustRaw(x).Device() }

// Strides returns x's element strides.
func (*Backend) Strides(x backend.Native) []int {
	return append([]int(nil), mustRaw(x).Strides()...)
}

// GetItem copies the selected region.
func (b *Backend) GetItem(x backend.Native, q tensor.Query) (backend.Native, error) {
	r, err := raw(x)
	if err != nil {
		return nil, err
	}
	return wrap(b.k.GetItem(r, q))
}

// SetItem writes value into the selected region of x in place.
func (b *Backend) SetItem(x backend.Native, q tensor.Query, value backend.Native) error {
	r, err := raw(x)
	if err != nil {
		return err
	}
	v, err := raw(value)
	if err != nil {
		return err
	}
	return b.k.SetItem(r, q, v)
}

// ScatterND returns a copy of x with updates written at indices.
func (b *Backend) ScatterND(x backend.Native, indices [][]int, updates backend.Native) (backend.Native, error) {
	r, err := raw(x)
	if err != nil {
		return nil, err
	}
	u, err := raw(updates)
	if err != nil {
		return nil, err
	}
	return wrap(b.k.ScatterND(r, indices, u))
}

// Binary computes op(a, b).
func (b *Backend) Binary(op backend.BinaryOp, a, c backend.Native) (backend.Native, error) {
	ra, err := raw(a)
	if err != nil {
		return nil, err
	}
	rc, err := raw(c)
	if err != nil {
		return nil, err
	}
	return wrap(b.k.Binary(op, ra, rc))
}

// BinaryInto computes op(a, c) and writes the result into out.
func (b *Backend) BinaryInto(op backend.BinaryOp, a, c, out backend.Native) error {
	ro, err := raw(out)
	if err != nil {
		return err
	}
	res, err := b.Binary(op, a, c)
	if err != nil {
		return err
	}
	return b.k.CopyInto(ro, mustRaw(res))
}

// Unary computes op(x).
func (b *Backend) Unary(op backend.UnaryOp, x backend.Native) (backend.Native, error) {
	r, err := raw(x)
	if err != nil {
		return nil, err
	}
	return wrap(b.k.Unary(op, r))
}

// MatMul computes a @ c.
func (b *Backend) MatMul(a, c backend.Native) (backend.Native, error) {
	ra, err := raw(a)
	if err != nil {
		return nil, err
	}
	rc, err := raw(c)
	if err != nil {
		return nil, err
	}
	return wrap(b.k.MatMul(ra, rc))
}

// Reshape returns x with a new shape.
func (b *Backend) Reshape(x backend.Native, shape tensor.Shape) (backend.Native, error) {
	r, err := raw(x)
	if err != nil {
		return nil, err
	}
	return wrap(b.k.Reshape(r, shape))
}

// PermuteDims reorders x's axes.
func (b *Backend) PermuteDims(x backend.Native, axes []int) (backend.Native, error) {
	r, err := raw(x)
	if err != nil {
		return nil, err
	}
	return wrap(b.k.PermuteDims(r, axes))
}

// ExpandDims inserts a size-1 axis.
func (b *Backend) ExpandDims(x backend.Native, axis int) (backend.Native, error) {
	r, err := raw(x)
	if err != nil {
		return nil, err
	}
	return wrap(b.k.ExpandDims(r, axis))
}

// Squeeze removes size-1 axes.
func (b *Backend) Squeeze(x backend.Native, axes []int) (backend.Native, error) {
	r, err := raw(x)
	if err != nil {
		return nil, err
	}
	return wrap(b.k.Squeeze(r, axes))
}

// BroadcastTo broadcasts x to shape.
func (b *Backend) BroadcastTo(x backend.Native, shape tensor.Shape) (backend.Native, error) {
	r, err := raw(x)
	if err != nil {
		return nil, err
	}
	return wrap(b.k.BroadcastTo(r, shape))
}

// Cast converts x to dtype.
func (*Backend) Cast(x backend.Native, dtype tensor.DataType) (backend.Native, error) {
	r, err := raw(x)
	if err != nil {
		return nil, err
	}
	return &Tensor{raw: r.Cast(dtype)}, nil
}

// Concat joins xs along axis.
func (b *Backend) Concat(xs []backend.Native, axis int) (backend.Native, error) {
	rs := make([]*tensor.RawTensor, len(xs))
	for i, x := range xs {
		r, err := raw(x)
		if err != nil {
			return nil, err
		}
		rs[i] = r
	}
	return wrap(b.k.Concat(rs, axis))
}

// Reduce applies a reduction over axes.
func (b *Backend) Reduce(op backend.ReduceOp, x backend.Native, axes []int, keepDims bool) (backend.Native, error) {
	r, err := raw(x)
	if err != nil {
		return nil, err
	}
	return wrap(b.k.Reduce(op, r, axes, keepDims))
}

// CopyInto overwrites dst with src in place.
func (b *Backend) CopyInto(dst, src backend.Native) error {
	rd, err := raw(dst)
	if err != nil {
		return err
	}
	rs, err := raw(src)
	if err != nil {
		return err
	}
	return b.k.CopyInto(rd, rs)
}

// IsVariable is always false: cpu tensors carry no gradient state.
func (*Backend) IsVariable(backend.Native) bool { return false }

// VariableData returns x unchanged.
func (*Backend) VariableData(x backend.Native) (backend.Native, error) { return x, nil }

// Variable is not supported.
func (*Backend) Variable(backend.Native) (backend.Native, error) {
	return nil, fmt.Errorf("%w: cpu variables", tensor.ErrNotImplemented)
}
