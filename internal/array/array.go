// Package array implements Array, the backend-agnostic wrapper around one
// backend-native tensor handle.
//
// An Array caches metadata lazily, records how views were derived from their
// base, and keeps every view of a root consistent after in-place writes,
// whether or not the owning backend aliases storage natively.
//
// Example:
//
//	x, _ := array.New([]float64{1, 2, 3, 4})
//	y, _ := x.GetItem(tensor.Query{tensor.Range(0, 2)})
//	_ = x.SetItem(tensor.Query{tensor.Index(0)}, 9)
//	y.Float64s() // [9 2]
package array

import (
	"fmt"
	"strings"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/envconfig"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Array wraps exactly one backend-native tensor handle.
//
// Metadata (dtype, shape, device, strides) is read from the backend on first
// access and cached until the storage changes.
type Array struct {
	data    backend.Native
	backend string
	dynamic bool

	meta metadata

	arena *arena
	slot  int
}

type metadata struct {
	dtype     tensor.DataType
	hasDType  bool
	device    tensor.Device
	hasDevice bool
	shape     tensor.Shape // nil until computed
	strides   []int
}

type options struct {
	backend string
	dtype   tensor.DataType
	hasType bool
	device  tensor.Device
	dynamic *bool
}

// Option configures New.
type Option func(*options)

// WithBackend materialises the value on the named backend instead of the
// current one.
func WithBackend(name string) Option {
	return func(o *options) { o.backend = name }
}

// WithDType casts the value to dtype.
func WithDType(dtype tensor.DataType) Option {
	return func(o *options) { o.dtype, o.hasType = dtype, true }
}

// WithDevice requests a device for host values. Backends map unknown
// devices to their own.
func WithDevice(device tensor.Device) Option {
	return func(o *options) { o.device = device }
}

// WithDynamicBackend sets the array's dynamic backend flag. The default is
// UNITENSOR_DYNAMIC_BACKEND.
func WithDynamicBackend(dynamic bool) Option {
	return func(o *options) { o.dynamic = &dynamic }
}

// New wraps value in an Array.
//
// value may be an *Array (its values are copied, detached, to a new root on
// its backend), a native handle of a registered backend (that backend is
// adopted), a *tensor.RawTensor, or a Go scalar or nested slice literal.
// Host values are materialised on the current backend. Any other kind fails
// with tensor.ErrInvalidInputKind.
func New(value any, opts ...Option) (*Array, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	dynamic := envconfig.DynamicBackend()
	if o.dynamic != nil {
		dynamic = *o.dynamic
	}

	var (
		data backend.Native
		b    backend.Backend
		err  error
	)
	switch v := value.(type) {
	case nil:
		return nil, &tensor.Error{Kind: tensor.ErrInvalidInputKind, Op: "array", Err: fmt.Errorf("%w: nil", tensor.ErrInvalidInputKind)}
	case *Array:
		if b, err = v.impl(); err != nil {
			return nil, err
		}
		raw, err := v.ToRaw()
		if err != nil {
			return nil, err
		}
		if data, err = b.FromHost(raw.Clone(), v.Device()); err != nil {
			return nil, err
		}
		if o.dynamic == nil {
			dynamic = v.dynamic
		}
	case *tensor.RawTensor:
		if b, err = resolve(o.backend); err != nil {
			return nil, err
		}
		if data, err = b.FromHost(v, o.device); err != nil {
			return nil, err
		}
	default:
		if owner := backend.Owner(v); owner != nil {
			b, data = owner, v
			break
		}
		if !IsLiteral(v) {
			return nil, &tensor.Error{Kind: tensor.ErrInvalidInputKind, Op: "array", Err: fmt.Errorf("%w: %T", tensor.ErrInvalidInputKind, v)}
		}
		var want []tensor.DataType
		if o.hasType {
			want = append(want, o.dtype)
		}
		raw, err := FromLiteral(v, want...)
		if err != nil {
			return nil, &tensor.Error{Kind: tensor.ErrInvalidInputKind, Op: "array", Err: err}
		}
		if b, err = resolve(o.backend); err != nil {
			return nil, err
		}
		if data, err = b.FromHost(raw, o.device); err != nil {
			return nil, err
		}
	}

	if o.backend != "" && o.backend != b.Name() {
		target, err := backend.Load(o.backend)
		if err != nil {
			return nil, err
		}
		if data, err = transfer(data, b, target); err != nil {
			return nil, err
		}
		b = target
	}
	if o.hasType && b.DType(data) != o.dtype {
		if data, err = b.Cast(data, o.dtype); err != nil {
			return nil, err
		}
	}
	return Wrap(data, b.Name(), dynamic), nil
}

func resolve(name string) (backend.Backend, error) {
	if name != "" {
		return backend.Load(name)
	}
	return backend.Current()
}

// Wrap returns a root Array owning native data of the named backend.
// Metadata stays unset until first read.
func Wrap(data backend.Native, backendName string, dynamic bool) *Array {
	a := &Array{data: data, backend: backendName, dynamic: dynamic}
	newArena(a)
	return a
}

// impl returns the array's backend.
func (a *Array) impl() (backend.Backend, error) {
	return backend.Load(a.backend)
}

func (a *Array) mustImpl() backend.Backend {
	b, err := a.impl()
	if err != nil {
		panic(err)
	}
	return b
}

// setData rebinds the array's storage. Shape-derived metadata is always
// invalidated; dtype and device only when replaced is set.
func (a *Array) setData(data backend.Native, replaced bool) {
	a.data = data
	a.meta.shape, a.meta.strides = nil, nil
	if replaced {
		a.meta.hasDType, a.meta.hasDevice = false, false
	}
	if a.slot == rootSlot && a.arena != nil {
		a.arena.mu.Lock()
		a.arena.root = data
		a.arena.mu.Unlock()
	}
}

// Data returns the native handle.
func (a *Array) Data() backend.Native {
	return a.data
}

// Backend returns the name of the backend owning the data.
func (a *Array) Backend() string {
	return a.backend
}

// BackendName implements backend.Named.
func (a *Array) BackendName() string {
	return a.backend
}

// DynamicBackend reports whether the array follows the current backend.
func (a *Array) DynamicBackend() bool {
	return a.dynamic
}

// DType returns the element type.
func (a *Array) DType() tensor.DataType {
	if !a.meta.hasDType {
		a.meta.dtype, a.meta.hasDType = a.mustImpl().DType(a.data), true
	}
	return a.meta.dtype
}

// Device returns the device holding the data.
func (a *Array) Device() tensor.Device {
	if !a.meta.hasDevice {
		a.meta.device, a.meta.hasDevice = a.mustImpl().Device(a.data), true
	}
	return a.meta.device
}

// Shape returns the array's shape. The result must not be modified.
func (a *Array) Shape() tensor.Shape {
	if a.meta.shape == nil {
		a.meta.shape = a.mustImpl().Shape(a.data)
	}
	return a.meta.shape
}

// Strides returns the element strides reported by the backend.
func (a *Array) Strides() []int {
	if a.meta.strides == nil {
		a.meta.strides = a.mustImpl().Strides(a.data)
	}
	return a.meta.strides
}

// NDim returns the number of dimensions.
func (a *Array) NDim() int {
	return len(a.Shape())
}

// Size returns the number of elements.
func (a *Array) Size() int {
	return a.Shape().NumElements()
}

// ItemSize returns the size of one element in bytes.
func (a *Array) ItemSize() int {
	return a.DType().Size()
}

// Len returns the size of the first dimension. A 0-D array has no length
// and fails with tensor.ErrInvalidInputKind.
func (a *Array) Len() (int, error) {
	if a.NDim() == 0 {
		return 0, &tensor.Error{
			Kind: tensor.ErrInvalidInputKind, Op: "len", Backend: a.backend,
			Shapes: []tensor.Shape{a.Shape()},
			Err:    fmt.Errorf("%w: len() of unsized array", tensor.ErrInvalidInputKind),
		}
	}
	return a.Shape()[0], nil
}

// IsVariable reports whether the data is a gradient-tracked variable.
func (a *Array) IsVariable() bool {
	return a.mustImpl().IsVariable(a.data)
}

// ToRaw detaches the array's values to a host tensor.
func (a *Array) ToRaw() (*tensor.RawTensor, error) {
	b, err := a.impl()
	if err != nil {
		return nil, err
	}
	data := a.data
	if b.IsVariable(data) {
		if data, err = b.VariableData(data); err != nil {
			return nil, err
		}
	}
	return b.ToHost(data)
}

// Float64s returns every element converted to float64 in row-major order.
func (a *Array) Float64s() ([]float64, error) {
	raw, err := a.ToRaw()
	if err != nil {
		return nil, err
	}
	return raw.Float64s(), nil
}

// Item returns the only element of a one-element array as bool, int64 or
// float64 depending on the dtype.
func (a *Array) Item() (any, error) {
	if n := a.Size(); n != 1 {
		return nil, &tensor.Error{
			Kind: tensor.ErrShapeMismatch, Op: "item", Backend: a.backend,
			Shapes: []tensor.Shape{a.Shape()},
			Err:    fmt.Errorf("item needs one element, have %d", n),
		}
	}
	raw, err := a.ToRaw()
	if err != nil {
		return nil, err
	}
	return element(raw, 0), nil
}

func element(raw *tensor.RawTensor, i int) any {
	switch dt := raw.DType(); {
	case dt == tensor.Bool:
		return raw.BoolAt(i)
	case dt.IsInt():
		return raw.Int64At(i)
	default:
		return raw.Float64At(i)
	}
}

// String renders the values with dtype and backend.
func (a *Array) String() string {
	raw, err := a.ToRaw()
	if err != nil {
		return fmt.Sprintf("Array(<%v>, backend=%s)", err, a.backend)
	}
	var sb strings.Builder
	sb.WriteString("Array(")
	format(&sb, raw, raw.Shape(), 0)
	fmt.Fprintf(&sb, ", dtype=%s, backend=%s)", raw.DType(), a.backend)
	return sb.String()
}

func format(sb *strings.Builder, raw *tensor.RawTensor, shape tensor.Shape, offset int) {
	if len(shape) == 0 {
		fmt.Fprintf(sb, "%v", element(raw, offset))
		return
	}
	step := shape[1:].NumElements()
	sb.WriteByte('[')
	for i := range shape[0] {
		if i > 0 {
			sb.WriteString(", ")
		}
		format(sb, raw, shape[1:], offset+i*step)
	}
	sb.WriteByte(']')
}
