package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// RawTensor is the host representation of a tensor: a contiguous row-major
// byte buffer with shape, strides, dtype and device. Every backend can
// detach to and rebuild from a RawTensor.
type RawTensor struct {
	data   []byte   // Little-endian element storage
	shape  Shape    // Tensor dimensions
	stride []int    // Element strides (row-major)
	dtype  DataType // Runtime type information
	device Device   // Device the payload was detached from
}

// NewRaw creates a new zero-filled RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// NewRawFromBytes wraps data without copying. len(data) must match shape and dtype.
func NewRawFromBytes(shape Shape, dtype DataType, device Device, data []byte) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if want := shape.NumElements() * dtype.Size(); len(data) != want {
		return nil, fmt.Errorf("data size mismatch: got %d bytes, want %d for %v %s", len(data), want, shape, dtype)
	}
	return &RawTensor{
		data:   data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// FromFloat64s builds a RawTensor of dtype from float64 values.
func FromFloat64s(shape Shape, dtype DataType, values []float64) (*RawTensor, error) {
	raw, err := NewRaw(shape, dtype, CPU)
	if err != nil {
		return nil, err
	}
	if len(values) != raw.NumElements() {
		return nil, fmt.Errorf("got %d values for shape %v", len(values), shape)
	}
	for i, v := range values {
		raw.SetFloat64(i, v)
	}
	return raw, nil
}

// FromInt64s builds a RawTensor of dtype from int64 values.
func FromInt64s(shape Shape, dtype DataType, values []int64) (*RawTensor, error) {
	raw, err := NewRaw(shape, dtype, CPU)
	if err != nil {
		return nil, err
	}
	if len(values) != raw.NumElements() {
		return nil, fmt.Errorf("got %d values for shape %v", len(values), shape)
	}
	for i, v := range values {
		raw.SetInt64(i, v)
	}
	return raw, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's element strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's device.
func (r *RawTensor) Device() Device {
	return r.device
}

// WithDevice returns a shallow copy tagged with another device.
func (r *RawTensor) WithDevice(d Device) *RawTensor {
	out := *r
	out.device = d
	return &out
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return len(r.data)
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	if len(r.data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	if len(r.data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (r *RawTensor) AsInt32() []int32 {
	if r.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", r.dtype))
	}
	if len(r.data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*int32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt64 interprets the data as []int64.
// Panics if the tensor's dtype is not Int64.
func (r *RawTensor) AsInt64() []int64 {
	if r.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", r.dtype))
	}
	if len(r.data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*int64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsUint8 interprets the data as []uint8.
// Panics if the tensor's dtype is not Uint8.
func (r *RawTensor) AsUint8() []uint8 {
	if r.dtype != Uint8 {
		panic(fmt.Sprintf("tensor dtype is %s, not uint8", r.dtype))
	}
	return r.data
}

// AsBool interprets the data as []bool.
// Panics if the tensor's dtype is not Bool.
func (r *RawTensor) AsBool() []bool {
	if r.dtype != Bool {
		panic(fmt.Sprintf("tensor dtype is %s, not bool", r.dtype))
	}
	if len(r.data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*bool)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Element is a Go type with a direct RawTensor storage layout.
type Element interface {
	uint8 | int8 | int16 | int32 | int64 | float32 | float64
}

// DTypeOf returns the data type stored as T.
func DTypeOf[T Element]() DataType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return Uint8
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case float32:
		return Float32
	default:
		return Float64
	}
}

// View interprets r's data as []T without copying.
// Panics if T does not match r's dtype.
func View[T Element](r *RawTensor) []T {
	if dt := DTypeOf[T](); dt != r.dtype {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, dt))
	}
	if len(r.data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*T)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

func (r *RawTensor) elem(i int) []byte {
	size := r.dtype.Size()
	return r.data[i*size : (i+1)*size]
}

// Float64At returns element i (flat, row-major) converted to float64.
// Bool elements read as 0 or 1.
func (r *RawTensor) Float64At(i int) float64 {
	b := r.elem(i)
	switch r.dtype {
	case Bool:
		if b[0] != 0 {
			return 1
		}
		return 0
	case Uint8:
		return float64(b[0])
	case Int8:
		return float64(int8(b[0]))
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case Int64:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	case Float16:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
	case BFloat16:
		return float64(bfloat16.DecodeFloat32(b)[0])
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		panic(fmt.Sprintf("unsupported dtype %s", r.dtype))
	}
}

// SetFloat64 stores v at flat index i, converting to the tensor's dtype.
// Integer dtypes truncate toward zero; Bool stores v != 0.
func (r *RawTensor) SetFloat64(i int, v float64) {
	b := r.elem(i)
	switch r.dtype {
	case Bool:
		b[0] = 0
		if v != 0 {
			b[0] = 1
		}
	case Uint8:
		b[0] = uint8(int64(v))
	case Int8:
		b[0] = byte(int8(int64(v)))
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(int16(int64(v))))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(int64(v))))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(int64(v)))
	case Float16:
		binary.LittleEndian.PutUint16(b, float16.Fromfloat32(float32(v)).Bits())
	case BFloat16:
		copy(b, bfloat16.EncodeFloat32([]float32{float32(v)}))
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	default:
		panic(fmt.Sprintf("unsupported dtype %s", r.dtype))
	}
}

// Int64At returns element i converted to int64. Float elements truncate.
func (r *RawTensor) Int64At(i int) int64 {
	b := r.elem(i)
	switch r.dtype {
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case Int64:
		return int64(binary.LittleEndian.Uint64(b))
	default:
		return int64(r.Float64At(i))
	}
}

// SetInt64 stores v at flat index i, converting to the tensor's dtype.
func (r *RawTensor) SetInt64(i int, v int64) {
	b := r.elem(i)
	switch r.dtype {
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(v))
	default:
		r.SetFloat64(i, float64(v))
	}
}

// BoolAt reports whether element i is non-zero.
func (r *RawTensor) BoolAt(i int) bool {
	if r.dtype == Bool {
		return r.data[i] != 0
	}
	return r.Float64At(i) != 0
}

// SetBool stores 1 or 0 at flat index i.
func (r *RawTensor) SetBool(i int, v bool) {
	if v {
		r.SetFloat64(i, 1)
		return
	}
	r.SetFloat64(i, 0)
}

// CopyElem copies element j of src into element i of r, converting dtype.
// Integer to integer copies never pass through float64.
func (r *RawTensor) CopyElem(i int, src *RawTensor, j int) {
	switch {
	case r.dtype == src.dtype:
		copy(r.elem(i), src.elem(j))
	case r.dtype.IsInt() && src.dtype.IsInt():
		r.SetInt64(i, src.Int64At(j))
	default:
		r.SetFloat64(i, src.Float64At(j))
	}
}

// Float64s returns every element converted to float64.
func (r *RawTensor) Float64s() []float64 {
	out := make([]float64, r.NumElements())
	for i := range out {
		out[i] = r.Float64At(i)
	}
	return out
}

// Clone creates a deep copy of the RawTensor.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]byte, len(r.data))
	copy(data, r.data)
	return &RawTensor{
		data:   data,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
	}
}

// Cast returns a copy of r converted to dtype.
func (r *RawTensor) Cast(dtype DataType) *RawTensor {
	if dtype == r.dtype {
		return r.Clone()
	}
	out, _ := NewRaw(r.shape, dtype, r.device) // shape already validated
	for i := 0; i < r.NumElements(); i++ {
		out.CopyElem(i, r, i)
	}
	return out
}

// Reshape returns a RawTensor sharing r's buffer with a new shape.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("%w: cannot reshape %v into %v", ErrShapeMismatch, r.shape, shape)
	}
	return &RawTensor{
		data:   r.data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		device: r.device,
	}, nil
}

// Equal reports whether r and other have the same dtype, shape and bytes.
func (r *RawTensor) Equal(other *RawTensor) bool {
	if r.dtype != other.dtype || !r.shape.Equal(other.shape) || len(r.data) != len(other.data) {
		return false
	}
	for i := range r.data {
		if r.data[i] != other.data[i] {
			return false
		}
	}
	return true
}
