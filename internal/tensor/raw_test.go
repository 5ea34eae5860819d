package tensor

import (
	"errors"
	"math"
	"testing"
)

// RawTensor Tests

func TestNewRaw(t *testing.T) {
	shape := Shape{3, 4}
	raw, err := NewRaw(shape, Float32, CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}

	if !raw.Shape().Equal(shape) {
		t.Errorf("Shape = %v, want %v", raw.Shape(), shape)
	}

	if raw.DType() != Float32 {
		t.Errorf("DType = %v, want Float32", raw.DType())
	}

	if raw.Device() != CPU {
		t.Errorf("Device = %v, want CPU", raw.Device())
	}

	if raw.NumElements() != 12 {
		t.Errorf("NumElements = %d, want 12", raw.NumElements())
	}

	if raw.ByteSize() != 48 { // 12 * 4 bytes
		t.Errorf("ByteSize = %d, want 48", raw.ByteSize())
	}
}

func TestRawTensorAsInt64(t *testing.T) {
	raw, _ := NewRaw(Shape{3, 2}, Int64, CPU)
	data := raw.AsInt64()

	if len(data) != 6 {
		t.Errorf("AsInt64 length = %d, want 6", len(data))
	}

	// Modify and verify zero-copy
	data[0] = 42
	if raw.AsInt64()[0] != 42 {
		t.Error("AsInt64 should return zero-copy slice")
	}
	if raw.Int64At(0) != 42 {
		t.Errorf("Int64At(0) = %d, want 42", raw.Int64At(0))
	}
}

func TestRawTensorAsBool(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Bool, CPU)
	data := raw.AsBool()

	if len(data) != 4 {
		t.Errorf("AsBool length = %d, want 4", len(data))
	}

	data[0] = true
	if !raw.BoolAt(0) || raw.BoolAt(1) {
		t.Error("BoolAt should observe the zero-copy slice")
	}
}

func TestNewRawAllTypes(t *testing.T) {
	types := []struct {
		dtype       DataType
		elementSize int
	}{
		{Bool, 1},
		{Uint8, 1},
		{Int8, 1},
		{Int16, 2},
		{Int32, 4},
		{Int64, 8},
		{Float16, 2},
		{BFloat16, 2},
		{Float32, 4},
		{Float64, 8},
	}

	shape := Shape{2, 3}
	for _, tt := range types {
		raw, err := NewRaw(shape, tt.dtype, CPU)
		if err != nil {
			t.Fatalf("NewRaw(%v, %v) failed: %v", shape, tt.dtype, err)
		}

		expectedByteSize := 6 * tt.elementSize // 2*3 elements
		if raw.ByteSize() != expectedByteSize {
			t.Errorf("ByteSize = %d, want %d for type %v", raw.ByteSize(), expectedByteSize, tt.dtype)
		}
	}
}

func TestNewRawInvalidShape(t *testing.T) {
	invalidShapes := []Shape{
		{-1},
		{2, -3},
	}

	for _, shape := range invalidShapes {
		_, err := NewRaw(shape, Float32, CPU)
		if err == nil {
			t.Errorf("NewRaw(%v) should fail but didn't", shape)
		}
	}
}

func TestNewRawZeroSized(t *testing.T) {
	raw, err := NewRaw(Shape{2, 0}, Float32, CPU)
	if err != nil {
		t.Fatalf("NewRaw with zero dim failed: %v", err)
	}
	if raw.NumElements() != 0 || len(raw.AsFloat32()) != 0 {
		t.Errorf("zero-sized tensor has %d elements", raw.NumElements())
	}
}

func TestRawTensorScalar(t *testing.T) {
	raw, _ := NewRaw(Shape{}, Float32, CPU)

	if raw.NumElements() != 1 {
		t.Errorf("Scalar tensor NumElements = %d, want 1", raw.NumElements())
	}

	if raw.ByteSize() != 4 {
		t.Errorf("Scalar tensor ByteSize = %d, want 4", raw.ByteSize())
	}
}

func TestRawTensorFloat64RoundTrip(t *testing.T) {
	tests := []struct {
		dtype DataType
		in    float64
		want  float64
	}{
		{Bool, 3, 1},
		{Uint8, 200, 200},
		{Int8, -7, -7},
		{Int16, -1234, -1234},
		{Int32, 1 << 20, 1 << 20},
		{Int64, -3.9, -3},
		{Float16, 1.5, 1.5},
		{BFloat16, 2.5, 2.5},
		{Float32, 0.25, 0.25},
		{Float64, math.Pi, math.Pi},
	}

	for _, tt := range tests {
		raw, _ := NewRaw(Shape{2}, tt.dtype, CPU)
		raw.SetFloat64(1, tt.in)
		if got := raw.Float64At(1); got != tt.want {
			t.Errorf("%s: Float64At = %v, want %v", tt.dtype, got, tt.want)
		}
		if got := raw.Float64At(0); got != 0 {
			t.Errorf("%s: untouched element = %v, want 0", tt.dtype, got)
		}
	}
}

func TestRawTensorInt64Exact(t *testing.T) {
	raw, _ := NewRaw(Shape{1}, Int64, CPU)
	big := int64(1<<62 + 1) // not representable in float64
	raw.SetInt64(0, big)
	if raw.Int64At(0) != big {
		t.Errorf("Int64At = %d, want %d", raw.Int64At(0), big)
	}

	out, _ := NewRaw(Shape{1}, Int64, CPU)
	out.CopyElem(0, raw, 0)
	if out.Int64At(0) != big {
		t.Errorf("CopyElem lost precision: %d", out.Int64At(0))
	}
}

func TestRawTensorCloneIsDeep(t *testing.T) {
	raw, _ := FromFloat64s(Shape{3}, Float32, []float64{1, 2, 3})
	clone := raw.Clone()
	clone.SetFloat64(0, 10)

	if raw.Float64At(0) != 1 {
		t.Error("Clone should not share storage")
	}
	if !raw.Shape().Equal(clone.Shape()) {
		t.Errorf("Clone shape = %v, want %v", clone.Shape(), raw.Shape())
	}
}

func TestRawTensorCast(t *testing.T) {
	raw, _ := FromFloat64s(Shape{3}, Float32, []float64{1.5, -2.5, 0})

	ints := raw.Cast(Int32)
	if ints.DType() != Int32 {
		t.Fatalf("Cast dtype = %v, want int32", ints.DType())
	}
	want := []int32{1, -2, 0}
	for i, v := range ints.AsInt32() {
		if v != want[i] {
			t.Errorf("Cast[%d] = %d, want %d", i, v, want[i])
		}
	}

	bools := raw.Cast(Bool)
	if !bools.BoolAt(0) || !bools.BoolAt(1) || bools.BoolAt(2) {
		t.Errorf("Cast to bool = %v", bools.AsBool())
	}
}

func TestRawTensorReshape(t *testing.T) {
	raw, _ := FromFloat64s(Shape{2, 3}, Float64, []float64{1, 2, 3, 4, 5, 6})

	r, err := raw.Reshape(Shape{3, 2})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if !r.Shape().Equal(Shape{3, 2}) {
		t.Errorf("Reshape shape = %v", r.Shape())
	}

	if _, err := raw.Reshape(Shape{4}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Reshape to wrong size: err = %v, want ErrShapeMismatch", err)
	}
}

func TestNewRawFromBytesSizeMismatch(t *testing.T) {
	if _, err := NewRawFromBytes(Shape{2}, Float32, CPU, make([]byte, 4)); err == nil {
		t.Error("NewRawFromBytes should reject short data")
	}
}

func TestRawTensorAsWrongTypePanics(t *testing.T) {
	raw32, _ := NewRaw(Shape{2}, Float32, CPU)

	defer func() {
		if r := recover(); r == nil {
			t.Error("AsFloat64 on Float32 tensor should panic")
		}
	}()
	_ = raw32.AsFloat64()
}
