package cpu

import (
	"errors"
	"math"
	"testing"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/parallel"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Helper to create test backend.
func newTestBackend() *Backend {
	return NewWithConfig(parallel.WithWorkers(2))
}

func fromValues(t *testing.T, b *Backend, shape tensor.Shape, dtype tensor.DataType, values ...float64) backend.Native {
	t.Helper()
	r, err := tensor.FromFloat64s(shape, dtype, values)
	if err != nil {
		t.Fatalf("FromFloat64s(%v): %v", shape, err)
	}
	x, err := b.FromHost(r, tensor.CPU)
	if err != nil {
		t.Fatalf("FromHost: %v", err)
	}
	return x
}

// Helper to check float64 slices are equal within epsilon.
func float64SliceEqual(a, b []float64) bool {
	const epsilon = 1e-6
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > epsilon {
			return false
		}
	}
	return true
}

func values(b *Backend, x backend.Native) []float64 {
	return mustRaw(x).Float64s()
}

func TestBackend_Identity(t *testing.T) {
	b := newTestBackend()
	if b.Name() != "cpu" {
		t.Errorf("Name = %q, want cpu", b.Name())
	}
	caps := b.Capabilities()
	if !caps.InPlace || !caps.NativeOut || caps.NativeViews || caps.Variables {
		t.Errorf("unexpected capabilities %+v", caps)
	}
	if missing := caps.Missing(backend.RequiredOps); len(missing) > 0 {
		t.Errorf("missing required ops %v", missing)
	}
	if !b.Owns(&Tensor{}) || b.Owns([]float64{1}) {
		t.Error("Owns should accept only *Tensor")
	}
}

func TestBackend_Binary(t *testing.T) {
	b := newTestBackend()

	tests := []struct {
		name  string
		op    backend.BinaryOp
		a, c  []float64
		want  []float64
		dtype tensor.DataType
	}{
		{"add", backend.OpAdd, []float64{1, 2, 3}, []float64{4, 5, 6}, []float64{5, 7, 9}, tensor.Float32},
		{"subtract", backend.OpSubtract, []float64{1, 2, 3}, []float64{4, 5, 6}, []float64{-3, -3, -3}, tensor.Int64},
		{"multiply", backend.OpMultiply, []float64{1, 2, 3}, []float64{4, 5, 6}, []float64{4, 10, 18}, tensor.Int32},
		{"divide", backend.OpDivide, []float64{1, 5, 9}, []float64{2, 2, 3}, []float64{0.5, 2.5, 3}, tensor.Float64},
		{"int divide by zero", backend.OpDivide, []float64{1, 5, 9}, []float64{0, 2, 3}, []float64{0, 2, 3}, tensor.Int64},
		{"pow", backend.OpPow, []float64{2, 3, 4}, []float64{2, 2, 0.5}, []float64{4, 9, 2}, tensor.Float32},
		{"maximum", backend.OpMaximum, []float64{1, 8, 3}, []float64{4, 5, 6}, []float64{4, 8, 6}, tensor.Int16},
		{"minimum", backend.OpMinimum, []float64{1, 8, 3}, []float64{4, 5, 6}, []float64{1, 5, 3}, tensor.Float16},
		{"less", backend.OpLess, []float64{1, 8, 3}, []float64{4, 5, 3}, []float64{1, 0, 0}, tensor.Float32},
		{"greater_equal", backend.OpGreaterEqual, []float64{1, 8, 3}, []float64{4, 5, 3}, []float64{0, 1, 1}, tensor.Int8},
		{"equal", backend.OpEqual, []float64{1, 8, 3}, []float64{4, 8, 3}, []float64{0, 1, 1}, tensor.BFloat16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := fromValues(t, b, tensor.Shape{3}, tt.dtype, tt.a...)
			c := fromValues(t, b, tensor.Shape{3}, tt.dtype, tt.c...)
			out, err := b.Binary(tt.op, a, c)
			if err != nil {
				t.Fatalf("Binary(%s) failed: %v", tt.op, err)
			}
			if got := values(b, out); !float64SliceEqual(got, tt.want) {
				t.Errorf("Binary(%s) = %v, want %v", tt.op, got, tt.want)
			}
			wantDType := tt.dtype
			if tt.op.IsComparison() {
				wantDType = tensor.Bool
			}
			if b.DType(out) != wantDType {
				t.Errorf("Binary(%s) dtype = %s, want %s", tt.op, b.DType(out), wantDType)
			}
		})
	}
}

func TestBackend_BinaryBroadcastAndPromote(t *testing.T) {
	b := newTestBackend()
	a := fromValues(t, b, tensor.Shape{2, 3}, tensor.Int32, 1, 2, 3, 4, 5, 6)
	c := fromValues(t, b, tensor.Shape{3}, tensor.Float32, 10, 20, 30)

	out, err := b.Binary(backend.OpAdd, a, c)
	if err != nil {
		t.Fatalf("Binary failed: %v", err)
	}
	if !b.Shape(out).Equal(tensor.Shape{2, 3}) {
		t.Errorf("shape = %v, want [2 3]", b.Shape(out))
	}
	if b.DType(out) != tensor.Float64 {
		t.Errorf("dtype = %s, want float64 (int32 with float32)", b.DType(out))
	}
	if got, want := values(b, out), []float64{11, 22, 33, 14, 25, 36}; !float64SliceEqual(got, want) {
		t.Errorf("values = %v, want %v", got, want)
	}

	bad := fromValues(t, b, tensor.Shape{2}, tensor.Float32, 1, 2)
	if _, err := b.Binary(backend.OpAdd, a, bad); !errors.Is(err, tensor.ErrBroadcast) {
		t.Errorf("err = %v, want ErrBroadcast", err)
	}
}

func TestBackend_BinaryInto(t *testing.T) {
	b := newTestBackend()
	a := fromValues(t, b, tensor.Shape{3}, tensor.Float32, 1, 2, 3)
	c := fromValues(t, b, tensor.Shape{3}, tensor.Float32, 4, 5, 6)
	out := fromValues(t, b, tensor.Shape{3}, tensor.Float32, 0, 0, 0)

	if err := b.BinaryInto(backend.OpMultiply, a, c, out); err != nil {
		t.Fatalf("BinaryInto failed: %v", err)
	}
	if got := values(b, out); !float64SliceEqual(got, []float64{4, 10, 18}) {
		t.Errorf("out = %v", got)
	}

	small := fromValues(t, b, tensor.Shape{2}, tensor.Float32, 7, 7)
	if err := b.BinaryInto(backend.OpAdd, a, c, small); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("err = %v, want ErrShapeMismatch", err)
	}
	if got := values(b, small); !float64SliceEqual(got, []float64{7, 7}) {
		t.Errorf("out modified on failure: %v", got)
	}
}

func TestBackend_Unary(t *testing.T) {
	b := newTestBackend()
	x := fromValues(t, b, tensor.Shape{3}, tensor.Float64, 1, 4, 9)

	tests := []struct {
		op   backend.UnaryOp
		want []float64
	}{
		{backend.OpNegative, []float64{-1, -4, -9}},
		{backend.OpAbs, []float64{1, 4, 9}},
		{backend.OpSqrt, []float64{1, 2, 3}},
		{backend.OpLog, []float64{0, math.Log(4), math.Log(9)}},
		{backend.OpExp, []float64{math.E, math.Exp(4), math.Exp(9)}},
	}
	for _, tt := range tests {
		out, err := b.Unary(tt.op, x)
		if err != nil {
			t.Fatalf("Unary(%s) failed: %v", tt.op, err)
		}
		if got := values(b, out); !float64SliceEqual(got, tt.want) {
			t.Errorf("Unary(%s) = %v, want %v", tt.op, got, tt.want)
		}
	}
}

func TestBackend_Reduce(t *testing.T) {
	b := newTestBackend()
	x := fromValues(t, b, tensor.Shape{2, 3}, tensor.Float32, 1, 2, 3, 4, 5, 6)

	tests := []struct {
		op       backend.ReduceOp
		axes     []int
		keepDims bool
		shape    tensor.Shape
		want     []float64
	}{
		{backend.OpSum, nil, false, tensor.Shape{}, []float64{21}},
		{backend.OpSum, []int{0}, false, tensor.Shape{3}, []float64{5, 7, 9}},
		{backend.OpSum, []int{-1}, true, tensor.Shape{2, 1}, []float64{6, 15}},
		{backend.OpMean, []int{1}, false, tensor.Shape{2}, []float64{2, 5}},
		{backend.OpMax, []int{0}, false, tensor.Shape{3}, []float64{4, 5, 6}},
		{backend.OpMin, nil, false, tensor.Shape{}, []float64{1}},
		{backend.OpProd, []int{1}, false, tensor.Shape{2}, []float64{6, 120}},
	}
	for _, tt := range tests {
		out, err := b.Reduce(tt.op, x, tt.axes, tt.keepDims)
		if err != nil {
			t.Fatalf("Reduce(%s, %v) failed: %v", tt.op, tt.axes, err)
		}
		if !b.Shape(out).Equal(tt.shape) {
			t.Errorf("Reduce(%s, %v) shape = %v, want %v", tt.op, tt.axes, b.Shape(out), tt.shape)
		}
		if got := values(b, out); !float64SliceEqual(got, tt.want) {
			t.Errorf("Reduce(%s, %v) = %v, want %v", tt.op, tt.axes, got, tt.want)
		}
	}

	ints := fromValues(t, b, tensor.Shape{4}, tensor.Int64, 1, 2, 3, 4)
	mean, err := b.Reduce(backend.OpMean, ints, nil, false)
	if err != nil {
		t.Fatalf("mean of ints failed: %v", err)
	}
	if b.DType(mean) != tensor.Float64 || values(b, mean)[0] != 2.5 {
		t.Errorf("mean of ints = %v %s", values(b, mean), b.DType(mean))
	}

	empty := fromValues(t, b, tensor.Shape{0}, tensor.Float32)
	if _, err := b.Reduce(backend.OpMax, empty, nil, false); err == nil {
		t.Error("max of empty tensor should fail")
	}
}

func TestBackend_MatMul(t *testing.T) {
	b := newTestBackend()
	a := fromValues(t, b, tensor.Shape{2, 3}, tensor.Float32, 1, 2, 3, 4, 5, 6)
	c := fromValues(t, b, tensor.Shape{3, 2}, tensor.Float32, 7, 8, 9, 10, 11, 12)

	out, err := b.MatMul(a, c)
	if err != nil {
		t.Fatalf("MatMul failed: %v", err)
	}
	if !b.Shape(out).Equal(tensor.Shape{2, 2}) {
		t.Errorf("shape = %v", b.Shape(out))
	}
	if got, want := values(b, out), []float64{58, 64, 139, 154}; !float64SliceEqual(got, want) {
		t.Errorf("MatMul = %v, want %v", got, want)
	}

	v := fromValues(t, b, tensor.Shape{3}, tensor.Float32, 1, 0, 1)
	mv, err := b.MatMul(a, v)
	if err != nil {
		t.Fatalf("matrix-vector failed: %v", err)
	}
	if !b.Shape(mv).Equal(tensor.Shape{2}) || !float64SliceEqual(values(b, mv), []float64{4, 10}) {
		t.Errorf("matrix-vector = %v %v", b.Shape(mv), values(b, mv))
	}

	batched := fromValues(t, b, tensor.Shape{2, 1, 3}, tensor.Float32, 1, 1, 1, 2, 2, 2)
	bm, err := b.MatMul(batched, c)
	if err != nil {
		t.Fatalf("batched failed: %v", err)
	}
	if !b.Shape(bm).Equal(tensor.Shape{2, 1, 2}) || !float64SliceEqual(values(b, bm), []float64{27, 30, 54, 60}) {
		t.Errorf("batched = %v %v", b.Shape(bm), values(b, bm))
	}

	if _, err := b.MatMul(a, a); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("err = %v, want ErrShapeMismatch", err)
	}
}

func TestBackend_Manipulation(t *testing.T) {
	b := newTestBackend()
	x := fromValues(t, b, tensor.Shape{2, 3}, tensor.Int64, 1, 2, 3, 4, 5, 6)

	r, err := b.Reshape(x, tensor.Shape{3, -1})
	if err != nil || !b.Shape(r).Equal(tensor.Shape{3, 2}) {
		t.Fatalf("Reshape = %v, %v", b.Shape(r), err)
	}
	if _, err := b.Reshape(x, tensor.Shape{4}); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("Reshape err = %v, want ErrShapeMismatch", err)
	}

	p, err := b.PermuteDims(x, []int{1, 0})
	if err != nil {
		t.Fatalf("PermuteDims failed: %v", err)
	}
	if got, want := values(b, p), []float64{1, 4, 2, 5, 3, 6}; !float64SliceEqual(got, want) {
		t.Errorf("PermuteDims = %v, want %v", got, want)
	}

	e, err := b.ExpandDims(x, -1)
	if err != nil || !b.Shape(e).Equal(tensor.Shape{2, 3, 1}) {
		t.Fatalf("ExpandDims = %v, %v", b.Shape(e), err)
	}
	s, err := b.Squeeze(e, nil)
	if err != nil || !b.Shape(s).Equal(tensor.Shape{2, 3}) {
		t.Fatalf("Squeeze = %v, %v", b.Shape(s), err)
	}
	if _, err := b.Squeeze(x, []int{0}); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("Squeeze non-unit axis err = %v", err)
	}

	row := fromValues(t, b, tensor.Shape{3}, tensor.Int64, 1, 2, 3)
	bc, err := b.BroadcastTo(row, tensor.Shape{2, 3})
	if err != nil {
		t.Fatalf("BroadcastTo failed: %v", err)
	}
	if got, want := values(b, bc), []float64{1, 2, 3, 1, 2, 3}; !float64SliceEqual(got, want) {
		t.Errorf("BroadcastTo = %v, want %v", got, want)
	}
	if _, err := b.BroadcastTo(x, tensor.Shape{3}); !errors.Is(err, tensor.ErrBroadcast) {
		t.Errorf("BroadcastTo err = %v, want ErrBroadcast", err)
	}

	cat, err := b.Concat([]backend.Native{x, fromValues(t, b, tensor.Shape{2, 1}, tensor.Int64, 7, 8)}, 1)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	if got, want := values(b, cat), []float64{1, 2, 3, 7, 4, 5, 6, 8}; !float64SliceEqual(got, want) {
		t.Errorf("Concat = %v, want %v", got, want)
	}

	f, err := b.Cast(x, tensor.Float16)
	if err != nil || b.DType(f) != tensor.Float16 {
		t.Fatalf("Cast = %v, %v", b.DType(f), err)
	}
}

func TestBackend_ItemAccess(t *testing.T) {
	b := newTestBackend()
	x := fromValues(t, b, tensor.Shape{3, 2}, tensor.Float32, 1, 2, 3, 4, 5, 6)

	q, _ := tensor.ParseQuery("0:2")
	view, err := b.GetItem(x, q)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got, want := values(b, view), []float64{1, 2, 3, 4}; !float64SliceEqual(got, want) {
		t.Errorf("GetItem = %v, want %v", got, want)
	}

	// In-place write of a broadcast scalar.
	q, _ = tensor.ParseQuery(":, 1")
	if err := b.SetItem(x, q, fromValues(t, b, tensor.Shape{}, tensor.Int64, 0)); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if got, want := values(b, x), []float64{1, 0, 3, 0, 5, 0}; !float64SliceEqual(got, want) {
		t.Errorf("after SetItem = %v, want %v", got, want)
	}

	// GetItem returns a copy.
	if got := values(b, view); got[1] != 2 {
		t.Errorf("GetItem result aliases storage: %v", got)
	}

	scattered, err := b.ScatterND(x, [][]int{{0, 0}, {2, 1}}, fromValues(t, b, tensor.Shape{2}, tensor.Float32, 9, 8))
	if err != nil {
		t.Fatalf("ScatterND failed: %v", err)
	}
	if got, want := values(b, scattered), []float64{9, 0, 3, 0, 5, 8}; !float64SliceEqual(got, want) {
		t.Errorf("ScatterND = %v, want %v", got, want)
	}
	if values(b, x)[0] != 1 {
		t.Error("ScatterND modified its input")
	}
	if _, err := b.ScatterND(x, [][]int{{3, 0}}, fromValues(t, b, tensor.Shape{1}, tensor.Float32, 1)); !errors.Is(err, tensor.ErrInvalidQuery) {
		t.Errorf("ScatterND out of range err = %v", err)
	}
}

func TestBackend_HostRoundTrip(t *testing.T) {
	b := newTestBackend()
	for _, dt := range tensor.AllDataTypes {
		x := fromValues(t, b, tensor.Shape{2, 2}, dt, 1, 0, 1, 1)
		h, err := b.ToHost(x)
		if err != nil {
			t.Fatalf("ToHost(%s) failed: %v", dt, err)
		}
		y, _ := b.FromHost(h, tensor.CPU)
		if !mustRaw(y).Equal(mustRaw(x)) {
			t.Errorf("%s: round trip changed the tensor", dt)
		}
	}

	if _, err := b.ToHost([]float32{1}); !errors.Is(err, tensor.ErrBackendMismatch) {
		t.Errorf("ToHost foreign value err = %v", err)
	}
}
