package gorgonia

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/tensor"
)

func native(t *testing.T, shape tensor.Shape, dtype tensor.DataType, values ...float64) backend.Native {
	t.Helper()
	r, err := tensor.FromFloat64s(shape, dtype, values)
	require.NoError(t, err)
	x, err := New().FromHost(r, tensor.CPU)
	require.NoError(t, err)
	return x
}

func values(t *testing.T, x backend.Native) []float64 {
	t.Helper()
	r, err := New().ToHost(x)
	require.NoError(t, err)
	return r.Float64s()
}

func TestCapabilities(t *testing.T) {
	caps := New().Capabilities()
	assert.True(t, caps.InPlace)
	assert.True(t, caps.DTypes[tensor.Float32])
	assert.False(t, caps.DTypes[tensor.Float16])
	assert.Empty(t, caps.Missing(backend.RequiredOps))

	r, err := tensor.NewRaw(tensor.Shape{2}, tensor.BFloat16, tensor.CPU)
	require.NoError(t, err)
	_, err = New().FromHost(r, tensor.CPU)
	assert.ErrorIs(t, err, tensor.ErrNotImplementedForBackend)
}

func TestHostRoundTrip(t *testing.T) {
	b := New()
	for _, dt := range []tensor.DataType{tensor.Bool, tensor.Uint8, tensor.Int8, tensor.Int16, tensor.Int32, tensor.Int64, tensor.Float32, tensor.Float64} {
		t.Run(dt.String(), func(t *testing.T) {
			x := native(t, tensor.Shape{2, 2}, dt, 1, 0, 1, 1)
			assert.Equal(t, dt, b.DType(x))
			assert.Equal(t, tensor.Shape{2, 2}, b.Shape(x))
			assert.Equal(t, []float64{1, 0, 1, 1}, values(t, x))
		})
	}

	s := native(t, tensor.Shape{}, tensor.Float64, 3.5)
	assert.Equal(t, []float64{3.5}, values(t, s))

	empty := native(t, tensor.Shape{0, 3}, tensor.Float32)
	assert.Nil(t, mustUnwrap(empty).Dense())
	assert.Empty(t, values(t, empty))
}

func TestBinary(t *testing.T) {
	b := New()
	a := native(t, tensor.Shape{3}, tensor.Float32, 1, 2, 3)
	c := native(t, tensor.Shape{3}, tensor.Float32, 4, 5, 6)

	out, err := b.Binary(backend.OpAdd, a, c)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 7, 9}, values(t, out))

	row := native(t, tensor.Shape{1, 3}, tensor.Int32, 1, 2, 3)
	col := native(t, tensor.Shape{2, 1}, tensor.Float32, 10, 20)
	out, err = b.Binary(backend.OpMultiply, row, col)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, b.Shape(out))
	assert.Equal(t, tensor.Float64, b.DType(out), "int32 with float32 promotes to float64")
	assert.Equal(t, []float64{10, 20, 30, 20, 40, 60}, values(t, out))

	ints := native(t, tensor.Shape{3}, tensor.Int64, 7, 8, 9)
	out, err = b.Binary(backend.OpDivide, ints, native(t, tensor.Shape{}, tensor.Int64, 2))
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 4}, values(t, out))

	out, err = b.Binary(backend.OpGreaterEqual, ints, native(t, tensor.Shape{}, tensor.Int64, 8))
	require.NoError(t, err)
	assert.Equal(t, tensor.Bool, b.DType(out))
	assert.Equal(t, []float64{0, 1, 1}, values(t, out))

	out, err = b.Binary(backend.OpMaximum, a, native(t, tensor.Shape{}, tensor.Float32, 2))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 3}, values(t, out))

	_, err = b.Binary(backend.OpAdd, a, native(t, tensor.Shape{2}, tensor.Float32, 1, 1))
	assert.ErrorIs(t, err, tensor.ErrBroadcast)
}

func TestInPlace(t *testing.T) {
	b := New()
	x := native(t, tensor.Shape{2, 2}, tensor.Float64, 1, 2, 3, 4)

	q, err := tensor.ParseQuery("0")
	require.NoError(t, err)
	require.NoError(t, b.SetItem(x, q, native(t, tensor.Shape{}, tensor.Float64, 9)))
	assert.Equal(t, []float64{9, 9, 3, 4}, values(t, x))

	out := native(t, tensor.Shape{2, 2}, tensor.Float64, 0, 0, 0, 0)
	require.NoError(t, b.BinaryInto(backend.OpSubtract, x, x, out))
	assert.Equal(t, []float64{0, 0, 0, 0}, values(t, out))

	bad := native(t, tensor.Shape{3}, tensor.Float64, 5, 5, 5)
	err = b.BinaryInto(backend.OpAdd, x, x, bad)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
	assert.Equal(t, []float64{5, 5, 5}, values(t, bad))
}

func TestUnaryAndReduce(t *testing.T) {
	b := New()
	x := native(t, tensor.Shape{2, 2}, tensor.Float64, 1, 4, 9, 16)

	out, err := b.Unary(backend.OpSqrt, x)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, values(t, out))

	out, err = b.Unary(backend.OpNegative, native(t, tensor.Shape{2}, tensor.Int32, 1, -2))
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 2}, values(t, out))

	out, err = b.Reduce(backend.OpSum, x, nil, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{}, b.Shape(out))
	assert.Equal(t, []float64{30}, values(t, out))

	out, err = b.Reduce(backend.OpSum, x, nil, true)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1}, b.Shape(out))

	out, err = b.Reduce(backend.OpMax, x, []int{0}, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 16}, values(t, out))
}

func TestMatMul(t *testing.T) {
	b := New()
	a := native(t, tensor.Shape{2, 3}, tensor.Float32, 1, 2, 3, 4, 5, 6)
	c := native(t, tensor.Shape{3, 2}, tensor.Float32, 7, 8, 9, 10, 11, 12)
	out, err := b.MatMul(a, c)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2}, b.Shape(out))
	assert.Equal(t, []float64{58, 64, 139, 154}, values(t, out))

	batched := native(t, tensor.Shape{2, 1, 2}, tensor.Int64, 1, 2, 3, 4)
	eye := native(t, tensor.Shape{2, 2}, tensor.Int64, 1, 0, 0, 1)
	out, err = b.MatMul(batched, eye)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 1, 2}, b.Shape(out))
	assert.Equal(t, []float64{1, 2, 3, 4}, values(t, out))

	_, err = b.MatMul(a, a)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestManipulation(t *testing.T) {
	b := New()
	x := native(t, tensor.Shape{2, 3}, tensor.Float32, 1, 2, 3, 4, 5, 6)

	p, err := b.PermuteDims(x, nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2}, b.Shape(p))
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, values(t, p))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, values(t, x))

	r, err := b.Reshape(x, tensor.Shape{-1})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{6}, b.Shape(r))
	_, err = b.Reshape(x, tensor.Shape{4})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	cat, err := b.Concat([]backend.Native{x, x}, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 6}, b.Shape(cat))
	assert.Equal(t, []float64{1, 2, 3, 1, 2, 3, 4, 5, 6, 4, 5, 6}, values(t, cat))

	mixed, err := b.Concat([]backend.Native{x, native(t, tensor.Shape{1, 3}, tensor.Int64, 7, 8, 9)}, 0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float64, b.DType(mixed))
	assert.Equal(t, tensor.Shape{3, 3}, b.Shape(mixed))

	q, err := tensor.ParseQuery("..., 1")
	require.NoError(t, err)
	g, err := b.GetItem(x, q)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, values(t, g))

	c, err := b.Cast(x, tensor.Int8)
	require.NoError(t, err)
	assert.Equal(t, tensor.Int8, b.DType(c))
	_, err = b.Cast(x, tensor.Float16)
	assert.ErrorIs(t, err, tensor.ErrNotImplementedForBackend)
}
