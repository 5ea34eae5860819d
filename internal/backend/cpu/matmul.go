package cpu

import (
	"fmt"

	"github.com/born-ml/unitensor/internal/parallel"
	"github.com/born-ml/unitensor/internal/tensor"
)

// MatMulShapes validates a @ b and returns the shapes both operands are
// treated as (1-D operands are promoted to matrices), the broadcast batch
// shape and the final output shape.
func MatMulShapes(aShape, bShape tensor.Shape) (a2, b2, batch, out tensor.Shape, err error) {
	if len(aShape) == 0 || len(bShape) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("matmul: scalar operands not allowed")
	}
	a2, b2 = aShape, bShape
	if len(aShape) == 1 {
		a2 = tensor.Shape{1, aShape[0]}
	}
	if len(bShape) == 1 {
		b2 = tensor.Shape{bShape[0], 1}
	}

	m, k := a2[len(a2)-2], a2[len(a2)-1]
	kb, n := b2[len(b2)-2], b2[len(b2)-1]
	if k != kb {
		return nil, nil, nil, nil, fmt.Errorf("%w: matmul %v @ %v", tensor.ErrShapeMismatch, aShape, bShape)
	}

	batch, _, err = tensor.BroadcastShapes(a2[:len(a2)-2], b2[:len(b2)-2])
	if err != nil {
		return nil, nil, nil, nil, err
	}

	out = append(batch.Clone(), m, n)
	switch {
	case len(aShape) == 1 && len(bShape) == 1:
		out = tensor.Shape{}
	case len(aShape) == 1:
		out = append(batch.Clone(), n)
	case len(bShape) == 1:
		out = append(batch.Clone(), m)
	}
	return a2, b2, batch, out, nil
}

// MatMul multiplies a and b with NumPy matmul semantics: 1-D operands are
// vectors and leading batch dimensions broadcast.
func (k Kernels) MatMul(a, b *tensor.RawTensor) (*tensor.RawTensor, error) {
	a2, b2, batch, outShape, err := MatMulShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, err
	}

	dt := tensor.PromoteTypes(a.DType(), b.DType())
	ct := computeType(dt)
	a, b = castTo(a, ct), castTo(b, ct)

	var out *tensor.RawTensor
	switch ct {
	case tensor.Uint8:
		out, err = matmulTyped[uint8](k, a, b, a2, b2, batch)
	case tensor.Int8:
		out, err = matmulTyped[int8](k, a, b, a2, b2, batch)
	case tensor.Int16:
		out, err = matmulTyped[int16](k, a, b, a2, b2, batch)
	case tensor.Int32:
		out, err = matmulTyped[int32](k, a, b, a2, b2, batch)
	case tensor.Int64:
		out, err = matmulTyped[int64](k, a, b, a2, b2, batch)
	case tensor.Float32:
		out, err = matmulTyped[float32](k, a, b, a2, b2, batch)
	case tensor.Float64:
		out, err = matmulTyped[float64](k, a, b, a2, b2, batch)
	default:
		return nil, fmt.Errorf("matmul: unsupported dtype %s", dt)
	}
	if err != nil {
		return nil, err
	}
	return castTo(out, dt).Reshape(outShape)
}

// matmulTyped computes C[i,j] = sum_k A[i,k] * B[k,j] for every batch.
func matmulTyped[T tensor.Element](k Kernels, a, b *tensor.RawTensor, a2, b2, batch tensor.Shape) (*tensor.RawTensor, error) {
	m, kk := a2[len(a2)-2], a2[len(a2)-1]
	n := b2[len(b2)-1]

	out, err := tensor.NewRaw(append(batch.Clone(), m, n), tensor.DTypeOf[T](), tensor.CPU)
	if err != nil {
		return nil, err
	}
	av, bv, cv := tensor.View[T](a), tensor.View[T](b), tensor.View[T](out)

	aBatch := tensor.NewBroadcaster(batch, a2[:len(a2)-2])
	bBatch := tensor.NewBroadcaster(batch, b2[:len(b2)-2])
	parallel.ForRows(batch.NumElements(), m, func(bi, i int) {
		aOff := aBatch.Index(bi)*m*kk + i*kk
		bOff := bBatch.Index(bi) * kk * n
		cOff := (bi*m + i) * n
		for j := 0; j < n; j++ {
			var sum T
			for p := 0; p < kk; p++ {
				sum += av[aOff+p] * bv[bOff+p*n+j]
			}
			cv[cOff+j] = sum
		}
	}, k.cfg)
	return out, nil
}
