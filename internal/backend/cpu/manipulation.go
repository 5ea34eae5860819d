package cpu

import (
	"fmt"

	"github.com/born-ml/unitensor/internal/parallel"
	"github.com/born-ml/unitensor/internal/tensor"
)

// gather builds a tensor of outShape whose element i is x's element src(i).
func (k Kernels) gather(x *tensor.RawTensor, outShape tensor.Shape, src func(i int) int) (*tensor.RawTensor, error) {
	out, err := tensor.NewRaw(outShape, x.DType(), x.Device())
	if err != nil {
		return nil, err
	}
	size := x.DType().Size()
	in, od := x.Data(), out.Data()
	parallel.For(outShape.NumElements(), func(i int) {
		s := src(i)
		copy(od[i*size:(i+1)*size], in[s*size:(s+1)*size])
	}, k.cfg)
	return out, nil
}

// Reshape returns a copy of x with a new shape. One dimension may be -1.
func (k Kernels) Reshape(x *tensor.RawTensor, shape tensor.Shape) (*tensor.RawTensor, error) {
	resolved, err := shape.Resolve(x.NumElements())
	if err != nil {
		return nil, fmt.Errorf("%w: reshape: %v", tensor.ErrShapeMismatch, err)
	}
	return x.Clone().Reshape(resolved)
}

// PermuteShape validates axes as a permutation and returns the permuted shape.
func PermuteShape(shape tensor.Shape, axes []int) (tensor.Shape, []int, error) {
	ndim := len(shape)
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		return nil, nil, fmt.Errorf("permute_dims: axes length %d != ndim %d", len(axes), ndim)
	}
	norm, err := NormalizeAxes(axes, ndim)
	if err != nil {
		return nil, nil, fmt.Errorf("permute_dims: %w", err)
	}
	out := make(tensor.Shape, ndim)
	for i, ax := range norm {
		out[i] = shape[ax]
	}
	return out, norm, nil
}

// PermuteDims reorders the axes of x. Empty axes reverse them.
func (k Kernels) PermuteDims(x *tensor.RawTensor, axes []int) (*tensor.RawTensor, error) {
	outShape, norm, err := PermuteShape(x.Shape(), axes)
	if err != nil {
		return nil, err
	}
	inStrides := x.Shape().ComputeStrides()
	srcStrides := make([]int, len(norm))
	for i, ax := range norm {
		srcStrides[i] = inStrides[ax]
	}
	return k.gather(x, outShape, func(i int) int {
		src := 0
		for d := len(outShape) - 1; d >= 0; d-- {
			src += (i % outShape[d]) * srcStrides[d]
			i /= outShape[d]
		}
		return src
	})
}

// ExpandShape inserts a size-1 axis at position axis (negative counts from
// the end of the result).
func ExpandShape(shape tensor.Shape, axis int) (tensor.Shape, error) {
	ax, err := tensor.NormalizeAxis(axis, len(shape)+1)
	if err != nil {
		return nil, fmt.Errorf("expand_dims: %w", err)
	}
	out := make(tensor.Shape, 0, len(shape)+1)
	out = append(out, shape[:ax]...)
	out = append(out, 1)
	return append(out, shape[ax:]...), nil
}

// SqueezeShape drops the given size-1 axes, or every size-1 axis when empty.
func SqueezeShape(shape tensor.Shape, axes []int) (tensor.Shape, error) {
	drop := make([]bool, len(shape))
	if len(axes) == 0 {
		for d, dim := range shape {
			drop[d] = dim == 1
		}
	} else {
		norm, err := NormalizeAxes(axes, len(shape))
		if err != nil {
			return nil, fmt.Errorf("squeeze: %w", err)
		}
		for _, ax := range norm {
			if shape[ax] != 1 {
				return nil, fmt.Errorf("%w: squeeze: axis %d has size %d", tensor.ErrShapeMismatch, ax, shape[ax])
			}
			drop[ax] = true
		}
	}
	out := tensor.Shape{}
	for d, dim := range shape {
		if !drop[d] {
			out = append(out, dim)
		}
	}
	return out, nil
}

// ExpandDims inserts a size-1 axis.
func (k Kernels) ExpandDims(x *tensor.RawTensor, axis int) (*tensor.RawTensor, error) {
	shape, err := ExpandShape(x.Shape(), axis)
	if err != nil {
		return nil, err
	}
	return x.Clone().Reshape(shape)
}

// Squeeze removes size-1 axes.
func (k Kernels) Squeeze(x *tensor.RawTensor, axes []int) (*tensor.RawTensor, error) {
	shape, err := SqueezeShape(x.Shape(), axes)
	if err != nil {
		return nil, err
	}
	return x.Clone().Reshape(shape)
}

// CheckBroadcastTo reports whether from broadcasts exactly to to.
func CheckBroadcastTo(from, to tensor.Shape) error {
	got, _, err := tensor.BroadcastShapes(from, to)
	if err != nil {
		return err
	}
	if !got.Equal(to) {
		return fmt.Errorf("%w: cannot broadcast %v to %v", tensor.ErrBroadcast, from, to)
	}
	return nil
}

// BroadcastTo materializes x broadcast to shape.
func (k Kernels) BroadcastTo(x *tensor.RawTensor, shape tensor.Shape) (*tensor.RawTensor, error) {
	if err := CheckBroadcastTo(x.Shape(), shape); err != nil {
		return nil, err
	}
	bc := tensor.NewBroadcaster(shape, x.Shape())
	return k.gather(x, shape, bc.Index)
}

// Concat joins xs along axis. Inputs are promoted to a common dtype.
func (k Kernels) Concat(xs []*tensor.RawTensor, axis int) (*tensor.RawTensor, error) {
	if len(xs) == 0 {
		return nil, fmt.Errorf("concat: need at least one tensor")
	}
	first := xs[0].Shape()
	ax, err := tensor.NormalizeAxis(axis, len(first))
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}

	dtypes := make([]tensor.DataType, len(xs))
	outShape := first.Clone()
	outShape[ax] = 0
	for i, x := range xs {
		s := x.Shape()
		if len(s) != len(first) {
			return nil, fmt.Errorf("%w: concat: rank %d vs %d", tensor.ErrShapeMismatch, len(s), len(first))
		}
		for d := range s {
			if d != ax && s[d] != first[d] {
				return nil, fmt.Errorf("%w: concat: %v vs %v on axis %d", tensor.ErrShapeMismatch, s, first, d)
			}
		}
		outShape[ax] += s[ax]
		dtypes[i] = x.DType()
	}

	dt := tensor.ResultType(dtypes...)
	out, err := tensor.NewRaw(outShape, dt, tensor.CPU)
	if err != nil {
		return nil, err
	}

	outer := first[:ax].NumElements()
	size := dt.Size()
	rowBytes := outShape[ax:].NumElements() * size
	od := out.Data()
	offset := 0
	for _, x := range xs {
		xd := castTo(x, dt).Data()
		chunk := x.Shape()[ax:].NumElements() * size
		for o := 0; o < outer; o++ {
			copy(od[o*rowBytes+offset:o*rowBytes+offset+chunk], xd[o*chunk:(o+1)*chunk])
		}
		offset += chunk
	}
	return out, nil
}

// GetItem copies the region q selects.
func (k Kernels) GetItem(x *tensor.RawTensor, q tensor.Query) (*tensor.RawTensor, error) {
	outShape, idx, err := q.Resolve(x.Shape())
	if err != nil {
		return nil, err
	}
	return k.gather(x, outShape, func(i int) int { return idx[i] })
}

// SetItem writes value, cast to x's dtype and broadcast to the region q
// selects, into x in place.
func (k Kernels) SetItem(x *tensor.RawTensor, q tensor.Query, value *tensor.RawTensor) error {
	region, idx, err := q.Resolve(x.Shape())
	if err != nil {
		return err
	}
	if err := CheckBroadcastTo(value.Shape(), region); err != nil {
		return err
	}
	value = castTo(value, x.DType())
	bc := tensor.NewBroadcaster(region, value.Shape())
	size := x.DType().Size()
	xd, vd := x.Data(), value.Data()
	for i, dst := range idx {
		src := bc.Index(i)
		copy(xd[dst*size:(dst+1)*size], vd[src*size:(src+1)*size])
	}
	return nil
}

// ScatterND returns a copy of x with updates written at the given
// coordinates. A single update is broadcast to every coordinate.
func (k Kernels) ScatterND(x *tensor.RawTensor, indices [][]int, updates *tensor.RawTensor) (*tensor.RawTensor, error) {
	if n := updates.NumElements(); n != len(indices) && n != 1 {
		return nil, fmt.Errorf("%w: scatter_nd: %d updates for %d indices", tensor.ErrShapeMismatch, n, len(indices))
	}
	shape := x.Shape()
	strides := shape.ComputeStrides()
	out := x.Clone()
	updates = castTo(updates, x.DType())
	size := x.DType().Size()
	od, ud := out.Data(), updates.Data()
	for i, coords := range indices {
		if len(coords) != len(shape) {
			return nil, fmt.Errorf("%w: scatter_nd: index %v for %dD tensor", tensor.ErrInvalidQuery, coords, len(shape))
		}
		flat := 0
		for d, c := range coords {
			if c < 0 || c >= shape[d] {
				return nil, fmt.Errorf("%w: scatter_nd: index %v out of range for %v", tensor.ErrInvalidQuery, coords, shape)
			}
			flat += c * strides[d]
		}
		src := i
		if updates.NumElements() == 1 {
			src = 0
		}
		copy(od[flat*size:(flat+1)*size], ud[src*size:(src+1)*size])
	}
	return out, nil
}

// CopyInto overwrites dst with src, converting dtype when they differ.
func (k Kernels) CopyInto(dst, src *tensor.RawTensor) error {
	if !dst.Shape().Equal(src.Shape()) {
		return fmt.Errorf("%w: copy %v into %v", tensor.ErrShapeMismatch, src.Shape(), dst.Shape())
	}
	if dst.DType() == src.DType() {
		copy(dst.Data(), src.Data())
		return nil
	}
	for i := 0; i < src.NumElements(); i++ {
		dst.CopyElem(i, src, i)
	}
	return nil
}
