package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions >= 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Resolve replaces a single -1 entry with the size inferred from n elements.
func (s Shape) Resolve(n int) (Shape, error) {
	out := s.Clone()
	infer := -1
	known := 1
	for i, dim := range out {
		switch {
		case dim == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("only one dimension can be inferred, got shape %v", s)
			}
			infer = i
		case dim < 0:
			return nil, fmt.Errorf("invalid dimension at index %d: %d", i, dim)
		default:
			known *= dim
		}
	}
	if infer >= 0 {
		if known == 0 || n%known != 0 {
			return nil, fmt.Errorf("cannot reshape %d elements into %v", n, s)
		}
		out[infer] = n / known
	}
	if out.NumElements() != n {
		return nil, fmt.Errorf("cannot reshape %d elements into %v", n, s)
	}
	return out, nil
}

// NormalizeAxis maps a possibly negative axis into [0, ndim).
func NormalizeAxis(axis, ndim int) (int, error) {
	if axis < 0 {
		axis += ndim
	}
	if axis < 0 || axis >= ndim {
		return 0, fmt.Errorf("axis out of range for %dD tensor", ndim)
	}
	return axis, nil
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Rules:
// 1. Compare shapes element-wise from right to left
// 2. Dimensions are compatible if:
//   - They are equal, OR
//   - One of them is 1
//
// 3. Missing dimensions are treated as 1
//
// Returns the broadcasted shape, a flag indicating if broadcasting is needed, and an error if incompatible.
//
// Examples:
//
//	(3, 1) + (3, 5) → (3, 5), true, nil
//	(1, 5) + (3, 5) → (3, 5), true, nil
//	(3, 5) + (3, 5) → (3, 5), false, nil
//	(3, 4) + (3, 5) → nil, false, Error
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	maxLen := max(len(a), len(b))
	result := make(Shape, maxLen)
	needsBroadcast := len(a) != len(b)

	for i := 0; i < maxLen; i++ {
		aIdx := len(a) - 1 - i
		bIdx := len(b) - 1 - i

		aDim := 1
		if aIdx >= 0 {
			aDim = a[aIdx]
		}

		bDim := 1
		if bIdx >= 0 {
			bDim = b[bIdx]
		}

		switch {
		case aDim == bDim:
			result[maxLen-1-i] = aDim
		case aDim == 1:
			result[maxLen-1-i] = bDim
			needsBroadcast = true
		case bDim == 1:
			result[maxLen-1-i] = aDim
			needsBroadcast = true
		default:
			return nil, false, fmt.Errorf("%w: %v vs %v (dimension %d: %d vs %d)",
				ErrBroadcast, a, b, maxLen-1-i, aDim, bDim)
		}
	}

	return result, needsBroadcast, nil
}

// BroadcastAll folds BroadcastShapes over every shape.
func BroadcastAll(shapes ...Shape) (Shape, error) {
	if len(shapes) == 0 {
		return Shape{}, nil
	}
	out := shapes[0].Clone()
	for _, s := range shapes[1:] {
		var err error
		if out, _, err = BroadcastShapes(out, s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Broadcaster maps flat indices of a broadcast result back to flat indices
// of one row-major operand.
type Broadcaster struct {
	outShape Shape
	strides  []int // operand strides aligned to outShape, 0 on broadcast axes
	identity bool
}

// NewBroadcaster prepares index mapping from outShape to an operand of shape in.
// in must be broadcast-compatible with outShape.
func NewBroadcaster(outShape, in Shape) Broadcaster {
	if outShape.Equal(in) {
		return Broadcaster{identity: true}
	}
	offset := len(outShape) - len(in)
	inStrides := in.ComputeStrides()
	strides := make([]int, len(outShape))
	for d := range outShape {
		if j := d - offset; j >= 0 && in[j] != 1 {
			strides[d] = inStrides[j]
		}
	}
	return Broadcaster{outShape: outShape, strides: strides}
}

// Index returns the operand index for flat index i of the result.
func (b Broadcaster) Index(i int) int {
	if b.identity {
		return i
	}
	idx := 0
	for d := len(b.outShape) - 1; d >= 0; d-- {
		idx += (i % b.outShape[d]) * b.strides[d]
		i /= b.outShape[d]
	}
	return idx
}
