package array

import (
	"fmt"
	"strings"

	"github.com/born-ml/unitensor/internal/tensor"
)

// NestedArray is a ragged batch of arrays of equal rank.
type NestedArray struct {
	items []*Array
}

// NewNested batches items. Every item must have the same number of
// dimensions.
func NewNested(items ...*Array) (*NestedArray, error) {
	for i, it := range items[min(1, len(items)):] {
		if it.NDim() != items[0].NDim() {
			return nil, &tensor.Error{
				Kind: tensor.ErrShapeMismatch, Op: "nested_array",
				Shapes: []tensor.Shape{items[0].Shape(), it.Shape()},
				Err:    fmt.Errorf("item %d has rank %d, item 0 has rank %d", i+1, it.NDim(), items[0].NDim()),
			}
		}
	}
	return &NestedArray{items: append([]*Array(nil), items...)}, nil
}

// Len returns the batch size.
func (n *NestedArray) Len() int {
	return len(n.items)
}

// Shape returns the batch size followed by every item dimension, -1 where
// the items differ.
func (n *NestedArray) Shape() []int {
	if len(n.items) == 0 {
		return []int{0}
	}
	shape := append([]int{len(n.items)}, n.items[0].Shape()...)
	for _, it := range n.items[1:] {
		for d, size := range it.Shape() {
			if shape[d+1] != size {
				shape[d+1] = -1
			}
		}
	}
	return shape
}

// DType returns the promoted dtype of all items.
func (n *NestedArray) DType() (tensor.DataType, error) {
	if len(n.items) == 0 {
		return 0, fmt.Errorf("%w: empty nested array", tensor.ErrShapeMismatch)
	}
	dts := make([]tensor.DataType, len(n.items))
	for i, it := range n.items {
		dts[i] = it.DType()
	}
	return tensor.ResultType(dts...), nil
}

// Unbind returns the items.
func (n *NestedArray) Unbind() []*Array {
	return append([]*Array(nil), n.items...)
}

// Map applies fn to every item.
func (n *NestedArray) Map(fn func(*Array) (*Array, error)) (*NestedArray, error) {
	out := make([]*Array, len(n.items))
	for i, it := range n.items {
		v, err := fn(it)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = v
	}
	return NewNested(out...)
}

// Reshape reshapes every item to shape, keeping the batch dimension.
func (n *NestedArray) Reshape(shape tensor.Shape) (*NestedArray, error) {
	return n.Map(func(a *Array) (*Array, error) { return a.Reshape(shape) })
}

// String lists the items.
func (n *NestedArray) String() string {
	parts := make([]string, len(n.items))
	for i, it := range n.items {
		parts[i] = it.String()
	}
	return fmt.Sprintf("NestedArray(%v, [%s])", n.Shape(), strings.Join(parts, ", "))
}
