package tensor

import (
	"errors"
	"testing"
)

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape    Shape
		expected int
	}{
		{Shape{}, 1}, // Scalar
		{Shape{5}, 5},
		{Shape{3, 4}, 12},
		{Shape{2, 3, 4}, 24},
		{Shape{2, 0, 4}, 0},
	}

	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.expected {
			t.Errorf("Shape%v.NumElements() = %d, want %d", tt.shape, got, tt.expected)
		}
	}
}

func TestShapeComputeStrides(t *testing.T) {
	tests := []struct {
		shape    Shape
		expected []int
	}{
		{Shape{5}, []int{1}},
		{Shape{3, 4}, []int{4, 1}},
		{Shape{2, 3, 4}, []int{12, 4, 1}},
	}

	for _, tt := range tests {
		got := tt.shape.ComputeStrides()
		if len(got) != len(tt.expected) {
			t.Fatalf("Shape%v.ComputeStrides() length = %d, want %d", tt.shape, len(got), len(tt.expected))
		}
		for i := range got {
			if got[i] != tt.expected[i] {
				t.Errorf("Shape%v.ComputeStrides()[%d] = %d, want %d", tt.shape, i, got[i], tt.expected[i])
			}
		}
	}
}

func TestShapeResolve(t *testing.T) {
	tests := []struct {
		shape     Shape
		n         int
		expected  Shape
		shouldErr bool
	}{
		{Shape{2, -1}, 6, Shape{2, 3}, false},
		{Shape{-1}, 6, Shape{6}, false},
		{Shape{3, 2}, 6, Shape{3, 2}, false},
		{Shape{4, -1}, 6, nil, true},
		{Shape{-1, -1}, 6, nil, true},
		{Shape{5}, 6, nil, true},
	}

	for _, tt := range tests {
		got, err := tt.shape.Resolve(tt.n)
		if tt.shouldErr {
			if err == nil {
				t.Errorf("Shape%v.Resolve(%d) should fail but didn't", tt.shape, tt.n)
			}
			continue
		}
		if err != nil {
			t.Errorf("Shape%v.Resolve(%d) failed: %v", tt.shape, tt.n, err)
		}
		if !got.Equal(tt.expected) {
			t.Errorf("Shape%v.Resolve(%d) = %v, want %v", tt.shape, tt.n, got, tt.expected)
		}
	}
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b      Shape
		expected  Shape
		shouldErr bool
	}{
		// Compatible shapes
		{Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, false},
		{Shape{1, 5}, Shape{3, 5}, Shape{3, 5}, false},
		{Shape{3, 4}, Shape{3, 4}, Shape{3, 4}, false},
		{Shape{1}, Shape{3, 4}, Shape{3, 4}, false},
		{Shape{}, Shape{2, 2}, Shape{2, 2}, false},

		// Incompatible shapes
		{Shape{3, 4}, Shape{3, 5}, nil, true},
		{Shape{2, 3}, Shape{3, 3}, nil, true},
	}

	for _, tt := range tests {
		got, _, err := BroadcastShapes(tt.a, tt.b)
		if tt.shouldErr {
			if !errors.Is(err, ErrBroadcast) {
				t.Errorf("BroadcastShapes(%v, %v) err = %v, want ErrBroadcast", tt.a, tt.b, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("BroadcastShapes(%v, %v) failed: %v", tt.a, tt.b, err)
		}
		if !got.Equal(tt.expected) {
			t.Errorf("BroadcastShapes(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestBroadcaster(t *testing.T) {
	out := Shape{2, 3}
	// Row vector broadcast over rows.
	row := NewBroadcaster(out, Shape{3})
	for flat, want := range []int{0, 1, 2, 0, 1, 2} {
		if got := row.Index(flat); got != want {
			t.Errorf("row.Index(%d) = %d, want %d", flat, got, want)
		}
	}
	// Column vector broadcast over columns.
	col := NewBroadcaster(out, Shape{2, 1})
	for flat, want := range []int{0, 0, 0, 1, 1, 1} {
		if got := col.Index(flat); got != want {
			t.Errorf("col.Index(%d) = %d, want %d", flat, got, want)
		}
	}
	// Scalar operand.
	scalar := NewBroadcaster(out, Shape{})
	for flat := range 6 {
		if got := scalar.Index(flat); got != 0 {
			t.Errorf("scalar.Index(%d) = %d, want 0", flat, got)
		}
	}
}
