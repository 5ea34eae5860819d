// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/born-ml/unitensor/autodiff"
	"github.com/born-ml/unitensor/backend"
	_ "github.com/born-ml/unitensor/backend/all"
	"github.com/born-ml/unitensor/backend/cpu"
	"github.com/born-ml/unitensor/container"
	"github.com/born-ml/unitensor/tensor"
)

func values(t *testing.T, a *tensor.Array) []float64 {
	t.Helper()
	v, err := a.Float64s()
	if err != nil {
		t.Fatalf("Float64s failed: %v", err)
	}
	return v
}

// TestBackendInterface verifies that the cpu backend implements backend.Backend.
func TestBackendInterface(_ *testing.T) {
	var _ backend.Backend = cpu.New()
}

// TestRawTensorAPI verifies RawTensor type alias exposes expected API.
func TestRawTensorAPI(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	if !raw.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("Shape() = %v, want [2 3]", raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		t.Errorf("DType() = %v, want float32", raw.DType())
	}
	if raw.ByteSize() != 6*4 {
		t.Errorf("ByteSize() = %d, want 24", raw.ByteSize())
	}

	x, err := tensor.New(raw)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if x.Backend() != cpu.Name {
		t.Errorf("Backend() = %q, want %q", x.Backend(), cpu.Name)
	}
}

// TestAdd adds a literal to an array and keeps the array's backend.
func TestAdd(t *testing.T) {
	for _, name := range backend.Names() {
		t.Run(name, func(t *testing.T) {
			x, err := tensor.New([]int{1, 2, 3}, tensor.WithBackend(name))
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			y, err := tensor.AsArray(tensor.Add(x, []int{4, 5, 6}))
			if err != nil {
				t.Fatalf("Add failed: %v", err)
			}
			if got := values(t, y); !slices.Equal(got, []float64{5, 7, 9}) {
				t.Errorf("Add = %v, want [5 7 9]", got)
			}
			if y.Backend() != name {
				t.Errorf("Backend() = %q, want %q", y.Backend(), name)
			}
		})
	}
}

// TestFlattenContainer flattens every leaf of a container.
func TestFlattenContainer(t *testing.T) {
	c := container.FromMap(map[string]any{
		"a": []int{1, 2, 3},
		"b": [][]int{{1, 2}, {3, 4}},
	})
	out, err := tensor.AsContainer(tensor.Flatten(c))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	want := map[string][]float64{"a": {1, 2, 3}, "b": {1, 2, 3, 4}}
	for kc, w := range want {
		v, ok := out.At(kc)
		if !ok {
			t.Fatalf("missing %q", kc)
		}
		if got := values(t, v.(*tensor.Array)); !slices.Equal(got, w) {
			t.Errorf("%s = %v, want %v", kc, got, w)
		}
	}
}

// TestViewMutation checks a slice sees a later write to its base.
func TestViewMutation(t *testing.T) {
	x, err := tensor.New([]float32{1, 2, 3})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	y, err := x.GetItem(tensor.Query{tensor.Range(0, 2)})
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if err := x.SetItem(tensor.Query{tensor.Index(0)}, 10); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if got := values(t, y); got[0] != 10 {
		t.Errorf("y[0] = %v, want 10", got[0])
	}
}

// TestOutShapeMismatch leaves out untouched when shapes disagree.
func TestOutShapeMismatch(t *testing.T) {
	z, err := tensor.AsArray(tensor.Zeros(tensor.Shape{2}))
	if err != nil {
		t.Fatalf("Zeros failed: %v", err)
	}
	_, err = tensor.Add([]float32{1, 2, 3}, []float32{1, 2, 3}, tensor.Out(z))
	if !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
	var terr *tensor.Error
	if !errors.As(err, &terr) || terr.Op != "add" {
		t.Errorf("err = %#v, want a *tensor.Error for add", err)
	}
	if got := values(t, z); !slices.Equal(got, []float64{0, 0}) {
		t.Errorf("out = %v, want [0 0]", got)
	}
}

// TestPromoteTypes checks the promotion table is commutative and idempotent.
func TestPromoteTypes(t *testing.T) {
	dtypes := []tensor.DataType{
		tensor.Bool, tensor.Uint8, tensor.Int8, tensor.Int16, tensor.Int32,
		tensor.Int64, tensor.Float16, tensor.BFloat16, tensor.Float32, tensor.Float64,
	}
	for _, a := range dtypes {
		if got := tensor.PromoteTypes(a, a); got != a {
			t.Errorf("PromoteTypes(%v, %v) = %v", a, a, got)
		}
		for _, b := range dtypes {
			if ab, ba := tensor.PromoteTypes(a, b), tensor.PromoteTypes(b, a); ab != ba {
				t.Errorf("PromoteTypes(%v, %v) = %v, reversed %v", a, b, ab, ba)
			}
		}
	}
}

// TestUseBackend runs calls on a pushed backend.
func TestUseBackend(t *testing.T) {
	err := backend.Use("gonum", func(backend.Backend) error {
		x, err := tensor.AsArray(tensor.Ones(tensor.Shape{2}))
		if err != nil {
			return err
		}
		if x.Backend() != "gonum" {
			t.Errorf("Backend() = %q, want gonum", x.Backend())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Use failed: %v", err)
	}
	if len(backend.Stack()) != 0 {
		t.Errorf("Stack() = %v, want empty", backend.Stack())
	}

	_, err = tensor.Ones(tensor.Shape{2}, tensor.OnBackend("missing"))
	if !errors.Is(err, tensor.ErrBackendNotFound) {
		t.Errorf("err = %v, want ErrBackendNotFound", err)
	}
}

// TestGradients differentiates sum(x*x) through the public API.
func TestGradients(t *testing.T) {
	x, err := autodiff.Track([]float32{1, 2, 3})
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	y, err := tensor.AsArray(tensor.Multiply(x, x))
	if err != nil {
		t.Fatalf("Multiply failed: %v", err)
	}
	s, err := tensor.AsArray(tensor.Sum(y))
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	grads, err := autodiff.Backward(s)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	dx, err := grads.Of(x)
	if err != nil || dx == nil {
		t.Fatalf("Of = %v, %v", dx, err)
	}
	if got := values(t, dx); !slices.Equal(got, []float64{2, 4, 6}) {
		t.Errorf("dx = %v, want [2 4 6]", got)
	}
}
