package array

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/unitensor/internal/tensor"
)

func q(items ...tensor.QueryItem) tensor.Query { return tensor.Query(items) }

func TestViewSeesBaseMutation(t *testing.T) {
	for _, name := range backends {
		t.Run(name, func(t *testing.T) {
			x := mustNew(t, []float64{1, 2, 3, 4}, WithBackend(name))
			y, err := x.GetItem(q(tensor.Range(0, 2)))
			require.NoError(t, err)
			assert.Same(t, x, y.Base())
			assert.True(t, y.IsView())
			assert.Equal(t, []*Array{y}, x.Views())
			require.Len(t, y.ManipulationStack(), 1)
			assert.Equal(t, "getitem[0:2]", y.ManipulationStack()[0].String())

			require.NoError(t, x.SetItem(q(tensor.Index(0)), 9))
			assert.Equal(t, []float64{9, 2, 3, 4}, vals(t, x))
			assert.Equal(t, []float64{9, 2}, vals(t, y))
			assert.Equal(t, tensor.Float32, x.DType(), "dtype kept")
		})
	}
}

func TestViewMutationReachesBaseAndSiblings(t *testing.T) {
	for _, name := range backends {
		t.Run(name, func(t *testing.T) {
			x := mustNew(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, WithBackend(name))
			row, err := x.GetItem(q(tensor.Index(1)))
			require.NoError(t, err)
			col, err := x.GetItem(q(tensor.All(), tensor.Index(2)))
			require.NoError(t, err)
			xt, err := x.T()
			require.NoError(t, err)
			flat, err := xt.Flatten()
			require.NoError(t, err)
			assert.Same(t, xt, flat.Base())

			require.NoError(t, row.SetItem(q(tensor.Index(2)), 60))
			assert.Equal(t, []float64{1, 2, 3, 4, 5, 60}, vals(t, x))
			assert.Equal(t, []float64{3, 60}, vals(t, col))
			assert.Equal(t, []float64{1, 4, 2, 5, 3, 60}, vals(t, flat))

			// Writing through a view of a view.
			require.NoError(t, flat.SetItem(q(tensor.Index(1)), 40))
			assert.Equal(t, []float64{1, 2, 3, 40, 5, 60}, vals(t, x))
			assert.Equal(t, []float64{40, 5, 60}, vals(t, row))
			assert.Equal(t, tensor.Shape{3, 2}, xt.Shape())
			assert.Equal(t, []float64{1, 40, 2, 5, 3, 60}, vals(t, xt))
		})
	}
}

// TestViewConsistency checks that every view-producing operation observes a
// later in-place write to its operand.
func TestViewConsistency(t *testing.T) {
	views := map[string]func(*Array) (*Array, error){
		"getitem":      func(a *Array) (*Array, error) { return a.GetItem(q(tensor.Ellipsis{}, tensor.Range(1, 3))) },
		"reshape":      func(a *Array) (*Array, error) { return a.Reshape(tensor.Shape{3, -1}) },
		"flatten":      func(a *Array) (*Array, error) { return a.Flatten() },
		"permute_dims": func(a *Array) (*Array, error) { return a.PermuteDims() },
		"mt":           func(a *Array) (*Array, error) { return a.MT() },
		"expand_dims":  func(a *Array) (*Array, error) { return a.ExpandDims(-1) },
		"squeeze":      func(a *Array) (*Array, error) { return a.Squeeze() },
		"broadcast_to": func(a *Array) (*Array, error) { return a.BroadcastTo(tensor.Shape{2, 2, 3}) },
	}
	for name, view := range views {
		t.Run(name, func(t *testing.T) {
			a := mustNew(t, [][]int32{{1, 2, 3}, {4, 5, 6}})
			v, err := view(a)
			require.NoError(t, err)

			require.NoError(t, a.SetItem(q(tensor.Index(0)), []int32{7, 8, 9}))
			want, err := view(mustNew(t, [][]int32{{7, 8, 9}, {4, 5, 6}}))
			require.NoError(t, err)
			assert.Equal(t, vals(t, want), vals(t, v))
			assert.Equal(t, want.Shape(), v.Shape())
		})
	}
}

func TestExpandAndSqueezeWriteBack(t *testing.T) {
	x := mustNew(t, [][]float64{{1, 2}}, WithDType(tensor.Float64))
	e, err := x.ExpandDims(0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 2}, e.Shape())
	s, err := x.Squeeze(0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2}, s.Shape())

	require.NoError(t, s.SetItem(q(tensor.Index(-1)), 5))
	assert.Equal(t, []float64{1, 5}, vals(t, x))
	assert.Equal(t, []float64{1, 5}, vals(t, e))

	_, err = x.Squeeze(1)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
	_, err = x.BroadcastTo(tensor.Shape{3, 3})
	assert.ErrorIs(t, err, tensor.ErrBroadcast)
	_, err = s.T()
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestBroadcastViewsAreReadOnly(t *testing.T) {
	x := mustNew(t, [][]float64{{1}, {2}})
	bc, err := x.BroadcastTo(tensor.Shape{2, 3})
	require.NoError(t, err)
	row, err := bc.GetItem(q(tensor.Index(0)))
	require.NoError(t, err)
	assert.True(t, bc.ReadOnly())
	assert.True(t, row.ReadOnly())
	assert.False(t, x.ReadOnly())

	err = bc.SetItem(q(tensor.Index(0), tensor.Index(2)), 9)
	assert.ErrorIs(t, err, tensor.ErrViewReconciliation)
	err = row.Assign([]float64{7, 8, 9})
	assert.ErrorIs(t, err, tensor.ErrViewReconciliation)
	assert.Equal(t, []float64{1, 2}, vals(t, x))
	assert.Equal(t, []float64{1, 1, 1, 2, 2, 2}, vals(t, bc))

	// Writes to the base still reach the broadcast view.
	require.NoError(t, x.SetItem(q(tensor.Index(1)), 5))
	assert.Equal(t, []float64{1, 1, 1, 5, 5, 5}, vals(t, bc))
	assert.Equal(t, []float64{1, 1, 1}, vals(t, row))
}

func TestViewsOutliveBase(t *testing.T) {
	var a, b *Array
	func() {
		x := mustNew(t, []float64{1, 2, 3, 4})
		var err error
		a, err = x.GetItem(q(tensor.Range(0, 2)))
		require.NoError(t, err)
		b, err = x.GetItem(q(tensor.Range(1, 3)))
		require.NoError(t, err)
	}()
	for range 3 {
		runtime.GC()
	}

	require.NoError(t, a.SetItem(q(tensor.Index(1)), 20))
	assert.Equal(t, []float64{20, 3}, vals(t, b), "siblings reconcile through a collected root")
}

func TestArenaRecyclesSlots(t *testing.T) {
	x := mustNew(t, []float64{1, 2, 3})
	ar := x.arena
	func() {
		for range 4 {
			_, err := x.Reshape(tensor.Shape{3, 1})
			require.NoError(t, err)
		}
	}()
	assert.Eventually(t, func() bool {
		runtime.GC()
		return ar.size() == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, x.Views())

	v, err := x.Reshape(tensor.Shape{1, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, ar.size())
	assert.Equal(t, x.ArenaID(), v.ArenaID())
	runtime.KeepAlive(v)
}
