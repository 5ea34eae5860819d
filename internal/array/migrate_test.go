package array

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/tensor"
)

func TestMigrateMovesViewGraph(t *testing.T) {
	x := mustNew(t, [][]float64{{1, 2}, {3, 4}})
	row, err := x.GetItem(q(tensor.Index(1)))
	require.NoError(t, err)

	require.NoError(t, x.MigrateTo("gonum"))
	assert.Equal(t, "gonum", x.Backend())
	assert.Equal(t, "gonum", row.Backend())
	assert.Equal(t, tensor.Float32, x.DType())
	assert.Equal(t, []float64{1, 2, 3, 4}, vals(t, x))

	require.NoError(t, x.SetItem(q(tensor.Index(1), tensor.Index(0)), 30))
	assert.Equal(t, []float64{30, 4}, vals(t, row))

	assert.ErrorIs(t, x.MigrateTo("missing"), tensor.ErrBackendNotFound)
	assert.Equal(t, "gonum", x.Backend())
}

func TestNativeRequiresDynamicBackend(t *testing.T) {
	x := mustNew(t, []float64{1, 2})
	g, err := backend.Load("gonum")
	require.NoError(t, err)

	_, err = x.Native(g)
	assert.ErrorIs(t, err, tensor.ErrBackendMismatch)
	var terr *tensor.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "migrate", terr.Op)
	assert.Equal(t, "cpu", x.Backend())

	d := mustNew(t, []float64{1, 2}, WithDynamicBackend(true))
	data, err := d.Native(g)
	require.NoError(t, err)
	assert.True(t, g.Owns(data))
	assert.Equal(t, "gonum", d.Backend())
	assert.Equal(t, []float64{1, 2}, vals(t, d))
}

func TestSetDynamicBackendFollowsStack(t *testing.T) {
	x := mustNew(t, []int32{1, 2, 3})
	release, err := backend.SetBackend("gorgonia")
	require.NoError(t, err)
	defer release()

	require.NoError(t, x.SetDynamicBackend(true))
	assert.True(t, x.DynamicBackend())
	assert.Equal(t, "gorgonia", x.Backend())
	assert.Equal(t, []float64{1, 2, 3}, vals(t, x))

	require.NoError(t, x.SetDynamicBackend(false))
	assert.False(t, x.DynamicBackend())
	assert.Equal(t, "gorgonia", x.Backend())
}

func TestMigrateKeepsVariables(t *testing.T) {
	x := mustNew(t, []float64{1, 2}, WithBackend("autodiff"))
	b, err := x.impl()
	require.NoError(t, err)
	tracked, err := b.Variable(x.Data())
	require.NoError(t, err)
	v := Wrap(tracked, "autodiff", false)

	require.NoError(t, v.MigrateTo("cpu"))
	assert.False(t, v.IsVariable(), "cpu has no variables")
	assert.Equal(t, []float64{1, 2}, vals(t, v))

	require.NoError(t, v.MigrateTo("autodiff"))
	assert.False(t, v.IsVariable(), "tracking is not restored")
	assert.Equal(t, []float64{1, 2}, vals(t, v))
}
