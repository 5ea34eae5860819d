package container

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Container {
	return New().
		Set("a", []float64{1, 2, 3}).
		Set("b", New().
			Set("c", 2.0).
			Set("d", New().Set("e", "x")))
}

func TestKeyChains(t *testing.T) {
	c := sample()
	assert.Equal(t, []string{"a", "b/c", "b/d/e"}, c.KeyChains())
	assert.Equal(t, []string{"a", "b"}, c.Keys())
	assert.Equal(t, 2, c.Len())

	v, ok := c.At("b/d/e")
	require.True(t, ok)
	assert.Equal(t, "x", v)
	_, ok = c.At("b/x")
	assert.False(t, ok)
	_, ok = c.At("a/b")
	assert.False(t, ok)

	require.NoError(t, c.SetAt("b/f/g", 7))
	assert.Equal(t, []string{"a", "b/c", "b/d/e", "b/f/g"}, c.KeyChains())
	assert.Error(t, c.SetAt("a/z", 1), "a is a leaf")
}

func TestFromMapSortsKeys(t *testing.T) {
	c := FromMap(map[string]any{
		"z": 1,
		"a": map[string]any{"y": 2, "b": 3},
	})
	assert.Equal(t, []string{"a/b", "a/y", "z"}, c.KeyChains())
	if diff := cmp.Diff(map[string]any{"z": 1, "a": map[string]any{"y": 2, "b": 3}}, c.ToMap()); diff != "" {
		t.Errorf("ToMap mismatch (-want +got):\n%s", diff)
	}
}

func TestCopyPruneStructure(t *testing.T) {
	c := sample()
	cp := c.Copy()
	assert.True(t, c.StructureEqual(cp))
	require.NoError(t, cp.SetAt("b/c", 99.0))
	v, _ := c.At("b/c")
	assert.Equal(t, 2.0, v, "copy does not share structure")

	pruned := c.Prune("b/d")
	assert.Equal(t, []string{"a", "b/c"}, pruned.KeyChains())
	assert.False(t, c.StructureEqual(pruned))
	assert.Equal(t, []string{"a", "b/c", "b/d/e"}, c.KeyChains(), "input untouched")
}

func TestMarshalJSONKeepsOrder(t *testing.T) {
	c := New().Set("z", 1).Set("a", New().Set("k", []int{1, 2}))
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"z":1,"a":{"k":[1,2]}}`, string(b))
	assert.Equal(t, `{"z":1,"a":{"k":[1,2]}}`, string(b))
	assert.Contains(t, c.String(), `"k"`)
}

func TestMultiMapSameStructure(t *testing.T) {
	c1 := New().Set("a", 1.0).Set("b", New().Set("c", 2.0))
	c2 := New().Set("a", 10.0).Set("b", New().Set("c", 20.0))

	out, err := MultiMap(func(leaves []any, _ string) (any, error) {
		return leaves[0].(float64) + leaves[1].(float64), nil
	}, []*Container{c1, c2})
	require.NoError(t, err)
	assert.Equal(t, c1.KeyChains(), out.KeyChains())
	if diff := cmp.Diff(map[string]any{"a": 11.0, "b": map[string]any{"c": 22.0}}, out.ToMap()); diff != "" {
		t.Errorf("MultiMap mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiMapMissingPaths(t *testing.T) {
	c1 := New().Set("a", 1).Set("b", 2)
	c2 := New().Set("b", 3).Set("c", 4)

	var seen []string
	out, err := MultiMap(func(leaves []any, kc string) (any, error) {
		seen = append(seen, fmt.Sprintf("%s=%v", kc, leaves))
		return len(leaves), nil
	}, []*Container{c1, c2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a=[1 <nil>]", "b=[2 3]", "c=[<nil> 4]"}, seen)
	assert.Equal(t, []string{"a", "b", "c"}, out.KeyChains())

	out, err = MultiMap(func(leaves []any, _ string) (any, error) { return leaves[1], nil },
		[]*Container{c1, c2}, Intersect())
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out.KeyChains())

	out, err = MultiMap(func(leaves []any, _ string) (any, error) { return leaves[1], nil },
		[]*Container{c1, c2}, PruneUnapplied())
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out.KeyChains())
}

func TestMultiMapKeyChains(t *testing.T) {
	leaf := &struct{ v int }{1}
	c := New().Set("a", leaf).Set("b", New().Set("c", 2).Set("d", 3))
	double := func(v any, _ string) (any, error) { return v.(int) * 2, nil }

	out, err := c.Map(double, WithKeyChains("b/c"))
	require.NoError(t, err)
	v, _ := out.At("a")
	assert.Same(t, leaf, v, "unapplied leaves are copied unchanged")
	v, _ = out.At("b/c")
	assert.Equal(t, 4, v)
	v, _ = out.At("b/d")
	assert.Equal(t, 3, v)

	out, err = c.Map(double, WithKeyChains("b"), PruneUnapplied())
	require.NoError(t, err)
	assert.Equal(t, []string{"b/c", "b/d"}, out.KeyChains())

	out, err = c.Map(double, WithKeyChains("a", "b/c"), ToApply(false))
	require.NoError(t, err)
	v, _ = out.At("b/d")
	assert.Equal(t, 6, v)
	v, _ = out.At("b/c")
	assert.Equal(t, 2, v)
}

func TestMultiMapSequences(t *testing.T) {
	c := New().Set("a", []any{1, 2, New().Set("x", 3)})
	var kcs []string
	out, err := c.Map(func(v any, kc string) (any, error) {
		kcs = append(kcs, kc)
		return v.(int) + 1, nil
	}, MapSequences())
	require.NoError(t, err)
	assert.Equal(t, []string{"a/0", "a/1", "a/2/x"}, kcs)
	v, _ := out.At("a")
	seq := v.([]any)
	assert.Equal(t, 2, seq[0])
	assert.Equal(t, 3, seq[1])
	assert.Equal(t, []string{"x"}, seq[2].(*Container).Keys())

	out, err = c.Map(func(v any, _ string) (any, error) { return v, nil })
	require.NoError(t, err)
	v, _ = out.At("a")
	assert.Len(t, v, 3, "sequences are leaves by default")
}

func TestMultiMapErrorsAggregate(t *testing.T) {
	c := New().Set("a", 1).Set("b", 2).Set("c", 3)
	sentinel := errors.New("odd")
	out, err := c.Map(func(v any, _ string) (any, error) {
		if v.(int)%2 == 1 {
			return nil, sentinel
		}
		return v, nil
	})
	assert.Nil(t, out, "no partial results")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), `key chain "a"`)
	assert.Contains(t, err.Error(), `key chain "c"`)
	assert.Equal(t, []string{"a", "b", "c"}, c.KeyChains(), "input untouched")
}

func TestMultiMapStructureConflict(t *testing.T) {
	c1 := New().Set("a", New().Set("b", 1))
	c2 := New().Set("a", 2)
	_, err := MultiMap(func(leaves []any, _ string) (any, error) { return nil, nil }, []*Container{c1, c2})
	assert.ErrorContains(t, err, "container in some inputs")

	_, err = MultiMap(nil, nil)
	assert.Error(t, err)
}
