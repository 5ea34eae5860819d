// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package container provides Container, an ordered tree of arrays addressed
// by key chains, and MultiMap, which applies a function across several
// Containers leaf by leaf.
//
// Example:
//
//	params := container.FromMap(map[string]any{
//	    "layer1": map[string]any{"weight": w1, "bias": b1},
//	    "layer2": map[string]any{"weight": w2},
//	})
//	params.KeyChains() // [layer1/bias layer1/weight layer2/weight]
//
// Operations of the tensor package map over Containers directly:
//
//	grads, _ := tensor.Multiply(params, 0.1)
package container

import (
	"github.com/born-ml/unitensor/internal/container"
)

// Container is an ordered mapping from string keys to leaves or nested
// Containers.
type Container = container.Container

// LeafFunc is applied at every selected leaf position of MultiMap. leaves
// holds one value per input Container, nil where one lacks the position.
type LeafFunc = container.LeafFunc

// Option configures MultiMap and Container.Map.
type Option = container.Option

// Separator joins the keys of a key chain.
const Separator = container.Separator

// New creates an empty Container.
func New() *Container {
	return container.New()
}

// FromMap builds a Container from nested map[string]any values, inserting
// keys in sorted order.
func FromMap(m map[string]any) *Container {
	return container.FromMap(m)
}

// MultiMap applies fn at every leaf position of cs and assembles the results
// into a new Container. Inputs are never modified. Leaf errors are combined
// and no partial result is returned.
//
// Example:
//
//	sum, err := container.MultiMap(func(leaves []any, kc string) (any, error) {
//	    return tensor.Add(leaves[0], leaves[1])
//	}, []*container.Container{a, b})
func MultiMap(fn LeafFunc, cs []*Container, opts ...Option) (*Container, error) {
	return container.MultiMap(fn, cs, opts...)
}

// WithKeyChains restricts the visited leaves. A key chain naming a nested
// Container selects its whole subtree.
func WithKeyChains(kcs ...string) Option { return container.WithKeyChains(kcs...) }

// ToApply sets whether WithKeyChains lists the leaves to visit (true, the
// default) or the leaves to skip.
func ToApply(apply bool) Option { return container.ToApply(apply) }

// PruneUnapplied drops unvisited leaves from the result.
func PruneUnapplied() Option { return container.PruneUnapplied() }

// MapSequences recurses into []any leaves, addressing elements as "a/0".
func MapSequences() Option { return container.MapSequences() }

// Intersect visits only positions present in every Container.
func Intersect() Option { return container.Intersect() }
