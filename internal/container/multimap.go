package container

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// LeafFunc is applied at every selected leaf position. leaves holds one value
// per input container, nil where a container lacks the position.
type LeafFunc func(leaves []any, kc string) (any, error)

type options struct {
	keyChains      []string
	toApply        bool
	pruneUnapplied bool
	mapSequences   bool
	intersect      bool
}

// Option configures MultiMap and Map.
type Option func(*options)

// WithKeyChains restricts the leaves fn is applied to. A key chain naming a
// nested container selects its whole subtree.
func WithKeyChains(kcs ...string) Option {
	return func(o *options) { o.keyChains = append(o.keyChains, kcs...) }
}

// ToApply sets whether WithKeyChains lists the leaves to visit (true, the
// default) or the leaves to skip (false).
func ToApply(apply bool) Option {
	return func(o *options) { o.toApply = apply }
}

// PruneUnapplied drops unselected leaves, and positions missing from any
// container, from the result instead of copying them.
func PruneUnapplied() Option {
	return func(o *options) { o.pruneUnapplied = true }
}

// MapSequences recurses into []any leaves. Elements are addressed by their
// index, as in "a/0".
func MapSequences() Option {
	return func(o *options) { o.mapSequences = true }
}

// Intersect visits only positions present in every container.
func Intersect() Option {
	return func(o *options) { o.intersect = true }
}

func newOptions(opts []Option) *options {
	o := &options{toApply: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) applies(kc string) bool {
	if len(o.keyChains) == 0 {
		return true
	}
	matched := slices.ContainsFunc(o.keyChains, func(p string) bool {
		return kc == p || strings.HasPrefix(kc, p+Separator)
	})
	return matched == o.toApply
}

// Map applies fn to every selected leaf of c.
func (c *Container) Map(fn func(v any, kc string) (any, error), opts ...Option) (*Container, error) {
	return MultiMap(func(leaves []any, kc string) (any, error) {
		return fn(leaves[0], kc)
	}, []*Container{c}, opts...)
}

// MultiMap walks the union of key positions of cs in insertion order, the
// first container's keys first, and calls fn at every selected leaf with
// the leaf of each container. The result has the key structure of the
// inputs, minus pruned positions. Inputs are never modified. If fn fails at
// any leaf, MultiMap returns every leaf error combined and no container.
func MultiMap(fn LeafFunc, cs []*Container, opts ...Option) (*Container, error) {
	if len(cs) == 0 {
		return nil, errors.New("multi_map: no containers")
	}
	o := newOptions(opts)
	var errs error
	out := multiMap(fn, cs, "", o, &errs)
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func unionKeys(cs []*Container) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, c := range cs {
		if c == nil {
			continue
		}
		for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
			if !seen[pair.Key] {
				seen[pair.Key] = true
				keys = append(keys, pair.Key)
			}
		}
	}
	return keys
}

func multiMap(fn LeafFunc, cs []*Container, prefix string, o *options, errs *error) *Container {
	out := New()
	for _, key := range unionKeys(cs) {
		kc := join(prefix, key)
		values := make([]any, len(cs))
		missing := false
		for i, c := range cs {
			if c == nil {
				missing = true
				continue
			}
			v, ok := c.m.Get(key)
			if !ok {
				missing = true
				continue
			}
			values[i] = v
		}
		if missing && (o.intersect || o.pruneUnapplied) {
			continue
		}
		if v, keep := visit(fn, values, kc, o, errs); keep {
			out.m.Set(key, v)
		}
	}
	return out
}

// visit computes the result at one position and reports whether to keep it.
func visit(fn LeafFunc, values []any, kc string, o *options, errs *error) (any, bool) {
	if subs, ok := subContainers(values); ok {
		sub := multiMap(fn, subs, kc, o, errs)
		return sub, sub.Len() > 0 || !o.pruneUnapplied
	}
	if _, isSub := first(values).(*Container); isSub {
		*errs = multierr.Append(*errs, fmt.Errorf("multi_map: %q is a container in some inputs and a leaf in others", kc))
		return nil, false
	}
	if seq, ok := first(values).([]any); ok && o.mapSequences {
		return mapSequence(fn, values, seq, kc, o, errs)
	}
	if !o.applies(kc) {
		if o.pruneUnapplied {
			return nil, false
		}
		return first(values), true
	}
	v, err := fn(values, kc)
	if err != nil {
		*errs = multierr.Append(*errs, errors.Wrapf(err, "key chain %q", kc))
		return nil, false
	}
	return v, true
}

// subContainers returns values as containers if every present value is one.
func subContainers(values []any) ([]*Container, bool) {
	subs := make([]*Container, len(values))
	found := false
	for i, v := range values {
		if v == nil {
			continue
		}
		sub, ok := v.(*Container)
		if !ok {
			return nil, false
		}
		subs[i] = sub
		found = true
	}
	return subs, found
}

func first(values []any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func mapSequence(fn LeafFunc, values []any, seq []any, kc string, o *options, errs *error) (any, bool) {
	out := make([]any, 0, len(seq))
	for i := range seq {
		elems := make([]any, len(values))
		for j, v := range values {
			if s, ok := v.([]any); ok && i < len(s) {
				elems[j] = s[i]
			}
		}
		if v, keep := visit(fn, elems, kc+Separator+strconv.Itoa(i), o, errs); keep {
			out = append(out, v)
		}
	}
	return out, len(out) > 0 || !o.pruneUnapplied
}
