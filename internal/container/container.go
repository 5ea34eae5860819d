// Package container implements the recursive ordered mapping used to apply
// one operation across a nested tree of arrays.
//
// Leaf positions are addressed by key chains: the keys on the path from the
// root joined with "/", for example "layer1/weight".
package container

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Separator joins the keys of a key chain.
const Separator = "/"

// Container is an ordered mapping from string keys to leaves or nested
// containers. Keys are unique per level and keep insertion order.
type Container struct {
	m *orderedmap.OrderedMap[string, any]
}

// New creates an empty container.
func New() *Container {
	return &Container{m: orderedmap.New[string, any]()}
}

// FromMap builds a container from m. Nested map[string]any values become
// nested containers. Keys are inserted in sorted order.
func FromMap(m map[string]any) *Container {
	c := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := m[k]
		if sub, ok := v.(map[string]any); ok {
			v = FromMap(sub)
		}
		c.m.Set(k, v)
	}
	return c
}

// Set stores v under key, keeping key's position if it already exists.
func (c *Container) Set(key string, v any) *Container {
	c.m.Set(key, v)
	return c
}

// Get returns the value stored under key.
func (c *Container) Get(key string) (any, bool) {
	return c.m.Get(key)
}

// Delete removes key.
func (c *Container) Delete(key string) {
	c.m.Delete(key)
}

// Len returns the number of keys at the top level.
func (c *Container) Len() int {
	return c.m.Len()
}

// Keys returns the top-level keys in insertion order.
func (c *Container) Keys() []string {
	keys := make([]string, 0, c.m.Len())
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// At returns the value at key chain kc.
func (c *Container) At(kc string) (any, bool) {
	var cur any = c
	for _, key := range strings.Split(kc, Separator) {
		sub, ok := cur.(*Container)
		if !ok {
			return nil, false
		}
		if cur, ok = sub.m.Get(key); !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetAt stores v at key chain kc, creating intermediate containers.
// It fails if a non-container value lies on the path.
func (c *Container) SetAt(kc string, v any) error {
	keys := strings.Split(kc, Separator)
	cur := c
	for i, key := range keys[:len(keys)-1] {
		next, ok := cur.m.Get(key)
		if !ok {
			sub := New()
			cur.m.Set(key, sub)
			cur = sub
			continue
		}
		if cur, ok = next.(*Container); !ok {
			return fmt.Errorf("container: %q is a leaf", strings.Join(keys[:i+1], Separator))
		}
	}
	cur.m.Set(keys[len(keys)-1], v)
	return nil
}

// KeyChains returns the key chain of every leaf in depth-first insertion
// order.
func (c *Container) KeyChains() []string {
	var kcs []string
	c.walk("", func(kc string, _ any) { kcs = append(kcs, kc) })
	return kcs
}

// Leaves returns every leaf in depth-first insertion order.
func (c *Container) Leaves() []any {
	var leaves []any
	c.walk("", func(_ string, v any) { leaves = append(leaves, v) })
	return leaves
}

func (c *Container) walk(prefix string, fn func(kc string, v any)) {
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		kc := join(prefix, pair.Key)
		if sub, ok := pair.Value.(*Container); ok {
			sub.walk(kc, fn)
			continue
		}
		fn(kc, pair.Value)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + Separator + key
}

// Copy returns a copy of c's structure. Leaves are shared.
func (c *Container) Copy() *Container {
	out := New()
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		v := pair.Value
		if sub, ok := v.(*Container); ok {
			v = sub.Copy()
		}
		out.m.Set(pair.Key, v)
	}
	return out
}

// Prune returns a copy of c without the listed key chains. A key chain
// naming a nested container removes the whole subtree.
func (c *Container) Prune(kcs ...string) *Container {
	return c.prune("", kcs)
}

func (c *Container) prune(prefix string, kcs []string) *Container {
	out := New()
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		kc := join(prefix, pair.Key)
		if slices.Contains(kcs, kc) {
			continue
		}
		v := pair.Value
		if sub, ok := v.(*Container); ok {
			v = sub.prune(kc, kcs)
		}
		out.m.Set(pair.Key, v)
	}
	return out
}

// StructureEqual reports whether c and other have the same key set at every
// level, with containers in the same positions.
func (c *Container) StructureEqual(other *Container) bool {
	if c.m.Len() != other.m.Len() {
		return false
	}
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		ov, ok := other.m.Get(pair.Key)
		if !ok {
			return false
		}
		sub, isSub := pair.Value.(*Container)
		osub, oIsSub := ov.(*Container)
		if isSub != oIsSub || (isSub && !sub.StructureEqual(osub)) {
			return false
		}
	}
	return true
}

// ToMap converts c into nested map[string]any values.
func (c *Container) ToMap() map[string]any {
	out := make(map[string]any, c.m.Len())
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		v := pair.Value
		if sub, ok := v.(*Container); ok {
			v = sub.ToMap()
		}
		out[pair.Key] = v
	}
	return out
}

// MarshalJSON encodes c as a JSON object in insertion order.
func (c *Container) MarshalJSON() ([]byte, error) {
	return c.m.MarshalJSON()
}

// String renders c as indented JSON.
func (c *Container) String() string {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Container(%d keys: %v)", c.m.Len(), err)
	}
	return string(b)
}
