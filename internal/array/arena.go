package array

import (
	"runtime"
	"slices"
	"sync"
	"weak"

	"github.com/google/uuid"

	"github.com/born-ml/unitensor/internal/backend"
)

const rootSlot = 0

// arena holds the view graph of every array derived from one root.
// Arrays refer to each other by slot index; slots hold weak pointers so the
// graph never keeps an array alive.
type arena struct {
	id uuid.UUID

	mu    sync.Mutex
	nodes []node
	free  []int

	// root is the root's storage. It outlives the root array so views can
	// still be reconciled after the root is collected.
	root backend.Native
}

type node struct {
	ref   weak.Pointer[Array]
	base  int // -1 for the root
	views []int
	stack []Manipulation
	dead  bool // array collected, slot kept for its live views
	used  bool
}

func newArena(root *Array) *arena {
	ar := &arena{id: uuid.New(), root: root.data}
	ar.nodes = append(ar.nodes, node{ref: weak.Make(root), base: -1, used: true})
	root.arena, root.slot = ar, rootSlot
	runtime.AddCleanup(root, ar.release, rootSlot)
	return ar
}

// add registers v as a view of the array in slot base.
func (ar *arena) add(v *Array, base int, m Manipulation) {
	ar.mu.Lock()
	n := node{ref: weak.Make(v), base: base, stack: []Manipulation{m}, used: true}
	var slot int
	if k := len(ar.free); k > 0 {
		slot = ar.free[k-1]
		ar.free = ar.free[:k-1]
		ar.nodes[slot] = n
	} else {
		slot = len(ar.nodes)
		ar.nodes = append(ar.nodes, n)
	}
	ar.nodes[base].views = append(ar.nodes[base].views, slot)
	ar.mu.Unlock()

	v.arena, v.slot = ar, slot
	runtime.AddCleanup(v, ar.release, slot)
}

// release runs after the array in slot is collected. The slot is recycled
// once no live view depends on it.
func (ar *arena) release(slot int) {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	ar.nodes[slot].dead = true
	ar.collect(slot)
}

func (ar *arena) collect(slot int) {
	n := &ar.nodes[slot]
	if slot == rootSlot || !n.dead || len(n.views) > 0 {
		return
	}
	base := n.base
	ar.nodes[base].views = slices.DeleteFunc(ar.nodes[base].views, func(i int) bool { return i == slot })
	ar.nodes[slot] = node{}
	ar.free = append(ar.free, slot)
	ar.collect(base)
}

// array returns the live array in slot, or nil.
func (ar *arena) array(slot int) *Array {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	return ar.nodes[slot].ref.Value()
}

func (ar *arena) base(slot int) int {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	return ar.nodes[slot].base
}

func (ar *arena) stack(slot int) []Manipulation {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	return slices.Clone(ar.nodes[slot].stack)
}

func (ar *arena) views(slot int) []int {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	return slices.Clone(ar.nodes[slot].views)
}

// live returns every live array of the arena.
func (ar *arena) live() []*Array {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	var out []*Array
	for _, n := range ar.nodes {
		if !n.used {
			continue
		}
		if a := n.ref.Value(); a != nil {
			out = append(out, a)
		}
	}
	return out
}

// size returns the number of occupied slots.
func (ar *arena) size() int {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	return len(ar.nodes) - len(ar.free)
}
