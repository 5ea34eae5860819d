package array

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/backend/cpu"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Manipulation is one recorded step deriving a view from its base.
type Manipulation interface {
	fmt.Stringer
	// Apply derives the view's data from the base's data.
	Apply(b backend.Backend, base backend.Native) (backend.Native, error)
	// Writeback returns base updated with the view's values.
	// base may be modified in place.
	Writeback(b backend.Backend, base, view backend.Native) (backend.Native, error)
}

type getItem struct{ q tensor.Query }

func (m getItem) String() string { return "getitem[" + m.q.String() + "]" }

func (m getItem) Apply(b backend.Backend, base backend.Native) (backend.Native, error) {
	return b.GetItem(base, m.q)
}

func (m getItem) Writeback(b backend.Backend, base, view backend.Native) (backend.Native, error) {
	return assignRegion(b, base, m.q, view)
}

type reshape struct{ shape tensor.Shape }

func (m reshape) String() string { return fmt.Sprintf("reshape%v", m.shape) }

func (m reshape) Apply(b backend.Backend, base backend.Native) (backend.Native, error) {
	return b.Reshape(base, m.shape)
}

func (m reshape) Writeback(b backend.Backend, base, view backend.Native) (backend.Native, error) {
	return b.Reshape(view, b.Shape(base))
}

type permute struct{ axes []int }

func (m permute) String() string { return fmt.Sprintf("permute_dims%v", m.axes) }

func (m permute) Apply(b backend.Backend, base backend.Native) (backend.Native, error) {
	return b.PermuteDims(base, m.axes)
}

func (m permute) Writeback(b backend.Backend, _, view backend.Native) (backend.Native, error) {
	inv := make([]int, len(m.axes))
	for i, ax := range m.axes {
		inv[ax] = i
	}
	return b.PermuteDims(view, inv)
}

type expandDims struct{ axis int }

func (m expandDims) String() string { return fmt.Sprintf("expand_dims(%d)", m.axis) }

func (m expandDims) Apply(b backend.Backend, base backend.Native) (backend.Native, error) {
	return b.ExpandDims(base, m.axis)
}

func (m expandDims) Writeback(b backend.Backend, base, view backend.Native) (backend.Native, error) {
	return b.Reshape(view, b.Shape(base))
}

type squeeze struct{ axes []int }

func (m squeeze) String() string { return fmt.Sprintf("squeeze%v", m.axes) }

func (m squeeze) Apply(b backend.Backend, base backend.Native) (backend.Native, error) {
	return b.Squeeze(base, m.axes)
}

func (m squeeze) Writeback(b backend.Backend, base, view backend.Native) (backend.Native, error) {
	return b.Reshape(view, b.Shape(base))
}

// broadcastTo repeats elements of the base, so its views are read-only.
type broadcastTo struct{ shape tensor.Shape }

func (m broadcastTo) String() string { return fmt.Sprintf("broadcast_to%v", m.shape) }

func (m broadcastTo) Apply(b backend.Backend, base backend.Native) (backend.Native, error) {
	return b.BroadcastTo(base, m.shape)
}

func (m broadcastTo) Writeback(backend.Backend, backend.Native, backend.Native) (backend.Native, error) {
	return nil, errReadOnly
}

var errReadOnly = errors.New("broadcast views are read-only")

// ReadOnly reports whether a was derived through BroadcastTo, directly or
// from another view.
func (a *Array) ReadOnly() bool {
	ar := a.arena
	for slot := a.slot; slot >= 0; slot = ar.base(slot) {
		for _, m := range ar.stack(slot) {
			if _, ok := m.(broadcastTo); ok {
				return true
			}
		}
	}
	return false
}

// CheckWritable fails with tensor.ErrViewReconciliation when a is
// read-only.
func (a *Array) CheckWritable(op string) error {
	if a.ReadOnly() {
		return a.reconcileErr(op, errReadOnly)
	}
	return nil
}

// view derives a new array from a by m and links it into a's arena.
func (a *Array) view(op string, m Manipulation) (*Array, error) {
	b, err := a.impl()
	if err != nil {
		return nil, err
	}
	data, err := m.Apply(b, a.data)
	if err != nil {
		return nil, a.fail(op, err)
	}
	v := &Array{data: data, backend: a.backend, dynamic: a.dynamic}
	a.arena.add(v, a.slot, m)
	return v, nil
}

func (a *Array) fail(op string, err error) error {
	if _, ok := err.(*tensor.Error); ok {
		return err
	}
	kind := tensor.KindOf(err)
	if kind == nil {
		kind = tensor.ErrNotImplementedForBackend
	}
	return &tensor.Error{
		Kind: kind, Op: op, Backend: a.backend,
		Shapes: []tensor.Shape{a.Shape()}, DTypes: []tensor.DataType{a.DType()},
		Err: err,
	}
}

// GetItem returns a view of the region q selects.
func (a *Array) GetItem(q tensor.Query) (*Array, error) {
	return a.view(backend.OpGetItem, getItem{q: q})
}

// Reshape returns a view with a new shape. One dimension may be -1.
func (a *Array) Reshape(shape tensor.Shape) (*Array, error) {
	resolved, err := shape.Resolve(a.Size())
	if err != nil {
		return nil, a.fail(backend.OpReshape, fmt.Errorf("%w: %v", tensor.ErrShapeMismatch, err))
	}
	return a.view(backend.OpReshape, reshape{shape: resolved})
}

// Flatten returns a 1-D view.
func (a *Array) Flatten() (*Array, error) {
	return a.view(backend.OpReshape, reshape{shape: tensor.Shape{a.Size()}})
}

// PermuteDims returns a view with axes reordered. No axes reverses them.
func (a *Array) PermuteDims(axes ...int) (*Array, error) {
	_, norm, err := cpu.PermuteShape(a.Shape(), axes)
	if err != nil {
		return nil, a.fail(backend.OpPermuteDims, fmt.Errorf("%w: %v", tensor.ErrShapeMismatch, err))
	}
	return a.view(backend.OpPermuteDims, permute{axes: norm})
}

// T returns the transpose of a 2-D array.
func (a *Array) T() (*Array, error) {
	if a.NDim() != 2 {
		return nil, a.fail(backend.OpPermuteDims, fmt.Errorf("%w: T needs a 2-D array, have %dD", tensor.ErrShapeMismatch, a.NDim()))
	}
	return a.PermuteDims(1, 0)
}

// MT swaps the last two axes.
func (a *Array) MT() (*Array, error) {
	n := a.NDim()
	if n < 2 {
		return nil, a.fail(backend.OpPermuteDims, fmt.Errorf("%w: MT needs at least 2 dimensions, have %d", tensor.ErrShapeMismatch, n))
	}
	axes := make([]int, n)
	for i := range axes {
		axes[i] = i
	}
	axes[n-2], axes[n-1] = n-1, n-2
	return a.PermuteDims(axes...)
}

// ExpandDims returns a view with a size-1 axis inserted at axis.
func (a *Array) ExpandDims(axis int) (*Array, error) {
	norm, err := tensor.NormalizeAxis(axis, a.NDim()+1)
	if err != nil {
		return nil, a.fail(backend.OpExpandDims, fmt.Errorf("%w: %v", tensor.ErrShapeMismatch, err))
	}
	return a.view(backend.OpExpandDims, expandDims{axis: norm})
}

// Squeeze returns a view without the given size-1 axes, or without every
// size-1 axis when none are given.
func (a *Array) Squeeze(axes ...int) (*Array, error) {
	if _, err := cpu.SqueezeShape(a.Shape(), axes); err != nil {
		return nil, a.fail(backend.OpSqueeze, fmt.Errorf("%w: %v", tensor.ErrShapeMismatch, err))
	}
	return a.view(backend.OpSqueeze, squeeze{axes: axes})
}

// BroadcastTo returns a view broadcast to shape.
func (a *Array) BroadcastTo(shape tensor.Shape) (*Array, error) {
	if err := cpu.CheckBroadcastTo(a.Shape(), shape); err != nil {
		return nil, &tensor.Error{
			Kind: tensor.ErrBroadcast, Op: backend.OpBroadcastTo, Backend: a.backend,
			Shapes: []tensor.Shape{a.Shape(), shape}, Err: err,
		}
	}
	return a.view(backend.OpBroadcastTo, broadcastTo{shape: shape.Clone()})
}

// Base returns the array this view was derived from, nil for a root or when
// the base was collected.
func (a *Array) Base() *Array {
	base := a.arena.base(a.slot)
	if base < 0 {
		return nil
	}
	return a.arena.array(base)
}

// IsView reports whether a was derived from another array.
func (a *Array) IsView() bool {
	return a.arena.base(a.slot) >= 0
}

// Views returns the live views derived directly from a.
func (a *Array) Views() []*Array {
	var out []*Array
	for _, slot := range a.arena.views(a.slot) {
		if v := a.arena.array(slot); v != nil {
			out = append(out, v)
		}
	}
	return out
}

// ManipulationStack returns the steps deriving a from its base.
func (a *Array) ManipulationStack() []Manipulation {
	return a.arena.stack(a.slot)
}

// ArenaID identifies the view graph a belongs to.
func (a *Array) ArenaID() string {
	return a.arena.id.String()
}

// nodeData returns the current storage of slot, replaying from its base
// when the array in slot was collected.
func (ar *arena) nodeData(b backend.Backend, slot int) (backend.Native, error) {
	if a := ar.array(slot); a != nil {
		return a.data, nil
	}
	base := ar.base(slot)
	if base < 0 {
		ar.mu.Lock()
		defer ar.mu.Unlock()
		return ar.root, nil
	}
	data, err := ar.nodeData(b, base)
	if err != nil {
		return nil, err
	}
	return replay(b, ar.stack(slot), data)
}

func replay(b backend.Backend, stack []Manipulation, data backend.Native) (backend.Native, error) {
	var err error
	for _, m := range stack {
		if data, err = m.Apply(b, data); err != nil {
			return nil, fmt.Errorf("replay %s: %w", m, err)
		}
	}
	return data, nil
}

// reconcile propagates an in-place change of a's storage through the view
// graph: first up to the root through each inverse step, then down to every
// live view by replaying its steps against its base's new storage.
func (a *Array) reconcile(op string) error {
	b, err := a.impl()
	if err != nil {
		return err
	}
	ar := a.arena
	if ar.size() == 1 {
		return nil
	}

	slot, data := a.slot, a.data
	for base := ar.base(slot); base >= 0; slot, base = base, ar.base(base) {
		baseData, err := ar.nodeData(b, base)
		if err != nil {
			return a.reconcileErr(op, err)
		}
		stack := ar.stack(slot)
		inputs := make([]backend.Native, len(stack))
		cur := baseData
		for i, m := range stack {
			inputs[i] = cur
			if i < len(stack)-1 {
				if cur, err = m.Apply(b, cur); err != nil {
					return a.reconcileErr(op, err)
				}
			}
		}
		for i := len(stack) - 1; i >= 0; i-- {
			if data, err = stack[i].Writeback(b, inputs[i], data); err != nil {
				return a.reconcileErr(op, fmt.Errorf("writeback %s: %w", stack[i], err))
			}
		}
		ar.store(base, data, a)
	}

	queue := []int{rootSlot}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		parentData, err := ar.nodeData(b, parent)
		if err != nil {
			return a.reconcileErr(op, err)
		}
		for _, child := range ar.views(parent) {
			queue = append(queue, child)
			v := ar.array(child)
			if v == nil || v == a {
				continue
			}
			data, err := replay(b, ar.stack(child), parentData)
			if err != nil {
				return a.reconcileErr(op, err)
			}
			v.setData(data, false)
		}
	}
	slog.Debug("views reconciled", "op", op, "arena", ar.id, "arrays", ar.size())
	return nil
}

// store sets the storage of slot after a writeback. Collected arrays only
// keep storage at the root.
func (ar *arena) store(slot int, data backend.Native, from *Array) {
	if v := ar.array(slot); v != nil {
		if v != from {
			v.setData(data, false)
		}
		return
	}
	if slot == rootSlot {
		ar.mu.Lock()
		ar.root = data
		ar.mu.Unlock()
	}
}

func (a *Array) reconcileErr(op string, err error) error {
	return &tensor.Error{
		Kind: tensor.ErrViewReconciliation, Op: op, Backend: a.backend,
		Shapes: []tensor.Shape{a.Shape()}, DTypes: []tensor.DataType{a.DType()},
		Err: err,
	}
}
