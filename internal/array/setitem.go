package array

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/backend/cpu"
	"github.com/born-ml/unitensor/internal/tensor"
)

// SetItem writes value into the region q selects and reconciles every view
// sharing a's root.
//
// value may be an Array, a native handle or a Go literal. It is cast to a's
// dtype and broadcast to the region. Backends that cannot assign in place
// get a scatter that replaces a's storage instead. Read-only views reject
// the write.
func (a *Array) SetItem(q tensor.Query, value any) error {
	b, err := a.impl()
	if err != nil {
		return err
	}
	if err := a.CheckWritable(backend.OpSetItem); err != nil {
		return err
	}
	region, _, err := q.Resolve(a.Shape())
	if err != nil {
		return a.fail(backend.OpSetItem, err)
	}
	v, err := a.coerce(b, value)
	if err != nil {
		return a.fail(backend.OpSetItem, err)
	}
	if err := cpu.CheckBroadcastTo(b.Shape(v), region); err != nil {
		return &tensor.Error{
			Kind: tensor.ErrBroadcast, Op: backend.OpSetItem, Backend: a.backend,
			Shapes: []tensor.Shape{a.Shape(), b.Shape(v)}, Err: err,
		}
	}
	if !b.Shape(v).Equal(region) {
		if v, err = b.BroadcastTo(v, region); err != nil {
			return a.fail(backend.OpSetItem, err)
		}
	}

	data, err := assignRegion(b, a.data, q, v)
	if err != nil {
		return a.fail(backend.OpSetItem, err)
	}
	a.setData(data, data != a.data)
	return a.reconcile(backend.OpSetItem)
}

// assignRegion writes v, already shaped like the region, into x. It returns
// x when the backend assigned in place, or new storage from the scatter
// fallback, cast back to x's dtype.
func assignRegion(b backend.Backend, x backend.Native, q tensor.Query, v backend.Native) (backend.Native, error) {
	caps := b.Capabilities()
	if caps.InPlace && caps.Supports(backend.OpSetItem) {
		err := b.SetItem(x, q, v)
		if err == nil {
			return x, nil
		}
		slog.Debug("native setitem failed, using scatter", "backend", b.Name(), "error", err)
	}

	shape := b.Shape(x)
	_, idx, err := q.Resolve(shape)
	if err != nil {
		return nil, err
	}
	strides := shape.ComputeStrides()
	coords := make([][]int, len(idx))
	for i, flat := range idx {
		c := make([]int, len(shape))
		for d, s := range strides {
			c[d] = flat / s
			flat %= s
		}
		coords[i] = c
	}

	updates, err := b.Reshape(v, tensor.Shape{len(idx)})
	if err != nil {
		return nil, err
	}
	wasVar := b.IsVariable(x)
	plain := x
	if wasVar {
		if plain, err = b.VariableData(x); err != nil {
			return nil, err
		}
	}
	out, err := b.ScatterND(plain, coords, updates)
	if err != nil {
		return nil, fmt.Errorf("scatter_nd: %w", err)
	}
	if want := b.DType(x); b.DType(out) != want {
		if out, err = b.Cast(out, want); err != nil {
			return nil, err
		}
	}
	if wasVar {
		return b.Variable(out)
	}
	return out, nil
}

// coerce converts value to a native of a's backend with a's dtype.
func (a *Array) coerce(b backend.Backend, value any) (backend.Native, error) {
	var (
		v   backend.Native
		err error
	)
	switch x := value.(type) {
	case *Array:
		v = x.data
		if x.backend != a.backend {
			src, err := x.impl()
			if err != nil {
				return nil, err
			}
			if v, err = transfer(v, src, b); err != nil {
				return nil, err
			}
		}
	default:
		if b.Owns(x) {
			v = x
			break
		}
		if owner := backend.Owner(x); owner != nil {
			if v, err = transfer(x, owner, b); err != nil {
				return nil, err
			}
			break
		}
		raw, err := FromLiteral(value, a.DType())
		if err != nil {
			return nil, err
		}
		if v, err = b.FromHost(raw, a.Device()); err != nil {
			return nil, err
		}
	}
	if b.DType(v) != a.DType() {
		return b.Cast(v, a.DType())
	}
	return v, nil
}

// Assign overwrites every element of a with value, which must have a's
// shape. a keeps its dtype. Views sharing a's root are reconciled.
func (a *Array) Assign(value any) error {
	b, err := a.impl()
	if err != nil {
		return err
	}
	if err := a.CheckWritable("assign"); err != nil {
		return err
	}
	v, err := a.coerce(b, value)
	if err != nil {
		return a.fail("assign", err)
	}
	if got := b.Shape(v); !got.Equal(a.Shape()) {
		return &tensor.Error{
			Kind: tensor.ErrShapeMismatch, Op: "assign", Backend: a.backend,
			Shapes: []tensor.Shape{a.Shape(), got}, DTypes: []tensor.DataType{a.DType(), b.DType(v)},
		}
	}
	caps := b.Capabilities()
	if caps.InPlace && caps.Supports(backend.OpCopyInto) {
		if err := b.CopyInto(a.data, v); err == nil {
			a.setData(a.data, false)
			return a.reconcile("assign")
		}
	}
	if b.IsVariable(a.data) && !b.IsVariable(v) && caps.Variables {
		if v, err = b.Variable(v); err != nil {
			return a.fail("assign", err)
		}
	}
	a.setData(v, true)
	return a.reconcile("assign")
}

// MarkModified reconciles a's views after a backend wrote into a's storage
// in place, as BinaryInto does.
func (a *Array) MarkModified(op string) error {
	a.setData(a.data, false)
	return a.reconcile(op)
}
