package array

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/tensor"
)

// transfer moves x from backend src to dst through the host. Variables stay
// variables when dst supports them; their gradient history is dropped.
func transfer(x backend.Native, src, dst backend.Backend) (backend.Native, error) {
	if src.Name() == dst.Name() {
		return x, nil
	}
	wasVar := src.IsVariable(x)
	var err error
	if wasVar {
		if x, err = src.VariableData(x); err != nil {
			return nil, err
		}
	}
	raw, err := src.ToHost(x)
	if err != nil {
		return nil, err
	}
	out, err := dst.FromHost(raw, raw.Device())
	if err != nil {
		return nil, err
	}
	if wasVar && dst.Capabilities().Variables {
		return dst.Variable(out)
	}
	return out, nil
}

// SetDynamicBackend sets whether a follows the current backend. Turning it
// on migrates a (and every live array sharing its root) to the current
// backend if that differs. Turning it off pins a where its data lives.
func (a *Array) SetDynamicBackend(dynamic bool) error {
	a.dynamic = dynamic
	if !dynamic {
		return nil
	}
	target, err := backend.Current()
	if err != nil {
		return err
	}
	return a.MigrateTo(target.Name())
}

// MigrateTo moves a's data to the named backend, preserving values. Every
// live array of a's view graph moves with it so views stay replayable.
func (a *Array) MigrateTo(name string) error {
	if name == a.backend {
		return nil
	}
	src, err := a.impl()
	if err != nil {
		return err
	}
	dst, err := backend.Load(name)
	if err != nil {
		return err
	}

	ar := a.arena
	members := ar.live()
	moved := make([]backend.Native, len(members))
	for i, m := range members {
		if moved[i], err = transfer(m.data, src, dst); err != nil {
			return &tensor.Error{
				Kind: tensor.KindOf(err), Op: "migrate", Backend: name,
				Shapes: []tensor.Shape{m.Shape()}, DTypes: []tensor.DataType{m.DType()},
				Err: err,
			}
		}
	}
	ar.mu.Lock()
	root := ar.root
	ar.mu.Unlock()
	if ar.array(rootSlot) == nil {
		if root, err = transfer(root, src, dst); err != nil {
			return err
		}
	}

	for i, m := range members {
		m.backend = name
		m.setData(moved[i], true)
	}
	ar.mu.Lock()
	if ar.nodes[rootSlot].ref.Value() == nil {
		ar.root = root
	}
	ar.mu.Unlock()
	slog.Debug("array migrated", "from", src.Name(), "to", name, "arrays", len(members))
	return nil
}

// Native returns a's data as a native of b. Dynamic arrays on another
// backend are migrated first; other arrays fail with ErrBackendMismatch.
func (a *Array) Native(b backend.Backend) (backend.Native, error) {
	if a.backend == b.Name() {
		return a.data, nil
	}
	if !a.dynamic {
		return nil, &tensor.Error{
			Kind: tensor.ErrBackendMismatch, Op: "migrate", Backend: b.Name(),
			Shapes: []tensor.Shape{a.Shape()}, DTypes: []tensor.DataType{a.DType()},
			Err: fmt.Errorf("array lives on %q; enable its dynamic backend to migrate", a.backend),
		}
	}
	if err := a.MigrateTo(b.Name()); err != nil {
		return nil, err
	}
	return a.data, nil
}
