package array

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/serialization"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Serialization metadata keys.
const (
	stateTensor = "data"
	metaBackend = "backend"
	metaDevice  = "device"
)

// State is the persistent form of an Array.
type State struct {
	Data    *tensor.RawTensor
	Backend string
	Device  tensor.Device
}

// State detaches a to its persistent form.
func (a *Array) State() (State, error) {
	raw, err := a.ToRaw()
	if err != nil {
		return State{}, err
	}
	return State{Data: raw, Backend: a.backend, Device: a.Device()}, nil
}

// FromState rebuilds an Array from s. The recorded backend (or the current
// one when s.Backend is empty) is made current while the data is restored
// and the previous backend is restored afterwards. The device is a hint.
func FromState(s State) (*Array, error) {
	if s.Data == nil {
		return nil, &tensor.Error{Kind: tensor.ErrInvalidInputKind, Op: "from_state", Err: fmt.Errorf("%w: state without data", tensor.ErrInvalidInputKind)}
	}
	name := s.Backend
	if name == "" {
		current, err := backend.CurrentName()
		if err != nil {
			return nil, err
		}
		name = current
	}

	var out *Array
	err := backend.Use(name, func(b backend.Backend) error {
		data, err := b.FromHost(s.Data, s.Device)
		if err != nil {
			return err
		}
		out = Wrap(data, b.Name(), false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarshalBinary encodes a's state as a SafeTensors payload with the backend
// and device in its metadata.
func (a *Array) MarshalBinary() ([]byte, error) {
	s, err := a.State()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = serialization.Encode(&buf, map[string]*tensor.RawTensor{stateTensor: s.Data}, map[string]string{
		metaBackend: s.Backend,
		metaDevice:  s.Device.String(),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces a with the array encoded in data.
func (a *Array) UnmarshalBinary(data []byte) error {
	f, err := serialization.DecodeBytes(data, serialization.ValidationStrict)
	if err != nil {
		return err
	}
	s, err := stateFromFile(f, stateTensor)
	if err != nil {
		return err
	}
	restored, err := FromState(s)
	if err != nil {
		return err
	}
	a.data, a.backend, a.dynamic = restored.data, restored.backend, restored.dynamic
	a.meta = metadata{}
	newArena(a)
	return nil
}

func stateFromFile(f *serialization.File, name string) (State, error) {
	raw, ok := f.Tensors[name]
	if !ok {
		return State{}, fmt.Errorf("%w: no tensor %q in payload", tensor.ErrInvalidInputKind, name)
	}
	s := State{Data: raw, Backend: f.Metadata[metaBackend]}
	if dev := f.Metadata[metaDevice]; dev != "" {
		if d, err := tensor.ParseDevice(dev); err == nil {
			s.Device = d
		}
	}
	return s, nil
}

// Save writes named arrays to a SafeTensors file. Every array must live on
// the same backend, which is recorded in the metadata.
func Save(path string, arrays map[string]*Array) error {
	tensors := make(map[string]*tensor.RawTensor, len(arrays))
	meta := map[string]string{}
	for name, a := range arrays {
		s, err := a.State()
		if err != nil {
			return fmt.Errorf("save %q: %w", name, err)
		}
		if prev, ok := meta[metaBackend]; ok && prev != s.Backend {
			return &tensor.Error{
				Kind: tensor.ErrBackendMismatch, Op: "save", Backend: s.Backend,
				Err: fmt.Errorf("%q is on %q, others on %q", name, s.Backend, prev),
			}
		}
		meta[metaBackend], meta[metaDevice] = s.Backend, s.Device.String()
		tensors[name] = s.Data
	}
	return serialization.WriteFile(path, tensors, meta)
}

// Load reads every array from a SafeTensors file written by Save.
func Load(path string) (map[string]*Array, error) {
	f, err := serialization.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Array, len(f.Names))
	for _, name := range f.Names {
		s, err := stateFromFile(f, name)
		if err != nil {
			return nil, err
		}
		if out[name], err = FromState(s); err != nil {
			return nil, fmt.Errorf("load %q: %w", name, err)
		}
	}
	return out, nil
}

// MarshalJSON renders a's values as nested JSON lists.
func (a *Array) MarshalJSON() ([]byte, error) {
	raw, err := a.ToRaw()
	if err != nil {
		return nil, err
	}
	return json.Marshal(nested(raw, raw.Shape(), 0))
}

func nested(raw *tensor.RawTensor, shape tensor.Shape, offset int) any {
	if len(shape) == 0 {
		return element(raw, offset)
	}
	step := shape[1:].NumElements()
	out := make([]any, shape[0])
	for i := range out {
		out[i] = nested(raw, shape[1:], offset+i*step)
	}
	return out
}
