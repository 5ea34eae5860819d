package autodiff

import (
	"fmt"
	"sync"

	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Operation is a differentiable step recorded on the tape.
type Operation interface {
	// Backward returns one gradient per input given the output gradient.
	// A nil entry means no gradient flows to that input.
	Backward(grad backend.Native, inner backend.Backend) ([]backend.Native, error)

	// Inputs returns the operation's input variables.
	Inputs() []*Variable

	// Output returns the variable the operation produced.
	Output() *Variable
}

// GradientTape records operations during the forward pass and computes
// gradients during the backward pass using reverse-mode differentiation.
type GradientTape struct {
	mu         sync.Mutex
	operations []Operation
	recording  bool
}

// NewGradientTape creates a tape that is recording.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]Operation, 0, 64),
		recording:  true,
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.mu.Lock()
	t.recording = true
	t.mu.Unlock()
}

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() {
	t.mu.Lock()
	t.recording = false
	t.mu.Unlock()
}

// IsRecording reports whether the tape records operations.
func (t *GradientTape) IsRecording() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recording
}

// Record appends op if the tape is recording.
func (t *GradientTape) Record(op Operation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recording {
		t.operations = append(t.operations, op)
	}
}

// Clear removes every recorded operation. The recording state is kept.
func (t *GradientTape) Clear() {
	t.mu.Lock()
	t.operations = t.operations[:0]
	t.mu.Unlock()
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.operations)
}

func (t *GradientTape) snapshot() []Operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Operation(nil), t.operations...)
}

// Gradients maps variables to their accumulated gradients.
type Gradients map[*Variable]backend.Native

// Of returns the gradient of v as a detached variable, or nil if no
// gradient reached v.
func (g Gradients) Of(v *Variable) *Variable {
	grad, ok := g[v]
	if !ok {
		return nil
	}
	return &Variable{value: grad}
}

// Backward walks the tape in reverse from y, seeded with ones, and
// accumulates gradients for every gradient-tracked variable that y depends on.
func (t *GradientTape) Backward(y *Variable, inner backend.Backend) (Gradients, error) {
	if !y.requiresGrad {
		return nil, fmt.Errorf("backward: output does not require gradients")
	}
	dt := inner.DType(y.value)
	if !dt.IsFloat() {
		return nil, fmt.Errorf("backward: unsupported dtype %s", dt)
	}
	seed, err := ones(inner, inner.Shape(y.value), dt)
	if err != nil {
		return nil, err
	}

	// Gradient ops must not be recorded.
	t.mu.Lock()
	wasRecording := t.recording
	t.recording = false
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.recording = wasRecording
		t.mu.Unlock()
	}()

	grads := Gradients{y: seed}
	ops := t.snapshot()
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		g, ok := grads[op.Output()]
		if !ok {
			continue
		}
		inputGrads, err := op.Backward(g, inner)
		if err != nil {
			return nil, err
		}
		for j, in := range op.Inputs() {
			if j >= len(inputGrads) || inputGrads[j] == nil || !in.requiresGrad {
				continue
			}
			if existing, ok := grads[in]; ok {
				sum, err := inner.Binary(backend.OpAdd, existing, inputGrads[j])
				if err != nil {
					return nil, err
				}
				grads[in] = sum
			} else {
				grads[in] = inputGrads[j]
			}
		}
	}
	return grads, nil
}

func ones(inner backend.Backend, shape tensor.Shape, dt tensor.DataType) (backend.Native, error) {
	values := make([]float64, shape.NumElements())
	for i := range values {
		values[i] = 1
	}
	r, err := tensor.FromFloat64s(shape, dt, values)
	if err != nil {
		return nil, err
	}
	return inner.FromHost(r, tensor.CPU)
}
