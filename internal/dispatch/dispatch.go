// Package dispatch runs a backend primitive through the uniform call
// convention: argument coercion, dtype promotion, nested-container mapping,
// out handling, wrapping and unwrapping, and backend resolution.
//
// A Pipeline is an ordered list of named stages. Each stage sees the Call,
// may rewrite it, and hands it to the next stage; the last stage invokes the
// primitive. Default returns the standard order:
//
//	coerce → promote → nest → writeback → wrap → unwrap → invoke
//
// Stages can be composed individually to test them in isolation:
//
//	p := dispatch.New(dispatch.Coerce(), dispatch.Unwrap(), dispatch.Invoke())
//	res, err := p.Do(&dispatch.Call{Prim: add, Args: []any{x, 1}})
package dispatch

import (
	"github.com/pkg/errors"

	"github.com/born-ml/unitensor/internal/array"
	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/container"
	"github.com/born-ml/unitensor/internal/tensor"
)

// ImplFunc computes a primitive on natives of b. It returns one native per
// output.
type ImplFunc func(b backend.Backend, args []backend.Native, kw Kwargs) ([]backend.Native, error)

// IntoFunc computes a primitive directly into out.
type IntoFunc func(b backend.Backend, out backend.Native, args []backend.Native, kw Kwargs) error

// ViewFunc derives a view of x through the array layer.
type ViewFunc func(x *array.Array, kw Kwargs) (*array.Array, error)

// Primitive is one operation of the unified API.
type Primitive struct {
	Name string

	// Promote casts array operands to their common dtype.
	Promote bool
	// Broadcast requires array operands to have broadcast-compatible shapes.
	Broadcast bool
	// Requires lists the capabilities the resolved backend must advertise.
	Requires []string

	Impl ImplFunc
	// Into is the optional native-out variant of Impl.
	Into IntoFunc
	// View, when set, replaces Impl: the first argument is an Array and the
	// result is a tracked view of it.
	View ViewFunc
}

// Call is one invocation of a primitive.
type Call struct {
	Prim   *Primitive
	Args   []any
	Kwargs Kwargs
	// Out receives the result in place: an *array.Array, or a Container of
	// them for nested calls.
	Out any
	// Backend forces the backend, overriding the current-backend stack.
	Backend string

	// Nest configures container mapping. Nil means container.Intersect().
	Nest []container.Option
	// PromoteContainers computes one dtype over every container leaf
	// instead of promoting leaf by leaf.
	PromoteContainers bool

	resolved backend.Backend
	into     backend.Native
}

// Resolve returns the backend of the call: the explicit Backend, else the
// top of the current-backend stack, else the backend of the first argument
// carrying one, else the default. The result is cached on the call.
func (c *Call) Resolve() (backend.Backend, error) {
	if c.resolved != nil {
		return c.resolved, nil
	}
	var (
		b   backend.Backend
		err error
	)
	if c.Backend != "" {
		b, err = backend.Load(c.Backend)
	} else {
		b, err = backend.Current(c.Args...)
	}
	if err != nil {
		return nil, err
	}
	c.resolved = b
	return b, nil
}

// clone copies c for a nested leaf call. Resolution is not inherited.
func (c *Call) clone() *Call {
	sub := *c
	sub.Args = append([]any(nil), c.Args...)
	sub.Kwargs = c.Kwargs.Clone()
	sub.resolved, sub.into = nil, nil
	return &sub
}

// Handler continues a call through the remaining stages.
type Handler func(c *Call) (any, error)

// Stage is one named step of a Pipeline. Run may rewrite c before passing
// it to next and may transform the result next returns.
type Stage struct {
	Name string
	Run  func(p *Pipeline, c *Call, next Handler) (any, error)
}

// Pipeline runs calls through an ordered list of stages.
type Pipeline struct {
	stages []Stage
}

// New returns a pipeline running stages in order. The last stage must not
// call next.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: append([]Stage(nil), stages...)}
}

// Default returns the standard pipeline.
func Default() *Pipeline {
	return New(Coerce(), Promote(), Nest(), Writeback(), Wrap(), Unwrap(), Invoke())
}

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Do runs c through the pipeline. Failures are returned as *tensor.Error
// carrying the primitive name and operand shapes and dtypes.
func (p *Pipeline) Do(c *Call) (any, error) {
	if c.Prim == nil {
		return nil, &tensor.Error{Kind: tensor.ErrInvalidInputKind, Op: "dispatch", Err: errors.New("call without primitive")}
	}
	if c.Kwargs == nil {
		c.Kwargs = Kwargs{}
	}
	res, err := p.run(c, 0)
	if err != nil {
		return nil, fail(c, err)
	}
	return res, nil
}

func (p *Pipeline) run(c *Call, i int) (any, error) {
	if i == len(p.stages) {
		return nil, errors.Errorf("pipeline ended before invoking %s", c.Prim.Name)
	}
	return p.stages[i].Run(p, c, func(c *Call) (any, error) { return p.run(c, i+1) })
}
