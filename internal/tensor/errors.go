package tensor

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is.
var (
	ErrInvalidInputKind         = errors.New("invalid input kind")
	ErrBackendNotFound          = errors.New("backend not found")
	ErrNotImplementedForBackend = errors.New("operation not implemented for backend")
	ErrBroadcast                = errors.New("shapes cannot be broadcast")
	ErrShapeMismatch            = errors.New("shape mismatch")
	ErrViewReconciliation       = errors.New("view reconciliation failed")
	ErrBackendMismatch          = errors.New("array belongs to a different backend")
	ErrNotImplemented           = errors.New("not implemented")
	ErrInvalidQuery             = errors.New("invalid index query")
)

// Error is a failed operation with the context needed to diagnose it.
type Error struct {
	Kind    error      // One of the Err* kinds above
	Op      string     // Operation name, e.g. "add"
	Backend string     // Backend that was resolved for the call, if any
	Shapes  []Shape    // Operand shapes
	DTypes  []DataType // Operand dtypes
	Err     error      // Underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Backend != "" {
		fmt.Fprintf(&b, " [%s]", e.Backend)
	}
	b.WriteString(": ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if len(e.Shapes) > 0 {
		fmt.Fprintf(&b, " (shapes %v", e.Shapes)
		if len(e.DTypes) > 0 {
			fmt.Fprintf(&b, ", dtypes %v", e.DTypes)
		}
		b.WriteString(")")
	}
	if e.Err != nil && !errors.Is(e.Kind, e.Err) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the first error kind found in err's chain, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrInvalidInputKind, ErrBackendNotFound, ErrNotImplementedForBackend,
		ErrBroadcast, ErrShapeMismatch, ErrViewReconciliation,
		ErrBackendMismatch, ErrNotImplemented, ErrInvalidQuery,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
