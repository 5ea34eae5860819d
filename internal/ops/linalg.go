package ops

import (
	"github.com/born-ml/unitensor/internal/backend"
	"github.com/born-ml/unitensor/internal/dispatch"
)

var matmulPrim = &dispatch.Primitive{
	Name:     backend.OpMatMul,
	Promote:  true,
	Requires: []string{backend.OpMatMul},
	Impl: func(b backend.Backend, args []backend.Native, _ dispatch.Kwargs) ([]backend.Native, error) {
		return single(b.MatMul(args[0], args[1]))
	},
}

// MatMul returns the matrix product of x and y. Leading dimensions
// broadcast as batch dimensions.
func MatMul(x, y any, opts ...Option) (any, error) {
	return call(matmulPrim, []any{x, y}, nil, opts)
}
