// Package all registers every built-in backend. Import it for its side
// effects.
package all

import (
	// Backends register themselves in init.
	_ "github.com/born-ml/unitensor/internal/backend/autodiff"
	_ "github.com/born-ml/unitensor/internal/backend/cpu"
	_ "github.com/born-ml/unitensor/internal/backend/gonum"
	_ "github.com/born-ml/unitensor/internal/backend/gorgonia"
)
