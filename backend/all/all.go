// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package all registers every built-in backend. Import it for its side
// effects:
//
//	import _ "github.com/born-ml/unitensor/backend/all"
package all

import (
	_ "github.com/born-ml/unitensor/internal/backend/all"
)
