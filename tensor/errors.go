// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/unitensor/internal/tensor"

// Error is a failed operation with its name, backend, and the shapes and
// dtypes of its operands. It matches its kind with errors.Is.
type Error = tensor.Error

// Error kinds.
var (
	ErrInvalidInputKind         = tensor.ErrInvalidInputKind
	ErrBackendNotFound          = tensor.ErrBackendNotFound
	ErrNotImplementedForBackend = tensor.ErrNotImplementedForBackend
	ErrBroadcast                = tensor.ErrBroadcast
	ErrShapeMismatch            = tensor.ErrShapeMismatch
	ErrViewReconciliation       = tensor.ErrViewReconciliation
	ErrBackendMismatch          = tensor.ErrBackendMismatch
	ErrNotImplemented           = tensor.ErrNotImplemented
	ErrInvalidQuery             = tensor.ErrInvalidQuery
)
