// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ctc

import (
	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/internal/dispatch"
)

// Error kinds. Use errors.Is to classify a failure.
var (
	// ErrShapeMismatch reports a wrong rank, batch size or dtype.
	ErrShapeMismatch = ctc.ErrShapeMismatch
	// ErrInvalidLength reports a length outside its bound or an illegal label.
	ErrInvalidLength = ctc.ErrInvalidLength
	// ErrResourceLimitExceeded reports a lattice larger than the configured bounds.
	ErrResourceLimitExceeded = ctc.ErrResourceLimitExceeded
	// ErrDeviceUnavailable reports a device that could not be opened.
	ErrDeviceUnavailable = dispatch.ErrDeviceUnavailable
)

// ValidationError names the input a rejected call failed on.
type ValidationError = ctc.ValidationError
