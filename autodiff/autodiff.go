// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode differentiation for CTC training steps.
//
// It wraps any backend that implements the CTC kernels and records every
// operation on a gradient tape.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//
//	logProbs := logits.LogSoftmax(-1)
//	loss, _ := ctc.Loss(logProbs, targets, inputLengths, targetLengths)
//	objective := loss.Div(tensor.Cast[float32](targetLengths)).Mean()
//
//	grads := autodiff.Backward(objective, backend)
//	dLogits := grads[logits.Raw()]
package autodiff

import (
	"github.com/born-ml/ctcloss/internal/autodiff"
	"github.com/born-ml/ctcloss/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// BackwardCapable is implemented by backends that carry a gradient tape.
type BackwardCapable = autodiff.BackwardCapable

// Backward seeds the gradient of t with ones, walks the tape and returns the
// gradient of every recorded input keyed by its raw tensor.
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}
