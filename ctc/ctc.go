// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ctc computes the Connectionist Temporal Classification loss and its
// gradient for batches of variable-length sequences.
//
// Inputs follow the usual layout:
//   - logProbs: [T, B, C] float32/float64, log-softmax normalized over C
//   - targets: [B, S] int32/int64, zero padded past each target length
//   - inputLengths, targetLengths: [B] int32/int64
//
// Loss returns the [B] negative log-likelihoods. An example whose target
// cannot be aligned to its input gets +Inf and a zero gradient instead of
// an error. Malformed calls fail with an error wrapping ErrShapeMismatch,
// ErrInvalidLength or ErrResourceLimitExceeded before any work is done.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//
//	logProbs := logits.LogSoftmax(-1)
//	loss, err := ctc.Loss(logProbs, targets, inputLengths, targetLengths)
//	if err != nil {
//	    return err
//	}
//	objective := loss.Div(tensor.Cast[float32](targetLengths)).Mean()
//	grads := autodiff.Backward(objective, backend)
package ctc

import (
	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/tensor"
)

// Backend is a tensor backend with CTC kernels.
type Backend = ctc.Backend

// LatticeBackend is a Backend that can keep the forward alpha lattices for
// a later gradient on the same batch. The CPU and autodiff backends are
// LatticeBackends.
type LatticeBackend = ctc.LatticeBackend

// Arena holds the alpha lattices of one batch.
type Arena = ctc.Arena

// Index is the constraint for target and length element types.
type Index interface {
	~int32 | ~int64
}

// Input groups the four raw tensors of one operator call.
type Input = ctc.Input

// Batch is a validated, packed operator call.
type Batch = ctc.Batch

// Validate checks an operator call and packs it into a Batch.
func Validate(in Input, cfg Config) (*Batch, error) {
	return ctc.Validate(in, cfg)
}

// Loss returns the [B] per-example negative log-likelihoods.
//
// Under an autodiff backend the call is recorded, so the gradient flows back
// to logProbs (and through LogSoftmax to the logits) on Backward.
func Loss[T tensor.Float, I Index, B Backend](
	logProbs *tensor.Tensor[T, B],
	targets, inputLengths, targetLengths *tensor.Tensor[I, B],
	opts ...Option,
) (*tensor.Tensor[T, B], error) {
	backend := logProbs.Backend()
	b, err := validate(logProbs, targets, inputLengths, targetLengths, opts)
	if err != nil {
		return nil, err
	}
	return tensor.New[T, B](backend.CTCLoss(b), backend), nil
}

// Gradient returns dLoss/dLogProbs ([T, B, C]) without a gradient tape.
// Example n is scaled by upstream[n]; a nil upstream means ones and a single
// element is broadcast.
func Gradient[T tensor.Float, I Index, B Backend](
	logProbs *tensor.Tensor[T, B],
	targets, inputLengths, targetLengths *tensor.Tensor[I, B],
	upstream *tensor.Tensor[T, B],
	opts ...Option,
) (*tensor.Tensor[T, B], error) {
	backend := logProbs.Backend()
	b, err := validate(logProbs, targets, inputLengths, targetLengths, opts)
	if err != nil {
		return nil, err
	}

	var up *tensor.RawTensor
	if upstream != nil {
		up = upstream.Raw()
	}
	if err := ctc.CheckUpstream(b, up); err != nil {
		return nil, err
	}
	return tensor.New[T, B](backend.CTCLossBackward(b, up), backend), nil
}

func validate[T tensor.Float, I Index, B Backend](
	logProbs *tensor.Tensor[T, B],
	targets, inputLengths, targetLengths *tensor.Tensor[I, B],
	opts []Option,
) (*Batch, error) {
	in := Input{LogProbs: logProbs.Raw()}
	if targets != nil {
		in.Targets = targets.Raw()
	}
	if inputLengths != nil {
		in.InputLengths = inputLengths.Raw()
	}
	if targetLengths != nil {
		in.TargetLengths = targetLengths.Raw()
	}
	return ctc.Validate(in, NewConfig(opts...))
}
