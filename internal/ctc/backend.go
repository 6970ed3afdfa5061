package ctc

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/tensor"
)

// Backend is a tensor backend that can evaluate the CTC operator.
//
// Both methods take a Batch that already passed Validate, so they only fail
// on device errors, which they report by panicking like every other backend
// operation.
type Backend interface {
	tensor.Backend

	// CTCLoss returns the [B] negative log-likelihoods.
	CTCLoss(b *Batch) *tensor.RawTensor

	// CTCLossBackward returns dLoss/dLogProbs ([T, B, C]) with example n
	// scaled by upstream[n]. A nil upstream means ones.
	CTCLossBackward(b *Batch, upstream *tensor.RawTensor) *tensor.RawTensor
}

// LatticeBackend is a Backend whose forward pass can keep its alpha lattices
// so that a later gradient on the same batch skips the forward recursion.
type LatticeBackend interface {
	Backend

	// CTCLossRetain returns the [B] losses and the full alpha lattices.
	CTCLossRetain(b *Batch) (*tensor.RawTensor, *Arena)

	// CTCLossBackwardFrom is CTCLossBackward seeded with the lattices
	// CTCLossRetain returned for b. A nil alpha recomputes them.
	CTCLossBackwardFrom(b *Batch, alpha *Arena, upstream *tensor.RawTensor) *tensor.RawTensor
}

// CheckUpstream reports whether upstream can scale the gradient of b:
// nil, a single element, or one element per example.
func CheckUpstream(b *Batch, upstream *tensor.RawTensor) error {
	if upstream == nil {
		return nil
	}
	if !upstream.DType().IsFloat() {
		return shapeErr("upstream", "expected float32 or float64, got %s", upstream.DType())
	}
	if n := upstream.NumElements(); n == 1 || n == b.Size {
		return nil
	}
	return shapeErr("upstream", "shape %v does not match batch size %d", upstream.Shape(), b.Size)
}

// UpstreamValues expands an upstream gradient to one float64 per example.
// It accepts nil (ones), a single element (broadcast) or a [B] vector.
func UpstreamValues(b *Batch, upstream *tensor.RawTensor) []float64 {
	out := make([]float64, b.Size)
	switch {
	case upstream == nil:
		for i := range out {
			out[i] = 1
		}
	case upstream.NumElements() == 1:
		v := upstream.Floats()[0]
		for i := range out {
			out[i] = v
		}
	case upstream.NumElements() == b.Size:
		copy(out, upstream.Floats())
	default:
		panic(fmt.Sprintf("ctc: upstream gradient shape %v does not match batch size %d", upstream.Shape(), b.Size))
	}
	return out
}
