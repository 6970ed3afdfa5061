// Package ops defines the differentiable operations recorded on the gradient
// tape and their backward rules.
//
// The set covers what a CTC training step differentiates through:
//   - CTCLossOp: the loss itself, backward delegated to the backend kernels
//   - LogSoftmaxOp: logits to log-probabilities
//   - AddOp, SubOp, MulOp, DivOp and the scalar variants: per-example scaling
//   - SumOp: reduction to a scalar objective
//   - ExpOp, LogOp
package ops

import "github.com/born-ml/ctcloss/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The returned slice is aligned with Inputs(); a nil entry means the
	// input receives no gradient.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
