package ops

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/internal/tensor"
)

// CTCLossOp records a per-example CTC loss [B] computed from log-probs [T, B, C].
//
// Only the log-probs receive a gradient; targets and lengths are integer
// tensors. The backward pass hands the upstream [B] gradient to the backend,
// which assembles the [T, B, C] gradient from the alpha lattices kept by the
// forward pass, or recomputes them when none were kept.
type CTCLossOp struct {
	batch  *ctc.Batch
	output *tensor.RawTensor
	alpha  *ctc.Arena
}

// NewCTCLossOp creates a new CTCLossOp over a validated batch.
func NewCTCLossOp(batch *ctc.Batch, output *tensor.RawTensor) *CTCLossOp {
	return &CTCLossOp{batch: batch, output: output}
}

// NewRetainedCTCLossOp creates a CTCLossOp that keeps the forward alpha
// lattices until Backward.
func NewRetainedCTCLossOp(batch *ctc.Batch, output *tensor.RawTensor, alpha *ctc.Arena) *CTCLossOp {
	return &CTCLossOp{batch: batch, output: output, alpha: alpha}
}

// Backward computes the log-probs gradient.
func (op *CTCLossOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	if lb, ok := backend.(ctc.LatticeBackend); ok && op.alpha != nil {
		return []*tensor.RawTensor{lb.CTCLossBackwardFrom(op.batch, op.alpha, outputGrad)}
	}
	b, ok := backend.(ctc.Backend)
	if !ok {
		panic(fmt.Sprintf("CTCLossOp.Backward: backend %s has no CTC kernels", backend.Name()))
	}
	return []*tensor.RawTensor{b.CTCLossBackward(op.batch, outputGrad)}
}

// Inputs returns [log_probs].
func (op *CTCLossOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.batch.LogProbs}
}

// Output returns the [B] loss.
func (op *CTCLossOp) Output() *tensor.RawTensor {
	return op.output
}

// Lattice returns the retained alpha lattices, or nil.
func (op *CTCLossOp) Lattice() *ctc.Arena {
	return op.alpha
}

// Batch returns the validated batch the loss was computed on.
func (op *CTCLossOp) Batch() *ctc.Batch {
	return op.batch
}
