package cpu

import (
	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/internal/tensor"
)

// CTCLoss computes the per-example negative log-likelihood of a validated batch.
// Infeasible examples report +Inf.
func (cpu *CPUBackend) CTCLoss(b *ctc.Batch) *tensor.RawTensor {
	loss := b.NewLoss(cpu.device)
	cpu.kernel.Forward(b, loss)
	return loss
}

// CTCLossBackward computes dLoss/dLogProbs scaled per example by upstream.
// Rows past an example's input length and infeasible examples stay zero.
func (cpu *CPUBackend) CTCLossBackward(b *ctc.Batch, upstream *tensor.RawTensor) *tensor.RawTensor {
	return cpu.CTCLossBackwardFrom(b, nil, upstream)
}

// CTCLossRetain is CTCLoss that also returns the alpha lattices for
// CTCLossBackwardFrom.
func (cpu *CPUBackend) CTCLossRetain(b *ctc.Batch) (*tensor.RawTensor, *ctc.Arena) {
	loss := b.NewLoss(cpu.device)
	alpha := cpu.kernel.ForwardRetain(b, loss)
	return loss, alpha
}

// CTCLossBackwardFrom is CTCLossBackward reusing alpha lattices from
// CTCLossRetain. A nil alpha recomputes them.
func (cpu *CPUBackend) CTCLossBackwardFrom(b *ctc.Batch, alpha *ctc.Arena, upstream *tensor.RawTensor) *tensor.RawTensor {
	grad := b.NewGrad(cpu.device)
	cpu.kernel.BackwardFrom(b, alpha, ctc.UpstreamValues(b, upstream), grad)
	return grad
}
