package dispatch

import (
	"context"

	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/internal/tensor"
)

// Routed is a backend bound to one dispatcher and device. Tensor ops run on
// the device backend; CTC calls go through the dispatcher, so a rejected
// batch or a failing device falls back to the CPU and every call is counted.
//
// Backend methods cannot return errors. A CTC call that fails on the CPU too,
// or whose context is canceled, panics with the error.
type Routed struct {
	ctc.Backend
	d   *Dispatcher
	ctx context.Context
}

var _ ctc.LatticeBackend = (*Routed)(nil)

// Route resolves the context's device once and returns its backend wrapped
// so that CTC calls keep the dispatcher's checks. Use it where a plain
// backend is expected, such as under an autodiff backend.
func (d *Dispatcher) Route(ctx context.Context) *Routed {
	be := d.Backend(ctx)
	return &Routed{Backend: be, d: d, ctx: WithDevice(ctx, be.Device())}
}

// CTCLoss implements ctc.Backend.
func (r *Routed) CTCLoss(b *ctc.Batch) *tensor.RawTensor {
	return must(r.d.LossBatch(r.ctx, b))
}

// CTCLossBackward implements ctc.Backend.
func (r *Routed) CTCLossBackward(b *ctc.Batch, upstream *tensor.RawTensor) *tensor.RawTensor {
	return must(r.d.GradientBatch(r.ctx, b, upstream))
}

// CTCLossRetain implements ctc.LatticeBackend. The lattices are nil when the
// backend that served the call does not keep them.
func (r *Routed) CTCLossRetain(b *ctc.Batch) (*tensor.RawTensor, *ctc.Arena) {
	countInfeasible(b)
	var alpha *ctc.Arena
	loss, err := r.d.run(r.ctx, b, passForward, func(be ctc.Backend) *tensor.RawTensor {
		lb, ok := be.(ctc.LatticeBackend)
		if !ok {
			return be.CTCLoss(b)
		}
		out, retained := lb.CTCLossRetain(b)
		alpha = retained
		return out
	})
	return must(loss, err), alpha
}

// CTCLossBackwardFrom implements ctc.LatticeBackend. A backend that keeps no
// lattices recomputes them.
func (r *Routed) CTCLossBackwardFrom(b *ctc.Batch, alpha *ctc.Arena, upstream *tensor.RawTensor) *tensor.RawTensor {
	if err := ctc.CheckUpstream(b, upstream); err != nil {
		panic(err)
	}
	return must(r.d.run(r.ctx, b, passBackward, func(be ctc.Backend) *tensor.RawTensor {
		if lb, ok := be.(ctc.LatticeBackend); ok && alpha != nil {
			return lb.CTCLossBackwardFrom(b, alpha, upstream)
		}
		return be.CTCLossBackward(b, upstream)
	}))
}

func must(out *tensor.RawTensor, err error) *tensor.RawTensor {
	if err != nil {
		panic(err)
	}
	return out
}
