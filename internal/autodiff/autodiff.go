// Package autodiff implements reverse-mode automatic differentiation using
// the decorator pattern.
//
// AutodiffBackend wraps a CPU or GPU backend and records every differentiable
// operation on a GradientTape. The CTC loss is one such operation: its
// backward rule calls the wrapped backend's gradient kernels, so a training
// step such as
//
//	logits -> LogSoftmax -> CTC loss -> / target_lengths -> Mean
//
// differentiates end to end without the caller touching lattices.
package autodiff

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/autodiff/ops"
	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements tensor.Backend and ctc.LatticeBackend.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

func (b *AutodiffBackend[B]) record(op ops.Operation) {
	if b.tape.IsRecording() {
		b.tape.Record(op)
	}
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	// Recorded inputs must survive until Backward; forbid in-place reuse.
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.Add(a, c)
	b.record(ops.NewAddOp(a, c, result))
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(a, c *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.Sub(a, c)
	b.record(ops.NewSubOp(a, c, result))
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.Mul(a, c)
	b.record(ops.NewMulOp(a, c, result))
	return result
}

// Div performs element-wise division and records the operation.
func (b *AutodiffBackend[B]) Div(a, c *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.Div(a, c)
	b.record(ops.NewDivOp(a, c, result))
	return result
}

// AddScalar adds a scalar and records the operation.
func (b *AutodiffBackend[B]) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.AddScalar(x, scalar)
	b.record(ops.NewScalarOp(ops.ScalarAdd, x, scalar, result))
	return result
}

// MulScalar multiplies by a scalar and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.MulScalar(x, scalar)
	b.record(ops.NewScalarOp(ops.ScalarMul, x, scalar, result))
	return result
}

// DivScalar divides by a scalar and records the operation.
func (b *AutodiffBackend[B]) DivScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.DivScalar(x, scalar)
	b.record(ops.NewScalarOp(ops.ScalarDiv, x, scalar, result))
	return result
}

// Exp computes e^x and records the operation.
func (b *AutodiffBackend[B]) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.Exp(x)
	b.record(ops.NewExpOp(x, result))
	return result
}

// Log computes ln(x) and records the operation.
func (b *AutodiffBackend[B]) Log(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.Log(x)
	b.record(ops.NewLogOp(x, result))
	return result
}

// LogSoftmax normalizes along dim and records the operation.
func (b *AutodiffBackend[B]) LogSoftmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.LogSoftmax(x, dim)
	b.record(ops.NewLogSoftmaxOp(x, result, dim))
	return result
}

// Sum reduces to a scalar and records the operation.
func (b *AutodiffBackend[B]) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.Sum(x)
	b.record(ops.NewSumOp(x, result))
	return result
}

// Cast converts the element type. Casts are not differentiable and are not
// recorded; they are used for integer lengths entering float arithmetic.
func (b *AutodiffBackend[B]) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	return b.inner.Cast(x, dtype)
}

// CTCLoss computes the per-example loss and records a CTCLossOp.
// While the tape records, the op keeps the alpha lattices of inner backends
// that can retain them, so Backward skips the forward recursion.
// Panics if the wrapped backend has no CTC kernels.
func (b *AutodiffBackend[B]) CTCLoss(batch *ctc.Batch) *tensor.RawTensor {
	if !b.tape.IsRecording() {
		return b.ctcInner().CTCLoss(batch)
	}
	result, _ := b.CTCLossRetain(batch)
	return result
}

// CTCLossRetain computes the loss, records a CTCLossOp holding the alpha
// lattices and returns them. The lattices are nil when the inner backend
// cannot retain them.
func (b *AutodiffBackend[B]) CTCLossRetain(batch *ctc.Batch) (*tensor.RawTensor, *ctc.Arena) {
	inner := b.ctcInner()

	defer batch.LogProbs.ForceNonUnique()()
	var (
		result *tensor.RawTensor
		alpha  *ctc.Arena
	)
	if lb, ok := inner.(ctc.LatticeBackend); ok {
		result, alpha = lb.CTCLossRetain(batch)
	} else {
		result = inner.CTCLoss(batch)
	}
	b.record(ops.NewRetainedCTCLossOp(batch, result, alpha))
	return result, alpha
}

// CTCLossBackward computes the log-probs gradient directly, without recording.
func (b *AutodiffBackend[B]) CTCLossBackward(batch *ctc.Batch, upstream *tensor.RawTensor) *tensor.RawTensor {
	return b.ctcInner().CTCLossBackward(batch, upstream)
}

// CTCLossBackwardFrom computes the gradient from retained lattices when the
// inner backend accepts them, and from scratch otherwise.
func (b *AutodiffBackend[B]) CTCLossBackwardFrom(batch *ctc.Batch, alpha *ctc.Arena, upstream *tensor.RawTensor) *tensor.RawTensor {
	inner := b.ctcInner()
	if lb, ok := inner.(ctc.LatticeBackend); ok {
		return lb.CTCLossBackwardFrom(batch, alpha, upstream)
	}
	return inner.CTCLossBackward(batch, upstream)
}

func (b *AutodiffBackend[B]) ctcInner() ctc.Backend {
	inner, ok := any(b.inner).(ctc.Backend)
	if !ok {
		panic(fmt.Sprintf("ctcLoss: backend %s has no CTC kernels", b.inner.Name()))
	}
	return inner
}
