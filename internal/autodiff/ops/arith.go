package ops

import "github.com/born-ml/ctcloss/internal/tensor"

// binary holds the recorded tensors of a two-input element-wise operation.
type binary struct {
	a, b   *tensor.RawTensor
	output *tensor.RawTensor
}

// Inputs returns the input tensors [a, b].
func (op *binary) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.a, op.b}
}

// Output returns the output tensor.
func (op *binary) Output() *tensor.RawTensor {
	return op.output
}

// AddOp is output = a + b.
// Both inputs receive the output gradient, summed over broadcast dimensions.
type AddOp struct{ binary }

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{binary{a, b, output}}
}

// Backward computes input gradients for addition.
func (op *AddOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceTo(outputGrad, op.a.Shape()),
		reduceTo(outputGrad, op.b.Shape()),
	}
}

// SubOp is output = a - b.
type SubOp struct{ binary }

// NewSubOp creates a new SubOp.
func NewSubOp(a, b, output *tensor.RawTensor) *SubOp {
	return &SubOp{binary{a, b, output}}
}

// Backward computes input gradients for subtraction: grad_b = -grad.
func (op *SubOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceTo(outputGrad, op.a.Shape()),
		reduceTo(backend.MulScalar(outputGrad, -1.0), op.b.Shape()),
	}
}

// MulOp is output = a * b.
//
//	grad_a = grad * b
//	grad_b = grad * a
type MulOp struct{ binary }

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *tensor.RawTensor) *MulOp {
	return &MulOp{binary{a, b, output}}
}

// Backward computes input gradients for multiplication.
func (op *MulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceTo(backend.Mul(outputGrad, op.b), op.a.Shape()),
		reduceTo(backend.Mul(outputGrad, op.a), op.b.Shape()),
	}
}

// DivOp is output = a / b.
//
//	grad_a = grad / b
//	grad_b = -grad * a / b²
//
// For loss / target_lengths the divisor is a constant; its gradient is
// still produced and simply never read.
type DivOp struct{ binary }

// NewDivOp creates a new DivOp.
func NewDivOp(a, b, output *tensor.RawTensor) *DivOp {
	return &DivOp{binary{a, b, output}}
}

// Backward computes input gradients for division.
func (op *DivOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	// d(a/b)/db = -a/b² = -out/b, and gradA already carries the 1/b.
	gradA := backend.Div(outputGrad, op.b)
	gradB := backend.MulScalar(backend.Mul(gradA, op.output), -1.0)
	return []*tensor.RawTensor{
		reduceTo(gradA, op.a.Shape()),
		reduceTo(gradB, op.b.Shape()),
	}
}
