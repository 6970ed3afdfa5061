package ops

import "github.com/born-ml/ctcloss/internal/tensor"

// ScalarKind names the scalar operation recorded by ScalarOp.
type ScalarKind int

// Scalar operations.
const (
	ScalarAdd ScalarKind = iota
	ScalarMul
	ScalarDiv
)

// ScalarOp is output = x ∘ s for a constant s.
type ScalarOp struct {
	kind   ScalarKind
	input  *tensor.RawTensor
	scalar any
	output *tensor.RawTensor
}

// NewScalarOp creates a new ScalarOp.
func NewScalarOp(kind ScalarKind, input *tensor.RawTensor, scalar any, output *tensor.RawTensor) *ScalarOp {
	return &ScalarOp{kind: kind, input: input, scalar: scalar, output: output}
}

// Backward scales the output gradient by the derivative of the operation.
func (op *ScalarOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	switch op.kind {
	case ScalarMul:
		return []*tensor.RawTensor{backend.MulScalar(outputGrad, op.scalar)}
	case ScalarDiv:
		return []*tensor.RawTensor{backend.DivScalar(outputGrad, op.scalar)}
	default:
		return []*tensor.RawTensor{outputGrad.Clone()}
	}
}

// Inputs returns the input tensor [x].
func (op *ScalarOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *ScalarOp) Output() *tensor.RawTensor {
	return op.output
}
