package ops

import "github.com/born-ml/ctcloss/internal/tensor"

// ExpOp is y = exp(x); its gradient reuses the output: grad_x = grad * y.
type ExpOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewExpOp creates a new ExpOp.
func NewExpOp(input, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{input: input, output: output}
}

// Backward computes input gradient for exp.
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.output)}
}

// Inputs returns the input tensor [x].
func (op *ExpOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor exp(x).
func (op *ExpOp) Output() *tensor.RawTensor {
	return op.output
}

// LogOp is y = ln(x): grad_x = grad / x.
type LogOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewLogOp creates a new LogOp.
func NewLogOp(input, output *tensor.RawTensor) *LogOp {
	return &LogOp{input: input, output: output}
}

// Backward computes input gradient for log.
func (op *LogOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(outputGrad, op.input)}
}

// Inputs returns the input tensor [x].
func (op *LogOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor ln(x).
func (op *LogOp) Output() *tensor.RawTensor {
	return op.output
}
