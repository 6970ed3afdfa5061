package ops

import (
	"fmt"
	"math"

	"github.com/born-ml/ctcloss/internal/tensor"
)

// LogSoftmaxOp is y = x - logsumexp(x, dim).
//
// With softmax s = exp(y):
//
//	grad_x = grad - s * Σ_dim grad
type LogSoftmaxOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewLogSoftmaxOp creates a new LogSoftmaxOp. dim may be negative.
func NewLogSoftmaxOp(input, output *tensor.RawTensor, dim int) *LogSoftmaxOp {
	if dim < 0 {
		dim += len(input.Shape())
	}
	return &LogSoftmaxOp{input: input, output: output, dim: dim}
}

// Backward computes the input gradient of log-softmax.
func (op *LogSoftmaxOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.output.Shape()
	result, err := tensor.NewRaw(shape, op.output.DType(), op.output.Device())
	if err != nil {
		panic(fmt.Sprintf("LogSoftmaxOp.Backward: %v", err))
	}

	outer, inner := 1, 1
	for i := 0; i < op.dim; i++ {
		outer *= shape[i]
	}
	for i := op.dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}

	switch op.output.DType() {
	case tensor.Float32:
		logSoftmaxGrad(result.AsFloat32(), outputGrad.AsFloat32(), op.output.AsFloat32(), outer, shape[op.dim], inner)
	case tensor.Float64:
		logSoftmaxGrad(result.AsFloat64(), outputGrad.AsFloat64(), op.output.AsFloat64(), outer, shape[op.dim], inner)
	default:
		panic(fmt.Sprintf("LogSoftmaxOp.Backward: unsupported dtype %s", op.output.DType()))
	}
	return []*tensor.RawTensor{result}
}

func logSoftmaxGrad[T tensor.Float](dst, grad, out []T, outer, size, inner int) {
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*size*inner + in
			var total float64
			for k := 0; k < size; k++ {
				total += float64(grad[base+k*inner])
			}
			for k := 0; k < size; k++ {
				i := base + k*inner
				dst[i] = T(float64(grad[i]) - math.Exp(float64(out[i]))*total)
			}
		}
	}
}

// Inputs returns the input tensor [x].
func (op *LogSoftmaxOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the normalized output.
func (op *LogSoftmaxOp) Output() *tensor.RawTensor {
	return op.output
}
