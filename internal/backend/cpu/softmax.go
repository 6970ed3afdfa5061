package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/ctcloss/internal/parallel"
	"github.com/born-ml/ctcloss/internal/tensor"
)

// LogSoftmax normalizes x along dim in log space using the max-subtraction
// trick: out = x - (max + log Σ exp(x - max)).
func (cpu *CPUBackend) LogSoftmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim(dim, len(shape))

	result, err := tensor.NewRaw(shape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("logSoftmax: %v", err))
	}

	outer, size, inner := splitAt(shape, dim)
	switch x.DType() {
	case tensor.Float32:
		logSoftmaxInto(result.AsFloat32(), x.AsFloat32(), outer, size, inner, cpu.config.Parallel)
	case tensor.Float64:
		logSoftmaxInto(result.AsFloat64(), x.AsFloat64(), outer, size, inner, cpu.config.Parallel)
	default:
		panic(fmt.Sprintf("logSoftmax: unsupported dtype %s (only float32/float64 supported)", x.DType()))
	}
	return result
}

func logSoftmaxInto[T tensor.Float](dst, src []T, outer, size, inner int, cfg parallel.Config) {
	parallel.ForBatch(outer, inner, func(o, in int) {
		base := o*size*inner + in
		m := math.Inf(-1)
		for k := 0; k < size; k++ {
			m = max(m, float64(src[base+k*inner]))
		}
		var sum float64
		for k := 0; k < size; k++ {
			sum += math.Exp(float64(src[base+k*inner]) - m)
		}
		lse := m + math.Log(sum)
		for k := 0; k < size; k++ {
			dst[base+k*inner] = T(float64(src[base+k*inner]) - lse)
		}
	}, cfg)
}

func normalizeDim(dim, rank int) int {
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		panic(fmt.Sprintf("dimension %d out of range for rank %d", dim, rank))
	}
	return dim
}

// splitAt returns the products of the dimensions before dim, dim itself and
// the dimensions after it.
func splitAt(shape tensor.Shape, dim int) (outer, size, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, shape[dim], inner
}
