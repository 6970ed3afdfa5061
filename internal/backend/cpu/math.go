package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/ctcloss/internal/tensor"
)

// Exp computes element-wise exponential: exp(x).
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("exp", x, math.Exp)
}

// Log computes element-wise natural logarithm: ln(x).
// Zero maps to -Inf, which is the log-probability of an impossible event.
func (cpu *CPUBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("log", x, math.Log)
}

func (cpu *CPUBackend) unary(name string, x *tensor.RawTensor, f func(float64) float64) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	switch x.DType() {
	case tensor.Float32:
		dst := result.AsFloat32()
		for i, v := range x.AsFloat32() {
			dst[i] = float32(f(float64(v)))
		}
	case tensor.Float64:
		dst := result.AsFloat64()
		for i, v := range x.AsFloat64() {
			dst[i] = f(v)
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s (only float32/float64 supported)", name, x.DType()))
	}
	return result
}
