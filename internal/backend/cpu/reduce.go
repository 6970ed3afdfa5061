package cpu

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/tensor"
)

// Sum computes the sum of all elements and returns a scalar tensor.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(tensor.Shape{}, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sum: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		result.AsFloat32()[0] = sum(x.AsFloat32())
	case tensor.Float64:
		result.AsFloat64()[0] = sum(x.AsFloat64())
	case tensor.Int32:
		result.AsInt32()[0] = sum(x.AsInt32())
	case tensor.Int64:
		result.AsInt64()[0] = sum(x.AsInt64())
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s", x.DType()))
	}
	return result
}

func sum[T tensor.DType](values []T) T {
	var total T
	for _, v := range values {
		total += v
	}
	return total
}
