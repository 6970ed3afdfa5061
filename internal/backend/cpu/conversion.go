package cpu

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/tensor"
)

// Cast converts the tensor to a different data type.
// Casting to the same type returns a copy.
func (cpu *CPUBackend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cast: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		castFrom(result, x.AsFloat32())
	case tensor.Float64:
		castFrom(result, x.AsFloat64())
	case tensor.Int32:
		castFrom(result, x.AsInt32())
	case tensor.Int64:
		castFrom(result, x.AsInt64())
	default:
		panic(fmt.Sprintf("cast: unsupported source dtype %v", x.DType()))
	}
	return result
}

func castFrom[S tensor.DType](result *tensor.RawTensor, src []S) {
	switch result.DType() {
	case tensor.Float32:
		castInto(result.AsFloat32(), src)
	case tensor.Float64:
		castInto(result.AsFloat64(), src)
	case tensor.Int32:
		castInto(result.AsInt32(), src)
	case tensor.Int64:
		castInto(result.AsInt64(), src)
	default:
		panic(fmt.Sprintf("cast: unsupported target dtype %v", result.DType()))
	}
}

func castInto[D, S tensor.DType](dst []D, src []S) {
	for i, v := range src {
		dst[i] = D(v)
	}
}
