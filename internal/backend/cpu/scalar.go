package cpu

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/tensor"
)

// Scalar operations - element-wise operations with a scalar value.

// AddScalar adds a scalar value to each element of the tensor.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalar(opAdd, x, scalar)
}

// MulScalar multiplies each element of the tensor by a scalar value.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalar(opMul, x, scalar)
}

// DivScalar divides each element of the tensor by a scalar value.
func (cpu *CPUBackend) DivScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalar(opDiv, x, scalar)
}

func (cpu *CPUBackend) scalar(op binaryOp, x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%vScalar: failed to create result tensor: %v", op, err))
	}

	switch x.DType() {
	case tensor.Float32:
		scalarInto(op, result.AsFloat32(), x.AsFloat32(), scalarAs[float32](scalar))
	case tensor.Float64:
		scalarInto(op, result.AsFloat64(), x.AsFloat64(), scalarAs[float64](scalar))
	case tensor.Int32:
		scalarInto(op, result.AsInt32(), x.AsInt32(), scalarAs[int32](scalar))
	case tensor.Int64:
		scalarInto(op, result.AsInt64(), x.AsInt64(), scalarAs[int64](scalar))
	default:
		panic(fmt.Sprintf("%vScalar: unsupported dtype %v", op, x.DType()))
	}
	return result
}

func scalarInto[T tensor.DType](op binaryOp, dst, src []T, s T) {
	for i, v := range src {
		dst[i] = apply(op, v, s)
	}
}

// scalarAs converts any Go numeric value to T.
func scalarAs[T tensor.DType](v any) T {
	switch s := v.(type) {
	case float32:
		return T(s)
	case float64:
		return T(s)
	case int:
		return T(s)
	case int32:
		return T(s)
	case int64:
		return T(s)
	default:
		panic(fmt.Sprintf("unsupported scalar type %T", v))
	}
}
