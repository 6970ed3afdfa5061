package cpu

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/tensor"
)

type binaryOp int

const (
	opAdd binaryOp = iota
	opSub
	opMul
	opDiv
)

func (op binaryOp) String() string {
	return [...]string{"add", "sub", "mul", "div"}[op]
}

func apply[T tensor.DType](op binaryOp, x, y T) T {
	switch op {
	case opAdd:
		return x + y
	case opSub:
		return x - y
	case opMul:
		return x * y
	default:
		return x / y
	}
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary(opAdd, a, b)
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary(opSub, a, b)
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary(opMul, a, b)
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary(opDiv, a, b)
}

func (cpu *CPUBackend) binary(op binaryOp, a, b *tensor.RawTensor) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%v: dtype mismatch %s vs %s", op, a.DType(), b.DType()))
	}
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%v: %v", op, err))
	}

	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%v: failed to create result tensor: %v", op, err))
	}

	switch a.DType() {
	case tensor.Float32:
		binaryInto(op, result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), outShape, a.Shape(), b.Shape(), needsBroadcast)
	case tensor.Float64:
		binaryInto(op, result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), outShape, a.Shape(), b.Shape(), needsBroadcast)
	case tensor.Int32:
		binaryInto(op, result.AsInt32(), a.AsInt32(), b.AsInt32(), outShape, a.Shape(), b.Shape(), needsBroadcast)
	case tensor.Int64:
		binaryInto(op, result.AsInt64(), a.AsInt64(), b.AsInt64(), outShape, a.Shape(), b.Shape(), needsBroadcast)
	default:
		panic(fmt.Sprintf("%v: unsupported dtype %s", op, a.DType()))
	}
	return result
}

func binaryInto[T tensor.DType](op binaryOp, dst, a, b []T, out, aShape, bShape tensor.Shape, broadcast bool) {
	if !broadcast {
		for i := range dst {
			dst[i] = apply(op, a[i], b[i])
		}
		return
	}
	for i := range dst {
		dst[i] = apply(op, a[tensor.BroadcastIndex(i, out, aShape)], b[tensor.BroadcastIndex(i, out, bShape)])
	}
}
