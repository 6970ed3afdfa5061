//go:build windows

package webgpu

import (
	"github.com/born-ml/ctcloss/internal/tensor"
)

// Float32 tensors of equal shape run on the device. Broadcasting, other
// dtypes, reductions and casts run on the host backend.

// Add performs element-wise addition.
func (b *Backend) Add(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.binary("add", "+", a, other, b.host.Add)
}

// Sub performs element-wise subtraction.
func (b *Backend) Sub(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.binary("sub", "-", a, other, b.host.Sub)
}

// Mul performs element-wise multiplication.
func (b *Backend) Mul(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.binary("mul", "*", a, other, b.host.Mul)
}

// Div performs element-wise division.
func (b *Backend) Div(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.binary("div", "/", a, other, b.host.Div)
}

// AddScalar adds a scalar to every element.
func (b *Backend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return b.scalar("add_scalar", "+", x, scalar, b.host.AddScalar)
}

// MulScalar multiplies every element by a scalar.
func (b *Backend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return b.scalar("mul_scalar", "*", x, scalar, b.host.MulScalar)
}

// DivScalar divides every element by a scalar.
func (b *Backend) DivScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return b.scalar("div_scalar", "/", x, scalar, b.host.DivScalar)
}

// Exp computes e^x element-wise.
func (b *Backend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unary("exp", x, b.host.Exp)
}

// Log computes ln(x) element-wise.
func (b *Backend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unary("log", x, b.host.Log)
}

// LogSoftmax normalizes along dim. Only the last dimension runs on the device.
func (b *Backend) LogSoftmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	rank := len(x.Shape())
	if x.DType() != tensor.Float32 || rank == 0 || x.NumElements() == 0 || (dim != -1 && dim != rank-1) {
		return b.host.LogSoftmax(x, dim)
	}
	result, err := b.runLogSoftmax(x)
	if err != nil {
		panic("webgpu: LogSoftmax: " + err.Error())
	}
	return result
}

// Sum reduces all elements to a scalar on the host.
func (b *Backend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	return b.host.Sum(x)
}

// Cast converts to another data type on the host.
func (b *Backend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	return b.host.Cast(x, dtype)
}

func (b *Backend) binary(name, op string, a, other *tensor.RawTensor, fallback func(a, b *tensor.RawTensor) *tensor.RawTensor) *tensor.RawTensor {
	if a.DType() != tensor.Float32 || other.DType() != tensor.Float32 || !a.Shape().Equal(other.Shape()) {
		return fallback(a, other)
	}
	result, err := b.runElementwise(name, binaryShader(op), nil, a, other)
	if err != nil {
		panic("webgpu: " + name + ": " + err.Error())
	}
	return result
}

func (b *Backend) scalar(name, op string, x *tensor.RawTensor, s any, fallback func(*tensor.RawTensor, any) *tensor.RawTensor) *tensor.RawTensor {
	v, ok := asFloat32(s)
	if x.DType() != tensor.Float32 || !ok {
		return fallback(x, s)
	}
	result, err := b.runElementwise(name, scalarShader(op), &v, x)
	if err != nil {
		panic("webgpu: " + name + ": " + err.Error())
	}
	return result
}

func (b *Backend) unary(fn string, x *tensor.RawTensor, fallback func(*tensor.RawTensor) *tensor.RawTensor) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		return fallback(x)
	}
	result, err := b.runElementwise(fn, unaryShader(fn), nil, x)
	if err != nil {
		panic("webgpu: " + fn + ": " + err.Error())
	}
	return result
}

func asFloat32(s any) (float32, bool) {
	switch v := s.(type) {
	case float32:
		return v, true
	case float64:
		return float32(v), true
	case int:
		return float32(v), true
	case int32:
		return float32(v), true
	case int64:
		return float32(v), true
	default:
		return 0, false
	}
}
