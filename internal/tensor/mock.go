package tensor

import (
	"fmt"
	"math"
)

// Verify that MockBackend implements Backend.
var _ Backend = (*MockBackend)(nil)

// MockBackend is a naive float64 backend for tests. It has no CTC kernels,
// so it also stands in for a device that cannot run the loss.
type MockBackend struct{}

// NewMockBackend creates a new MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Name returns the backend name.
func (m *MockBackend) Name() string {
	return "mock"
}

// Device returns the device type.
func (m *MockBackend) Device() Device {
	return CPU
}

// Add performs element-wise addition with broadcasting.
func (m *MockBackend) Add(a, b *RawTensor) *RawTensor {
	return m.binary(a, b, func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (m *MockBackend) Sub(a, b *RawTensor) *RawTensor {
	return m.binary(a, b, func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (m *MockBackend) Mul(a, b *RawTensor) *RawTensor {
	return m.binary(a, b, func(x, y float64) float64 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (m *MockBackend) Div(a, b *RawTensor) *RawTensor {
	return m.binary(a, b, func(x, y float64) float64 { return x / y })
}

// AddScalar adds a scalar to every element.
func (m *MockBackend) AddScalar(x *RawTensor, s any) *RawTensor {
	v := mockScalar(s)
	return m.unary(x, func(a float64) float64 { return a + v })
}

// MulScalar multiplies every element by a scalar.
func (m *MockBackend) MulScalar(x *RawTensor, s any) *RawTensor {
	v := mockScalar(s)
	return m.unary(x, func(a float64) float64 { return a * v })
}

// DivScalar divides every element by a scalar.
func (m *MockBackend) DivScalar(x *RawTensor, s any) *RawTensor {
	v := mockScalar(s)
	return m.unary(x, func(a float64) float64 { return a / v })
}

// Exp computes e^x.
func (m *MockBackend) Exp(x *RawTensor) *RawTensor {
	return m.unary(x, math.Exp)
}

// Log computes ln(x).
func (m *MockBackend) Log(x *RawTensor) *RawTensor {
	return m.unary(x, math.Log)
}

// LogSoftmax normalizes along dim.
func (m *MockBackend) LogSoftmax(x *RawTensor, dim int) *RawTensor {
	shape := x.Shape()
	if dim < 0 {
		dim += len(shape)
	}
	src := m.values(x)
	dst := make([]float64, len(src))
	stride := shape.ComputeStrides()[dim]
	for i := range src {
		if (i/stride)%shape[dim] != 0 {
			continue
		}
		lse := math.Inf(-1)
		for k := 0; k < shape[dim]; k++ {
			v := src[i+k*stride]
			if hi := max(lse, v); hi > math.Inf(-1) {
				lse = hi + math.Log(math.Exp(lse-hi)+math.Exp(v-hi))
			}
		}
		for k := 0; k < shape[dim]; k++ {
			dst[i+k*stride] = src[i+k*stride] - lse
		}
	}
	return m.result(shape, x.DType(), dst)
}

// Sum reduces all elements to a scalar.
func (m *MockBackend) Sum(x *RawTensor) *RawTensor {
	var total float64
	for _, v := range m.values(x) {
		total += v
	}
	return m.result(Shape{}, x.DType(), []float64{total})
}

// Cast converts to another data type.
func (m *MockBackend) Cast(x *RawTensor, dtype DataType) *RawTensor {
	return m.result(x.Shape(), dtype, m.values(x))
}

func (m *MockBackend) binary(a, b *RawTensor, op func(float64, float64) float64) *RawTensor {
	shape, _, err := BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("mock: %v", err))
	}
	av, bv := m.values(a), m.values(b)
	out := make([]float64, shape.NumElements())
	for i := range out {
		out[i] = op(av[BroadcastIndex(i, shape, a.Shape())], bv[BroadcastIndex(i, shape, b.Shape())])
	}
	return m.result(shape, a.DType(), out)
}

func (m *MockBackend) unary(x *RawTensor, op func(float64) float64) *RawTensor {
	src := m.values(x)
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = op(v)
	}
	return m.result(x.Shape(), x.DType(), out)
}

func (m *MockBackend) values(t *RawTensor) []float64 {
	if t.DType().IsInt() {
		ints := t.Ints()
		out := make([]float64, len(ints))
		for i, v := range ints {
			out[i] = float64(v)
		}
		return out
	}
	return t.Floats()
}

func (m *MockBackend) result(shape Shape, dtype DataType, src []float64) *RawTensor {
	t, err := NewRaw(shape, dtype, CPU)
	if err != nil {
		panic(fmt.Sprintf("mock: %v", err))
	}
	switch dtype {
	case Float32:
		dst := t.AsFloat32()
		for i, v := range src {
			dst[i] = float32(v)
		}
	case Float64:
		copy(t.AsFloat64(), src)
	case Int32:
		dst := t.AsInt32()
		for i, v := range src {
			dst[i] = int32(v)
		}
	case Int64:
		dst := t.AsInt64()
		for i, v := range src {
			dst[i] = int64(v)
		}
	}
	return t
}

func mockScalar(s any) float64 {
	switch v := s.(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	default:
		panic(fmt.Sprintf("mock: unsupported scalar type %T", s))
	}
}
