package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case Vulkan:
		return "Vulkan"
	case Metal:
		return "Metal"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// ParseDevice maps a device name (case-sensitive lower or title form) to a Device.
func ParseDevice(name string) (Device, error) {
	switch name {
	case "cpu", "CPU":
		return CPU, nil
	case "cuda", "CUDA":
		return CUDA, nil
	case "vulkan", "Vulkan":
		return Vulkan, nil
	case "metal", "Metal":
		return Metal, nil
	case "webgpu", "WebGPU", "gpu":
		return WebGPU, nil
	default:
		return CPU, fmt.Errorf("unknown device %q", name)
	}
}

// tensorBuffer is a reference-counted buffer shared between clones.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
	mu       sync.Mutex
}

func newTensorBuffer(size int) *tensorBuffer {
	buf := &tensorBuffer{
		data: make([]byte, size),
	}
	buf.refCount.Store(1)
	return buf
}

func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

func (tb *tensorBuffer) release() {
	if tb.refCount.Add(-1) == 0 {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		tb.data = nil
	}
}

func (tb *tensorBuffer) isUnique() bool {
	return tb.refCount.Load() == 1
}

// RawTensor is the untyped tensor representation that backends operate on.
// Storage is contiguous row-major.
type RawTensor struct {
	buffer *tensorBuffer
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewRaw creates a zero-filled RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		buffer: newTensorBuffer(shape.NumElements() * dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.buffer.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	return viewAs[float32](r.buffer.data, r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	return viewAs[float64](r.buffer.data, r.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (r *RawTensor) AsInt32() []int32 {
	if r.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", r.dtype))
	}
	return viewAs[int32](r.buffer.data, r.NumElements())
}

// AsInt64 interprets the data as []int64.
// Panics if the tensor's dtype is not Int64.
func (r *RawTensor) AsInt64() []int64 {
	if r.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", r.dtype))
	}
	return viewAs[int64](r.buffer.data, r.NumElements())
}

// Ints copies an integer tensor into a fresh []int64, whatever its width.
// Panics on floating point tensors.
func (r *RawTensor) Ints() []int64 {
	out := make([]int64, r.NumElements())
	switch r.dtype {
	case Int32:
		for i, v := range r.AsInt32() {
			out[i] = int64(v)
		}
	case Int64:
		copy(out, r.AsInt64())
	default:
		panic(fmt.Sprintf("tensor dtype is %s, not an integer type", r.dtype))
	}
	return out
}

// Floats copies a floating point tensor into a fresh []float64.
// Panics on integer tensors.
func (r *RawTensor) Floats() []float64 {
	out := make([]float64, r.NumElements())
	switch r.dtype {
	case Float32:
		for i, v := range r.AsFloat32() {
			out[i] = float64(v)
		}
	case Float64:
		copy(out, r.AsFloat64())
	default:
		panic(fmt.Sprintf("tensor dtype is %s, not a float type", r.dtype))
	}
	return out
}

func viewAs[T DType](data []byte, n int) []T {
	if n == 0 {
		return []T{}
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
}

// Clone creates a shallow copy that shares the buffer.
// The buffer is reference-counted; backends only write in place when
// IsUnique reports a single owner.
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
	}
}

// Copy creates a deep copy with its own buffer.
func (r *RawTensor) Copy() *RawTensor {
	out, err := NewRaw(r.shape, r.dtype, r.device)
	if err != nil {
		panic(err)
	}
	copy(out.buffer.data, r.buffer.data)
	return out
}

// Release decrements the reference count and drops the buffer at zero.
func (r *RawTensor) Release() {
	r.buffer.release()
}

// IsUnique returns true if this tensor is the only reference to the buffer.
func (r *RawTensor) IsUnique() bool {
	return r.buffer.isUnique()
}

// ForceNonUnique temporarily increases refCount to prevent inplace modifications.
// Returns a cleanup function that MUST be called to restore refCount (use defer).
//
// The autodiff backend uses this to keep recorded inputs intact:
//
//	defer x.ForceNonUnique()()
//	result := backend.Mul(x, other)
func (r *RawTensor) ForceNonUnique() func() {
	r.buffer.addRef()
	return func() {
		r.buffer.release()
	}
}
