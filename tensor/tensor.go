// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types the CTC operator reads and writes.
//
// The package defines:
//   - Tensor[T, B]: generic tensor bound to a compute backend
//   - RawTensor: untyped storage that backends operate on
//   - Backend: interface for device-specific compute implementations
//   - Shape, DataType, Device: core type definitions
//
// Example:
//
//	backend := cpu.New()
//	rng := rand.New(rand.NewPCG(42, 0))
//	logits := tensor.Randn[float32](tensor.Shape{50, 16, 20}, rng, backend)
//	logProbs := logits.LogSoftmax(-1)
package tensor

import (
	"math/rand/v2"

	"github.com/born-ml/ctcloss/internal/tensor"
)

// DType is a constraint for tensor element types: float32, float64, int32, int64.
type DType = tensor.DType

// Float is the subset of DType that can hold log-probabilities.
type Float = tensor.Float

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
)

// Device represents the device where tensor data resides.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	CUDA   Device = tensor.CUDA
	Vulkan Device = tensor.Vulkan
	Metal  Device = tensor.Metal
	WebGPU Device = tensor.WebGPU
)

// ParseDevice maps a device name such as "cpu" or "webgpu" to a Device.
func ParseDevice(name string) (Device, error) {
	return tensor.ParseDevice(name)
}

// Shape represents the dimensions of a tensor.
// Example: Shape{50, 16, 20} is [T, B, C] log-probs.
type Shape = tensor.Shape

// RawTensor is the low-level, untyped tensor representation.
type RawTensor = tensor.RawTensor

// Backend is the interface every compute backend implements.
type Backend = tensor.Backend

// Tensor is a generic type-safe tensor.
//
// T is the element type, B the backend that executes its operations. Under
// an autodiff backend every operation is recorded for backpropagation.
type Tensor[T DType, B Backend] = tensor.Tensor[T, B]

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Zeros[T, B](shape, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Ones[T, B](shape, b)
}

// Full creates a tensor filled with a specific value.
//
// Example:
//
//	inputLengths := tensor.Full[int32](tensor.Shape{16}, 50, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	return tensor.Full[T, B](shape, value, b)
}

// Randn creates a tensor with standard normal values drawn from rng.
func Randn[T Float, B Backend](shape Shape, rng *rand.Rand, b B) *Tensor[T, B] {
	return tensor.Randn[T, B](shape, rng, b)
}

// RandInt creates an integer tensor with values uniformly drawn from [lo, hi).
//
// Example:
//
//	targets := tensor.RandInt[int32](tensor.Shape{16, 30}, 1, 20, rng, backend)
func RandInt[T ~int32 | ~int64, B Backend](shape Shape, lo, hi int, rng *rand.Rand, b B) *Tensor[T, B] {
	return tensor.RandInt[T, B](shape, lo, hi, rng, b)
}

// FromSlice creates a tensor from a Go slice.
//
// Example:
//
//	targets, err := tensor.FromSlice([]int32{1, 2, 2, 3, 1, 0}, tensor.Shape{2, 3}, backend)
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	return tensor.FromSlice[T, B](data, shape, b)
}

// New wraps a raw tensor.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return tensor.New[T, B](raw, b)
}

// NewRaw creates a zero-filled raw tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// Cast converts a tensor to element type U on the same backend.
//
// Example:
//
//	divisor := tensor.Cast[float32](targetLengths)
func Cast[U, T DType, B Backend](t *Tensor[T, B]) *Tensor[U, B] {
	return tensor.Cast[U, T, B](t)
}

// BroadcastShapes computes the broadcast shape of two shapes following NumPy rules.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}
