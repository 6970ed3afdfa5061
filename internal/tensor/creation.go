package tensor

import (
	"math"
	"math/rand/v2"
)

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros[float32](Shape{3, 4}, backend)
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	raw, err := NewRaw(shape, inferDataType[T](), b.Device())
	if err != nil {
		panic(err)
	}
	return New[T, B](raw, b)
}

// Full creates a tensor filled with a specific value.
//
// Example:
//
//	lengths := tensor.Full[int32](Shape{16}, 50, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, T(1), b)
}

// Randn creates a tensor with values drawn from a standard normal distribution.
// Only float types are supported. Pass a seeded rng to get reproducible inputs.
//
// Example:
//
//	rng := rand.New(rand.NewPCG(42, 0))
//	logits := tensor.Randn[float32](Shape{50, 16, 20}, rng, backend)
func Randn[T Float, B Backend](shape Shape, rng *rand.Rand, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()

	// Box-Muller, two samples per draw.
	for i := 0; i < len(data); i += 2 {
		u1 := 1 - rng.Float64()
		u2 := rng.Float64()
		r := math.Sqrt(-2.0 * math.Log(u1))
		data[i] = T(r * math.Cos(2.0*math.Pi*u2))
		if i+1 < len(data) {
			data[i+1] = T(r * math.Sin(2.0*math.Pi*u2))
		}
	}
	return t
}

// RandInt creates an integer tensor with values uniformly drawn from [lo, hi).
func RandInt[T ~int32 | ~int64, B Backend](shape Shape, lo, hi int, rng *rand.Rand, b B) *Tensor[T, B] {
	if hi <= lo {
		panic("RandInt: empty range")
	}
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = T(lo + rng.IntN(hi-lo))
	}
	return t
}
