package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
// Zero-sized dimensions are allowed: a batch whose longest target is empty
// still carries a [B, 0] target tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that no dimension is negative.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// BroadcastShapes applies NumPy-style broadcasting to two shapes.
//
// Dimensions are compared right to left; they are compatible when equal or
// when one of them is 1. Missing leading dimensions count as 1.
//
//	(16,) / ()     → (16,), true
//	(16,) / (16,)  → (16,), false
//	(50, 16) * (16,) → (50, 16), true
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	n := max(len(a), len(b))
	result := make(Shape, n)
	needsBroadcast := len(a) != len(b)

	for i := 0; i < n; i++ {
		aDim, bDim := 1, 1
		if j := len(a) - 1 - i; j >= 0 {
			aDim = a[j]
		}
		if j := len(b) - 1 - i; j >= 0 {
			bDim = b[j]
		}

		switch {
		case aDim == bDim:
			result[n-1-i] = aDim
		case aDim == 1:
			result[n-1-i] = bDim
			needsBroadcast = true
		case bDim == 1:
			result[n-1-i] = aDim
			needsBroadcast = true
		default:
			return nil, false, fmt.Errorf("shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				a, b, n-1-i, aDim, bDim)
		}
	}

	return result, needsBroadcast, nil
}

// BroadcastIndex maps a flat index into the broadcast output shape back to the
// flat index of an input with shape src.
func BroadcastIndex(flat int, out, src Shape) int {
	outStrides := out.ComputeStrides()
	srcStrides := src.ComputeStrides()
	offset := len(out) - len(src)

	idx := 0
	for d := range out {
		coord := flat / outStrides[d]
		flat %= outStrides[d]
		sd := d - offset
		if sd < 0 || src[sd] == 1 {
			continue
		}
		idx += coord * srcStrides[sd]
	}
	return idx
}
