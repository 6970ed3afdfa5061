package ops

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/tensor"
)

// reduceTo sums a gradient over the dimensions that were broadcast in the
// forward pass so that it matches the target shape.
//
// Example:
//
//	Forward:  loss[16] / lengths[16]   -> out[16]  (no broadcast, cloned)
//	Forward:  loss[16] * scale[]       -> out[16]
//	Backward: grad_out[16] -> grad_scale[] (sum of all 16 entries)
func reduceTo(grad *tensor.RawTensor, target tensor.Shape) *tensor.RawTensor {
	if grad.Shape().Equal(target) {
		return grad.Clone()
	}

	result, err := tensor.NewRaw(target, grad.DType(), grad.Device())
	if err != nil {
		panic(fmt.Sprintf("reduceTo: %v", err))
	}

	switch grad.DType() {
	case tensor.Float32:
		accumulate(result.AsFloat32(), grad.AsFloat32(), grad.Shape(), target)
	case tensor.Float64:
		accumulate(result.AsFloat64(), grad.AsFloat64(), grad.Shape(), target)
	default:
		panic(fmt.Sprintf("reduceTo: unsupported dtype %s", grad.DType()))
	}
	return result
}

func accumulate[T tensor.Float](dst, src []T, from, to tensor.Shape) {
	for i, v := range src {
		dst[tensor.BroadcastIndex(i, from, to)] += v
	}
}

// onesLike returns a tensor of ones with the shape and dtype of t.
func onesLike(t *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(t.Shape(), t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("onesLike: %v", err))
	}
	switch t.DType() {
	case tensor.Float32:
		fill(result.AsFloat32(), 1)
	case tensor.Float64:
		fill(result.AsFloat64(), 1)
	default:
		panic(fmt.Sprintf("onesLike: unsupported dtype %s", t.DType()))
	}
	return result
}

func fill[T tensor.Float](dst []T, v T) {
	for i := range dst {
		dst[i] = v
	}
}
