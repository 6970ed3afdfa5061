package autodiff

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/tensor"
)

// BackwardCapable is a backend that owns a gradient tape.
// AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	GetTape() *GradientTape
}

// GetTape returns the gradient tape (implements BackwardCapable interface).
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// Backward computes gradients of t, seeded with ones, using the backend's tape.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	logProbs := logits.LogSoftmax(-1)
//	loss, _ := ctc.Loss(logProbs, targets, inputLengths, targetLengths)
//	grads := autodiff.Backward(loss.Mean(), backend)
//	dLogits := grads[logits.Raw()]
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.GetTape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}

	seed, err := tensor.NewRaw(t.Shape(), t.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("backward: %v", err))
	}
	switch t.DType() {
	case tensor.Float32:
		for i := range seed.AsFloat32() {
			seed.AsFloat32()[i] = 1
		}
	case tensor.Float64:
		for i := range seed.AsFloat64() {
			seed.AsFloat64()[i] = 1
		}
	default:
		panic(fmt.Sprintf("backward: unsupported dtype %s (only float32/float64 supported)", t.DType()))
	}

	return tape.Backward(seed, backend)
}
