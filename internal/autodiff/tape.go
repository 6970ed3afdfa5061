package autodiff

import (
	"github.com/born-ml/ctcloss/internal/autodiff/ops"
	"github.com/born-ml/ctcloss/internal/tensor"
)

// GradientTape records operations during the forward pass and replays them
// in reverse to compute gradients.
//
// Usage:
//
//	tape := NewGradientTape()
//	tape.StartRecording()
//	// ... perform operations ...
//	gradients := tape.Backward(outputGrad, backend)
type GradientTape struct {
	operations []ops.Operation
	recording  bool
}

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]ops.Operation, 0, 16),
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
func (t *GradientTape) IsRecording() bool {
	return t.recording
}

// Record adds an operation to the tape if it is recording.
func (t *GradientTape) Record(op ops.Operation) {
	if t.recording {
		t.operations = append(t.operations, op)
	}
}

// Clear removes all recorded operations. Recording state is preserved.
func (t *GradientTape) Clear() {
	t.operations = t.operations[:0]
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.operations)
}

// Operations returns the recorded operations in execution order.
func (t *GradientTape) Operations() []ops.Operation {
	return t.operations
}

// Backward walks the tape in reverse, seeding the last operation's output
// with outputGrad and accumulating gradients for tensors used more than once.
//
// Returns a map from RawTensor to its gradient. Tensors that no gradient
// flows to are absent from the map.
func (t *GradientTape) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	grads := make(map[*tensor.RawTensor]*tensor.RawTensor)
	if len(t.operations) == 0 {
		return grads
	}

	// Gradient operations must not land on the tape.
	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	grads[t.operations[len(t.operations)-1].Output()] = outputGrad

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		grad, ok := grads[op.Output()]
		if !ok {
			continue
		}
		inputs := op.Inputs()
		for j, inputGrad := range op.Backward(grad, backend) {
			if inputGrad == nil || j >= len(inputs) {
				continue
			}
			if existing, ok := grads[inputs[j]]; ok {
				grads[inputs[j]] = backend.Add(existing, inputGrad)
			} else {
				grads[inputs[j]] = inputGrad
			}
		}
	}
	return grads
}
