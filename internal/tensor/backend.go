package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// The set is what a CTC training step needs around the loss itself:
// log-softmax over logits, per-example scaling by target length and a
// reduction to a scalar. The loss kernels live behind ctc.Backend, which
// embeds this interface.
//
// Implementations:
//   - CPU: pure Go, multi-core over the batch
//   - WebGPU: WGSL compute shaders (windows builds)
type Backend interface {
	// Element-wise binary operations with broadcasting
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations (element-wise with scalar)
	AddScalar(x *RawTensor, scalar any) *RawTensor
	MulScalar(x *RawTensor, scalar any) *RawTensor
	DivScalar(x *RawTensor, scalar any) *RawTensor

	// Math operations (element-wise)
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor

	// LogSoftmax normalizes along dim in log space.
	LogSoftmax(x *RawTensor, dim int) *RawTensor

	// Sum reduces all elements to a scalar.
	Sum(x *RawTensor) *RawTensor

	// Cast converts to another data type.
	Cast(x *RawTensor, dtype DataType) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
