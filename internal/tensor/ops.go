package tensor

// Add performs element-wise addition.
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Mul(t.raw, other.raw), t.backend)
}

// Div performs element-wise division.
//
// Example:
//
//	perChar := loss.Div(targetLengths) // both [B]
func (t *Tensor[T, B]) Div(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Div(t.raw, other.raw), t.backend)
}

// AddScalar adds a scalar to every element.
func (t *Tensor[T, B]) AddScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.AddScalar(t.raw, scalar), t.backend)
}

// MulScalar multiplies every element by a scalar.
func (t *Tensor[T, B]) MulScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.MulScalar(t.raw, scalar), t.backend)
}

// DivScalar divides every element by a scalar.
func (t *Tensor[T, B]) DivScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.DivScalar(t.raw, scalar), t.backend)
}

// Exp computes e^x element-wise.
func (t *Tensor[T, B]) Exp() *Tensor[T, B] {
	return New[T, B](t.backend.Exp(t.raw), t.backend)
}

// Log computes the natural logarithm element-wise.
func (t *Tensor[T, B]) Log() *Tensor[T, B] {
	return New[T, B](t.backend.Log(t.raw), t.backend)
}

// LogSoftmax normalizes along dim so that exp of the result sums to one.
// Negative dim counts from the end.
func (t *Tensor[T, B]) LogSoftmax(dim int) *Tensor[T, B] {
	return New[T, B](t.backend.LogSoftmax(t.raw, dim), t.backend)
}

// Sum reduces all elements to a scalar tensor.
func (t *Tensor[T, B]) Sum() *Tensor[T, B] {
	return New[T, B](t.backend.Sum(t.raw), t.backend)
}

// Mean averages all elements into a scalar tensor.
func (t *Tensor[T, B]) Mean() *Tensor[T, B] {
	n := t.NumElements()
	return New[T, B](t.backend.DivScalar(t.backend.Sum(t.raw), n), t.backend)
}

// Cast converts a tensor to element type U on the same backend.
//
// Example:
//
//	divisor := tensor.Cast[float32](targetLengths) // int32 → float32
func Cast[U, T DType, B Backend](t *Tensor[T, B]) *Tensor[U, B] {
	return New[U, B](t.backend.Cast(t.raw, inferDataType[U]()), t.backend)
}
