package ops_test

import (
	"math"
	"testing"

	"github.com/born-ml/ctcloss/internal/autodiff/ops"
	"github.com/born-ml/ctcloss/internal/backend/cpu"
	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw64(t *testing.T, data []float64, shape tensor.Shape, b tensor.Backend) *tensor.RawTensor {
	t.Helper()
	x, err := tensor.FromSlice(data, shape, b)
	require.NoError(t, err)
	return x.Raw()
}

func TestAddOp_BroadcastReducesGradient(t *testing.T) {
	backend := cpu.New()
	a := raw64(t, []float64{1, 2, 3}, tensor.Shape{3}, backend)
	s := raw64(t, []float64{10}, tensor.Shape{}, backend)
	out := backend.Add(a, s)

	grad := raw64(t, []float64{1, 2, 3}, tensor.Shape{3}, backend)
	grads := ops.NewAddOp(a, s, out).Backward(grad, backend)

	require.Len(t, grads, 2)
	assert.Equal(t, []float64{1, 2, 3}, grads[0].AsFloat64())
	assert.Equal(t, tensor.Shape{}, grads[1].Shape())
	assert.InDelta(t, 6.0, grads[1].AsFloat64()[0], 1e-12)
}

func TestSubOp_Backward(t *testing.T) {
	backend := cpu.New()
	a := raw64(t, []float64{5, 6}, tensor.Shape{2}, backend)
	b := raw64(t, []float64{1, 2}, tensor.Shape{2}, backend)
	out := backend.Sub(a, b)

	grads := ops.NewSubOp(a, b, out).Backward(raw64(t, []float64{1, 1}, tensor.Shape{2}, backend), backend)
	assert.Equal(t, []float64{1, 1}, grads[0].AsFloat64())
	assert.Equal(t, []float64{-1, -1}, grads[1].AsFloat64())
}

func TestMulOp_Backward(t *testing.T) {
	backend := cpu.New()
	a := raw64(t, []float64{2, 3}, tensor.Shape{2}, backend)
	b := raw64(t, []float64{4, 5}, tensor.Shape{2}, backend)
	out := backend.Mul(a, b)

	grads := ops.NewMulOp(a, b, out).Backward(raw64(t, []float64{1, 1}, tensor.Shape{2}, backend), backend)
	assert.Equal(t, []float64{4, 5}, grads[0].AsFloat64())
	assert.Equal(t, []float64{2, 3}, grads[1].AsFloat64())
}

func TestDivOp_Backward(t *testing.T) {
	backend := cpu.New()
	a := raw64(t, []float64{6, 1}, tensor.Shape{2}, backend)
	b := raw64(t, []float64{3, 4}, tensor.Shape{2}, backend)
	out := backend.Div(a, b)

	grads := ops.NewDivOp(a, b, out).Backward(raw64(t, []float64{1, 1}, tensor.Shape{2}, backend), backend)

	// d(a/b)/da = 1/b, d(a/b)/db = -a/b²
	assert.InDeltaSlice(t, []float64{1.0 / 3, 0.25}, grads[0].AsFloat64(), 1e-12)
	assert.InDeltaSlice(t, []float64{-6.0 / 9, -1.0 / 16}, grads[1].AsFloat64(), 1e-12)
}

func TestDivOp_BroadcastDivisor(t *testing.T) {
	backend := cpu.New()
	a := raw64(t, []float64{6, 2}, tensor.Shape{2}, backend)
	b := raw64(t, []float64{2}, tensor.Shape{1}, backend)
	out := backend.Div(a, b)

	grads := ops.NewDivOp(a, b, out).Backward(raw64(t, []float64{1, 2}, tensor.Shape{2}, backend), backend)

	assert.InDeltaSlice(t, []float64{0.5, 1}, grads[0].AsFloat64(), 1e-12)
	// -(1·6 + 2·2) / 2²
	require.Equal(t, tensor.Shape{1}, grads[1].Shape())
	assert.InDelta(t, -2.5, grads[1].AsFloat64()[0], 1e-12)
}

func TestScalarOp_Backward(t *testing.T) {
	backend := cpu.New()
	x := raw64(t, []float64{1, 2}, tensor.Shape{2}, backend)
	grad := raw64(t, []float64{3, 3}, tensor.Shape{2}, backend)

	tests := []struct {
		name string
		kind ops.ScalarKind
		want []float64
	}{
		{"add", ops.ScalarAdd, []float64{3, 3}},
		{"mul", ops.ScalarMul, []float64{6, 6}},
		{"div", ops.ScalarDiv, []float64{1.5, 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := ops.NewScalarOp(tt.kind, x, 2.0, x)
			got := op.Backward(grad, backend)
			assert.Equal(t, tt.want, got[0].AsFloat64())
		})
	}
}

func TestExpLogOp_Backward(t *testing.T) {
	backend := cpu.New()
	x := raw64(t, []float64{0, 1}, tensor.Shape{2}, backend)
	ones := raw64(t, []float64{1, 1}, tensor.Shape{2}, backend)

	e := backend.Exp(x)
	assert.InDeltaSlice(t, []float64{1, math.E}, ops.NewExpOp(x, e).Backward(ones, backend)[0].AsFloat64(), 1e-12)

	y := raw64(t, []float64{2, 4}, tensor.Shape{2}, backend)
	l := backend.Log(y)
	assert.InDeltaSlice(t, []float64{0.5, 0.25}, ops.NewLogOp(y, l).Backward(ones, backend)[0].AsFloat64(), 1e-12)
}

func TestSumOp_Backward(t *testing.T) {
	backend := cpu.New()
	x := raw64(t, []float64{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	out := backend.Sum(x)

	grads := ops.NewSumOp(x, out).Backward(raw64(t, []float64{0.5}, tensor.Shape{}, backend), backend)
	assert.Equal(t, tensor.Shape{2, 2}, grads[0].Shape())
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5}, grads[0].AsFloat64())
}

func TestLogSoftmaxOp_MatchesFiniteDifferences(t *testing.T) {
	backend := cpu.New()
	data := []float64{0.3, -1.2, 2.0, 0.1, 0.7, -0.4}
	x := raw64(t, data, tensor.Shape{2, 3}, backend)
	out := backend.LogSoftmax(x, -1)

	// Objective: Σ w ⊙ log_softmax(x)
	w := []float64{1, -2, 0.5, 3, 0, -1}
	grads := ops.NewLogSoftmaxOp(x, out, -1).Backward(raw64(t, w, tensor.Shape{2, 3}, backend), backend)

	objective := func(values []float64) float64 {
		y := backend.LogSoftmax(raw64(t, values, tensor.Shape{2, 3}, backend), -1).AsFloat64()
		var s float64
		for i := range y {
			s += w[i] * y[i]
		}
		return s
	}

	const eps = 1e-6
	for i := range data {
		plus := append([]float64(nil), data...)
		minus := append([]float64(nil), data...)
		plus[i] += eps
		minus[i] -= eps
		fd := (objective(plus) - objective(minus)) / (2 * eps)
		assert.InDelta(t, fd, grads[0].AsFloat64()[i], 1e-6, "index %d", i)
	}
}

func TestCTCLossOp_DelegatesToBackend(t *testing.T) {
	backend := cpu.New()
	// T=1, B=1, C=2, target "1": loss = -log p(1) = -log 0.25
	lp := raw64(t, []float64{math.Log(0.75), math.Log(0.25)}, tensor.Shape{1, 1, 2}, backend)
	targets, err := tensor.FromSlice([]int32{1}, tensor.Shape{1, 1}, backend)
	require.NoError(t, err)
	lengths, err := tensor.FromSlice([]int32{1}, tensor.Shape{1}, backend)
	require.NoError(t, err)

	batch, err := ctc.Validate(ctc.Input{
		LogProbs:      lp,
		Targets:       targets.Raw(),
		InputLengths:  lengths.Raw(),
		TargetLengths: lengths.Raw(),
	}, ctc.DefaultConfig())
	require.NoError(t, err)

	loss := backend.CTCLoss(batch)
	op := ops.NewCTCLossOp(batch, loss)
	assert.Same(t, lp, op.Inputs()[0])
	assert.Same(t, batch, op.Batch())

	grads := op.Backward(raw64(t, []float64{1}, tensor.Shape{1}, backend), backend)
	// grad = exp(lp) - occupation; the only path emits class 1.
	assert.InDeltaSlice(t, []float64{0.75, 0.25 - 1}, grads[0].AsFloat64(), 1e-12)
	assert.Nil(t, op.Lattice())

	retainedLoss, alpha := backend.CTCLossRetain(batch)
	assert.Equal(t, loss.AsFloat64(), retainedLoss.AsFloat64())
	retained := ops.NewRetainedCTCLossOp(batch, retainedLoss, alpha)
	assert.Same(t, alpha, retained.Lattice())
	grads = retained.Backward(raw64(t, []float64{1}, tensor.Shape{1}, backend), backend)
	assert.InDeltaSlice(t, []float64{0.75, 0.25 - 1}, grads[0].AsFloat64(), 1e-12)
}

func TestCTCLossOp_PanicsWithoutKernels(t *testing.T) {
	backend := tensor.NewMockBackend()
	op := ops.NewCTCLossOp(&ctc.Batch{}, nil)
	assert.Panics(t, func() {
		op.Backward(nil, backend)
	})
}
