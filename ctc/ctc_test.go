package ctc_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/born-ml/ctcloss/autodiff"
	"github.com/born-ml/ctcloss/backend/cpu"
	"github.com/born-ml/ctcloss/ctc"
	"github.com/born-ml/ctcloss/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inputs[B tensor.Backend] struct {
	logits, logProbs                *tensor.Tensor[float64, B]
	targets, inputLens, targetLens *tensor.Tensor[int32, B]
}

// newInputs builds T=3, B=2, C=3 with targets [1, 2] and [2].
func newInputs[B tensor.Backend](t *testing.T, backend B) inputs[B] {
	t.Helper()
	logits, err := tensor.FromSlice([]float64{
		0.1, 0.5, -0.3, 1.0, 0.0, 0.2,
		-0.4, 0.3, 0.9, 0.0, -1.0, 0.7,
		0.6, -0.2, 0.1, 0.3, 0.3, -0.5,
	}, tensor.Shape{3, 2, 3}, backend)
	require.NoError(t, err)
	targets, err := tensor.FromSlice([]int32{1, 2, 2, 0}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)
	inputLens, err := tensor.FromSlice([]int32{3, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	targetLens, err := tensor.FromSlice([]int32{2, 1}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	return inputs[B]{
		logits:     logits,
		logProbs:   logits.LogSoftmax(-1),
		targets:    targets,
		inputLens:  inputLens,
		targetLens: targetLens,
	}
}

func TestLoss(t *testing.T) {
	backend := cpu.New()
	// One frame, uniform over two classes: loss = log 2.
	lp := tensor.Full[float32](tensor.Shape{1, 1, 2}, float32(-math.Ln2), backend)
	targets := tensor.Ones[int64](tensor.Shape{1, 1}, backend)
	lengths := tensor.Ones[int64](tensor.Shape{1}, backend)

	loss, err := ctc.Loss(lp, targets, lengths, lengths)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1}, loss.Shape())
	assert.InDelta(t, math.Ln2, float64(loss.Item()), 1e-6)

	_, err = ctc.Loss(lp, targets, lengths, lengths, ctc.WithBlank(1))
	require.ErrorIs(t, err, ctc.ErrInvalidLength, "label 1 is blank now")

	_, err = ctc.Loss(lp, targets, lengths, lengths, ctc.WithMaxLatticeCells(2))
	require.ErrorIs(t, err, ctc.ErrResourceLimitExceeded)

	_, err = ctc.Loss(lp, nil, lengths, lengths)
	require.ErrorIs(t, err, ctc.ErrShapeMismatch)
	var verr *ctc.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "targets", verr.Tensor)
}

func TestGradient(t *testing.T) {
	backend := cpu.New()
	in := newInputs(t, backend)

	grad, err := ctc.Gradient(in.logProbs, in.targets, in.inputLens, in.targetLens, nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2, 3}, grad.Shape())

	// Each valid frame's gradient sums to zero; example 1 has no third frame.
	for step := 0; step < 3; step++ {
		for n := 0; n < 2; n++ {
			sum := grad.At(step, n, 0) + grad.At(step, n, 1) + grad.At(step, n, 2)
			assert.InDelta(t, 0.0, sum, 1e-12)
		}
	}
	for c := 0; c < 3; c++ {
		assert.Zero(t, grad.At(2, 1, c))
	}

	upstream, err := tensor.FromSlice([]float64{2, -1}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	scaled, err := ctc.Gradient(in.logProbs, in.targets, in.inputLens, in.targetLens, upstream)
	require.NoError(t, err)
	assert.InDelta(t, 2*grad.At(0, 0, 1), scaled.At(0, 0, 1), 1e-12)
	assert.InDelta(t, -grad.At(1, 1, 2), scaled.At(1, 1, 2), 1e-12)

	bad := tensor.Ones[float64](tensor.Shape{3}, backend)
	_, err = ctc.Gradient(in.logProbs, in.targets, in.inputLens, in.targetLens, bad)
	require.ErrorIs(t, err, ctc.ErrShapeMismatch)
}

func TestLoss_Autodiff(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	in := newInputs(t, backend)

	loss, err := ctc.Loss(in.logProbs, in.targets, in.inputLens, in.targetLens)
	require.NoError(t, err)
	objective := loss.Div(tensor.Cast[float64](in.targetLens)).Mean()
	grads := autodiff.Backward(objective, backend)

	dLogits, ok := grads[in.logits.Raw()]
	require.True(t, ok, "gradient reaches the logits")

	// The log-softmax backward leaves the CTC gradient unchanged because every
	// frame's gradient sums to zero, so dLogits is the direct gradient scaled
	// by 1/(B·target_length).
	plain := cpu.New()
	ref := newInputs(t, plain)
	upstream, err := tensor.FromSlice([]float64{1.0 / 4, 1.0 / 2}, tensor.Shape{2}, plain)
	require.NoError(t, err)
	want, err := ctc.Gradient(ref.logProbs, ref.targets, ref.inputLens, ref.targetLens, upstream)
	require.NoError(t, err)

	assert.InDeltaSlice(t, want.Data(), dLogits.AsFloat64(), 1e-12)
}

func TestDispatcher(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := ctc.NewDispatcher(ctc.WithLogger(quiet), ctc.WithConfig(ctc.NewConfig(ctc.WithKernel(ctc.KernelTiled))))
	defer d.Close()

	backend := cpu.New()
	in := newInputs(t, backend)
	raw := ctc.Input{
		LogProbs:      in.logProbs.Raw(),
		Targets:       in.targets.Raw(),
		InputLengths:  in.inputLens.Raw(),
		TargetLengths: in.targetLens.Raw(),
	}

	want, err := ctc.Loss(in.logProbs, in.targets, in.inputLens, in.targetLens)
	require.NoError(t, err)

	ctx := ctc.WithDevice(context.Background(), tensor.WebGPU)
	assert.Equal(t, tensor.WebGPU, ctc.DeviceFromContext(ctx))
	got, err := d.Loss(ctx, raw)
	require.NoError(t, err, "an unregistered device falls back to CPU")
	assert.InDeltaSlice(t, want.Data(), got.AsFloat64(), 1e-12)
}

func TestCompare(t *testing.T) {
	backend := cpu.New()
	in := newInputs(t, backend)
	b, err := ctc.Validate(ctc.Input{
		LogProbs:      in.logProbs.Raw(),
		Targets:       in.targets.Raw(),
		InputLengths:  in.inputLens.Raw(),
		TargetLengths: in.targetLens.Raw(),
	}, ctc.DefaultConfig())
	require.NoError(t, err)

	reports, err := ctc.Compare(context.Background(), b,
		cpu.New(cpu.WithKernel(ctc.KernelSequential)),
		cpu.New(cpu.WithKernel(ctc.KernelTiled)),
	)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Within(1e-12))
	assert.InDelta(t, 0.0, ctc.RelDiff([]float64{1}, []float64{1}), 0)
}
