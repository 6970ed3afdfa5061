package dispatch

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/born-ml/ctcloss/internal/backend/cpu"
	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/internal/tensor"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lostDevice accepts every call on WebGPU and then fails mid-kernel.
type lostDevice struct {
	*tensor.MockBackend
	reject error
}

func (l *lostDevice) Name() string                         { return "lost" }
func (l *lostDevice) Device() tensor.Device                { return tensor.WebGPU }
func (l *lostDevice) Accepts(*ctc.Batch) error             { return l.reject }
func (l *lostDevice) CTCLoss(*ctc.Batch) *tensor.RawTensor { panic("device lost") }
func (l *lostDevice) CTCLossBackward(*ctc.Batch, *tensor.RawTensor) *tensor.RawTensor {
	panic("device lost")
}

// smallInput is T=2, B=2, C=3 with uniform log-probs. Example 1 asks for
// "2 2" in two frames and is infeasible.
func smallInput(t *testing.T) ctc.Input {
	t.Helper()
	host := cpu.New()
	lp := tensor.Full[float64](tensor.Shape{2, 2, 3}, math.Log(1.0/3), host)
	targets, err := tensor.FromSlice([]int64{1, 0, 2, 2}, tensor.Shape{2, 2}, host)
	require.NoError(t, err)
	inputLengths, err := tensor.FromSlice([]int64{2, 2}, tensor.Shape{2}, host)
	require.NoError(t, err)
	targetLengths, err := tensor.FromSlice([]int64{1, 2}, tensor.Shape{2}, host)
	require.NoError(t, err)
	return ctc.Input{
		LogProbs:      lp.Raw(),
		Targets:       targets.Raw(),
		InputLengths:  inputLengths.Raw(),
		TargetLengths: targetLengths.Raw(),
	}
}

func newTestDispatcher(buf *bytes.Buffer, opts ...Option) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(append([]Option{WithLogger(logger)}, opts...)...)
}

func TestDeviceContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, tensor.CPU, DeviceFromContext(ctx))
	assert.Equal(t, tensor.WebGPU, DeviceFromContext(WithDevice(ctx, tensor.WebGPU)))
}

func TestNew_RegistersCPU(t *testing.T) {
	d := New()
	defer d.Close()
	assert.Equal(t, []tensor.Device{tensor.CPU}, d.Devices())
	assert.Equal(t, "CPU", d.Backend(context.Background()).Name())
}

func TestBackend_FallsBackWhenDeviceMissing(t *testing.T) {
	var logs bytes.Buffer
	d := newTestDispatcher(&logs)
	before := testutil.ToFloat64(fallbacks.WithLabelValues("WebGPU", "not registered"))

	be := d.Backend(WithDevice(context.Background(), tensor.WebGPU))

	assert.Equal(t, tensor.CPU, be.Device())
	assert.Contains(t, logs.String(), "falling back to CPU backend")
	assert.InDelta(t, 1.0, testutil.ToFloat64(fallbacks.WithLabelValues("WebGPU", "not registered"))-before, 0)
}

func TestLoss_MatchesClosedForm(t *testing.T) {
	var logs bytes.Buffer
	d := newTestDispatcher(&logs)
	beforeCalls := testutil.ToFloat64(invocations.WithLabelValues("CPU", passForward))
	beforeInfeasible := testutil.ToFloat64(infeasibleExamples)

	loss, err := d.Loss(context.Background(), smallInput(t))
	require.NoError(t, err)

	// Three paths emit "1" in two frames: (1,1), (0,1), (1,0).
	want := -math.Log(3.0 / 9)
	assert.InDelta(t, want, loss.AsFloat64()[0], 1e-12)
	assert.True(t, math.IsInf(loss.AsFloat64()[1], 1))
	assert.InDelta(t, 1.0, testutil.ToFloat64(invocations.WithLabelValues("CPU", passForward))-beforeCalls, 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(infeasibleExamples)-beforeInfeasible, 0)
}

func TestRun_FallsBackOnDeviceError(t *testing.T) {
	var logs bytes.Buffer
	d := newTestDispatcher(&logs, WithBackend(&lostDevice{MockBackend: tensor.NewMockBackend()}))
	ctx := WithDevice(context.Background(), tensor.WebGPU)

	loss, err := d.Loss(ctx, smallInput(t))
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(3.0/9), loss.AsFloat64()[0], 1e-12)

	grad, err := d.Gradient(ctx, smallInput(t), nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2, 3}, grad.Shape())
	assert.Contains(t, logs.String(), "device error")
}

func TestRun_FallsBackWhenBatchRejected(t *testing.T) {
	var logs bytes.Buffer
	gpu := &lostDevice{MockBackend: tensor.NewMockBackend(), reject: assert.AnError}
	d := newTestDispatcher(&logs, WithBackend(gpu))

	_, err := d.Loss(WithDevice(context.Background(), tensor.WebGPU), smallInput(t))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "batch too large")
	assert.NotContains(t, logs.String(), "device error")
}

func TestLoss_ValidationErrorIsCounted(t *testing.T) {
	d := New()
	in := smallInput(t)
	bad, err := tensor.FromSlice([]int64{3, 1}, tensor.Shape{2}, cpu.New())
	require.NoError(t, err)
	in.InputLengths = bad.Raw()

	before := testutil.ToFloat64(validationErrors.WithLabelValues("invalid_length"))
	_, err = d.Loss(context.Background(), in)

	require.ErrorIs(t, err, ctc.ErrInvalidLength)
	assert.InDelta(t, 1.0, testutil.ToFloat64(validationErrors.WithLabelValues("invalid_length"))-before, 0)
}

func TestGradient_RejectsUpstreamShape(t *testing.T) {
	d := New()
	upstream := tensor.Ones[float64](tensor.Shape{3}, cpu.New())
	_, err := d.Gradient(context.Background(), smallInput(t), upstream.Raw())
	require.ErrorIs(t, err, ctc.ErrShapeMismatch)
}

func TestRun_HonorsCanceledContext(t *testing.T) {
	d := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Loss(ctx, smallInput(t))
	require.ErrorIs(t, err, context.Canceled)
}
