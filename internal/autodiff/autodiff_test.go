package autodiff_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/born-ml/ctcloss/internal/autodiff"
	"github.com/born-ml/ctcloss/internal/autodiff/ops"
	"github.com/born-ml/ctcloss/internal/backend/cpu"
	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func TestAutodiffBackend_Metadata(t *testing.T) {
	backend := autodiff.New(cpu.New())
	assert.Equal(t, "Autodiff(CPU)", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())
	assert.NotNil(t, backend.Inner())
}

func TestTape_Recording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()
	assert.False(t, tape.IsRecording())

	a, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	a.Add(a)
	assert.Zero(t, tape.NumOps(), "nothing is recorded before StartRecording")

	tape.StartRecording()
	a.Add(a).Sum()
	assert.Equal(t, 2, tape.NumOps())

	tape.Clear()
	assert.Zero(t, tape.NumOps())
	assert.True(t, tape.IsRecording(), "Clear keeps the recording state")

	tape.StopRecording()
	assert.False(t, tape.IsRecording())
}

func TestBackward_AccumulatesReusedInputs(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice([]float64{3, -1}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	// y = Σ x·x + 2x → dy/dx = 2x + 2
	y := x.Mul(x).Add(x.MulScalar(2)).Sum()
	grads := autodiff.Backward(y, backend)

	assert.InDeltaSlice(t, []float64{8, 0}, grads[x.Raw()].AsFloat64(), 1e-12)
	assert.True(t, backend.Tape().IsRecording(), "Backward restores the recording state")
}

func TestBackward_PanicsOnEmptyTape(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Ones[float32](tensor.Shape{1}, backend)
	assert.Panics(t, func() {
		autodiff.Backward(x, backend)
	})
}

func TestCast_NotRecorded(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	lengths, err := tensor.FromSlice([]int32{4, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	f := tensor.Cast[float32](lengths)

	assert.Equal(t, []float32{4, 2}, f.Data())
	assert.Zero(t, backend.Tape().NumOps())
}

// ctcObjective builds mean(ctc(log_softmax(logits)) / target_lengths) on backend.
func ctcObjective(t *testing.T, backend Backend, logits *tensor.Tensor[float64, Backend],
	targets, inputLengths, targetLengths *tensor.Tensor[int32, Backend],
) *tensor.Tensor[float64, Backend] {
	t.Helper()
	logProbs := logits.LogSoftmax(-1)
	batch, err := ctc.Validate(ctc.Input{
		LogProbs:      logProbs.Raw(),
		Targets:       targets.Raw(),
		InputLengths:  inputLengths.Raw(),
		TargetLengths: targetLengths.Raw(),
	}, ctc.DefaultConfig())
	require.NoError(t, err)

	loss := tensor.New[float64](backend.CTCLoss(batch), backend)
	return loss.Div(tensor.Cast[float64](targetLengths)).Mean()
}

func TestCTCTrainingStep_MatchesFiniteDifferences(t *testing.T) {
	const timeSteps, batchSize, classes, maxTarget = 6, 2, 4, 3

	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewPCG(7, 0))
	logits := tensor.Randn[float64](tensor.Shape{timeSteps, batchSize, classes}, rng, backend)
	targets, err := tensor.FromSlice([]int32{1, 2, 2, 3, 1, 0}, tensor.Shape{batchSize, maxTarget}, backend)
	require.NoError(t, err)
	inputLengths, err := tensor.FromSlice([]int32{6, 4}, tensor.Shape{batchSize}, backend)
	require.NoError(t, err)
	targetLengths, err := tensor.FromSlice([]int32{3, 2}, tensor.Shape{batchSize}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	objective := ctcObjective(t, backend, logits, targets, inputLengths, targetLengths)
	grads := autodiff.Backward(objective, backend)
	backend.Tape().StopRecording()

	analytic := grads[logits.Raw()]
	require.NotNil(t, analytic, "logits must receive a gradient")

	eval := func(values []float64) float64 {
		x, err := tensor.FromSlice(values, logits.Shape(), backend)
		require.NoError(t, err)
		return ctcObjective(t, backend, x, targets, inputLengths, targetLengths).Item()
	}

	const eps = 1e-5
	base := logits.Data()
	for i := range base {
		plus := append([]float64(nil), base...)
		minus := append([]float64(nil), base...)
		plus[i] += eps
		minus[i] -= eps
		fd := (eval(plus) - eval(minus)) / (2 * eps)
		assert.InDelta(t, fd, analytic.AsFloat64()[i], 1e-6, "logit %d", i)
	}

	// Example 1 only has 4 frames; rows t ≥ 4 carry no gradient.
	for tt := 4; tt < timeSteps; tt++ {
		for c := 0; c < classes; c++ {
			i := (tt*batchSize+1)*classes + c
			assert.Zero(t, analytic.AsFloat64()[i])
		}
	}
}

func TestCTCLoss_InfeasibleExampleGetsNoGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewPCG(1, 0))
	logits := tensor.Randn[float64](tensor.Shape{3, 2, 3}, rng, backend)
	// Example 1 needs 3 frames for "1 1" but has 2.
	targets, err := tensor.FromSlice([]int32{1, 2, 1, 1}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)
	inputLengths, err := tensor.FromSlice([]int32{3, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	targetLengths, err := tensor.FromSlice([]int32{2, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	logProbs := logits.LogSoftmax(-1)
	batch, err := ctc.Validate(ctc.Input{
		LogProbs:      logProbs.Raw(),
		Targets:       targets.Raw(),
		InputLengths:  inputLengths.Raw(),
		TargetLengths: targetLengths.Raw(),
	}, ctc.DefaultConfig())
	require.NoError(t, err)

	loss := tensor.New[float64](backend.CTCLoss(batch), backend)
	assert.True(t, math.IsInf(loss.At(1), 1))
	assert.False(t, math.IsInf(loss.At(0), 0))

	grads := backend.Tape().Backward(tensor.Ones[float64](tensor.Shape{2}, backend).Raw(), backend)
	g := grads[logProbs.Raw()].AsFloat64()
	for tt := 0; tt < 3; tt++ {
		for c := 0; c < 3; c++ {
			assert.Zero(t, g[(tt*2+1)*3+c])
		}
	}
}

// countingCPU tells gradients built from retained lattices apart from
// gradients that rerun the forward recursion.
type countingCPU struct {
	*cpu.CPUBackend
	reused, recomputed int
}

func (c *countingCPU) CTCLossBackward(b *ctc.Batch, upstream *tensor.RawTensor) *tensor.RawTensor {
	c.recomputed++
	return c.CPUBackend.CTCLossBackward(b, upstream)
}

func (c *countingCPU) CTCLossBackwardFrom(b *ctc.Batch, alpha *ctc.Arena, upstream *tensor.RawTensor) *tensor.RawTensor {
	if alpha == nil {
		c.recomputed++
	} else {
		c.reused++
	}
	return c.CPUBackend.CTCLossBackwardFrom(b, alpha, upstream)
}

func TestCTCLoss_BackwardReusesForwardLattice(t *testing.T) {
	inner := &countingCPU{CPUBackend: cpu.New()}
	backend := autodiff.New(inner)
	rng := rand.New(rand.NewPCG(5, 0))
	logits := tensor.Randn[float64](tensor.Shape{4, 2, 3}, rng, backend)
	targets, err := tensor.FromSlice([]int32{1, 2, 2, 0}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)
	inputLengths, err := tensor.FromSlice([]int32{4, 3}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	targetLengths, err := tensor.FromSlice([]int32{2, 1}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	logProbs := logits.LogSoftmax(-1)
	batch, err := ctc.Validate(ctc.Input{
		LogProbs:      logProbs.Raw(),
		Targets:       targets.Raw(),
		InputLengths:  inputLengths.Raw(),
		TargetLengths: targetLengths.Raw(),
	}, ctc.DefaultConfig())
	require.NoError(t, err)
	backend.CTCLoss(batch)

	recorded := backend.Tape().Operations()
	op, ok := recorded[len(recorded)-1].(*ops.CTCLossOp)
	require.True(t, ok)
	require.NotNil(t, op.Lattice())
	assert.Equal(t, batch.LatticeCells(), op.Lattice().Cells())

	upstream := tensor.Full[float64](tensor.Shape{2}, 0.5, backend).Raw()
	grads := backend.Tape().Backward(upstream, backend)
	assert.Equal(t, 1, inner.reused)
	assert.Zero(t, inner.recomputed)

	want := inner.CPUBackend.CTCLossBackward(batch, upstream)
	assert.InDeltaSlice(t, want.AsFloat64(), grads[logProbs.Raw()].AsFloat64(), 1e-12)

	// Outside recording nothing is kept.
	backend.Tape().StopRecording()
	before := backend.Tape().NumOps()
	backend.CTCLoss(batch)
	assert.Equal(t, before, backend.Tape().NumOps())
}

func TestCTCLoss_PanicsWithoutKernels(t *testing.T) {
	backend := autodiff.New(tensor.NewMockBackend())
	assert.Panics(t, func() {
		backend.CTCLoss(&ctc.Batch{})
	})
}
