package ctc

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/born-ml/ctcloss/internal/tensor"
	"github.com/stretchr/testify/require"
)

// problem describes a batch in plain Go values.
type problem struct {
	steps, classes int
	lp             []float64 // [T, B, C]
	targets        [][]int
	inputLens      []int
	dtype          tensor.DataType
	blank          int
}

func (p problem) size() int { return len(p.targets) }

func (p problem) maxTarget() int {
	s := 0
	for _, tgt := range p.targets {
		s = max(s, len(tgt))
	}
	return s
}

func (p problem) input(t *testing.T) Input {
	t.Helper()
	b, s := p.size(), p.maxTarget()

	lp, err := tensor.NewRaw(tensor.Shape{p.steps, b, p.classes}, p.dtype, tensor.CPU)
	require.NoError(t, err)
	if p.dtype == tensor.Float32 {
		dst := lp.AsFloat32()
		for i, v := range p.lp {
			dst[i] = float32(v)
		}
	} else {
		copy(lp.AsFloat64(), p.lp)
	}

	targets, err := tensor.NewRaw(tensor.Shape{b, s}, tensor.Int64, tensor.CPU)
	require.NoError(t, err)
	inLens, err := tensor.NewRaw(tensor.Shape{b}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	tgtLens, err := tensor.NewRaw(tensor.Shape{b}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)

	for n, tgt := range p.targets {
		for k, v := range tgt {
			targets.AsInt64()[n*s+k] = int64(v)
		}
		inLens.AsInt32()[n] = int32(p.inputLens[n])
		tgtLens.AsInt32()[n] = int32(len(tgt))
	}
	return Input{LogProbs: lp, Targets: targets, InputLengths: inLens, TargetLengths: tgtLens}
}

func (p problem) batch(t *testing.T) *Batch {
	t.Helper()
	b, err := Validate(p.input(t), NewConfig(WithBlank(p.blank)))
	require.NoError(t, err)
	return b
}

// randomProblem draws log-softmax normalized log-probs.
func randomProblem(rng *rand.Rand, steps, classes int, targets [][]int, inputLens []int) problem {
	b := len(targets)
	lp := make([]float64, steps*b*classes)
	for row := 0; row < steps*b; row++ {
		logits := lp[row*classes : (row+1)*classes]
		for c := range logits {
			logits[c] = rng.NormFloat64()
		}
		logSoftmax(logits)
	}
	return problem{
		steps:     steps,
		classes:   classes,
		lp:        lp,
		targets:   targets,
		inputLens: inputLens,
		dtype:     tensor.Float64,
	}
}

func logSoftmax(row []float64) {
	m := math.Inf(-1)
	for _, v := range row {
		m = max(m, v)
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(v - m)
	}
	lse := m + math.Log(sum)
	for c := range row {
		row[c] -= lse
	}
}

func lossOf(t *testing.T, k Kernel, b *Batch) []float64 {
	t.Helper()
	out := b.NewLoss(tensor.CPU)
	k.Forward(b, out)
	return out.Floats()
}

func gradOf(t *testing.T, k Kernel, b *Batch, upstream []float64) []float64 {
	t.Helper()
	if upstream == nil {
		upstream = UpstreamValues(b, nil)
	}
	out := b.NewGrad(tensor.CPU)
	k.Backward(b, upstream, out)
	return out.Floats()
}

func allKernels() []Kernel {
	return []Kernel{
		Sequential{},
		NewKernel(NewConfig(WithKernel(KernelParallel), WithWorkers(4))),
		NewKernel(NewConfig(WithKernel(KernelTiled), WithTileSize(3), WithWorkers(4))),
	}
}

// bruteForce enumerates every C^T frame labeling of example n and returns the
// total likelihood and the per-(t, c) occupation probabilities.
func bruteForce(p problem, n int, collapse func([]int32, int32) []int32) (total float64, occ []float64) {
	steps := p.inputLens[n]
	b := p.size()
	occ = make([]float64, steps*p.classes)
	path := make([]int32, steps)
	want := p.targets[n]

	var walk func(t int, logp float64)
	walk = func(t int, logp float64) {
		if t == steps {
			got := collapse(path, int32(p.blank))
			if len(got) != len(want) {
				return
			}
			for k := range got {
				if int(got[k]) != want[k] {
					return
				}
			}
			prob := math.Exp(logp)
			total += prob
			for tt, c := range path {
				occ[tt*p.classes+int(c)] += prob
			}
			return
		}
		for c := 0; c < p.classes; c++ {
			path[t] = int32(c)
			walk(t+1, logp+p.lp[(t*b+n)*p.classes+c])
		}
	}
	walk(0, 0)

	for i := range occ {
		occ[i] /= total
	}
	return total, occ
}
