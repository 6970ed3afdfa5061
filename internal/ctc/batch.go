// Package ctc implements the Connectionist Temporal Classification loss:
// input validation, the forward (alpha) and backward (beta) lattice
// recursions, gradient assembly, and the CPU kernels that schedule them.
//
// All recursions run in log space with float64 arithmetic regardless of the
// input dtype. The lattice for example n has L = 2·S_n+1 states: even states
// are blank, odd state 2k+1 carries the k-th target label.
//
// Beta is post-multiplied: beta(t,s) already includes p(t, z_s), so the
// occupation of state s at time t is exp(alpha+beta-total-p(t,z_s)).
package ctc

import (
	"math"

	"github.com/born-ml/ctcloss/internal/tensor"
)

// Batch is the validated, packed form of one operator call.
// It is read-only once built and safe to share between workers.
type Batch struct {
	MaxTime    int // T: time dimension of the log-probs
	Size       int // B: number of examples
	NumClasses int // C: classes including blank
	MaxTarget  int // S: padded target length
	Blank      int

	InputLengths  []int
	TargetLengths []int

	// LogProbs is the caller's [T, B, C] tensor, kept for output allocation
	// and for the gradient tape.
	LogProbs *tensor.RawTensor

	targets   []int32 // [B*S], labels beyond TargetLengths[n] are never read
	minFrames []int
	lp32      []float32
	lp64      []float64
}

// DType returns the log-prob element type, which is also the output type.
func (b *Batch) DType() tensor.DataType {
	return b.LogProbs.DType()
}

// States returns the number of lattice states of example n.
func (b *Batch) States(n int) int {
	return 2*b.TargetLengths[n] + 1
}

// Label returns the class at lattice state s of example n.
func (b *Batch) Label(n, s int) int {
	if s%2 == 0 {
		return b.Blank
	}
	return int(b.targets[n*b.MaxTarget+s/2])
}

// Target returns the k-th declared label of example n.
func (b *Batch) Target(n, k int) int {
	return int(b.targets[n*b.MaxTarget+k])
}

// canSkip reports whether state s may be entered from s-2.
// Only label states qualify, and only when the label differs from the one
// two states back; a repeated label must pass through the blank between them.
func (b *Batch) canSkip(n, s int) bool {
	if s < 2 || s%2 == 0 {
		return false
	}
	return b.Label(n, s) != b.Label(n, s-2)
}

// MinFrames returns the fewest frames that can emit example n's target:
// one per label plus one separating blank per adjacent repeat.
func (b *Batch) MinFrames(n int) int {
	return b.minFrames[n]
}

// Feasible reports whether at least one alignment exists for example n.
// An example with no input frames is never feasible.
func (b *Batch) Feasible(n int) bool {
	return b.InputLengths[n] > 0 && b.InputLengths[n] >= b.minFrames[n]
}

// Infeasible returns the number of examples with no valid alignment.
func (b *Batch) Infeasible() int {
	count := 0
	for n := 0; n < b.Size; n++ {
		if !b.Feasible(n) {
			count++
		}
	}
	return count
}

// LogProb returns p(t, c) for example n.
func (b *Batch) LogProb(t, n, c int) float64 {
	i := (t*b.Size+n)*b.NumClasses + c
	if b.lp32 != nil {
		return float64(b.lp32[i])
	}
	return b.lp64[i]
}

// TargetsInt32 returns the packed [B*S] labels. The slice must not be modified.
func (b *Batch) TargetsInt32() []int32 {
	return b.targets
}

// LatticeCells returns the number of float64 cells a full lattice for every
// feasible example needs.
func (b *Batch) LatticeCells() int {
	cells := 0
	for n := 0; n < b.Size; n++ {
		if b.Feasible(n) {
			cells += b.InputLengths[n] * b.States(n)
		}
	}
	return cells
}

// NewLoss allocates the [B] loss output on the given device.
func (b *Batch) NewLoss(device tensor.Device) *tensor.RawTensor {
	out, err := tensor.NewRaw(tensor.Shape{b.Size}, b.DType(), device)
	if err != nil {
		panic(err)
	}
	return out
}

// NewGrad allocates the zeroed [T, B, C] gradient output on the given device.
func (b *Batch) NewGrad(device tensor.Device) *tensor.RawTensor {
	out, err := tensor.NewRaw(b.LogProbs.Shape(), b.DType(), device)
	if err != nil {
		panic(err)
	}
	return out
}

// sink writes float64 results into a float32 or float64 tensor.
type sink struct {
	f32 []float32
	f64 []float64
}

func newSink(raw *tensor.RawTensor) sink {
	if raw.DType() == tensor.Float32 {
		return sink{f32: raw.AsFloat32()}
	}
	return sink{f64: raw.AsFloat64()}
}

func (s sink) set(i int, v float64) {
	if s.f32 != nil {
		s.f32[i] = float32(v)
		return
	}
	s.f64[i] = v
}

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)
