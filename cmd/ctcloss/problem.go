package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/ctcloss/ctc"
	"github.com/born-ml/ctcloss/tensor"
)

// shape describes a generated batch: T×B×C log-probs and targets whose
// lengths are drawn from [minTarget, maxTarget).
type shape struct {
	steps, size, classes int
	minTarget, maxTarget int
}

func (s shape) String() string {
	return fmt.Sprintf("%4d x %3d x %2d x %3d", s.steps, s.size, s.classes, s.maxTarget)
}

func (s shape) check(blank int) error {
	switch {
	case s.steps < 1 || s.size < 1 || s.classes < 2:
		return fmt.Errorf("shape %v: need T ≥ 1, B ≥ 1 and C ≥ 2", s)
	case s.minTarget < 0 || s.maxTarget <= s.minTarget:
		return fmt.Errorf("shape %v: target lengths need 0 ≤ min < max", s)
	case blank < 0 || blank >= s.classes:
		return fmt.Errorf("blank %d outside [0, %d)", blank, s.classes)
	}
	return nil
}

// problem is one randomly generated operator call.
type problem[B tensor.Backend] struct {
	logits        *tensor.Tensor[float32, B]
	targets       *tensor.Tensor[int32, B]
	inputLengths  *tensor.Tensor[int32, B]
	targetLengths *tensor.Tensor[int32, B]
}

// newProblem draws standard normal logits and labels that avoid blank.
// With fullInput every example uses all T frames; otherwise input lengths
// are drawn from [T/2, T).
func newProblem[B tensor.Backend](s shape, fullInput bool, blank int, rng *rand.Rand, backend B) problem[B] {
	p := problem[B]{
		logits:        tensor.Randn[float32](tensor.Shape{s.steps, s.size, s.classes}, rng, backend),
		targets:       tensor.RandInt[int32](tensor.Shape{s.size, s.maxTarget}, 0, s.classes-1, rng, backend),
		targetLengths: tensor.RandInt[int32](tensor.Shape{s.size}, s.minTarget, s.maxTarget, rng, backend),
	}
	for i, v := range p.targets.Data() {
		if int(v) >= blank {
			p.targets.Data()[i] = v + 1
		}
	}

	if fullInput || s.steps < 2 {
		p.inputLengths = tensor.Full[int32](tensor.Shape{s.size}, int32(s.steps), backend) //nolint:gosec // G115: T fits in int32.
	} else {
		p.inputLengths = tensor.RandInt[int32](tensor.Shape{s.size}, s.steps/2, s.steps, rng, backend)
	}
	return p
}

// input returns the raw operator inputs with log-softmax normalized log-probs.
func (p problem[B]) input() ctc.Input {
	return ctc.Input{
		LogProbs:      p.logits.LogSoftmax(-1).Raw(),
		Targets:       p.targets.Raw(),
		InputLengths:  p.inputLengths.Raw(),
		TargetLengths: p.targetLengths.Raw(),
	}
}
