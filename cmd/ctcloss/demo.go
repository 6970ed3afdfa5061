package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"

	"github.com/born-ml/ctcloss/autodiff"
	"github.com/born-ml/ctcloss/ctc"
	"github.com/born-ml/ctcloss/tensor"
	"github.com/spf13/cobra"
)

func addShapeFlags(cmd *cobra.Command, s *shape) {
	flags := cmd.Flags()
	flags.IntVar(&s.steps, "steps", s.steps, "time steps T")
	flags.IntVar(&s.size, "batch", s.size, "batch size B")
	flags.IntVar(&s.classes, "classes", s.classes, "classes C including blank")
	flags.IntVar(&s.maxTarget, "max-target", s.maxTarget, "padded target length S; lengths are drawn below it")
	flags.IntVar(&s.minTarget, "min-target", s.minTarget, "shortest target length")
}

func newDemoCmd(o *options) *cobra.Command {
	s := shape{steps: 50, size: 16, classes: 20, minTarget: 10, maxTarget: 30}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Train-step walkthrough: loss and logit gradient through LogSoftmax",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout(), o, s)
		},
	}
	addShapeFlags(cmd, &s)
	return cmd
}

func runDemo(ctx context.Context, w io.Writer, o *options, s shape) error {
	if err := s.check(o.blank); err != nil {
		return err
	}
	cfg, err := o.config()
	if err != nil {
		return err
	}
	d, ctx, err := o.dispatcher(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	backend := autodiff.New(d.Route(ctx))
	backend.Tape().StartRecording()

	rng := rand.New(rand.NewPCG(o.seed, 0)) //nolint:gosec // G404: inputs only need to be reproducible.
	p := newProblem(s, true, o.blank, rng, backend)

	logProbs := p.logits.LogSoftmax(-1)
	loss, err := ctc.Loss(logProbs, p.targets, p.inputLengths, p.targetLengths, ctc.WithBlank(o.blank))
	if err != nil {
		return err
	}
	objective := loss.Div(tensor.Cast[float32](p.targetLengths)).Mean()
	grads := autodiff.Backward(objective, backend)
	dLogits, ok := grads[p.logits.Raw()]
	if !ok {
		return fmt.Errorf("no gradient reached the logits")
	}

	infeasible := 0
	for _, v := range loss.Data() {
		if math.IsInf(float64(v), 1) {
			infeasible++
		}
	}

	var norm, peak float64
	for _, v := range dLogits.AsFloat32() {
		norm += float64(v) * float64(v)
		peak = max(peak, math.Abs(float64(v)))
	}

	fmt.Fprintf(w, "backend:      %s\n", backend.Name())
	fmt.Fprintf(w, "shape:        T=%d B=%d C=%d S=%d\n", s.steps, s.size, s.classes, s.maxTarget)
	fmt.Fprintf(w, "loss:         %v\n", loss.Data())
	fmt.Fprintf(w, "infeasible:   %d\n", infeasible)
	fmt.Fprintf(w, "objective:    %.6f\n", objective.Item())
	fmt.Fprintf(w, "grad shape:   %v\n", dLogits.Shape())
	fmt.Fprintf(w, "grad norm:    %.6f\n", math.Sqrt(norm))
	fmt.Fprintf(w, "grad max abs: %.6f\n", peak)
	return nil
}
