package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"text/tabwriter"

	"github.com/born-ml/ctcloss/backend/cpu"
	"github.com/born-ml/ctcloss/ctc"
	"github.com/born-ml/ctcloss/tensor"
	"github.com/spf13/cobra"
)

func newCheckCmd(o *options) *cobra.Command {
	s := shape{steps: 128, size: 256, classes: 32, minTarget: 16, maxTarget: 32}
	var tol float64
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare every kernel and device against the sequential CPU reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), o, s, tol)
		},
	}
	addShapeFlags(cmd, &s)
	cmd.Flags().Float64Var(&tol, "tol", 1e-4, "largest accepted relative difference")
	return cmd
}

type candidate struct {
	label   string
	backend ctc.Backend
}

func runCheck(ctx context.Context, w io.Writer, o *options, s shape, tol float64) error {
	if err := s.check(o.blank); err != nil {
		return err
	}
	cfg, err := o.config()
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(o.seed, 0)) //nolint:gosec // G404: inputs only need to be reproducible.
	p := newProblem(s, false, o.blank, rng, cpu.New())
	b, err := ctc.Validate(p.input(), cfg)
	if err != nil {
		return err
	}

	ref := cpu.New(cpu.WithConfig(cfg), cpu.WithKernel(ctc.KernelSequential))
	candidates := []candidate{
		{"cpu/parallel", cpu.New(cpu.WithConfig(cfg), cpu.WithKernel(ctc.KernelParallel))},
		{"cpu/tiled", cpu.New(cpu.WithConfig(cfg), cpu.WithKernel(ctc.KernelTiled))},
	}

	d := ctc.NewDispatcher(ctc.WithConfig(cfg), ctc.WithGPU(), ctc.WithLogger(o.logger))
	defer d.Close()
	if slices.Contains(d.Devices(), tensor.WebGPU) {
		candidates = append(candidates, candidate{"webgpu", d.Backend(ctc.WithDevice(ctx, tensor.WebGPU))})
	}

	backends := make([]ctc.Backend, len(candidates))
	for i, c := range candidates {
		backends[i] = c.backend
	}
	reports, err := ctc.Compare(ctx, b, ref, backends...)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "shape T=%d B=%d C=%d S=%d, %d infeasible, reference cpu/sequential\n",
		s.steps, s.size, s.classes, s.maxTarget, b.Infeasible())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "backend\tloss diff\tgrad diff\tok")
	failed := 0
	for i, r := range reports {
		ok := r.Within(tol)
		if !ok {
			failed++
		}
		fmt.Fprintf(tw, "%s\t%.3g\t%.3g\t%t\n", candidates[i].label, r.LossDiff, r.GradDiff, ok)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d backends differ from the reference by more than %g", failed, len(reports), tol)
	}
	return nil
}
