package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/born-ml/ctcloss/backend/cpu"
	"github.com/born-ml/ctcloss/ctc"
	"github.com/born-ml/ctcloss/tensor"
	"github.com/spf13/cobra"
)

// benchGroups sweep one dimension at a time around T=128 B=128 C=32 S=32.
var benchGroups = []struct {
	title  string
	shapes []shape
}{
	{"time and target length", []shape{
		{steps: 64, size: 128, classes: 32, minTarget: 8, maxTarget: 16},
		{steps: 128, size: 128, classes: 32, minTarget: 16, maxTarget: 32},
		{steps: 256, size: 128, classes: 32, minTarget: 32, maxTarget: 64},
		{steps: 512, size: 128, classes: 32, minTarget: 64, maxTarget: 128},
		{steps: 1024, size: 128, classes: 32, minTarget: 128, maxTarget: 256},
	}},
	{"batch size", []shape{
		{steps: 128, size: 32, classes: 32, minTarget: 16, maxTarget: 32},
		{steps: 128, size: 64, classes: 32, minTarget: 16, maxTarget: 32},
		{steps: 128, size: 128, classes: 32, minTarget: 16, maxTarget: 32},
		{steps: 128, size: 256, classes: 32, minTarget: 16, maxTarget: 32},
		{steps: 128, size: 512, classes: 32, minTarget: 16, maxTarget: 32},
	}},
	{"classes", []shape{
		{steps: 128, size: 128, classes: 8, minTarget: 16, maxTarget: 32},
		{steps: 128, size: 128, classes: 16, minTarget: 16, maxTarget: 32},
		{steps: 128, size: 128, classes: 32, minTarget: 16, maxTarget: 32},
		{steps: 128, size: 128, classes: 48, minTarget: 16, maxTarget: 32},
		{steps: 128, size: 128, classes: 64, minTarget: 16, maxTarget: 32},
	}},
	{"target length", []shape{
		{steps: 256, size: 128, classes: 32, minTarget: 8, maxTarget: 16},
		{steps: 256, size: 128, classes: 32, minTarget: 12, maxTarget: 24},
		{steps: 256, size: 128, classes: 32, minTarget: 16, maxTarget: 32},
		{steps: 256, size: 128, classes: 32, minTarget: 24, maxTarget: 48},
		{steps: 256, size: 128, classes: 32, minTarget: 32, maxTarget: 64},
	}},
}

func newBenchCmd(o *options) *cobra.Command {
	var (
		number int
		quick  bool
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure loss+gradient throughput in MB/s of log-probs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd.Context(), cmd.OutOrStdout(), o, number, quick)
		},
	}
	cmd.Flags().IntVar(&number, "number", 10, "loss+gradient steps timed per shape")
	cmd.Flags().BoolVar(&quick, "quick", false, "only run the two smallest shapes")
	return cmd
}

// lane is one benchmarked column: a dispatcher and the device it is asked for.
type lane struct {
	label string
	d     *ctc.Dispatcher
	ctx   context.Context
}

func runBench(ctx context.Context, w io.Writer, o *options, number int, quick bool) error {
	if number < 1 {
		return fmt.Errorf("--number must be positive, got %d", number)
	}
	cfg, err := o.config()
	if err != nil {
		return err
	}

	var lanes []lane
	for _, kind := range []ctc.KernelKind{ctc.KernelSequential, ctc.KernelParallel, ctc.KernelTiled} {
		kcfg := cfg
		kcfg.Kernel = kind
		d := ctc.NewDispatcher(ctc.WithConfig(kcfg), ctc.WithLogger(o.logger))
		defer d.Close()
		lanes = append(lanes, lane{"cpu/" + kind.String(), d, ctx})
	}
	gpu := ctc.NewDispatcher(ctc.WithConfig(cfg), ctc.WithGPU(), ctc.WithLogger(o.logger))
	defer gpu.Close()
	if slices.Contains(gpu.Devices(), tensor.WebGPU) {
		lanes = append(lanes, lane{"webgpu", gpu, ctc.WithDevice(ctx, tensor.WebGPU)})
	}

	groups := benchGroups
	if quick {
		groups = []struct {
			title  string
			shapes []shape
		}{{benchGroups[0].title, benchGroups[0].shapes[:2]}}
	}

	rng := rand.New(rand.NewPCG(o.seed, 0)) //nolint:gosec // G404: inputs only need to be reproducible.
	backend := cpu.New()
	for _, g := range groups {
		fmt.Fprintf(w, "\n%s (MB/s)\n", g.title)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprint(tw, "T x B x C x S\t")
		for _, l := range lanes {
			fmt.Fprintf(tw, "%s\t", l.label)
		}
		fmt.Fprintln(tw)

		for _, s := range g.shapes {
			if err := s.check(o.blank); err != nil {
				return err
			}
			p := newProblem(s, false, o.blank, rng, backend)
			b, err := ctc.Validate(p.input(), cfg)
			if err != nil {
				return err
			}
			// Upstream of mean(loss / target_length).
			upstream := tensor.Cast[float32](p.targetLengths).MulScalar(float32(s.size)).Raw()
			for i, v := range upstream.AsFloat32() {
				upstream.AsFloat32()[i] = 1 / max(v, 1)
			}

			fmt.Fprintf(tw, "%v\t", s)
			for _, l := range lanes {
				elapsed, err := timeSteps(l, b, upstream, number)
				if err != nil {
					return err
				}
				bytes := float64(b.LogProbs.ByteSize()) * float64(number)
				fmt.Fprintf(tw, "%.1f\t", bytes/elapsed.Seconds()/1e6)
			}
			fmt.Fprintln(tw)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func timeSteps(l lane, b *ctc.Batch, upstream *tensor.RawTensor, number int) (time.Duration, error) {
	start := time.Now()
	for range number {
		if _, err := l.d.LossBatch(l.ctx, b); err != nil {
			return 0, err
		}
		if _, err := l.d.GradientBatch(l.ctx, b, upstream); err != nil {
			return 0, err
		}
	}
	return time.Since(start), nil
}
