package ctc

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// Report is the outcome of checking one backend against a reference.
type Report struct {
	Name     string
	LossDiff float64 // max |loss - ref| / max |ref| over finite references
	GradDiff float64 // same measure over the gradient
}

// Within reports whether both differences are at most tol.
func (r Report) Within(tol float64) bool {
	return r.LossDiff <= tol && r.GradDiff <= tol
}

// Compare evaluates loss and gradient on ref and on every candidate
// concurrently and reports how far each candidate is from ref.
// A candidate that panics is reported as an error.
func Compare(ctx context.Context, b *Batch, ref Backend, candidates ...Backend) ([]Report, error) {
	type result struct {
		loss, grad []float64
	}

	run := func(be Backend) (res result, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("ctc: %s: %v", be.Name(), r)
			}
		}()
		res.loss = be.CTCLoss(b).Floats()
		res.grad = be.CTCLossBackward(b, nil).Floats()
		return res, nil
	}

	want, err := run(ref)
	if err != nil {
		return nil, err
	}

	reports := make([]Report, len(candidates))
	g, ctx := errgroup.WithContext(ctx)
	for i, be := range candidates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			got, err := run(be)
			if err != nil {
				return err
			}
			reports[i] = Report{
				Name:     be.Name(),
				LossDiff: RelDiff(got.loss, want.loss),
				GradDiff: RelDiff(got.grad, want.grad),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// RelDiff returns max |got - want| scaled by max |want|, skipping cells where
// both sides hold the same infinity. A mismatched infinity or NaN is +Inf.
func RelDiff(got, want []float64) float64 {
	if len(got) != len(want) {
		return math.Inf(1)
	}

	scale, diff := 0.0, 0.0
	for i, w := range want {
		v := got[i]
		if math.IsInf(w, 0) || math.IsInf(v, 0) || math.IsNaN(v) || math.IsNaN(w) {
			if v != w {
				return math.Inf(1)
			}
			continue
		}
		scale = max(scale, math.Abs(w))
		diff = max(diff, math.Abs(v-w))
	}
	if scale == 0 {
		return diff
	}
	return diff / scale
}
