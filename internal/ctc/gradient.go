package ctc

import "math"

// assembleStep writes grad(t, n, ·) scaled by upstream.
//
// For every class c, lcab collects log Σ alpha(t,s)+beta(t,s) over the states
// labeled c. Because beta includes p(t,c), the occupation is
// exp(lcab + nll - p(t,c)), and the gradient follows the softmax-domain
// convention exp(p(t,c)) - occupation.
func (b *Batch) assembleStep(n, t int, alpha, beta Lattice, nll, upstream float64, lcab []float64, out sink) {
	for c := range lcab {
		lcab[c] = negInf
	}

	ar, br := alpha.Row(t), beta.Row(t)
	for s := range ar {
		c := b.Label(n, s)
		lcab[c] = logAddExp(lcab[c], ar[s]+br[s])
	}

	base := (t*b.Size + n) * b.NumClasses
	for c, lc := range lcab {
		lp := b.LogProb(t, n, c)
		g := math.Exp(lp)
		if lc != negInf {
			g -= math.Exp(lc + nll - lp)
		}
		out.set(base+c, g*upstream)
	}
}

// Assemble writes the gradient of example n for every valid frame.
// Frames at or beyond InputLengths[n] are left untouched (zero).
func (b *Batch) Assemble(n int, alpha, beta Lattice, total, upstream float64, lcab []float64, out sink) {
	nll := -total
	for t := 0; t < b.InputLengths[n]; t++ {
		b.assembleStep(n, t, alpha, beta, nll, upstream, lcab, out)
	}
}
