package ctc

// alphaInit fills states [lo, hi) of alpha(0, ·). Only the leading blank and
// the first label can start an alignment.
func (b *Batch) alphaInit(n int, row []float64, lo, hi int) {
	for s := lo; s < hi; s++ {
		switch s {
		case 0:
			row[s] = b.LogProb(0, n, b.Blank)
		case 1:
			row[s] = b.LogProb(0, n, b.Label(n, 1))
		default:
			row[s] = negInf
		}
	}
}

// alphaCell computes alpha(t, s) from alpha(t-1, ·).
func (b *Batch) alphaCell(n, t, s int, prev []float64) float64 {
	var acc float64
	switch {
	case s == 0:
		acc = prev[0]
	case b.canSkip(n, s):
		acc = logAddExp3(prev[s], prev[s-1], prev[s-2])
	default:
		acc = logAddExp(prev[s], prev[s-1])
	}
	return acc + b.LogProb(t, n, b.Label(n, s))
}

// alphaStep computes states [lo, hi) of alpha(t, ·). States within one row
// only depend on the previous row, so disjoint ranges may run concurrently.
func (b *Batch) alphaStep(n, t, lo, hi int, prev, cur []float64) {
	for s := lo; s < hi; s++ {
		cur[s] = b.alphaCell(n, t, s, prev)
	}
}

// totalLogLikelihood combines the two accepting states of the last frame:
// the trailing blank and the last label.
func (b *Batch) totalLogLikelihood(n int, alpha Lattice) float64 {
	last := alpha.Row(b.InputLengths[n] - 1)
	states := len(last)
	total := last[states-1]
	if states > 1 {
		total = logAddExp(total, last[states-2])
	}
	return total
}

// Forward runs the alpha recursion of a feasible example n and returns its
// total log-likelihood, which is -Inf when every alignment underflows.
func (b *Batch) Forward(n int, alpha Lattice) float64 {
	states := alpha.States()
	b.alphaInit(n, alpha.Row(0), 0, states)
	for t := 1; t < b.InputLengths[n]; t++ {
		b.alphaStep(n, t, 0, states, alpha.Row(t-1), alpha.Row(t))
	}
	return b.totalLogLikelihood(n, alpha)
}

// lossFromTotal maps a total log-likelihood to the reported loss.
func lossFromTotal(total float64) float64 {
	if total == negInf {
		return posInf
	}
	return -total
}
