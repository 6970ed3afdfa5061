package ctc

// betaInit fills states [lo, hi) of beta(T_n-1, ·). Only the trailing blank
// and the last label can end an alignment.
func (b *Batch) betaInit(n int, row []float64, lo, hi int) {
	last := b.InputLengths[n] - 1
	states := len(row)
	for s := lo; s < hi; s++ {
		switch s {
		case states - 1:
			row[s] = b.LogProb(last, n, b.Blank)
		case states - 2:
			row[s] = b.LogProb(last, n, b.Label(n, s))
		default:
			row[s] = negInf
		}
	}
}

// betaCell computes beta(t, s) from beta(t+1, ·). It mirrors alphaCell: the
// jump s → s+2 is allowed exactly when state s+2 may be entered from s.
func (b *Batch) betaCell(n, t, s int, next []float64) float64 {
	states := len(next)
	var acc float64
	switch {
	case s+2 < states && b.canSkip(n, s+2):
		acc = logAddExp3(next[s], next[s+1], next[s+2])
	case s+1 < states:
		acc = logAddExp(next[s], next[s+1])
	default:
		acc = next[s]
	}
	return acc + b.LogProb(t, n, b.Label(n, s))
}

// betaStep computes states [lo, hi) of beta(t, ·).
func (b *Batch) betaStep(n, t, lo, hi int, next, cur []float64) {
	for s := lo; s < hi; s++ {
		cur[s] = b.betaCell(n, t, s, next)
	}
}

// Backward runs the beta recursion of a feasible example n. The lattice must
// hold all T_n rows.
func (b *Batch) Backward(n int, beta Lattice) {
	states := beta.States()
	last := b.InputLengths[n] - 1
	b.betaInit(n, beta.Row(last), 0, states)
	for t := last - 1; t >= 0; t-- {
		b.betaStep(n, t, 0, states, beta.Row(t+1), beta.Row(t))
	}
}
