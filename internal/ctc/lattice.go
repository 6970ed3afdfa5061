package ctc

import "math"

// logAddExp returns log(exp(x) + exp(y)) without overflow.
func logAddExp(x, y float64) float64 {
	if x == negInf {
		return y
	}
	if y == negInf {
		return x
	}
	if x < y {
		x, y = y, x
	}
	return x + math.Log1p(math.Exp(y-x))
}

// logAddExp3 returns log(exp(x) + exp(y) + exp(z)) without overflow.
func logAddExp3(x, y, z float64) float64 {
	switch {
	case x == negInf:
		return logAddExp(y, z)
	case y == negInf:
		return logAddExp(x, z)
	case z == negInf:
		return logAddExp(x, y)
	}
	m := max(x, y, z)
	return m + math.Log(math.Exp(x-m)+math.Exp(y-m)+math.Exp(z-m))
}

// Lattice is one example's T_n × L_n matrix of log-probabilities.
// A rolling lattice keeps only the last two rows, which is all the forward
// pass needs when no gradient is requested.
type Lattice struct {
	data   []float64
	states int
	rows   int
}

// Row returns the states of timestep t.
func (l Lattice) Row(t int) []float64 {
	r := t % l.rows
	return l.data[r*l.states : (r+1)*l.states]
}

// At returns the cell (t, s).
func (l Lattice) At(t, s int) float64 {
	return l.Row(t)[s]
}

// States returns the row width.
func (l Lattice) States() int {
	return l.states
}

// Arena owns the scratch lattices of one call, one disjoint region per
// example, so concurrent workers never alias memory.
type Arena struct {
	buf     []float64
	offsets []int
	rows    []int
	states  []int
}

// NewArena allocates full T_n × L_n lattices for every feasible example.
func NewArena(b *Batch) *Arena {
	return newArena(b, false)
}

// NewRollingArena allocates two-row lattices for forward-only calls.
func NewRollingArena(b *Batch) *Arena {
	return newArena(b, true)
}

func newArena(b *Batch, rolling bool) *Arena {
	a := &Arena{
		offsets: make([]int, b.Size),
		rows:    make([]int, b.Size),
		states:  make([]int, b.Size),
	}

	total := 0
	for n := 0; n < b.Size; n++ {
		a.offsets[n] = total
		if !b.Feasible(n) {
			continue
		}
		rows := b.InputLengths[n]
		if rolling {
			rows = min(rows, 2)
		}
		a.rows[n] = rows
		a.states[n] = b.States(n)
		total += rows * a.states[n]
	}
	a.buf = make([]float64, total)
	return a
}

// Lattice returns the scratch region of example n.
func (a *Arena) Lattice(n int) Lattice {
	size := a.rows[n] * a.states[n]
	return Lattice{
		data:   a.buf[a.offsets[n] : a.offsets[n]+size],
		states: a.states[n],
		rows:   max(a.rows[n], 1),
	}
}

// fits reports whether a holds a full lattice for every feasible example of b.
func (a *Arena) fits(b *Batch) bool {
	if len(a.rows) != b.Size {
		return false
	}
	for n := 0; n < b.Size; n++ {
		if b.Feasible(n) && (a.rows[n] != b.InputLengths[n] || a.states[n] != b.States(n)) {
			return false
		}
	}
	return true
}

// Cells returns the number of float64 cells held by the arena.
func (a *Arena) Cells() int {
	return len(a.buf)
}
