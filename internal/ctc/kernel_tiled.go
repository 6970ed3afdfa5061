package ctc

import (
	"github.com/born-ml/ctcloss/internal/parallel"
	"github.com/born-ml/ctcloss/internal/tensor"
)

// Tiled emulates the accelerator schedule on CPU. Each timestep is one
// parallel round over (example, state-range) tiles, and parallel.For returning
// is the barrier before the next timestep reads the row just written.
//
// The round structure matches the WebGPU shaders one to one: alpha and beta
// over a (tile, B) grid per timestep, the gradient over a (B, T) grid and the
// final loss over B.
type Tiled struct {
	TileSize int
	Parallel parallel.Config
}

type tile struct {
	n, lo, hi int
}

// Name returns the kernel name.
func (k *Tiled) Name() string {
	return KernelTiled.String()
}

func (k *Tiled) tiles(b *Batch) []tile {
	size := max(k.TileSize, 1)
	var tiles []tile
	for n := 0; n < b.Size; n++ {
		if !b.Feasible(n) {
			continue
		}
		states := b.States(n)
		for lo := 0; lo < states; lo += size {
			tiles = append(tiles, tile{n: n, lo: lo, hi: min(lo+size, states)})
		}
	}
	return tiles
}

func (k *Tiled) alpha(b *Batch, arena *Arena, tiles []tile) {
	parallel.For(len(tiles), func(i int) {
		tl := tiles[i]
		b.alphaInit(tl.n, arena.Lattice(tl.n).Row(0), tl.lo, tl.hi)
	}, k.Parallel)

	for t := 1; t < b.MaxTime; t++ {
		parallel.For(len(tiles), func(i int) {
			tl := tiles[i]
			if t >= b.InputLengths[tl.n] {
				return
			}
			lat := arena.Lattice(tl.n)
			b.alphaStep(tl.n, t, tl.lo, tl.hi, lat.Row(t-1), lat.Row(t))
		}, k.Parallel)
	}
}

func (k *Tiled) beta(b *Batch, arena *Arena, tiles []tile) {
	for t := b.MaxTime - 1; t >= 0; t-- {
		parallel.For(len(tiles), func(i int) {
			tl := tiles[i]
			last := b.InputLengths[tl.n] - 1
			if t > last {
				return
			}
			lat := arena.Lattice(tl.n)
			if t == last {
				b.betaInit(tl.n, lat.Row(t), tl.lo, tl.hi)
				return
			}
			b.betaStep(tl.n, t, tl.lo, tl.hi, lat.Row(t+1), lat.Row(t))
		}, k.Parallel)
	}
}

func (k *Tiled) totals(b *Batch, alpha *Arena) []float64 {
	totals := make([]float64, b.Size)
	parallel.For(b.Size, func(n int) {
		totals[n] = negInf
		if b.Feasible(n) {
			totals[n] = b.totalLogLikelihood(n, alpha.Lattice(n))
		}
	}, k.Parallel)
	return totals
}

// Forward implements Kernel.
func (k *Tiled) Forward(b *Batch, loss *tensor.RawTensor) {
	k.forward(b, NewRollingArena(b), loss)
}

// ForwardRetain implements Kernel.
func (k *Tiled) ForwardRetain(b *Batch, loss *tensor.RawTensor) *Arena {
	alpha := NewArena(b)
	k.forward(b, alpha, loss)
	return alpha
}

func (k *Tiled) forward(b *Batch, alpha *Arena, loss *tensor.RawTensor) {
	k.alpha(b, alpha, k.tiles(b))

	out := newSink(loss)
	for n, total := range k.totals(b, alpha) {
		out.set(n, lossFromTotal(total))
	}
}

// Backward implements Kernel.
func (k *Tiled) Backward(b *Batch, upstream []float64, grad *tensor.RawTensor) {
	k.BackwardFrom(b, nil, upstream, grad)
}

// BackwardFrom implements Kernel.
func (k *Tiled) BackwardFrom(b *Batch, alpha *Arena, upstream []float64, grad *tensor.RawTensor) {
	alpha, filled := reuseArena(b, alpha)
	beta := NewArena(b)
	tiles := k.tiles(b)
	if !filled {
		k.alpha(b, alpha, tiles)
	}
	totals := k.totals(b, alpha)
	k.beta(b, beta, tiles)

	out := newSink(grad)
	parallel.ForBatch(b.Size, b.MaxTime, func(n, t int) {
		if t >= b.InputLengths[n] || totals[n] == negInf {
			return
		}
		lcab := make([]float64, b.NumClasses)
		b.assembleStep(n, t, alpha.Lattice(n), beta.Lattice(n), -totals[n], upstream[n], lcab, out)
	}, k.Parallel)
}
