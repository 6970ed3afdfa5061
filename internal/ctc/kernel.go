package ctc

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/parallel"
	"github.com/born-ml/ctcloss/internal/tensor"
)

// Kernel schedules the lattice recursions for a validated batch.
// Implementations differ only in how independent work is spread over
// goroutines; every variant evaluates the same cells in the same order
// within an example.
type Kernel interface {
	// Name identifies the kernel in logs and metrics.
	Name() string

	// Forward writes the per-example loss into loss ([B], batch dtype).
	Forward(b *Batch, loss *tensor.RawTensor)

	// ForwardRetain is Forward that keeps full alpha lattices and returns them
	// for a later BackwardFrom on the same batch.
	ForwardRetain(b *Batch, loss *tensor.RawTensor) *Arena

	// Backward writes dLoss/dLogProbs, scaled per example by upstream ([B]),
	// into grad ([T, B, C], zero-initialized).
	Backward(b *Batch, upstream []float64, grad *tensor.RawTensor)

	// BackwardFrom is Backward reusing the alpha lattices ForwardRetain
	// returned for b. A nil alpha recomputes them.
	BackwardFrom(b *Batch, alpha *Arena, upstream []float64, grad *tensor.RawTensor)
}

// NewKernel returns the kernel selected by cfg.
func NewKernel(cfg Config) Kernel {
	switch cfg.Kernel {
	case KernelSequential:
		return Sequential{}
	case KernelTiled:
		return &Tiled{TileSize: cfg.TileSize, Parallel: cfg.Parallel}
	default:
		return &Parallel{Config: cfg.Parallel}
	}
}

func forwardExample(b *Batch, arena *Arena, n int, out sink) {
	if !b.Feasible(n) {
		out.set(n, posInf)
		return
	}
	out.set(n, lossFromTotal(b.Forward(n, arena.Lattice(n))))
}

// backwardExample assembles the gradient of example n. When filled is set,
// alpha already holds the forward lattices.
func backwardExample(b *Batch, alpha, beta *Arena, n int, filled bool, upstream float64, out sink) {
	if !b.Feasible(n) {
		return
	}
	al := alpha.Lattice(n)
	var total float64
	if filled {
		total = b.totalLogLikelihood(n, al)
	} else {
		total = b.Forward(n, al)
	}
	if total == negInf {
		return
	}
	bl := beta.Lattice(n)
	b.Backward(n, bl)
	b.Assemble(n, al, bl, total, upstream, make([]float64, b.NumClasses), out)
}

// Sequential processes one example after another on the calling goroutine.
// It is the reference the other kernels are checked against.
type Sequential struct{}

// Name returns the kernel name.
func (Sequential) Name() string {
	return KernelSequential.String()
}

// Forward implements Kernel.
func (k Sequential) Forward(b *Batch, loss *tensor.RawTensor) {
	k.forward(b, NewRollingArena(b), loss)
}

// ForwardRetain implements Kernel.
func (k Sequential) ForwardRetain(b *Batch, loss *tensor.RawTensor) *Arena {
	alpha := NewArena(b)
	k.forward(b, alpha, loss)
	return alpha
}

func (Sequential) forward(b *Batch, arena *Arena, loss *tensor.RawTensor) {
	out := newSink(loss)
	for n := 0; n < b.Size; n++ {
		forwardExample(b, arena, n, out)
	}
}

// Backward implements Kernel.
func (k Sequential) Backward(b *Batch, upstream []float64, grad *tensor.RawTensor) {
	k.BackwardFrom(b, nil, upstream, grad)
}

// BackwardFrom implements Kernel.
func (Sequential) BackwardFrom(b *Batch, alpha *Arena, upstream []float64, grad *tensor.RawTensor) {
	alpha, filled := reuseArena(b, alpha)
	beta := NewArena(b)
	out := newSink(grad)
	for n := 0; n < b.Size; n++ {
		backwardExample(b, alpha, beta, n, filled, upstream[n], out)
	}
}

// Parallel gives each example (or chunk of examples) its own goroutine.
// Workers write disjoint arena regions and disjoint output cells.
type Parallel struct {
	Config parallel.Config
}

// Name returns the kernel name.
func (k *Parallel) Name() string {
	return KernelParallel.String()
}

// Forward implements Kernel.
func (k *Parallel) Forward(b *Batch, loss *tensor.RawTensor) {
	k.forward(b, NewRollingArena(b), loss)
}

// ForwardRetain implements Kernel.
func (k *Parallel) ForwardRetain(b *Batch, loss *tensor.RawTensor) *Arena {
	alpha := NewArena(b)
	k.forward(b, alpha, loss)
	return alpha
}

func (k *Parallel) forward(b *Batch, arena *Arena, loss *tensor.RawTensor) {
	out := newSink(loss)
	parallel.For(b.Size, func(n int) {
		forwardExample(b, arena, n, out)
	}, k.Config)
}

// Backward implements Kernel.
func (k *Parallel) Backward(b *Batch, upstream []float64, grad *tensor.RawTensor) {
	k.BackwardFrom(b, nil, upstream, grad)
}

// BackwardFrom implements Kernel.
func (k *Parallel) BackwardFrom(b *Batch, alpha *Arena, upstream []float64, grad *tensor.RawTensor) {
	alpha, filled := reuseArena(b, alpha)
	beta := NewArena(b)
	out := newSink(grad)
	parallel.For(b.Size, func(n int) {
		backwardExample(b, alpha, beta, n, filled, upstream[n], out)
	}, k.Config)
}

// reuseArena returns alpha and true when it holds the full lattices of b,
// or a fresh arena and false when alpha is nil. Anything else panics: a
// rolling arena or one built for another batch cannot seed the gradient.
func reuseArena(b *Batch, alpha *Arena) (*Arena, bool) {
	if alpha == nil {
		return NewArena(b), false
	}
	if !alpha.fits(b) {
		panic(fmt.Sprintf("ctc: retained lattice of %d cells does not match batch of %d cells", alpha.Cells(), b.LatticeCells()))
	}
	return alpha, true
}
