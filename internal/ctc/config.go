package ctc

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/parallel"
)

// KernelKind selects how lattice work is scheduled on the CPU.
type KernelKind int

// Kernel variants.
const (
	// KernelSequential walks examples one after another on the calling goroutine.
	KernelSequential KernelKind = iota
	// KernelParallel runs one worker per example (or chunk of examples).
	KernelParallel
	// KernelTiled splits every timestep into (example, state-tile) work items
	// with a barrier between timesteps, the same schedule the GPU shaders use.
	KernelTiled
)

// String returns the kernel name.
func (k KernelKind) String() string {
	switch k {
	case KernelSequential:
		return "sequential"
	case KernelParallel:
		return "parallel"
	case KernelTiled:
		return "tiled"
	default:
		return "unknown"
	}
}

// ParseKernelKind maps a kernel name to its KernelKind.
func ParseKernelKind(name string) (KernelKind, error) {
	switch name {
	case "sequential", "seq":
		return KernelSequential, nil
	case "parallel", "par":
		return KernelParallel, nil
	case "tiled", "simt":
		return KernelTiled, nil
	default:
		return KernelSequential, fmt.Errorf("unknown kernel %q", name)
	}
}

// Config configures validation limits and kernel scheduling.
type Config struct {
	// Blank is the class index reserved for the blank symbol.
	Blank int

	// MaxLatticeCells bounds T×(2S+1) for a single example. Zero disables the check.
	MaxLatticeCells int

	// MaxArenaCells bounds B×T×(2S+1) for a whole call. Zero disables the check.
	MaxArenaCells int

	// Kernel selects the CPU scheduling strategy.
	Kernel KernelKind

	// TileSize is the number of lattice states one tiled work item covers.
	TileSize int

	// Parallel controls worker fan-out for the parallel and tiled kernels.
	Parallel parallel.Config
}

// DefaultConfig returns sensible defaults.
// The lattice bounds allow a 128 MiB float64 lattice per example and 1 GiB per call.
func DefaultConfig() Config {
	par := parallel.DefaultConfig()
	par.MinChunkSize = 1

	return Config{
		Blank:           0,
		MaxLatticeCells: 1 << 24,
		MaxArenaCells:   1 << 27,
		Kernel:          KernelParallel,
		TileSize:        64,
		Parallel:        par,
	}
}

// Option configures a Config.
type Option func(*Config)

// WithBlank sets the blank class index.
func WithBlank(blank int) Option {
	return func(c *Config) {
		c.Blank = blank
	}
}

// WithMaxLatticeCells sets the per-example lattice bound.
func WithMaxLatticeCells(n int) Option {
	return func(c *Config) {
		c.MaxLatticeCells = n
	}
}

// WithMaxArenaCells sets the per-call scratch bound.
func WithMaxArenaCells(n int) Option {
	return func(c *Config) {
		c.MaxArenaCells = n
	}
}

// WithKernel selects the CPU kernel.
func WithKernel(k KernelKind) Option {
	return func(c *Config) {
		c.Kernel = k
	}
}

// WithTileSize sets the state-tile width of the tiled kernel.
func WithTileSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.TileSize = n
		}
	}
}

// WithWorkers sets the number of worker goroutines. One or less disables fan-out.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Parallel.NumWorkers = n
		c.Parallel.Enabled = n > 1
	}
}

// NewConfig applies opts on top of DefaultConfig.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
