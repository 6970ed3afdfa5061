// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ctc

import (
	"github.com/born-ml/ctcloss/internal/ctc"
)

// Config configures validation limits and CPU kernel scheduling.
type Config = ctc.Config

// Option configures a Config.
type Option = ctc.Option

// KernelKind selects how lattice work is scheduled on the CPU.
type KernelKind = ctc.KernelKind

// CPU lattice kernels.
const (
	KernelSequential = ctc.KernelSequential
	KernelParallel   = ctc.KernelParallel
	KernelTiled      = ctc.KernelTiled
)

// ParseKernelKind maps "sequential", "parallel" or "tiled" to a KernelKind.
func ParseKernelKind(name string) (KernelKind, error) {
	return ctc.ParseKernelKind(name)
}

// DefaultConfig returns blank 0, the parallel kernel and lattice bounds of
// 2^24 cells per example and 2^27 per call.
func DefaultConfig() Config {
	return ctc.DefaultConfig()
}

// NewConfig applies opts on top of DefaultConfig.
func NewConfig(opts ...Option) Config {
	return ctc.NewConfig(opts...)
}

// WithBlank sets the blank class index. The default is 0.
func WithBlank(blank int) Option {
	return ctc.WithBlank(blank)
}

// WithMaxLatticeCells bounds T×(2S+1) per example. Zero disables the check.
func WithMaxLatticeCells(n int) Option {
	return ctc.WithMaxLatticeCells(n)
}

// WithMaxArenaCells bounds B×T×(2S+1) per call. Zero disables the check.
func WithMaxArenaCells(n int) Option {
	return ctc.WithMaxArenaCells(n)
}

// WithKernel selects the CPU kernel used by dispatchers built from the config.
func WithKernel(kind KernelKind) Option {
	return ctc.WithKernel(kind)
}

// WithTileSize sets the lattice states one tiled work item covers.
func WithTileSize(n int) Option {
	return ctc.WithTileSize(n)
}

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return ctc.WithWorkers(n)
}
