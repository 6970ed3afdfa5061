// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the CPU backend.
//
// The CPU backend is pure Go. It evaluates the CTC lattices in float64 and
// spreads independent examples over goroutines. Three lattice kernels are
// available:
//   - sequential: one example after another, the reference
//   - parallel: one goroutine per example or chunk of examples
//   - tiled: per-timestep rounds over (example, state range) tiles,
//     the same schedule as the WebGPU shaders
//
// Example:
//
//	backend := cpu.New(cpu.WithKernel(ctc.KernelTiled), cpu.WithWorkers(8))
//	loss, err := ctc.Loss(logProbs, targets, inputLengths, targetLengths)
package cpu

import (
	internalcpu "github.com/born-ml/ctcloss/internal/backend/cpu"
	internalctc "github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time checks that Backend implements both backend interfaces.
var (
	_ tensor.Backend             = (*Backend)(nil)
	_ internalctc.Backend        = (*Backend)(nil)
	_ internalctc.LatticeBackend = (*Backend)(nil)
)

// Option configures a CPU backend.
type Option = internalcpu.Option

// New creates a new CPU backend.
func New(opts ...Option) *Backend {
	return internalcpu.New(opts...)
}

// WithKernel selects the lattice kernel.
func WithKernel(kind internalctc.KernelKind) Option {
	return internalcpu.WithKernel(kind)
}

// WithWorkers bounds the goroutines the parallel and tiled kernels use.
func WithWorkers(n int) Option {
	return internalcpu.WithWorkers(n)
}

// WithConfig replaces the whole kernel configuration.
func WithConfig(cfg internalctc.Config) Option {
	return internalcpu.WithConfig(cfg)
}
