// Package cpu implements the CPU backend: the tensor arithmetic a CTC
// training step needs and the CTC operator itself, scheduled by one of the
// lattice kernels.
package cpu

import (
	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/internal/tensor"
)

// CPUBackend implements ctc.Backend on the host.
type CPUBackend struct {
	device tensor.Device
	config ctc.Config
	kernel ctc.Kernel
}

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithConfig replaces the kernel configuration.
func WithConfig(cfg ctc.Config) Option {
	return func(cpu *CPUBackend) {
		cpu.config = cfg
	}
}

// WithKernel selects the lattice kernel.
func WithKernel(kind ctc.KernelKind) Option {
	return func(cpu *CPUBackend) {
		cpu.config.Kernel = kind
	}
}

// WithWorkers bounds the goroutines the parallel and tiled kernels use.
func WithWorkers(n int) Option {
	return func(cpu *CPUBackend) {
		ctc.WithWorkers(n)(&cpu.config)
	}
}

// New creates a new CPU backend.
func New(opts ...Option) *CPUBackend {
	cpu := &CPUBackend{
		device: tensor.CPU,
		config: ctc.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(cpu)
	}
	cpu.kernel = ctc.NewKernel(cpu.config)
	return cpu
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Kernel returns the lattice kernel in use.
func (cpu *CPUBackend) Kernel() ctc.Kernel {
	return cpu.kernel
}

// Config returns the kernel configuration.
func (cpu *CPUBackend) Config() ctc.Config {
	return cpu.config
}
