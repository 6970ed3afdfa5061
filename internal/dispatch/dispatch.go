// Package dispatch routes CTC calls to a backend chosen from the device
// carried by the context, falling back to the CPU when that device cannot
// serve the call.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/born-ml/ctcloss/internal/backend/cpu"
	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/internal/tensor"
)

// ErrDeviceUnavailable is returned when a requested device cannot be opened.
var ErrDeviceUnavailable = errors.New("device unavailable")

// batchChecker is implemented by backends with size limits of their own.
type batchChecker interface {
	Accepts(b *ctc.Batch) error
}

// Dispatcher validates CTC calls and runs them on a registered backend.
// It is safe for concurrent use once built.
type Dispatcher struct {
	config   ctc.Config
	cpu      ctc.Backend
	backends map[tensor.Device]ctc.Backend
	logger   *slog.Logger
	closers  []func()
	openGPU  bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConfig sets validation limits and the CPU kernel configuration.
func WithConfig(cfg ctc.Config) Option {
	return func(d *Dispatcher) {
		d.config = cfg
	}
}

// WithBackend registers a backend for its device, replacing any earlier one.
func WithBackend(b ctc.Backend) Option {
	return func(d *Dispatcher) {
		d.backends[b.Device()] = b
	}
}

// WithGPU tries to open the WebGPU backend. Failure is logged, not fatal.
func WithGPU() Option {
	return func(d *Dispatcher) {
		d.openGPU = true
	}
}

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// New creates a dispatcher. A CPU backend built from the configuration is
// always registered unless WithBackend supplied one.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		config:   ctc.DefaultConfig(),
		backends: make(map[tensor.Device]ctc.Backend),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if _, ok := d.backends[tensor.CPU]; !ok {
		d.backends[tensor.CPU] = cpu.New(cpu.WithConfig(d.config))
	}
	d.cpu = d.backends[tensor.CPU]

	if d.openGPU {
		if _, ok := d.backends[tensor.WebGPU]; !ok {
			gpu, release, err := openGPU()
			if err != nil {
				d.logger.Info("webgpu backend disabled", "error", err)
			} else {
				d.backends[tensor.WebGPU] = gpu
				d.closers = append(d.closers, release)
			}
		}
	}
	return d
}

// Close releases device resources opened by the dispatcher.
func (d *Dispatcher) Close() {
	for _, release := range d.closers {
		release()
	}
	d.closers = nil
}

// Config returns the validation configuration.
func (d *Dispatcher) Config() ctc.Config {
	return d.config
}

// Devices returns the devices with a registered backend.
func (d *Dispatcher) Devices() []tensor.Device {
	out := make([]tensor.Device, 0, len(d.backends))
	for _, dev := range []tensor.Device{tensor.CPU, tensor.CUDA, tensor.Vulkan, tensor.Metal, tensor.WebGPU} {
		if _, ok := d.backends[dev]; ok {
			out = append(out, dev)
		}
	}
	return out
}

// Backend returns the backend registered for the context's device, or the
// CPU backend with a warning when that device has none.
func (d *Dispatcher) Backend(ctx context.Context) ctc.Backend {
	dev := DeviceFromContext(ctx)
	if b, ok := d.backends[dev]; ok {
		return b
	}
	d.fallback(ctx, dev, "not registered", ErrDeviceUnavailable)
	return d.cpu
}

// Validate checks an operator call against the dispatcher's configuration.
func (d *Dispatcher) Validate(in ctc.Input) (*ctc.Batch, error) {
	b, err := ctc.Validate(in, d.config)
	if err != nil {
		var verr *ctc.ValidationError
		kind := "unknown"
		if errors.As(err, &verr) {
			kind = kindLabel(verr.Kind)
		}
		validationErrors.WithLabelValues(kind).Inc()
		return nil, err
	}
	return b, nil
}

// Loss validates the call and returns the [B] per-example losses.
func (d *Dispatcher) Loss(ctx context.Context, in ctc.Input) (*tensor.RawTensor, error) {
	b, err := d.Validate(in)
	if err != nil {
		return nil, err
	}
	return d.LossBatch(ctx, b)
}

// LossBatch runs the forward pass on an already validated batch.
func (d *Dispatcher) LossBatch(ctx context.Context, b *ctc.Batch) (*tensor.RawTensor, error) {
	countInfeasible(b)
	return d.run(ctx, b, passForward, func(be ctc.Backend) *tensor.RawTensor {
		return be.CTCLoss(b)
	})
}

// Gradient validates the call and returns dLoss/dLogProbs scaled by upstream.
// A nil upstream means ones.
func (d *Dispatcher) Gradient(ctx context.Context, in ctc.Input, upstream *tensor.RawTensor) (*tensor.RawTensor, error) {
	b, err := d.Validate(in)
	if err != nil {
		return nil, err
	}
	return d.GradientBatch(ctx, b, upstream)
}

// GradientBatch runs the backward pass on an already validated batch.
func (d *Dispatcher) GradientBatch(ctx context.Context, b *ctc.Batch, upstream *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := ctc.CheckUpstream(b, upstream); err != nil {
		return nil, err
	}
	return d.run(ctx, b, passBackward, func(be ctc.Backend) *tensor.RawTensor {
		return be.CTCLossBackward(b, upstream)
	})
}

// run executes fn on the selected backend. A non-CPU backend that rejects
// the batch or fails mid-call is replaced by the CPU backend.
func (d *Dispatcher) run(ctx context.Context, b *ctc.Batch, pass string, fn func(ctc.Backend) *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	be := d.Backend(ctx)
	if be != d.cpu {
		if checker, ok := be.(batchChecker); ok {
			if err := checker.Accepts(b); err != nil {
				d.fallback(ctx, be.Device(), "batch too large", err)
				be = d.cpu
			}
		}
	}

	out, err := timed(be, pass, fn)
	if err != nil && be != d.cpu {
		d.fallback(ctx, be.Device(), "device error", err)
		out, err = timed(d.cpu, pass, fn)
	}
	return out, err
}

func (d *Dispatcher) fallback(ctx context.Context, dev tensor.Device, reason string, err error) {
	fallbacks.WithLabelValues(dev.String(), reason).Inc()
	d.logger.WarnContext(ctx, "falling back to CPU backend",
		"device", dev.String(), "reason", reason, "error", err)
}

// timed runs fn, recording metrics and turning a backend panic into an error.
func timed(be ctc.Backend, pass string, fn func(ctc.Backend) *tensor.RawTensor) (out *tensor.RawTensor, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%s: %v", be.Name(), r)
		}
		invocations.WithLabelValues(be.Name(), pass).Inc()
		duration.WithLabelValues(be.Name(), pass).Observe(time.Since(start).Seconds())
	}()
	return fn(be), nil
}

func countInfeasible(b *ctc.Batch) {
	if n := b.Infeasible(); n > 0 {
		infeasibleExamples.Add(float64(n))
	}
}

func kindLabel(kind error) string {
	switch {
	case errors.Is(kind, ctc.ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(kind, ctc.ErrInvalidLength):
		return "invalid_length"
	case errors.Is(kind, ctc.ErrResourceLimitExceeded):
		return "resource_limit"
	default:
		return "unknown"
	}
}
