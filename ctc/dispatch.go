// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ctc

import (
	"context"
	"log/slog"

	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/internal/dispatch"
	"github.com/born-ml/ctcloss/tensor"
)

// Dispatcher runs CTC calls on the backend for the device named by the
// context, falling back to the CPU when that device cannot serve them.
//
// Example:
//
//	d := ctc.NewDispatcher(ctc.WithGPU())
//	defer d.Close()
//
//	ctx := ctc.WithDevice(context.Background(), tensor.WebGPU)
//	loss, err := d.Loss(ctx, ctc.Input{...})
type Dispatcher = dispatch.Dispatcher

// Routed is the context's backend with CTC calls sent through a Dispatcher.
// Wrap it in an autodiff backend to keep CPU fallback under a tape:
//
//	backend := autodiff.New(d.Route(ctx))
type Routed = dispatch.Routed

// DispatcherOption configures a Dispatcher.
type DispatcherOption = dispatch.Option

// NewDispatcher creates a dispatcher with a CPU backend always registered.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	return dispatch.New(opts...)
}

// WithConfig sets the validation limits and CPU kernel of a dispatcher.
func WithConfig(cfg Config) DispatcherOption {
	return dispatch.WithConfig(cfg)
}

// WithBackend registers a backend for its device.
func WithBackend(b Backend) DispatcherOption {
	return dispatch.WithBackend(b)
}

// WithGPU asks the dispatcher to open the WebGPU backend when one is present.
func WithGPU() DispatcherOption {
	return dispatch.WithGPU()
}

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *slog.Logger) DispatcherOption {
	return dispatch.WithLogger(l)
}

// WithDevice returns a context that asks dispatchers for dev.
func WithDevice(ctx context.Context, dev tensor.Device) context.Context {
	return dispatch.WithDevice(ctx, dev)
}

// DeviceFromContext returns the requested device, or CPU when none is set.
func DeviceFromContext(ctx context.Context) tensor.Device {
	return dispatch.DeviceFromContext(ctx)
}

// GPUAvailable reports whether a WebGPU adapter can be opened.
func GPUAvailable() bool {
	return dispatch.GPUAvailable()
}

// Report is the outcome of checking one backend against a reference.
type Report = ctc.Report

// Compare evaluates loss and gradient on ref and every candidate concurrently
// and reports the relative difference of each candidate.
func Compare(ctx context.Context, b *Batch, ref Backend, candidates ...Backend) ([]Report, error) {
	return ctc.Compare(ctx, b, ref, candidates...)
}

// RelDiff returns max |got - want| scaled by max |want|.
func RelDiff(got, want []float64) float64 {
	return ctc.RelDiff(got, want)
}
