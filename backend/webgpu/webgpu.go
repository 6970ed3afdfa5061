//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend: WGSL compute shaders for the
// CTC lattices and the element-wise operations around them.
//
// Shaders compute in float32. Float64 log-probs are narrowed on upload and
// results are widened back, so expect agreement with the CPU backend to
// about 1e-4 relative.
//
// Example:
//
//	if webgpu.IsAvailable() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//	    backend = autodiff.New(gpu)
//	}
package webgpu

import (
	internalctc "github.com/born-ml/ctcloss/internal/ctc"
	internalwebgpu "github.com/born-ml/ctcloss/internal/backend/webgpu"
	"github.com/born-ml/ctcloss/tensor"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Compile-time checks that Backend implements both backend interfaces.
var (
	_ tensor.Backend      = (*Backend)(nil)
	_ internalctc.Backend = (*Backend)(nil)
)

// New creates a new WebGPU backend. Call Release when done to free GPU
// resources. Returns an error if no compatible adapter is present.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable reports whether a WebGPU adapter can be opened, so callers can
// fall back to the CPU backend.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
