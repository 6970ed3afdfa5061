//go:build windows

package dispatch

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/backend/webgpu"
	"github.com/born-ml/ctcloss/internal/ctc"
)

func openGPU() (ctc.Backend, func(), error) {
	gpu, err := webgpu.New()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return gpu, gpu.Release, nil
}

// GPUAvailable reports whether a WebGPU adapter can be opened.
func GPUAvailable() bool {
	return webgpu.IsAvailable()
}
