//go:build !windows

package dispatch

import (
	"fmt"

	"github.com/born-ml/ctcloss/internal/ctc"
)

func openGPU() (ctc.Backend, func(), error) {
	return nil, nil, fmt.Errorf("%w: webgpu backend is built for windows only", ErrDeviceUnavailable)
}

// GPUAvailable reports whether a WebGPU adapter can be opened.
func GPUAvailable() bool {
	return false
}
