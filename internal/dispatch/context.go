package dispatch

import (
	"context"

	"github.com/born-ml/ctcloss/internal/tensor"
)

type deviceKey struct{}

// WithDevice returns a context that asks the dispatcher for dev.
func WithDevice(ctx context.Context, dev tensor.Device) context.Context {
	return context.WithValue(ctx, deviceKey{}, dev)
}

// DeviceFromContext returns the requested device, or CPU when none is set.
func DeviceFromContext(ctx context.Context) tensor.Device {
	if dev, ok := ctx.Value(deviceKey{}).(tensor.Device); ok {
		return dev
	}
	return tensor.CPU
}
