//go:build !wgpu

package gpu

import (
	"fmt"

	"go.uber.org/zap"
)

// WGPUBackendName selects the WebGPU device.
const WGPUBackendName = "wgpu"

func newWGPUBackend(_ AcquireOptions, _ *zap.Logger) (Backend, error) {
	return nil, fmt.Errorf("%w: binary built without WebGPU support (rebuild with -tags wgpu)", ErrNoCompatibleDevice)
}
