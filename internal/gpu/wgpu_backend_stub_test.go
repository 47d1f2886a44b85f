//go:build !wgpu

package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestAcquire_WithoutWGPU(t *testing.T) {
	for _, backend := range []string{"", WGPUBackendName} {
		ctx, err := Acquire(AcquireOptions{Backend: backend}, zaptest.NewLogger(t))
		assert.Nil(t, ctx)
		assert.ErrorIs(t, err, ErrNoCompatibleDevice)
	}
}
