//go:build integration && wgpu

package integration

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"

	"github.com/fxnlabs/matbench/internal/app"
	"github.com/fxnlabs/matbench/internal/config"
	"github.com/fxnlabs/matbench/internal/gpu"
)

// requireDevice skips the test on machines without a WebGPU adapter.
func requireDevice(t *testing.T, timestamps bool) {
	t.Helper()
	device, err := gpu.Acquire(gpu.AcquireOptions{Backend: gpu.WGPUBackendName, Timestamps: timestamps}, zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("no usable WebGPU device: %v", err)
	}
	device.Release()
}

func TestBenchmark_WGPU_EndToEnd(t *testing.T) {
	for _, timestamps := range []bool{false, true} {
		t.Run(map[bool]string{false: "wall", true: "device"}[timestamps], func(t *testing.T) {
			requireDevice(t, timestamps)

			cfg := config.Default()
			cfg.Sizes = []int{64, 256}
			cfg.GPU.Backend = gpu.WGPUBackendName
			cfg.GPU.Timestamps = timestamps
			cfg.GPU.Repeat = 2
			cfg.CPU.Runs = 1
			cfg.Report.Banner = false
			cfg.Report.Arrow = filepath.Join(t.TempDir(), "run.arrow")
			require.NoError(t, cfg.Validate())

			var runner *app.Runner
			fxApp := fxtest.New(t,
				app.Module(cfg, zaptest.NewLogger(t), &bytes.Buffer{}),
				fx.Populate(&runner),
			)
			fxApp.RequireStart()
			defer fxApp.RequireStop()

			run, err := runner.Run()
			require.NoError(t, err)
			require.Len(t, run.Sizes, 2)
			for _, s := range run.Sizes {
				assert.Positive(t, s.GPUSeconds, "size %d", s.Size)
				assert.True(t, s.WithinTolerance, "size %d: mae %g > %g", s.Size, s.MAE, s.Tolerance)
				assert.True(t, s.Freivalds, "size %d", s.Size)
				if timestamps {
					assert.Equal(t, gpu.TimingDevice, s.Timing)
				} else {
					assert.Equal(t, gpu.TimingWall, s.Timing)
				}
			}
			assert.FileExists(t, cfg.Report.Arrow)
		})
	}
}
