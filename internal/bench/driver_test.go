package bench

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fxnlabs/matbench/internal/gpu"
	"github.com/fxnlabs/matbench/internal/kernels"
	"github.com/fxnlabs/matbench/internal/matrix"
	"github.com/fxnlabs/matbench/internal/metrics"
)

type recordingReporter struct {
	reports []SizeReport
	err     error
}

func (r *recordingReporter) ReportSize(report SizeReport) error {
	r.reports = append(r.reports, report)
	return r.err
}

func newDevice(t *testing.T, timestamps bool) *gpu.DeviceContext {
	t.Helper()
	device, err := gpu.Acquire(gpu.AcquireOptions{Backend: gpu.SoftwareBackendName, Timestamps: timestamps}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(device.Release)
	return device
}

func TestDriver_Run(t *testing.T) {
	device := newDevice(t, false)
	reporter := &recordingReporter{}
	m := metrics.New()
	driver := NewDriver(device, Options{CPURuns: 2, Repeat: 1, Iterations: 4, Samples: 5}, reporter, m, zaptest.NewLogger(t))

	reports, err := driver.Run([]int{64, 128})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, reports, reporter.reports)

	for i, size := range []int{64, 128} {
		r := reports[i]
		assert.Equal(t, size, r.Size)
		require.Len(t, r.CPU, 3)
		for _, c := range r.CPU {
			assert.Equal(t, 2, c.Runs)
			assert.Equal(t, r.CPU[0].Checksum, c.Checksum, "formulations agree")
			assert.Greater(t, c.Seconds, 0.0)
		}
		assert.Equal(t, []string{"indexed", "cursor", "sliced"},
			[]string{r.CPU[0].Formulation, r.CPU[1].Formulation, r.CPU[2].Formulation})

		assert.Equal(t, gpu.TimingWall, r.Timing)
		assert.Greater(t, r.GPUSeconds, 0.0)
		assert.GreaterOrEqual(t, r.GPUWallSeconds, r.GPUSeconds)
		assert.InDelta(t, GFLOPS(size, r.GPUSeconds), r.GFLOPS, 1e-9)

		// The software device accumulates in the same order as the oracle.
		assert.Zero(t, r.MAE)
		assert.True(t, r.WithinTolerance)
		assert.Greater(t, r.Tolerance, 0.0)
		assert.True(t, r.Freivalds)
		assert.Len(t, r.Samples, 5)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Dispatches.WithLabelValues("software")))
	assert.Equal(t, 6, testutil.CollectAndCount(m.CPUDuration))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ToleranceExceeded))
}

func TestDriver_DeviceTimestamps(t *testing.T) {
	device := newDevice(t, true)
	driver := NewDriver(device, Options{Repeat: 2}, nil, nil, zaptest.NewLogger(t))

	report, err := driver.RunSize(64)
	require.NoError(t, err)
	assert.Equal(t, gpu.TimingDevice, report.Timing)
	assert.True(t, report.WithinTolerance)
}

func TestDriver_NegativeSamples(t *testing.T) {
	device := newDevice(t, false)
	driver := NewDriver(device, Options{Samples: -1}, nil, nil, zaptest.NewLogger(t))

	reports, err := driver.Run([]int{64})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Empty(t, reports[0].Samples)
	assert.True(t, reports[0].Freivalds)
}

func TestDriver_CPUMaxSize(t *testing.T) {
	device := newDevice(t, false)
	driver := NewDriver(device, Options{CPURuns: 3, CPUMaxSize: 64}, nil, nil, zaptest.NewLogger(t))

	reports, err := driver.Run([]int{64, 128})
	require.NoError(t, err)

	assert.Len(t, reports[0].CPU, 3)
	require.Len(t, reports[1].CPU, 1)
	assert.Equal(t, "indexed", reports[1].CPU[0].Formulation)
	assert.Equal(t, 1, reports[1].CPU[0].Runs)
	assert.True(t, reports[1].WithinTolerance)
}

func TestDriver_ToleranceExceededIsNotFatal(t *testing.T) {
	device := newDevice(t, false)
	m := metrics.New()
	wrong := kernels.Formulation{Name: "zeros", Fn: func(a, b []float32, size int) ([]float32, error) {
		return make([]float32, size*size), nil
	}}
	driver := NewDriver(device, Options{Formulations: []kernels.Formulation{wrong}}, nil, m, zaptest.NewLogger(t))

	report, err := driver.RunSize(64)
	require.NoError(t, err)
	assert.False(t, report.WithinTolerance)
	assert.Greater(t, report.MAE, report.Tolerance)
	assert.True(t, report.Freivalds, "the device result itself is correct")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ToleranceExceeded))
}

func TestDriver_StageErrors(t *testing.T) {
	diverging := kernels.Formulation{Name: "diverging", Fn: func(a, b []float32, size int) ([]float32, error) {
		out, err := kernels.Indexed(a, b, size)
		if err == nil {
			out[len(out)-1] += 1
		}
		return out, err
	}}

	tests := []struct {
		name    string
		size    int
		setup   func(d *Driver, device *gpu.DeviceContext, r *recordingReporter)
		stage   Stage
		wantErr error
	}{
		{
			name: "generate",
			size: 64,
			setup: func(d *Driver, _ *gpu.DeviceContext, _ *recordingReporter) {
				d.generate = func(int) (matrix.Matrix, error) { return matrix.Matrix{}, matrix.ErrPrecondition }
			},
			stage:   StageGenerate,
			wantErr: matrix.ErrPrecondition,
		},
		{
			name: "cpu divergence",
			size: 64,
			setup: func(d *Driver, _ *gpu.DeviceContext, _ *recordingReporter) {
				d.opts.Formulations = []kernels.Formulation{kernels.Formulations()[0], diverging}
			},
			stage:   StageCPU,
			wantErr: kernels.ErrCorrectnessDivergence,
		},
		{
			name:    "size not a tile multiple",
			size:    96,
			stage:   StageBuild,
			wantErr: gpu.ErrPrecondition,
		},
		{
			name: "released device",
			size: 64,
			setup: func(_ *Driver, device *gpu.DeviceContext, _ *recordingReporter) {
				device.Release()
			},
			stage:   StageBuild,
			wantErr: gpu.ErrPrecondition,
		},
		{
			name: "dispatch",
			size: 64,
			setup: func(d *Driver, _ *gpu.DeviceContext, _ *recordingReporter) {
				d.opts.Repeat = 0
			},
			stage:   StageDispatch,
			wantErr: gpu.ErrPrecondition,
		},
		{
			name: "reporter",
			size: 64,
			setup: func(_ *Driver, _ *gpu.DeviceContext, r *recordingReporter) {
				r.err = assert.AnError
			},
			stage:   StageReport,
			wantErr: assert.AnError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := newDevice(t, false)
			reporter := &recordingReporter{}
			driver := NewDriver(device, Options{}, reporter, nil, zaptest.NewLogger(t))
			if tt.setup != nil {
				tt.setup(driver, device, reporter)
			}

			reports, err := driver.Run([]int{tt.size, 64})
			require.Error(t, err)
			assert.Empty(t, reports)
			assert.ErrorIs(t, err, tt.wantErr)

			var stageErr *StageError
			require.True(t, errors.As(err, &stageErr))
			assert.Equal(t, tt.stage, stageErr.Stage)
			assert.Equal(t, tt.size, stageErr.Size)
			assert.Contains(t, err.Error(), string(tt.stage))
		})
	}
}

func TestGFLOPS(t *testing.T) {
	assert.InDelta(t, 2*64*64*64/1e9, GFLOPS(64, 1), 1e-12)
	assert.InDelta(t, 2*6144.0*6144*6144/(0.5*1e9), GFLOPS(6144, 0.5), 1e-6)
	assert.Zero(t, GFLOPS(64, 0))
}
