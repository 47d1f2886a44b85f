// Package bench runs the benchmark: for every size it times the CPU reference
// formulations, dispatches the same product on the compute device, and
// compares the two.
package bench

import (
	"time"

	"go.uber.org/zap"

	"github.com/fxnlabs/matbench/internal/gpu"
	"github.com/fxnlabs/matbench/internal/kernels"
	"github.com/fxnlabs/matbench/internal/matrix"
	"github.com/fxnlabs/matbench/internal/metrics"
	"github.com/fxnlabs/matbench/internal/verify"
)

// CPUResult is the timing of one CPU formulation at one size.
type CPUResult struct {
	Formulation string  `json:"formulation"`
	Runs        int     `json:"runs"`
	Seconds     float64 `json:"seconds"`
	Checksum    float32 `json:"checksum"`
}

// SizeReport is the outcome of one size trial.
type SizeReport struct {
	Size            int              `json:"size"`
	CPU             []CPUResult      `json:"cpu"`
	GPUSeconds      float64          `json:"gpuSeconds"`
	GPUWallSeconds  float64          `json:"gpuWallSeconds"`
	Timing          gpu.TimingSource `json:"timing"`
	GFLOPS          float64          `json:"gflops"`
	MAE             float64          `json:"mae"`
	Tolerance       float64          `json:"tolerance"`
	WithinTolerance bool             `json:"withinTolerance"`
	Freivalds       bool             `json:"freivalds"`
	Samples         []verify.Sample  `json:"samples,omitempty"`
}

// Reporter receives each size report as soon as its trial completes.
type Reporter interface {
	ReportSize(SizeReport) error
}

// Options configures a Driver.
type Options struct {
	// Formulations run in order; the first one is the oracle.
	Formulations []kernels.Formulation
	CPURuns      int
	// CPUMaxSize, when non-zero, limits sizes above it to a single run of
	// the oracle formulation.
	CPUMaxSize int
	// Repeat is the number of dispatches per device timing.
	Repeat int
	// Iterations is the number of Freivalds rounds.
	Iterations int
	// Samples is the number of result elements logged per size.
	Samples int
}

// Driver runs independent trials, one per size, against a device context.
type Driver struct {
	device   *gpu.DeviceContext
	opts     Options
	reporter Reporter
	metrics  *metrics.Metrics
	logger   *zap.Logger

	generate func(size int) (matrix.Matrix, error)
}

// NewDriver creates a driver. reporter and m may be nil.
func NewDriver(device *gpu.DeviceContext, opts Options, reporter Reporter, m *metrics.Metrics, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.Formulations) == 0 {
		opts.Formulations = kernels.Formulations()
	}
	if opts.CPURuns < 1 {
		opts.CPURuns = 1
	}
	if opts.Repeat < 1 {
		opts.Repeat = 1
	}
	if opts.Iterations < 1 {
		opts.Iterations = 4
	}
	if opts.Samples < 0 {
		opts.Samples = 0
	}
	return &Driver{
		device:   device,
		opts:     opts,
		reporter: reporter,
		metrics:  m,
		logger:   logger.Named("bench"),
		generate: matrix.Random,
	}
}

// GFLOPS is the throughput of one size×size matmul (2·size³ flops) taking
// seconds. It is zero when no time elapsed.
func GFLOPS(size int, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	n := float64(size)
	return 2 * n * n * n / (seconds * 1e9)
}

// Run runs one trial per size, in order. It stops at the first fatal error
// and returns the reports completed so far.
func (d *Driver) Run(sizes []int) ([]SizeReport, error) {
	start := time.Now()
	reports := make([]SizeReport, 0, len(sizes))
	for _, size := range sizes {
		report, err := d.RunSize(size)
		if err != nil {
			d.logger.Error("Benchmark aborted", zap.Int("size", size), zap.Error(err))
			return reports, err
		}
		reports = append(reports, report)
	}
	d.logger.Info("Benchmark run complete",
		zap.Ints("sizes", sizes),
		zap.Duration("elapsed", time.Since(start)))
	return reports, nil
}

// RunSize runs the trial for a single size.
func (d *Driver) RunSize(size int) (SizeReport, error) {
	logger := d.logger.With(zap.Int("size", size))
	report := SizeReport{Size: size}

	a, err := d.generate(size)
	if err != nil {
		return report, stageError(StageGenerate, size, err)
	}
	b, err := d.generate(size)
	if err != nil {
		return report, stageError(StageGenerate, size, err)
	}
	// Initial content of the device output buffer; overwritten by the kernel.
	initial, err := d.generate(size)
	if err != nil {
		return report, stageError(StageGenerate, size, err)
	}

	oracle, err := d.runCPU(&report, a, b, logger)
	if err != nil {
		return report, stageError(StageCPU, size, err)
	}

	result := make([]float32, size*size)
	timing, err := d.runDevice(a, b, initial, result)
	if err != nil {
		return report, err
	}
	report.GPUSeconds = timing.Seconds
	report.GPUWallSeconds = timing.WallSeconds
	report.Timing = timing.Source
	report.GFLOPS = GFLOPS(size, timing.Seconds)

	mae, err := matrix.MaxAbsDiff(result, oracle)
	if err != nil {
		return report, stageError(StageDispatch, size, err)
	}
	report.MAE = float64(mae)
	report.Tolerance = verify.Tolerance(size, float64(matrix.MaxAbs(a.Data)), float64(matrix.MaxAbs(b.Data)))
	report.WithinTolerance = report.MAE <= report.Tolerance
	report.Freivalds = verify.Freivalds(a.Data, b.Data, result, size, d.opts.Iterations, nil)
	report.Samples = verify.ResultSamples(result, size, d.opts.Samples)

	fields := []zap.Field{
		zap.Float64("seconds", report.GPUSeconds),
		zap.String("timing", string(report.Timing)),
		zap.Float64("gflops", report.GFLOPS),
		zap.Float64("mae", report.MAE),
		zap.Float64("tolerance", report.Tolerance),
		zap.Bool("freivalds", report.Freivalds),
	}
	if report.WithinTolerance {
		logger.Info("Device result verified", fields...)
	} else {
		logger.Warn("Device result exceeds error tolerance", fields...)
	}
	logger.Debug("Device result samples", zap.Any("samples", report.Samples))

	if d.reporter != nil {
		if err := d.reporter.ReportSize(report); err != nil {
			return report, stageError(StageReport, size, err)
		}
	}
	if d.metrics != nil {
		d.metrics.RecordGPU(d.device.Info().Backend, size, report.GPUSeconds, string(report.Timing), report.GFLOPS)
		d.metrics.RecordError(size, report.MAE, report.Tolerance)
		for _, c := range report.CPU {
			d.metrics.RecordCPU(c.Formulation, size, c.Seconds)
		}
	}
	return report, nil
}

// runCPU times every applicable formulation, checks that they agree and
// returns the oracle output.
func (d *Driver) runCPU(report *SizeReport, a, b matrix.Matrix, logger *zap.Logger) ([]float32, error) {
	size := report.Size
	formulations := d.opts.Formulations
	runs := d.opts.CPURuns
	if d.opts.CPUMaxSize > 0 && size > d.opts.CPUMaxSize {
		formulations = formulations[:1]
		runs = 1
	}

	timings := make([]kernels.Timing, 0, len(formulations))
	for _, f := range formulations {
		timing, err := kernels.Time(f, a.Data, b.Data, size, runs)
		if err != nil {
			return nil, err
		}
		logger.Debug("CPU formulation timed",
			zap.String("formulation", f.Name),
			zap.Int("runs", runs),
			zap.Duration("mean", timing.Mean))
		timings = append(timings, timing)
		report.CPU = append(report.CPU, CPUResult{
			Formulation: f.Name,
			Runs:        runs,
			Seconds:     timing.Mean.Seconds(),
			Checksum:    timing.Checksum,
		})
	}
	if err := kernels.CrossCheck(timings); err != nil {
		return nil, err
	}
	return timings[0].Output, nil
}

// runDevice builds a job, dispatches it and releases it.
func (d *Driver) runDevice(a, b, initial matrix.Matrix, result []float32) (gpu.Timing, error) {
	size := a.N
	job, err := d.device.BuildJob(a.Data, b.Data, initial.Data, size)
	if err != nil {
		return gpu.Timing{}, stageError(StageBuild, size, err)
	}
	defer job.Release()

	timing, err := d.device.DispatchAndWait(job, result, d.opts.Repeat)
	if err != nil {
		return gpu.Timing{}, stageError(StageDispatch, size, err)
	}
	return timing, nil
}
