package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fxnlabs/matbench/internal/bench"
	"github.com/fxnlabs/matbench/internal/config"
	"github.com/fxnlabs/matbench/internal/gpu"
	"github.com/fxnlabs/matbench/internal/metrics"
	"github.com/fxnlabs/matbench/internal/report"
)

// Runner performs a complete benchmark run and writes its outputs.
type Runner struct {
	cfg     *config.Config
	device  *gpu.DeviceContext
	driver  *bench.Driver
	console *report.Console
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRunner(cfg *config.Config, device *gpu.DeviceContext, driver *bench.Driver, console *report.Console, m *metrics.Metrics, log *zap.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		device:  device,
		driver:  driver,
		console: console,
		metrics: m,
		logger:  log.Named("runner"),
	}
}

// Run benchmarks every configured size. The JSON, Arrow and metrics outputs
// are written for the sizes that completed even when a later size fails.
func (r *Runner) Run() (report.Run, error) {
	started := time.Now()
	info := r.device.Info()

	if r.cfg.Report.Banner {
		if err := r.console.Banner(info); err != nil {
			return report.Run{}, fmt.Errorf("writing banner: %w", err)
		}
	}

	sizes, runErr := r.driver.Run(r.cfg.Sizes)
	run := report.NewRun(started, info, sizes)

	if err := r.writeOutputs(run); err != nil {
		if runErr != nil {
			r.logger.Error("Failed to write outputs", zap.Error(err))
			return run, runErr
		}
		return run, err
	}
	return run, runErr
}

func (r *Runner) writeOutputs(run report.Run) error {
	if path := r.cfg.Report.JSON; path != "" {
		if err := report.WriteFile(path, run, report.WriteJSON); err != nil {
			return fmt.Errorf("writing JSON report %s: %w", path, err)
		}
		r.logger.Info("JSON report written", zap.String("path", path))
	}
	if path := r.cfg.Report.Arrow; path != "" {
		if err := report.WriteFile(path, run, report.WriteArrow); err != nil {
			return fmt.Errorf("writing Arrow report %s: %w", path, err)
		}
		r.logger.Info("Arrow report written", zap.String("path", path))
	}
	if path := r.cfg.Metrics.Textfile; path != "" {
		if err := r.metrics.WriteTextfile(path); err != nil {
			return fmt.Errorf("writing metrics textfile %s: %w", path, err)
		}
		r.logger.Info("Metrics textfile written", zap.String("path", path))
	}
	return nil
}
