// Package app wires the benchmark together with fx.
package app

import (
	"context"
	"io"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/fxnlabs/matbench/internal/bench"
	"github.com/fxnlabs/matbench/internal/config"
	"github.com/fxnlabs/matbench/internal/gpu"
	"github.com/fxnlabs/matbench/internal/kernels"
	"github.com/fxnlabs/matbench/internal/metrics"
	"github.com/fxnlabs/matbench/internal/report"
)

// Module provides the device context, metrics, console reporter, driver and
// runner for cfg. Console output goes to out.
func Module(cfg *config.Config, log *zap.Logger, out io.Writer) fx.Option {
	return fx.Options(
		fx.Supply(cfg, log),
		fx.Provide(
			func() *report.Console { return report.NewConsole(out) },
			metrics.New,
			NewDeviceContext,
			NewDriver,
			NewRunner,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zap.DebugLevel)
			return l
		}),
	)
}

// NewDeviceContext acquires the configured device and releases it when the
// application stops.
func NewDeviceContext(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gpu.DeviceContext, error) {
	device, err := gpu.Acquire(gpu.AcquireOptions{
		Backend:    cfg.GPU.Backend,
		Timestamps: cfg.GPU.Timestamps,
	}, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			device.Release()
			return nil
		},
	})
	return device, nil
}

// NewDriver builds the benchmark driver from the configuration.
func NewDriver(cfg *config.Config, device *gpu.DeviceContext, console *report.Console, m *metrics.Metrics, log *zap.Logger) (*bench.Driver, error) {
	formulations, err := kernels.Lookup(cfg.CPU.Formulations)
	if err != nil {
		return nil, err
	}
	opts := bench.Options{
		Formulations: formulations,
		CPURuns:      cfg.CPU.Runs,
		CPUMaxSize:   cfg.CPU.MaxSize,
		Repeat:       cfg.GPU.Repeat,
		Iterations:   cfg.Verify.Iterations,
		Samples:      cfg.Verify.Samples,
	}
	return bench.NewDriver(device, opts, console, m, log), nil
}
