package main

import (
	"context"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"

	"github.com/fxnlabs/matbench/internal/app"
	"github.com/fxnlabs/matbench/internal/config"
)

func runCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the benchmark for each configured size",
		Flags: []cli.Flag{
			&cli.IntSliceFlag{Name: "sizes", Usage: "Matrix sizes, each a positive multiple of 64"},
			&cli.StringFlag{Name: "backend", Usage: "Compute backend (wgpu, software)"},
			&cli.IntFlag{Name: "repeat", Usage: "Kernel dispatches per timed submission"},
			&cli.BoolFlag{Name: "timestamps", Usage: "Time the kernel with device timestamp queries"},
			&cli.IntFlag{Name: "cpu-runs", Usage: "Timed runs per CPU formulation"},
			&cli.StringSliceFlag{Name: "formulations", Usage: "CPU formulations to time (indexed, cursor, sliced)"},
			&cli.StringFlag{Name: "json", Usage: "Write a JSON report to this path"},
			&cli.StringFlag{Name: "arrow", Usage: "Write an Arrow IPC report to this path"},
			&cli.StringFlag{Name: "metrics-textfile", Usage: "Write Prometheus metrics to this path"},
			&cli.BoolFlag{Name: "no-banner", Usage: "Do not print the banner"},
		},
		Action: func(c *cli.Context) error {
			if err := applyRunFlags(c, e.cfg); err != nil {
				return err
			}

			var runner *app.Runner
			fxApp := fx.New(
				app.Module(e.cfg, e.log, c.App.Writer),
				fx.Populate(&runner),
			)
			if err := fxApp.Err(); err != nil {
				return err
			}
			ctx := context.Background()
			if err := fxApp.Start(ctx); err != nil {
				return err
			}
			_, runErr := runner.Run()
			stopErr := fxApp.Stop(ctx)
			if runErr != nil {
				return runErr
			}
			return stopErr
		},
	}
}

// applyRunFlags overrides cfg with the flags that were set and validates the
// result.
func applyRunFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("sizes") {
		cfg.Sizes = c.IntSlice("sizes")
	}
	if c.IsSet("backend") {
		cfg.GPU.Backend = c.String("backend")
	}
	if c.IsSet("repeat") {
		cfg.GPU.Repeat = c.Int("repeat")
	}
	if c.IsSet("timestamps") {
		cfg.GPU.Timestamps = c.Bool("timestamps")
	}
	if c.IsSet("cpu-runs") {
		cfg.CPU.Runs = c.Int("cpu-runs")
	}
	if c.IsSet("formulations") {
		cfg.CPU.Formulations = c.StringSlice("formulations")
	}
	if c.IsSet("json") {
		cfg.Report.JSON = c.String("json")
	}
	if c.IsSet("arrow") {
		cfg.Report.Arrow = c.String("arrow")
	}
	if c.IsSet("metrics-textfile") {
		cfg.Metrics.Textfile = c.String("metrics-textfile")
	}
	if c.Bool("no-banner") {
		cfg.Report.Banner = false
	}
	return cfg.Validate()
}
