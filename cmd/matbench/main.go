package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/matbench/internal/config"
	"github.com/fxnlabs/matbench/internal/logger"
)

// env holds the state prepared by the Before hook for every command.
type env struct {
	configPath string
	cfg        *config.Config
	log        *zap.Logger
}

func newApp(e *env) *cli.App {
	return &cli.App{
		Name:  "matbench",
		Usage: "Benchmark square matrix multiplication on a compute device against CPU formulations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to a YAML configuration file",
				EnvVars:     []string{"MATBENCH_CONFIG"},
				Destination: &e.configPath,
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			e.cfg, err = config.LoadConfig(e.configPath)
			if err != nil {
				return err
			}
			var opts []logger.Option
			if e.cfg.Logger.Format == "console" {
				opts = append(opts, logger.WithConsole())
			}
			e.log, err = logger.New(e.cfg.Logger.Verbosity, opts...)
			if err != nil {
				return err
			}
			e.log = e.log.Named("cli")
			return nil
		},
		After: func(c *cli.Context) error {
			if e.log != nil {
				_ = e.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand(e),
			devicesCommand(e),
			initCommand(),
		},
	}
}

func main() {
	e := &env{}
	if err := newApp(e).Run(os.Args); err != nil {
		if e.log != nil {
			e.log.Fatal("failed to run app", zap.Error(err))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
