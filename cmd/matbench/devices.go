package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/matbench/internal/gpu"
	"github.com/fxnlabs/matbench/internal/report"
)

func devicesCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "Acquire each compute backend and print what it reports",
		Action: func(c *cli.Context) error {
			type entry struct {
				gpu.DeviceInfo
				Error string `json:"error,omitempty"`
			}
			entries := make([]entry, 0, len(gpu.Backends()))
			for _, name := range gpu.Backends() {
				device, err := gpu.Acquire(gpu.AcquireOptions{Backend: name}, e.log)
				if err != nil {
					e.log.Debug("Backend unavailable", zap.String("backend", name), zap.Error(err))
					entries = append(entries, entry{DeviceInfo: gpu.DeviceInfo{Backend: name}, Error: err.Error()})
					continue
				}
				entries = append(entries, entry{DeviceInfo: device.Info()})
				device.Release()
			}

			out := struct {
				Host    report.Host `json:"host"`
				Devices []entry     `json:"devices"`
			}{Host: report.CurrentHost(), Devices: entries}
			b, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, string(b))
			return err
		},
	}
}
