package report

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"

	"github.com/fxnlabs/matbench/internal/bench"
	"github.com/fxnlabs/matbench/internal/gpu"
)

// Console prints size reports as they complete. The line format is meant for
// people; use the JSON or Arrow output for tooling.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Banner prints the program banner followed by the device in use.
func (c *Console) Banner(device gpu.DeviceInfo) error {
	banner := figure.NewFigure("matbench", "", true)
	if _, err := fmt.Fprintln(c.w, banner.String()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.w, "device: %s (%s)\n\n", device.Name, device.Backend)
	return err
}

// ReportSize implements bench.Reporter.
func (c *Console) ReportSize(r bench.SizeReport) error {
	for _, cpu := range r.CPU {
		if _, err := fmt.Fprintf(c.w, "matmul %s: size=%d duration=%.6fs checksum=%g\n",
			cpu.Formulation, r.Size, cpu.Seconds, cpu.Checksum); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(c.w, "gpu: size=%d duration=%.6fs (%s) %.2f GFLOP/s\n",
		r.Size, r.GPUSeconds, r.Timing, r.GFLOPS); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.w, "MAE for size %d is %g (tolerance %g, freivalds=%t)\n",
		r.Size, r.MAE, r.Tolerance, r.Freivalds)
	return err
}
