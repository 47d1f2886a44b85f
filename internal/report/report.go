// Package report renders benchmark results: human-readable console lines and
// machine-readable JSON and Arrow IPC files.
package report

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/fxnlabs/matbench/internal/bench"
	"github.com/fxnlabs/matbench/internal/gpu"
)

// Host describes the machine the CPU formulations ran on.
type Host struct {
	Hostname string   `json:"hostname,omitempty"`
	OS       string   `json:"os"`
	Arch     string   `json:"arch"`
	CPUs     int      `json:"cpus"`
	Go       string   `json:"go"`
	Features []string `json:"features"`
}

// Run is everything recorded about one benchmark run.
type Run struct {
	StartedAt time.Time          `json:"startedAt"`
	Device    gpu.DeviceInfo     `json:"device"`
	Host      Host               `json:"host"`
	Sizes     []bench.SizeReport `json:"sizes"`
}

// NewRun assembles a run with the current host description.
func NewRun(startedAt time.Time, device gpu.DeviceInfo, sizes []bench.SizeReport) Run {
	return Run{
		StartedAt: startedAt,
		Device:    device,
		Host:      CurrentHost(),
		Sizes:     sizes,
	}
}

// CurrentHost describes this machine.
func CurrentHost() Host {
	hostname, _ := os.Hostname()
	return Host{
		Hostname: hostname,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUs:     runtime.NumCPU(),
		Go:       runtime.Version(),
		Features: HostFeatures(),
	}
}

// HostFeatures lists the SIMD features of the host CPU relevant to float32
// matmul throughput.
func HostFeatures() []string {
	candidates := []struct {
		name string
		ok   bool
	}{
		{"sse4.1", cpu.X86.HasSSE41},
		{"avx", cpu.X86.HasAVX},
		{"avx2", cpu.X86.HasAVX2},
		{"fma", cpu.X86.HasFMA},
		{"avx512f", cpu.X86.HasAVX512F},
		{"asimd", cpu.ARM64.HasASIMD},
		{"fphp", cpu.ARM64.HasFPHP},
		{"asimdhp", cpu.ARM64.HasASIMDHP},
		{"sve", cpu.ARM64.HasSVE},
	}
	features := []string{}
	for _, c := range candidates {
		if c.ok {
			features = append(features, c.name)
		}
	}
	return features
}

// WriteFile writes run to path using write, creating parent directories.
func WriteFile(path string, run Run, write func(io.Writer, Run) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f, run)
}
