package report

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxnlabs/matbench/internal/bench"
	"github.com/fxnlabs/matbench/internal/gpu"
	"github.com/fxnlabs/matbench/internal/verify"
)

func sampleRun() Run {
	device := gpu.DeviceInfo{Name: "software (amd64, 8 CPUs)", Backend: "software", Driver: "go1.24.0", DeviceType: "cpu"}
	sizes := []bench.SizeReport{
		{
			Size: 64,
			CPU: []bench.CPUResult{
				{Formulation: "indexed", Runs: 5, Seconds: 0.00025, Checksum: 12.5},
				{Formulation: "cursor", Runs: 5, Seconds: 0.0004, Checksum: 12.5},
			},
			GPUSeconds:      0.000125,
			GPUWallSeconds:  0.0005,
			Timing:          gpu.TimingWall,
			GFLOPS:          4.194304,
			MAE:             0,
			Tolerance:       1.52587890625e-05,
			WithinTolerance: true,
			Freivalds:       true,
			Samples:         []verify.Sample{{Row: 0, Col: 0, Value: 1.5}},
		},
		{
			Size:       128,
			CPU:        []bench.CPUResult{{Formulation: "indexed", Runs: 1, Seconds: 0.002, Checksum: -3}},
			GPUSeconds: 0.001,
			Timing:     gpu.TimingDevice,
			GFLOPS:     4.194304,
			MAE:        math.NaN(),
			Tolerance:  3.0517578125e-05,
		},
	}
	return NewRun(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), device, sizes)
}

func TestConsole_ReportSize(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(&buf)

	run := sampleRun()
	require.NoError(t, console.ReportSize(run.Sizes[0]))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"matmul indexed: size=64 duration=0.000250s checksum=12.5",
		"matmul cursor: size=64 duration=0.000400s checksum=12.5",
		"gpu: size=64 duration=0.000125s (wall) 4.19 GFLOP/s",
		"MAE for size 64 is 0 (tolerance 1.52587890625e-05, freivalds=true)",
	}, lines)

	buf.Reset()
	require.NoError(t, console.ReportSize(run.Sizes[1]))
	assert.Contains(t, buf.String(), "gpu: size=128 duration=0.001000s (device)")
	assert.Contains(t, buf.String(), "MAE for size 128 is NaN")
}

func TestConsole_Banner(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewConsole(&buf).Banner(sampleRun().Device))

	out := buf.String()
	assert.Greater(t, strings.Count(out, "\n"), 3, "banner spans several lines")
	assert.Contains(t, out, "device: software (amd64, 8 CPUs) (software)")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, assert.AnError }

func TestConsole_WriteError(t *testing.T) {
	console := NewConsole(failingWriter{})
	assert.ErrorIs(t, console.ReportSize(sampleRun().Sizes[0]), assert.AnError)
	assert.ErrorIs(t, console.Banner(gpu.DeviceInfo{}), assert.AnError)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleRun()))

	var doc struct {
		StartedAt time.Time      `json:"startedAt"`
		Device    gpu.DeviceInfo `json:"device"`
		Host      Host           `json:"host"`
		Sizes     []map[string]any
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "software", doc.Device.Backend)
	assert.NotEmpty(t, doc.Host.Arch)
	assert.NotNil(t, doc.Host.Features)
	require.Len(t, doc.Sizes, 2)

	first := doc.Sizes[0]
	assert.Equal(t, float64(64), first["size"])
	assert.Equal(t, "wall", first["timing"])
	assert.Equal(t, 0.0005, first["gpuWallSeconds"])
	assert.Equal(t, true, first["withinTolerance"])
	assert.Len(t, first["cpu"], 2)
	assert.Len(t, first["samples"], 1)

	second := doc.Sizes[1]
	assert.Nil(t, second["mae"], "NaN is written as null")
	assert.Equal(t, "device", second["timing"])
	assert.NotContains(t, second, "samples")
}

func TestWriteArrow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteArrow(&buf, sampleRun()))

	r, err := ipc.NewFileReader(bytes.NewReader(buf.Bytes()), ipc.WithAllocator(memory.NewGoAllocator()))
	require.NoError(t, err)
	defer r.Close()

	assert.Len(t, r.Schema().Fields(), len(ArrowSchema.Fields()))
	meta := r.Schema().Metadata()
	idx := meta.FindKey("backend")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "software", meta.Values()[idx])

	require.Equal(t, 1, r.NumRecords())
	rec, err := r.Record(0)
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.NumRows())

	sizes := rec.Column(0).(*array.Int64)
	assert.Equal(t, []int64{64, 128}, sizes.Int64Values())

	wall := rec.Column(2).(*array.Float64)
	assert.Equal(t, 0.0005, wall.Value(0))

	timing := rec.Column(3).(*array.String)
	assert.Equal(t, "wall", timing.Value(0))
	assert.Equal(t, "device", timing.Value(1))

	mae := rec.Column(5).(*array.Float64)
	assert.Zero(t, mae.Value(0))
	assert.True(t, math.IsNaN(mae.Value(1)))

	within := rec.Column(7).(*array.Boolean)
	assert.True(t, within.Value(0))
	assert.False(t, within.Value(1))

	formulations := rec.Column(9).(*array.List)
	names := formulations.ListValues().(*array.String)
	start, end := formulations.ValueOffsets(0)
	assert.Equal(t, int64(2), end-start)
	assert.Equal(t, "indexed", names.Value(int(start)))
	assert.Equal(t, "cursor", names.Value(int(start)+1))
	start, end = formulations.ValueOffsets(1)
	assert.Equal(t, int64(1), end-start)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run.json")
	require.NoError(t, WriteFile(path, sampleRun(), WriteJSON))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))

	err = WriteFile(filepath.Join(t.TempDir(), "run.arrow"), sampleRun(), func(w io.Writer, r Run) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestHostFeatures(t *testing.T) {
	known := map[string]bool{
		"sse4.1": true, "avx": true, "avx2": true, "fma": true, "avx512f": true,
		"asimd": true, "fphp": true, "asimdhp": true, "sve": true,
	}
	features := HostFeatures()
	assert.NotNil(t, features)
	seen := map[string]bool{}
	for _, f := range features {
		assert.True(t, known[f], f)
		assert.False(t, seen[f], "duplicate %s", f)
		seen[f] = true
	}

	host := CurrentHost()
	assert.Positive(t, host.CPUs)
	assert.Equal(t, features, host.Features)
}
