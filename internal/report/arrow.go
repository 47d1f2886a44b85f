package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ArrowSchema is the layout of the Arrow export: one row per size.
var ArrowSchema = arrow.NewSchema([]arrow.Field{
	{Name: "size", Type: arrow.PrimitiveTypes.Int64},
	{Name: "gpu_seconds", Type: arrow.PrimitiveTypes.Float64},
	{Name: "gpu_wall_seconds", Type: arrow.PrimitiveTypes.Float64},
	{Name: "timing", Type: arrow.BinaryTypes.String},
	{Name: "gflops", Type: arrow.PrimitiveTypes.Float64},
	{Name: "mae", Type: arrow.PrimitiveTypes.Float64},
	{Name: "tolerance", Type: arrow.PrimitiveTypes.Float64},
	{Name: "within_tolerance", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "freivalds", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "cpu_formulations", Type: arrow.ListOf(arrow.BinaryTypes.String)},
	{Name: "cpu_seconds", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
}, nil)

// WriteArrow writes run as an Arrow IPC file holding a single record batch.
// The device and host are carried in the schema metadata.
func WriteArrow(w io.Writer, run Run) error {
	pool := memory.NewGoAllocator()

	meta := arrow.NewMetadata(
		[]string{"started_at", "device", "backend", "driver", "host_os", "host_arch", "host_cpus"},
		[]string{
			run.StartedAt.UTC().Format(time.RFC3339Nano),
			run.Device.Name,
			run.Device.Backend,
			run.Device.Driver,
			run.Host.OS,
			run.Host.Arch,
			strconv.Itoa(run.Host.CPUs),
		},
	)
	schema := arrow.NewSchema(ArrowSchema.Fields(), &meta)

	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()

	sizes := b.Field(0).(*array.Int64Builder)
	gpuSeconds := b.Field(1).(*array.Float64Builder)
	gpuWallSeconds := b.Field(2).(*array.Float64Builder)
	timing := b.Field(3).(*array.StringBuilder)
	gflops := b.Field(4).(*array.Float64Builder)
	mae := b.Field(5).(*array.Float64Builder)
	tolerance := b.Field(6).(*array.Float64Builder)
	within := b.Field(7).(*array.BooleanBuilder)
	freivalds := b.Field(8).(*array.BooleanBuilder)
	formulations := b.Field(9).(*array.ListBuilder)
	formulationNames := formulations.ValueBuilder().(*array.StringBuilder)
	cpuSeconds := b.Field(10).(*array.ListBuilder)
	cpuSecondValues := cpuSeconds.ValueBuilder().(*array.Float64Builder)

	for _, s := range run.Sizes {
		sizes.Append(int64(s.Size))
		gpuSeconds.Append(s.GPUSeconds)
		gpuWallSeconds.Append(s.GPUWallSeconds)
		timing.Append(string(s.Timing))
		gflops.Append(s.GFLOPS)
		mae.Append(s.MAE)
		tolerance.Append(s.Tolerance)
		within.Append(s.WithinTolerance)
		freivalds.Append(s.Freivalds)

		formulations.Append(true)
		cpuSeconds.Append(true)
		for _, c := range s.CPU {
			formulationNames.Append(c.Formulation)
			cpuSecondValues.Append(c.Seconds)
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	return fw.Close()
}
