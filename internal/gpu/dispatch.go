package gpu

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TimingSource says where a Timing was measured.
type TimingSource string

const (
	// TimingDevice comes from timestamp queries around the compute pass.
	TimingDevice TimingSource = "device"
	// TimingWall is host wall time from submission to the end of readback.
	TimingWall TimingSource = "wall"
)

// Timing is the duration of one dispatch of a job. WallSeconds is the whole
// submission, from just before submit to the end of readback, undivided by
// the repeat count.
type Timing struct {
	Seconds     float64      `json:"seconds"`
	Source      TimingSource `json:"source"`
	WallSeconds float64      `json:"wallSeconds"`
}

// DispatchAndWait runs job repeat times inside one compute pass, reads the
// output back into out and returns the per-dispatch duration. It blocks until
// the device has finished and every staging buffer has been unmapped.
func (c *DeviceContext) DispatchAndWait(job *ComputeJob, out []float32, repeat int) (Timing, error) {
	if job == nil || job.released {
		return Timing{}, fmt.Errorf("%w: job is nil or released", ErrPrecondition)
	}
	if repeat < 1 {
		return Timing{}, fmt.Errorf("%w: repeat must be at least 1, got %d", ErrPrecondition, repeat)
	}
	if len(out) != job.Size*job.Size {
		return Timing{}, fmt.Errorf("%w: output holds %d elements, want %d", ErrPrecondition, len(out), job.Size*job.Size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return Timing{}, fmt.Errorf("%w: device context released", ErrPrecondition)
	}

	cmd, err := c.encode(job, repeat)
	if err != nil {
		return Timing{}, err
	}
	defer cmd.Release()

	start := time.Now()
	if err := c.backend.Submit(cmd); err != nil {
		return Timing{}, fmt.Errorf("submitting command buffer: %w", err)
	}

	staging := job.stagingBuffers()
	if err := c.mapAll(staging); err != nil {
		return Timing{}, err
	}
	defer func() {
		for _, buf := range staging {
			buf.Unmap()
		}
	}()

	if err := BytesToFloat32s(out, job.result.MappedRange()[:len(out)*4]); err != nil {
		return Timing{}, fmt.Errorf("reading result: %w", err)
	}

	wall := time.Since(start).Seconds()
	timing := Timing{
		Seconds:     wall / float64(repeat),
		Source:      TimingWall,
		WallSeconds: wall,
	}
	if job.HasTimestamps() {
		stamps := BytesToUint64s(job.timestamps.MappedRange()[:timestampBytes])
		begin, end := stamps[0], stamps[1]
		if end < begin {
			return Timing{}, fmt.Errorf("%w: end %d before start %d", ErrDeviceTimestamps, end, begin)
		}
		ns := float64(end-begin) * c.backend.TimestampPeriod()
		timing.Seconds = ns / 1e9 / float64(repeat)
		timing.Source = TimingDevice
	}

	c.logger.Debug("Dispatch complete",
		zap.Int("size", job.Size),
		zap.Int("repeat", repeat),
		zap.Float64("seconds", timing.Seconds),
		zap.Float64("wallSeconds", timing.WallSeconds),
		zap.String("timing", string(timing.Source)))
	return timing, nil
}

func (c *DeviceContext) encode(job *ComputeJob, repeat int) (CommandBuffer, error) {
	enc, err := c.backend.CreateCommandEncoder("matmul")
	if err != nil {
		return nil, fmt.Errorf("creating command encoder: %w", err)
	}
	defer enc.Release()

	var ts *TimestampWrites
	if job.HasTimestamps() {
		ts = &TimestampWrites{QuerySet: job.queries, BeginIndex: 0, EndIndex: 1}
	}

	pass := enc.BeginComputePass("matmul", ts)
	pass.SetPipeline(job.pipeline)
	pass.SetBindGroup(0, job.bindGroup)
	x, y, z := job.Workgroups()
	for i := 0; i < repeat; i++ {
		pass.DispatchWorkgroups(x, y, z)
	}
	if err := pass.End(); err != nil {
		return nil, fmt.Errorf("encoding compute pass: %w", err)
	}

	if err := enc.CopyBufferToBuffer(job.matC, job.result, job.result.Size()); err != nil {
		return nil, fmt.Errorf("encoding result copy: %w", err)
	}
	if job.HasTimestamps() {
		if err := enc.ResolveQuerySet(job.queries, 0, 2, job.resolve); err != nil {
			return nil, fmt.Errorf("encoding timestamp resolve: %w", err)
		}
		if err := enc.CopyBufferToBuffer(job.resolve, job.timestamps, timestampBytes); err != nil {
			return nil, fmt.Errorf("encoding timestamp copy: %w", err)
		}
	}

	cmd, err := enc.Finish()
	if err != nil {
		return nil, fmt.Errorf("finishing command buffer: %w", err)
	}
	return cmd, nil
}

// mapAll requests read mapping of every buffer and waits for each callback.
// On failure any buffer that did get mapped is unmapped again.
func (c *DeviceContext) mapAll(buffers []Buffer) error {
	signals := make([]mapSignal, 0, len(buffers))
	var mapErr error
	for _, buf := range buffers {
		sig := newMapSignal()
		if err := buf.MapAsync(sig.complete); err != nil {
			mapErr = fmt.Errorf("%w: %s: %v", ErrMappingFailed, buf.Label(), err)
			break
		}
		signals = append(signals, sig)
	}

	var mapped []Buffer
	for i, sig := range signals {
		status := sig.await(c.backend)
		if status == MapStatusSuccess {
			mapped = append(mapped, buffers[i])
			continue
		}
		if mapErr == nil {
			mapErr = fmt.Errorf("%w: %s: %s", ErrMappingFailed, buffers[i].Label(), status)
		}
	}

	if mapErr != nil {
		for _, buf := range mapped {
			buf.Unmap()
		}
		c.logger.Error("Staging buffer mapping failed", zap.Error(mapErr))
		return mapErr
	}
	return nil
}
