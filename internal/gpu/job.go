package gpu

import (
	"fmt"

	"go.uber.org/zap"
)

// timestampBytes is the size of a resolved begin/end timestamp pair.
const timestampBytes = 16

// ComputeJob holds every device resource for one matmul of a given size. It
// owns its buffers exclusively; Release ends it.
type ComputeJob struct {
	Size int

	dimension Buffer
	matA      Buffer
	matB      Buffer
	matC      Buffer
	result    Buffer

	queries    QuerySet
	resolve    Buffer
	timestamps Buffer

	pipeline  Pipeline
	bindGroup BindGroup

	released bool
}

// BuildJob allocates and initialises the buffers for C = A·B, compiles the
// matmul kernel and binds it. out is the initial content of the output
// buffer. size must be a positive multiple of WorkgroupTile.
func (c *DeviceContext) BuildJob(a, b, out []float32, size int) (*ComputeJob, error) {
	if size <= 0 || size%WorkgroupTile != 0 {
		return nil, fmt.Errorf("%w: size %d is not a positive multiple of %d", ErrPrecondition, size, WorkgroupTile)
	}
	n := size * size
	if len(a) != n || len(b) != n || len(out) != n {
		return nil, fmt.Errorf("%w: buffers of %d, %d and %d elements for size %d (want %d)",
			ErrPrecondition, len(a), len(b), len(out), size, n)
	}

	bindingSize := uint64(n) * 4
	if limit := c.backend.DeviceInfo().MaxBindingSize; limit > 0 && bindingSize > limit {
		return nil, fmt.Errorf("%w: size %d needs %d-byte bindings, device limit is %d",
			ErrPrecondition, size, bindingSize, limit)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, fmt.Errorf("%w: device context released", ErrPrecondition)
	}

	job := &ComputeJob{Size: size}
	if err := c.buildJob(job, a, b, out); err != nil {
		job.Release()
		return nil, err
	}

	c.logger.Debug("Compute job built",
		zap.Int("size", size),
		zap.Uint64("bytesPerMatrix", uint64(n)*4),
		zap.Bool("timestamps", job.queries != nil))
	return job, nil
}

func (c *DeviceContext) buildJob(job *ComputeJob, a, b, out []float32) error {
	var err error
	dev := c.backend
	readOnly := BufferUsageStorage

	if job.dimension, err = dev.CreateBufferInit("dimension", Uint32ToBytes(uint32(job.Size)), readOnly); err != nil {
		return fmt.Errorf("creating dimension buffer: %w", err)
	}
	if job.matA, err = dev.CreateBufferInit("matA", Float32sToBytes(a), readOnly); err != nil {
		return fmt.Errorf("creating matA buffer: %w", err)
	}
	if job.matB, err = dev.CreateBufferInit("matB", Float32sToBytes(b), readOnly); err != nil {
		return fmt.Errorf("creating matB buffer: %w", err)
	}
	outBytes := Float32sToBytes(out)
	if job.matC, err = dev.CreateBufferInit("matC", outBytes,
		BufferUsageStorage|BufferUsageCopySrc|BufferUsageCopyDst); err != nil {
		return fmt.Errorf("creating matC buffer: %w", err)
	}
	if job.result, err = dev.CreateBuffer("result", uint64(len(outBytes)),
		BufferUsageMapRead|BufferUsageCopyDst); err != nil {
		return fmt.Errorf("creating result staging buffer: %w", err)
	}

	if c.timestamps {
		if job.queries, err = dev.CreateTimestampQuerySet("timestamps", 2); err != nil {
			return fmt.Errorf("creating timestamp query set: %w", err)
		}
		if job.resolve, err = dev.CreateBuffer("resolve", timestampBytes,
			BufferUsageQueryResolve|BufferUsageCopySrc); err != nil {
			return fmt.Errorf("creating timestamp resolve buffer: %w", err)
		}
		if job.timestamps, err = dev.CreateBuffer("timestamps", timestampBytes,
			BufferUsageMapRead|BufferUsageCopyDst); err != nil {
			return fmt.Errorf("creating timestamp staging buffer: %w", err)
		}
	}

	if job.pipeline, err = dev.CreateComputePipeline("matmul", MatmulKernel); err != nil {
		return fmt.Errorf("creating compute pipeline: %w", err)
	}
	if job.bindGroup, err = dev.CreateBindGroup("matmul", job.pipeline,
		[]Buffer{job.dimension, job.matA, job.matB, job.matC}); err != nil {
		return fmt.Errorf("creating bind group: %w", err)
	}
	return nil
}

// Workgroups is the dispatch grid covering the output matrix.
func (j *ComputeJob) Workgroups() (x, y, z uint32) {
	tiles := uint32(j.Size / WorkgroupTile)
	return tiles, tiles, 1
}

// HasTimestamps reports whether the job brackets its dispatches with
// timestamp queries.
func (j *ComputeJob) HasTimestamps() bool {
	return j.queries != nil
}

// stagingBuffers are the buffers mapped for readback, result first.
func (j *ComputeJob) stagingBuffers() []Buffer {
	if j.timestamps == nil {
		return []Buffer{j.result}
	}
	return []Buffer{j.result, j.timestamps}
}

// Release frees every resource the job created. Partially built jobs are
// released the same way.
func (j *ComputeJob) Release() {
	if j.released {
		return
	}
	j.released = true
	if j.bindGroup != nil {
		j.bindGroup.Release()
	}
	if j.pipeline != nil {
		j.pipeline.Release()
	}
	if j.queries != nil {
		j.queries.Release()
	}
	for _, buf := range []Buffer{j.timestamps, j.resolve, j.result, j.matC, j.matB, j.matA, j.dimension} {
		if buf != nil {
			buf.Release()
		}
	}
}
