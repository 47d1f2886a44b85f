package gpu

// DeviceInfo contains information about the acquired compute device
type DeviceInfo struct {
	Name       string `json:"name"`
	Backend    string `json:"backend"`
	Driver     string `json:"driver,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
	Timestamps bool   `json:"timestamps"`
	// MaxBindingSize is the largest storage buffer binding, in bytes, that
	// the device accepts. Zero means unknown.
	MaxBindingSize uint64 `json:"maxBindingSize,omitempty"`
}

// BufferUsage is a bit mask describing how a device buffer may be used.
type BufferUsage uint32

const (
	BufferUsageMapRead BufferUsage = 1 << iota
	BufferUsageCopySrc
	BufferUsageCopyDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageQueryResolve
)

// Has reports whether all bits of flag are set in u.
func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

// MapStatus is the outcome delivered to a buffer mapping callback.
type MapStatus int

const (
	MapStatusSuccess MapStatus = iota
	MapStatusValidationError
	MapStatusDeviceLost
	MapStatusAborted
	MapStatusUnknown
)

func (s MapStatus) String() string {
	switch s {
	case MapStatusSuccess:
		return "success"
	case MapStatusValidationError:
		return "validation error"
	case MapStatusDeviceLost:
		return "device lost"
	case MapStatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// TimestampWrites asks a compute pass to sample the device timestamp counter
// into QuerySet at the given indices when the pass begins and ends.
type TimestampWrites struct {
	QuerySet   QuerySet
	BeginIndex uint32
	EndIndex   uint32
}

// Backend is a compute device together with its submission queue.
//
// The model follows WebGPU: buffers are created with a usage mask, work is
// recorded into a CommandEncoder, finished into a CommandBuffer and submitted.
// Submission never blocks; completion is observed through MapAsync callbacks,
// which only run from inside Poll.
//
// Implementations:
//   - wgpuBackend: a real adapter through wgpu-native (build tag "wgpu")
//   - softwareBackend: host-memory emulation of the same model
type Backend interface {
	// Name identifies the backend ("wgpu", "software").
	Name() string

	// DeviceInfo describes the adapter behind the device.
	DeviceInfo() DeviceInfo

	// TimestampPeriod is the number of nanoseconds per timestamp tick.
	TimestampPeriod() float64

	// CreateBufferInit creates a buffer initialised with contents.
	CreateBufferInit(label string, contents []byte, usage BufferUsage) (Buffer, error)

	// CreateBuffer creates a zeroed buffer of size bytes.
	CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error)

	// CreateComputePipeline compiles kernel and builds a pipeline with a
	// layout derived from the kernel's bindings.
	CreateComputePipeline(label string, kernel *Kernel) (Pipeline, error)

	// CreateBindGroup binds buffers to the pipeline's group 0, in binding
	// index order.
	CreateBindGroup(label string, pipeline Pipeline, buffers []Buffer) (BindGroup, error)

	// CreateTimestampQuerySet creates a timestamp query set with count slots.
	CreateTimestampQuerySet(label string, count uint32) (QuerySet, error)

	// CreateCommandEncoder starts recording a command sequence.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit hands a finished command buffer to the queue.
	Submit(cmd CommandBuffer) error

	// Poll advances the device timeline and runs pending callbacks. With
	// wait set it blocks until all submitted work has completed. It returns
	// true when the queue is empty.
	Poll(wait bool) bool

	// Release frees the device, queue and any adapter state.
	Release()
}

// Buffer is a device-resident memory region.
type Buffer interface {
	Label() string
	Size() uint64
	Usage() BufferUsage

	// MapAsync requests host read access to the whole buffer. callback runs
	// exactly once, from inside Backend.Poll.
	MapAsync(callback func(MapStatus)) error

	// MappedRange returns the mapped bytes. Valid only between a successful
	// map callback and Unmap.
	MappedRange() []byte

	Unmap()
	Release()
}

// Pipeline is a compiled compute pipeline.
type Pipeline interface {
	Release()
}

// BindGroup binds buffers to a pipeline's parameters.
type BindGroup interface {
	Release()
}

// QuerySet holds device timestamp samples.
type QuerySet interface {
	Count() uint32
	Release()
}

// CommandEncoder records commands into a single command sequence.
type CommandEncoder interface {
	// BeginComputePass opens a compute pass. ts may be nil.
	BeginComputePass(label string, ts *TimestampWrites) ComputePass

	CopyBufferToBuffer(src Buffer, dst Buffer, size uint64) error
	ResolveQuerySet(qs QuerySet, first, count uint32, dst Buffer) error
	Finish() (CommandBuffer, error)
	Release()
}

// ComputePass records dispatches inside a compute pass.
type ComputePass interface {
	SetPipeline(p Pipeline)
	SetBindGroup(index uint32, bg BindGroup)
	DispatchWorkgroups(x, y, z uint32)
	End() error
}

// CommandBuffer is a finished, submittable command sequence.
type CommandBuffer interface {
	Release()
}
