package gpu

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"
)

// SoftwareBackendName selects the host-memory emulation of the device model.
const SoftwareBackendName = "software"

// softwareMaxBinding caps software storage bindings at 1 GiB.
const softwareMaxBinding = 1 << 30

// softwareBackend implements Backend in host memory. Submitted command
// buffers queue up and only execute inside Poll, which is also where map
// callbacks fire, so callers observe the same ordering as on a real device.
type softwareBackend struct {
	logger *zap.Logger
	epoch  time.Time

	mu       sync.Mutex
	queue    []*softwareCommandBuffer
	maps     []*softwareMapRequest
	lost     error
	released bool

	// buffersCreated counts every successful buffer allocation.
	buffersCreated int

	// failMaps makes every map request complete with failStatus.
	failMaps   bool
	failStatus MapStatus

	// maxBinding is the storage binding limit reported in DeviceInfo.
	maxBinding uint64

	// dropMaps discards map requests without running their callbacks.
	dropMaps bool

	// clock overrides the timestamp counter.
	clock func() uint64
}

type softwareMapRequest struct {
	buffer   *softwareBuffer
	callback func(MapStatus)
}

func newSoftwareBackend(logger *zap.Logger) *softwareBackend {
	return &softwareBackend{
		logger:     logger,
		epoch:      time.Now(),
		maxBinding: softwareMaxBinding,
	}
}

func (s *softwareBackend) Name() string {
	return SoftwareBackendName
}

func (s *softwareBackend) DeviceInfo() DeviceInfo {
	return DeviceInfo{
		Name:       fmt.Sprintf("software (%s, %d CPUs)", runtime.GOARCH, runtime.NumCPU()),
		Backend:    SoftwareBackendName,
		Driver:     runtime.Version(),
		DeviceType:     "cpu",
		Timestamps:     true,
		MaxBindingSize: s.maxBinding,
	}
}

// TimestampPeriod is one nanosecond: ticks come from the monotonic clock.
func (s *softwareBackend) TimestampPeriod() float64 {
	return 1
}

func (s *softwareBackend) now() uint64 {
	if s.clock != nil {
		return s.clock()
	}
	return uint64(time.Since(s.epoch).Nanoseconds())
}

func (s *softwareBackend) CreateBufferInit(label string, contents []byte, usage BufferUsage) (Buffer, error) {
	buf, err := s.newBuffer(label, uint64(len(contents)), usage)
	if err != nil {
		return nil, err
	}
	copy(buf.data, contents)
	return buf, nil
}

func (s *softwareBackend) CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error) {
	buf, err := s.newBuffer(label, size, usage)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *softwareBackend) newBuffer(label string, size uint64, usage BufferUsage) (*softwareBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer %q: size must be positive", label)
	}
	if usage.Has(BufferUsageMapRead) && usage&^(BufferUsageMapRead|BufferUsageCopyDst) != 0 {
		return nil, fmt.Errorf("buffer %q: map-read may only be combined with copy-dst", label)
	}
	// Backed by u32 words so float32 views of the bytes are aligned.
	words := make([]uint32, (size+3)/4)
	data := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
	s.mu.Lock()
	s.buffersCreated++
	s.mu.Unlock()
	return &softwareBuffer{
		backend: s,
		label:   label,
		usage:   usage,
		words:   words,
		data:    data,
	}, nil
}

func (s *softwareBackend) CreateComputePipeline(label string, kernel *Kernel) (Pipeline, error) {
	if kernel == nil || kernel.Host == nil {
		return nil, fmt.Errorf("pipeline %q: kernel has no host implementation", label)
	}
	return &softwarePipeline{label: label, kernel: kernel}, nil
}

func (s *softwareBackend) CreateBindGroup(label string, pipeline Pipeline, buffers []Buffer) (BindGroup, error) {
	p, ok := pipeline.(*softwarePipeline)
	if !ok {
		return nil, fmt.Errorf("bind group %q: foreign pipeline %T", label, pipeline)
	}
	if len(buffers) != len(p.kernel.Bindings) {
		return nil, fmt.Errorf("bind group %q: kernel %s has %d bindings, got %d buffers",
			label, p.kernel.Name, len(p.kernel.Bindings), len(buffers))
	}
	bound := make([]*softwareBuffer, len(buffers))
	for i, b := range buffers {
		sb, ok := b.(*softwareBuffer)
		if !ok {
			return nil, fmt.Errorf("bind group %q: binding %d is a foreign buffer %T", label, i, b)
		}
		want := BufferUsageStorage
		if p.kernel.Bindings[i] == BindingUniform {
			want = BufferUsageUniform
		}
		if !sb.usage.Has(want) {
			return nil, fmt.Errorf("bind group %q: buffer %q lacks the usage for binding %d", label, sb.label, i)
		}
		bound[i] = sb
	}
	return &softwareBindGroup{label: label, pipeline: p, buffers: bound}, nil
}

func (s *softwareBackend) CreateTimestampQuerySet(label string, count uint32) (QuerySet, error) {
	if count == 0 {
		return nil, fmt.Errorf("query set %q: count must be positive", label)
	}
	return &softwareQuerySet{label: label, values: make([]uint64, count)}, nil
}

func (s *softwareBackend) CreateCommandEncoder(label string) (CommandEncoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, errors.New("software device released")
	}
	return &softwareEncoder{backend: s, label: label}, nil
}

func (s *softwareBackend) Submit(cmd CommandBuffer) error {
	cb, ok := cmd.(*softwareCommandBuffer)
	if !ok {
		return fmt.Errorf("submit: foreign command buffer %T", cmd)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return errors.New("software device released")
	}
	s.queue = append(s.queue, cb)
	return nil
}

// Poll runs every queued command buffer, then resolves pending map requests.
// Work is synchronous, so the queue is always empty afterwards.
func (s *softwareBackend) Poll(wait bool) bool {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, cb := range queue {
		for _, op := range cb.ops {
			if err := op(); err != nil {
				s.logger.Error("Command execution failed", zap.String("commandBuffer", cb.label), zap.Error(err))
				s.mu.Lock()
				s.lost = err
				s.mu.Unlock()
				break
			}
		}
	}

	s.mu.Lock()
	maps := s.maps
	s.maps = nil
	status := MapStatusSuccess
	switch {
	case s.lost != nil:
		status = MapStatusDeviceLost
	case s.failMaps:
		status = s.failStatus
	}
	drop := s.dropMaps
	s.mu.Unlock()

	for _, req := range maps {
		if drop {
			req.buffer.pendingMap = false
			continue
		}
		req.buffer.pendingMap = false
		if status == MapStatusSuccess {
			req.buffer.mapped = true
		}
		req.callback(status)
	}
	return true
}

func (s *softwareBackend) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.queue = nil
	s.maps = nil
}

type softwareBuffer struct {
	backend    *softwareBackend
	label      string
	usage      BufferUsage
	words      []uint32
	data       []byte
	mapped     bool
	pendingMap bool
	released   bool
}

func (b *softwareBuffer) Label() string      { return b.label }
func (b *softwareBuffer) Size() uint64       { return uint64(len(b.data)) }
func (b *softwareBuffer) Usage() BufferUsage { return b.usage }

func (b *softwareBuffer) MapAsync(callback func(MapStatus)) error {
	switch {
	case b.released:
		return fmt.Errorf("buffer %q: released", b.label)
	case !b.usage.Has(BufferUsageMapRead):
		return fmt.Errorf("buffer %q: not created with map-read usage", b.label)
	case b.mapped || b.pendingMap:
		return fmt.Errorf("buffer %q: already mapped", b.label)
	}
	b.pendingMap = true
	b.backend.mu.Lock()
	b.backend.maps = append(b.backend.maps, &softwareMapRequest{buffer: b, callback: callback})
	b.backend.mu.Unlock()
	return nil
}

func (b *softwareBuffer) MappedRange() []byte {
	if !b.mapped {
		return nil
	}
	return b.data
}

func (b *softwareBuffer) Unmap() {
	b.mapped = false
}

func (b *softwareBuffer) Release() {
	b.mapped = false
	b.released = true
	b.words = nil
	b.data = nil
}

// Mapped reports whether the buffer is currently mapped for host access.
func (b *softwareBuffer) Mapped() bool {
	return b.mapped
}

type softwarePipeline struct {
	label  string
	kernel *Kernel
}

func (p *softwarePipeline) Release() {}

type softwareBindGroup struct {
	label    string
	pipeline *softwarePipeline
	buffers  []*softwareBuffer
}

func (g *softwareBindGroup) Release() {}

type softwareQuerySet struct {
	label  string
	values []uint64
}

func (q *softwareQuerySet) Count() uint32 { return uint32(len(q.values)) }
func (q *softwareQuerySet) Release()      {}

type softwareCommandBuffer struct {
	label string
	ops   []func() error
}

func (c *softwareCommandBuffer) Release() {
	c.ops = nil
}

type softwareEncoder struct {
	backend  *softwareBackend
	label    string
	ops      []func() error
	err      error
	finished bool
}

func (e *softwareEncoder) record(op func() error) {
	e.ops = append(e.ops, op)
}

// fail keeps the first recording error; Finish reports it.
func (e *softwareEncoder) fail(err error) error {
	if e.err == nil {
		e.err = err
	}
	return err
}

func (e *softwareEncoder) BeginComputePass(label string, ts *TimestampWrites) ComputePass {
	pass := &softwareComputePass{encoder: e, label: label}
	if ts != nil {
		qs, ok := ts.QuerySet.(*softwareQuerySet)
		if !ok || ts.BeginIndex >= qs.Count() || ts.EndIndex >= qs.Count() {
			_ = e.fail(fmt.Errorf("compute pass %q: invalid timestamp writes", label))
		} else {
			pass.queries = qs
			pass.endIndex = ts.EndIndex
			e.record(func() error {
				qs.values[ts.BeginIndex] = e.backend.now()
				return nil
			})
		}
	}
	return pass
}

func (e *softwareEncoder) CopyBufferToBuffer(src Buffer, dst Buffer, size uint64) error {
	s, ok1 := src.(*softwareBuffer)
	d, ok2 := dst.(*softwareBuffer)
	switch {
	case !ok1 || !ok2:
		return e.fail(fmt.Errorf("copy: foreign buffers %T -> %T", src, dst))
	case !s.usage.Has(BufferUsageCopySrc):
		return e.fail(fmt.Errorf("copy: buffer %q lacks copy-src usage", s.label))
	case !d.usage.Has(BufferUsageCopyDst):
		return e.fail(fmt.Errorf("copy: buffer %q lacks copy-dst usage", d.label))
	case size > s.Size() || size > d.Size():
		return e.fail(fmt.Errorf("copy: %d bytes exceeds %q or %q", size, s.label, d.label))
	}
	e.record(func() error {
		if d.mapped {
			return fmt.Errorf("copy: destination %q is mapped", d.label)
		}
		copy(d.data[:size], s.data[:size])
		return nil
	})
	return nil
}

func (e *softwareEncoder) ResolveQuerySet(qs QuerySet, first, count uint32, dst Buffer) error {
	q, ok1 := qs.(*softwareQuerySet)
	d, ok2 := dst.(*softwareBuffer)
	switch {
	case !ok1 || !ok2:
		return e.fail(fmt.Errorf("resolve: foreign resources %T, %T", qs, dst))
	case first+count > q.Count():
		return e.fail(fmt.Errorf("resolve: queries [%d, %d) outside set of %d", first, first+count, q.Count()))
	case !d.usage.Has(BufferUsageQueryResolve):
		return e.fail(fmt.Errorf("resolve: buffer %q lacks query-resolve usage", d.label))
	case uint64(count)*8 > d.Size():
		return e.fail(fmt.Errorf("resolve: buffer %q too small for %d queries", d.label, count))
	}
	e.record(func() error {
		for i := uint32(0); i < count; i++ {
			putUint64(d.data[i*8:], q.values[first+i])
		}
		return nil
	})
	return nil
}

func (e *softwareEncoder) Finish() (CommandBuffer, error) {
	if e.finished {
		return nil, fmt.Errorf("encoder %q: already finished", e.label)
	}
	e.finished = true
	if e.err != nil {
		return nil, e.err
	}
	return &softwareCommandBuffer{label: e.label, ops: e.ops}, nil
}

func (e *softwareEncoder) Release() {
	e.ops = nil
}

type softwareComputePass struct {
	encoder   *softwareEncoder
	label     string
	pipeline  *softwarePipeline
	bindGroup *softwareBindGroup
	queries   *softwareQuerySet
	endIndex  uint32
	ended     bool
}

func (p *softwareComputePass) SetPipeline(pl Pipeline) {
	sp, ok := pl.(*softwarePipeline)
	if !ok {
		_ = p.encoder.fail(fmt.Errorf("compute pass %q: foreign pipeline %T", p.label, pl))
		return
	}
	p.pipeline = sp
}

func (p *softwareComputePass) SetBindGroup(index uint32, bg BindGroup) {
	sg, ok := bg.(*softwareBindGroup)
	if !ok || index != 0 {
		_ = p.encoder.fail(fmt.Errorf("compute pass %q: only bind group 0 of this device is supported", p.label))
		return
	}
	p.bindGroup = sg
}

func (p *softwareComputePass) DispatchWorkgroups(x, y, z uint32) {
	if p.pipeline == nil || p.bindGroup == nil {
		_ = p.encoder.fail(fmt.Errorf("compute pass %q: dispatch without pipeline and bind group", p.label))
		return
	}
	kernel := p.pipeline.kernel
	buffers := p.bindGroup.buffers
	p.encoder.record(func() error {
		bindings := make([][]byte, len(buffers))
		for i, b := range buffers {
			if b.released {
				return fmt.Errorf("dispatch %s: buffer %q released", kernel.Name, b.label)
			}
			bindings[i] = b.data
		}
		for gz := uint32(0); gz < z; gz++ {
			for gy := uint32(0); gy < y; gy++ {
				for gx := uint32(0); gx < x; gx++ {
					if err := kernel.Host([3]uint32{gx, gy, gz}, bindings); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

func (p *softwareComputePass) End() error {
	if p.ended {
		return p.encoder.fail(fmt.Errorf("compute pass %q: already ended", p.label))
	}
	p.ended = true
	if p.queries != nil {
		qs, idx, backend := p.queries, p.endIndex, p.encoder.backend
		p.encoder.record(func() error {
			qs.values[idx] = backend.now()
			return nil
		})
	}
	return p.encoder.err
}
