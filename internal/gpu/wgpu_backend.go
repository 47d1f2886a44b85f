//go:build wgpu

package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
	"go.uber.org/zap"
)

// WGPUBackendName selects the WebGPU device.
const WGPUBackendName = "wgpu"

// wgpuTimestampPeriod is the nanoseconds per timestamp tick. wgpu-native
// normalises timestamp queries to nanoseconds.
const wgpuTimestampPeriod = 1.0

// wgpuBackend drives a real adapter through wgpu-native.
type wgpuBackend struct {
	logger   *zap.Logger
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     DeviceInfo
}

func newWGPUBackend(opts AcquireOptions, logger *zap.Logger) (Backend, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, fmt.Errorf("%w: creating WebGPU instance", ErrNoCompatibleDevice)
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil || adapter == nil {
		instance.Release()
		return nil, fmt.Errorf("%w: no WebGPU adapter: %v", ErrNoCompatibleDevice, err)
	}

	var features []wgpu.FeatureName
	if opts.Timestamps {
		if !adapter.HasFeature(wgpu.FeatureNameTimestampQuery) {
			adapter.Release()
			instance.Release()
			return nil, fmt.Errorf("%w: adapter does not support timestamp queries", ErrDeviceRequest)
		}
		features = append(features, wgpu.FeatureNameTimestampQuery)
	}

	// Ask for everything the adapter supports; the WebGPU defaults cap a
	// storage binding at 128 MiB, below a 6144x6144 f32 matrix.
	supported := adapter.GetLimits()
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            "matbench",
		RequiredFeatures: features,
		RequiredLimits:   &wgpu.RequiredLimits{Limits: supported.Limits},
	})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: %v", ErrDeviceRequest, err)
	}

	props := adapter.GetInfo()
	b := &wgpuBackend{
		logger:   logger,
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    device.GetQueue(),
		info: DeviceInfo{
			Name:       props.Name,
			Backend:    WGPUBackendName,
			Driver:     props.DriverDescription,
			DeviceType: props.AdapterType.String(),
			Timestamps: opts.Timestamps,
			MaxBindingSize: min(
				supported.Limits.MaxStorageBufferBindingSize,
				supported.Limits.MaxBufferSize,
			),
		},
	}
	return b, nil
}

func (w *wgpuBackend) Name() string             { return WGPUBackendName }
func (w *wgpuBackend) DeviceInfo() DeviceInfo   { return w.info }
func (w *wgpuBackend) TimestampPeriod() float64 { return wgpuTimestampPeriod }

func toWGPUUsage(u BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u.Has(BufferUsageMapRead) {
		out |= wgpu.BufferUsageMapRead
	}
	if u.Has(BufferUsageCopySrc) {
		out |= wgpu.BufferUsageCopySrc
	}
	if u.Has(BufferUsageCopyDst) {
		out |= wgpu.BufferUsageCopyDst
	}
	if u.Has(BufferUsageUniform) {
		out |= wgpu.BufferUsageUniform
	}
	if u.Has(BufferUsageStorage) {
		out |= wgpu.BufferUsageStorage
	}
	if u.Has(BufferUsageQueryResolve) {
		out |= wgpu.BufferUsageQueryResolve
	}
	return out
}

func (w *wgpuBackend) CreateBufferInit(label string, contents []byte, usage BufferUsage) (Buffer, error) {
	// Initial contents go through the queue, which needs copy-dst.
	buf, err := w.createBuffer(label, uint64(len(contents)), usage, toWGPUUsage(usage)|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	if err := w.queue.WriteBuffer(buf.buf, 0, contents); err != nil {
		buf.Release()
		return nil, fmt.Errorf("buffer %q: writing initial contents: %w", label, err)
	}
	return buf, nil
}

func (w *wgpuBackend) CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error) {
	buf, err := w.createBuffer(label, size, usage, toWGPUUsage(usage))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (w *wgpuBackend) createBuffer(label string, size uint64, usage BufferUsage, native wgpu.BufferUsage) (*wgpuBuffer, error) {
	buf, err := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: native,
	})
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", label, err)
	}
	return &wgpuBuffer{label: label, usage: usage, buf: buf}, nil
}

func bindingLayout(t BindingType) wgpu.BufferBindingLayout {
	switch t {
	case BindingStorage:
		return wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}
	case BindingUniform:
		return wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}
	default:
		return wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}
	}
}

func (w *wgpuBackend) CreateComputePipeline(label string, kernel *Kernel) (Pipeline, error) {
	module, err := w.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          kernel.Name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: kernel.Source},
	})
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", kernel.Name, err)
	}
	defer module.Release()

	entries := make([]wgpu.BindGroupLayoutEntry, len(kernel.Bindings))
	for i, t := range kernel.Bindings {
		entries[i] = wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     bindingLayout(t),
		}
	}
	bgl, err := w.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("bind group layout %q: %w", label, err)
	}

	layout, err := w.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		bgl.Release()
		return nil, fmt.Errorf("pipeline layout %q: %w", label, err)
	}
	defer layout.Release()

	pipeline, err := w.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label,
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: kernel.EntryPoint,
		},
	})
	if err != nil {
		bgl.Release()
		return nil, fmt.Errorf("compute pipeline %q: %w", label, err)
	}
	return &wgpuPipeline{pipeline: pipeline, layout: bgl}, nil
}

func (w *wgpuBackend) CreateBindGroup(label string, pipeline Pipeline, buffers []Buffer) (BindGroup, error) {
	p, ok := pipeline.(*wgpuPipeline)
	if !ok {
		return nil, fmt.Errorf("bind group %q: foreign pipeline %T", label, pipeline)
	}
	entries := make([]wgpu.BindGroupEntry, len(buffers))
	for i, b := range buffers {
		wb, ok := b.(*wgpuBuffer)
		if !ok {
			return nil, fmt.Errorf("bind group %q: binding %d is a foreign buffer %T", label, i, b)
		}
		entries[i] = wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  wb.buf,
			Offset:  0,
			Size:    wb.buf.GetSize(),
		}
	}
	bg, err := w.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  p.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("bind group %q: %w", label, err)
	}
	return &wgpuBindGroup{bg: bg}, nil
}

func (w *wgpuBackend) CreateTimestampQuerySet(label string, count uint32) (QuerySet, error) {
	qs, err := w.device.CreateQuerySet(&wgpu.QuerySetDescriptor{
		Label: label,
		Type:  wgpu.QueryTypeTimestamp,
		Count: count,
	})
	if err != nil {
		return nil, fmt.Errorf("query set %q: %w", label, err)
	}
	return &wgpuQuerySet{qs: qs, count: count}, nil
}

func (w *wgpuBackend) CreateCommandEncoder(label string) (CommandEncoder, error) {
	enc, err := w.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("command encoder %q: %w", label, err)
	}
	return &wgpuEncoder{enc: enc}, nil
}

func (w *wgpuBackend) Submit(cmd CommandBuffer) error {
	cb, ok := cmd.(*wgpuCommandBuffer)
	if !ok {
		return fmt.Errorf("submit: foreign command buffer %T", cmd)
	}
	w.queue.Submit(cb.cb)
	return nil
}

func (w *wgpuBackend) Poll(wait bool) bool {
	return w.device.Poll(wait, nil)
}

func (w *wgpuBackend) Release() {
	if w.queue != nil {
		w.queue.Release()
		w.queue = nil
	}
	if w.device != nil {
		w.device.Release()
		w.device = nil
	}
	if w.adapter != nil {
		w.adapter.Release()
		w.adapter = nil
	}
	if w.instance != nil {
		w.instance.Release()
		w.instance = nil
	}
}

type wgpuBuffer struct {
	label  string
	usage  BufferUsage
	buf    *wgpu.Buffer
	mapped bool
}

func (b *wgpuBuffer) Label() string      { return b.label }
func (b *wgpuBuffer) Size() uint64       { return b.buf.GetSize() }
func (b *wgpuBuffer) Usage() BufferUsage { return b.usage }

func (b *wgpuBuffer) MapAsync(callback func(MapStatus)) error {
	if !b.usage.Has(BufferUsageMapRead) {
		return fmt.Errorf("buffer %q: not created with map-read usage", b.label)
	}
	err := b.buf.MapAsync(wgpu.MapModeRead, 0, b.buf.GetSize(), func(status wgpu.BufferMapAsyncStatus) {
		s := fromWGPUMapStatus(status)
		if s == MapStatusSuccess {
			b.mapped = true
		}
		callback(s)
	})
	if err != nil {
		return fmt.Errorf("buffer %q: %w", b.label, err)
	}
	return nil
}

func fromWGPUMapStatus(status wgpu.BufferMapAsyncStatus) MapStatus {
	switch status {
	case wgpu.BufferMapAsyncStatusSuccess:
		return MapStatusSuccess
	case wgpu.BufferMapAsyncStatusValidationError:
		return MapStatusValidationError
	case wgpu.BufferMapAsyncStatusDeviceLost:
		return MapStatusDeviceLost
	case wgpu.BufferMapAsyncStatusDestroyedBeforeCallback,
		wgpu.BufferMapAsyncStatusUnmappedBeforeCallback:
		return MapStatusAborted
	default:
		return MapStatusUnknown
	}
}

func (b *wgpuBuffer) MappedRange() []byte {
	if !b.mapped {
		return nil
	}
	return b.buf.GetMappedRange(0, uint(b.buf.GetSize()))
}

func (b *wgpuBuffer) Unmap() {
	if !b.mapped {
		return
	}
	b.buf.Unmap()
	b.mapped = false
}

func (b *wgpuBuffer) Release() {
	b.Unmap()
	b.buf.Release()
}

type wgpuPipeline struct {
	pipeline *wgpu.ComputePipeline
	layout   *wgpu.BindGroupLayout
}

func (p *wgpuPipeline) Release() {
	p.pipeline.Release()
	p.layout.Release()
}

type wgpuBindGroup struct {
	bg *wgpu.BindGroup
}

func (g *wgpuBindGroup) Release() { g.bg.Release() }

type wgpuQuerySet struct {
	qs    *wgpu.QuerySet
	count uint32
}

func (q *wgpuQuerySet) Count() uint32 { return q.count }
func (q *wgpuQuerySet) Release()      { q.qs.Release() }

type wgpuCommandBuffer struct {
	cb *wgpu.CommandBuffer
}

func (c *wgpuCommandBuffer) Release() { c.cb.Release() }

type wgpuEncoder struct {
	enc *wgpu.CommandEncoder
}

func (e *wgpuEncoder) BeginComputePass(label string, ts *TimestampWrites) ComputePass {
	desc := &wgpu.ComputePassDescriptor{Label: label}
	if ts != nil {
		if qs, ok := ts.QuerySet.(*wgpuQuerySet); ok {
			desc.TimestampWrites = &wgpu.ComputePassTimestampWrites{
				QuerySet:                  qs.qs,
				BeginningOfPassWriteIndex: ts.BeginIndex,
				EndOfPassWriteIndex:       ts.EndIndex,
			}
		}
	}
	return &wgpuComputePass{pass: e.enc.BeginComputePass(desc)}
}

func (e *wgpuEncoder) CopyBufferToBuffer(src Buffer, dst Buffer, size uint64) error {
	s, ok1 := src.(*wgpuBuffer)
	d, ok2 := dst.(*wgpuBuffer)
	if !ok1 || !ok2 {
		return fmt.Errorf("copy: foreign buffers %T -> %T", src, dst)
	}
	if err := e.enc.CopyBufferToBuffer(s.buf, 0, d.buf, 0, size); err != nil {
		return fmt.Errorf("copy %q -> %q: %w", s.label, d.label, err)
	}
	return nil
}

func (e *wgpuEncoder) ResolveQuerySet(qs QuerySet, first, count uint32, dst Buffer) error {
	q, ok1 := qs.(*wgpuQuerySet)
	d, ok2 := dst.(*wgpuBuffer)
	if !ok1 || !ok2 {
		return fmt.Errorf("resolve: foreign resources %T, %T", qs, dst)
	}
	if err := e.enc.ResolveQuerySet(q.qs, first, count, d.buf, 0); err != nil {
		return fmt.Errorf("resolve into %q: %w", d.label, err)
	}
	return nil
}

func (e *wgpuEncoder) Finish() (CommandBuffer, error) {
	cb, err := e.enc.Finish(nil)
	if err != nil {
		return nil, err
	}
	return &wgpuCommandBuffer{cb: cb}, nil
}

func (e *wgpuEncoder) Release() { e.enc.Release() }

type wgpuComputePass struct {
	pass *wgpu.ComputePassEncoder
}

func (p *wgpuComputePass) SetPipeline(pl Pipeline) {
	if wp, ok := pl.(*wgpuPipeline); ok {
		p.pass.SetPipeline(wp.pipeline)
	}
}

func (p *wgpuComputePass) SetBindGroup(index uint32, bg BindGroup) {
	if wg, ok := bg.(*wgpuBindGroup); ok {
		p.pass.SetBindGroup(index, wg.bg, nil)
	}
}

func (p *wgpuComputePass) DispatchWorkgroups(x, y, z uint32) {
	p.pass.DispatchWorkgroups(x, y, z)
}

func (p *wgpuComputePass) End() error {
	defer p.pass.Release()
	return p.pass.End()
}
