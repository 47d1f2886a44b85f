package gpu

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DefaultBackend is used when AcquireOptions.Backend is empty.
const DefaultBackend = WGPUBackendName

// AcquireOptions selects and configures the compute device.
type AcquireOptions struct {
	// Backend names the device implementation: "wgpu" or "software".
	Backend string
	// Timestamps requests the timestamp-query feature. Acquisition fails
	// when the adapter cannot provide it.
	Timestamps bool
}

// backendFactory opens a device for a backend. It returns an error wrapping
// ErrNoCompatibleDevice when no adapter exists and ErrDeviceRequest when the
// device cannot be created with the requested features.
type backendFactory func(opts AcquireOptions, logger *zap.Logger) (Backend, error)

var backendFactories = map[string]backendFactory{
	WGPUBackendName: newWGPUBackend,
	SoftwareBackendName: func(_ AcquireOptions, logger *zap.Logger) (Backend, error) {
		return newSoftwareBackend(logger), nil
	},
}

// Backends lists the backend names this binary can try to acquire.
func Backends() []string {
	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeviceContext owns the device and queue for the lifetime of a run. Jobs are
// built against it and dispatched one at a time.
type DeviceContext struct {
	backend    Backend
	logger     *zap.Logger
	timestamps bool

	// mu serialises dispatches.
	mu       sync.Mutex
	released bool
}

// Acquire opens the device selected by opts. It never falls back to another
// backend.
func Acquire(opts AcquireOptions, logger *zap.Logger) (*DeviceContext, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("gpu")

	name := opts.Backend
	if name == "" {
		name = DefaultBackend
	}
	factory, ok := backendFactories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend %q (available: %v)", ErrNoCompatibleDevice, name, Backends())
	}

	backend, err := factory(opts, logger)
	if err != nil {
		return nil, err
	}
	if opts.Timestamps && !backend.DeviceInfo().Timestamps {
		backend.Release()
		return nil, fmt.Errorf("%w: %s device does not support timestamp queries", ErrDeviceRequest, name)
	}

	ctx := &DeviceContext{
		backend:    backend,
		logger:     logger,
		timestamps: opts.Timestamps,
	}
	info := ctx.Info()
	logger.Info("Compute device acquired",
		zap.String("backend", info.Backend),
		zap.String("device", info.Name),
		zap.String("driver", info.Driver),
		zap.Bool("timestamps", info.Timestamps))
	return ctx, nil
}

// Info describes the acquired device. Timestamps reports whether timestamp
// queries are enabled for this context.
func (c *DeviceContext) Info() DeviceInfo {
	info := c.backend.DeviceInfo()
	info.Timestamps = c.timestamps
	return info
}

// Timestamps reports whether jobs built on this context carry timestamp
// queries.
func (c *DeviceContext) Timestamps() bool {
	return c.timestamps
}

// Release frees the device and queue. It is safe to call more than once.
func (c *DeviceContext) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	c.backend.Release()
	c.logger.Debug("Compute device released")
}
