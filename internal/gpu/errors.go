package gpu

import (
	"errors"

	"github.com/fxnlabs/matbench/internal/matrix"
)

var (
	// ErrPrecondition reports a dimension or argument mismatch. It is the same
	// value as matrix.ErrPrecondition so callers can match either.
	ErrPrecondition = matrix.ErrPrecondition

	// ErrNoCompatibleDevice is returned when no compute-capable adapter exists
	// for the requested backend.
	ErrNoCompatibleDevice = errors.New("no compatible compute device")

	// ErrDeviceRequest is returned when an adapter exists but the device
	// request (features, limits) fails.
	ErrDeviceRequest = errors.New("device request failed")

	// ErrMappingFailed is returned when an asynchronous buffer map completes
	// with a non-success status.
	ErrMappingFailed = errors.New("buffer mapping failed")

	// ErrDeviceTimestamps is returned when the resolved timestamp pair is not
	// monotonic.
	ErrDeviceTimestamps = errors.New("invalid device timestamps")
)
