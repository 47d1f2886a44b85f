package gpu

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fxnlabs/matbench/internal/matrix"
)

func newSoftwareContext(t testing.TB, timestamps bool) *DeviceContext {
	t.Helper()
	ctx, err := Acquire(AcquireOptions{Backend: SoftwareBackendName, Timestamps: timestamps}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(ctx.Release)
	return ctx
}

func software(ctx *DeviceContext) *softwareBackend {
	return ctx.backend.(*softwareBackend)
}

// asymmetricPair returns A, B with A != Aᵀ, B != Bᵀ and AB != BA.
func asymmetricPair(t testing.TB, size int, seed uint64) ([]float32, []float32) {
	t.Helper()
	a, err := matrix.RandomWithSource(size, rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	require.NoError(t, err)
	b, err := matrix.RandomWithSource(size, rand.NewPCG(seed+1, seed))
	require.NoError(t, err)
	return a.Data, b.Data
}
