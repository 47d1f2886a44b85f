package gpu

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxnlabs/matbench/internal/kernels"
)

func TestMatmulKernel_Source(t *testing.T) {
	src := MatmulKernel.Source
	require.NotEmpty(t, src)

	assert.Contains(t, src, "@compute @workgroup_size(8, 8)")
	assert.Contains(t, src, "fn main(")
	assert.Contains(t, src, "@group(0) @binding(0) var<storage, read> n: u32;")
	assert.Contains(t, src, "@group(0) @binding(1) var<storage, read> matA: array<f32>;")
	assert.Contains(t, src, "@group(0) @binding(2) var<storage, read> matB: array<f32>;")
	assert.Contains(t, src, "@group(0) @binding(3) var<storage, read_write> matC: array<f32>;")

	assert.Equal(t, "main", MatmulKernel.EntryPoint)
	assert.Equal(t, [3]uint32{8, 8, 1}, MatmulKernel.WorkgroupSize)
	assert.Equal(t, WorkgroupTile, int(MatmulKernel.WorkgroupSize[0])*matmulBlock)
	assert.Len(t, MatmulKernel.Bindings, 4)
	assert.Equal(t, BindingStorage, MatmulKernel.Bindings[3])
}

func TestMatmulHost_SingleTile(t *testing.T) {
	size := 128
	a, b := asymmetricPair(t, size, 11)
	want, err := kernels.Indexed(a, b, size)
	require.NoError(t, err)

	c := make([]byte, size*size*4)
	bindings := [][]byte{Uint32ToBytes(uint32(size)), alignedBytes(Float32sToBytes(a)), alignedBytes(Float32sToBytes(b)), alignedBytes(c)}

	// Only the lower-right tile is written.
	require.NoError(t, matmulHost([3]uint32{1, 1, 0}, bindings))
	got := make([]float32, size*size)
	require.NoError(t, BytesToFloat32s(got, bindings[3]))

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := y*size + x
			if y >= 64 && x >= 64 {
				require.Equal(t, want[i], got[i], "(%d, %d)", y, x)
			} else {
				require.Zero(t, got[i], "(%d, %d) outside the tile", y, x)
			}
		}
	}
}

func TestMatmulHost_Errors(t *testing.T) {
	size := 64
	buf := func() []byte { return alignedBytes(make([]byte, size*size*4)) }

	assert.Error(t, matmulHost([3]uint32{}, nil))
	assert.Error(t, matmulHost([3]uint32{}, [][]byte{Uint32ToBytes(100), buf(), buf(), buf()}), "size not a tile multiple")
	assert.Error(t, matmulHost([3]uint32{}, [][]byte{Uint32ToBytes(128), buf(), buf(), buf()}), "buffers too small")
	assert.Error(t, matmulHost([3]uint32{1, 0, 0}, [][]byte{Uint32ToBytes(64), buf(), buf(), buf()}), "workgroup outside grid")
}

// alignedBytes copies b into u32-aligned memory.
func alignedBytes(b []byte) []byte {
	words := make([]uint32, (len(b)+3)/4)
	out := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(b))
	copy(out, b)
	return out
}
