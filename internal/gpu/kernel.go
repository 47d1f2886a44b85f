package gpu

import (
	_ "embed"
	"fmt"
)

// WorkgroupTile is the edge length of the output tile computed by one
// workgroup of the matmul kernel. Matrix sizes must be a multiple of it.
const WorkgroupTile = 64

// matmulBlock is the edge of the block each invocation accumulates; the
// workgroup is matmulBlock×matmulBlock invocations.
const matmulBlock = 8

//go:embed shaders/matmul.wgsl
var matmulWGSL string

// BindingType is the kind of resource a kernel parameter binds to.
type BindingType int

const (
	BindingReadOnlyStorage BindingType = iota
	BindingStorage
	BindingUniform
)

// HostKernel runs one workgroup of a kernel on the CPU against the bound
// buffers, in binding order. It is how the software backend executes
// dispatches.
type HostKernel func(group [3]uint32, bindings [][]byte) error

// Kernel is a loadable compute kernel.
type Kernel struct {
	Name          string
	Source        string
	EntryPoint    string
	WorkgroupSize [3]uint32
	Bindings      []BindingType
	Host          HostKernel
}

// MatmulKernel multiplies two square matrices. Bindings:
// {0: n, 1: A, 2: B, 3: C}.
var MatmulKernel = &Kernel{
	Name:          "matmul",
	Source:        matmulWGSL,
	EntryPoint:    "main",
	WorkgroupSize: [3]uint32{matmulBlock, matmulBlock, 1},
	Bindings: []BindingType{
		BindingReadOnlyStorage,
		BindingReadOnlyStorage,
		BindingReadOnlyStorage,
		BindingStorage,
	},
	Host: matmulHost,
}

// matmulHost mirrors shaders/matmul.wgsl: the load and compute phases between
// the two workgroup barriers run for every invocation before the next phase
// starts.
func matmulHost(group [3]uint32, bindings [][]byte) error {
	if len(bindings) != 4 || len(bindings[0]) < 4 {
		return fmt.Errorf("matmul: expected 4 bindings with a u32 dimension")
	}
	size := int(readUint32(bindings[0]))
	matA := bytesAsFloat32s(bindings[1])
	matB := bytesAsFloat32s(bindings[2])
	matC := bytesAsFloat32s(bindings[3])
	if size%WorkgroupTile != 0 {
		return fmt.Errorf("matmul: size %d is not a multiple of %d", size, WorkgroupTile)
	}
	if len(matA) < size*size || len(matB) < size*size || len(matC) < size*size {
		return fmt.Errorf("matmul: bound buffers are smaller than %dx%d", size, size)
	}

	const block = matmulBlock
	const tile = WorkgroupTile
	aRow := int(group[1]) * tile
	bCol := int(group[0]) * tile
	if aRow+tile > size || bCol+tile > size {
		return fmt.Errorf("matmul: workgroup (%d, %d) outside a %dx%d matrix", group[0], group[1], size, size)
	}

	var tileA, tileB [block * tile]float32
	var sums [block * block][block * block]float32

	for k := 0; k < size; k += block {
		for ty := 0; ty < block; ty++ {
			for tx := 0; tx < block; tx++ {
				lane := tx + ty*block
				for j := 0; j < block; j++ {
					row := ty + block*j
					tileA[row*block+tx] = matA[(aRow+row)*size+k+tx]
				}
				for j := 0; j < block; j++ {
					tileB[j*tile+lane] = matB[(k+j)*size+bCol+lane]
				}
			}
		}

		for ty := 0; ty < block; ty++ {
			for tx := 0; tx < block; tx++ {
				sum := &sums[tx+ty*block]
				for j := 0; j < block; j++ {
					var localA, localB [block]float32
					for r := 0; r < block; r++ {
						localA[r] = tileA[(ty*block+r)*block+j]
						localB[r] = tileB[j*tile+tx*block+r]
					}
					for r := 0; r < block; r++ {
						for c := 0; c < block; c++ {
							sum[r*block+c] += float32(localA[r] * localB[c])
						}
					}
				}
			}
		}
	}

	for ty := 0; ty < block; ty++ {
		for tx := 0; tx < block; tx++ {
			sum := &sums[tx+ty*block]
			origin := (aRow+ty*block)*size + bCol + tx*block
			for r := 0; r < block; r++ {
				for c := 0; c < block; c++ {
					matC[origin+r*size+c] = sum[r*block+c]
				}
			}
		}
	}
	return nil
}
