package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"
)

// Float32sToBytes encodes a float32 slice as little-endian bytes, the layout
// of an array<f32> in a storage buffer.
func Float32sToBytes(input []float32) []byte {
	output := make([]byte, len(input)*4)
	for i, v := range input {
		binary.LittleEndian.PutUint32(output[i*4:], math.Float32bits(v))
	}
	return output
}

// BytesToFloat32s decodes little-endian bytes into dst. src must hold exactly
// len(dst) values.
func BytesToFloat32s(dst []float32, src []byte) error {
	if len(src) != len(dst)*4 {
		return fmt.Errorf("%w: %d bytes do not hold %d float32 values", ErrPrecondition, len(src), len(dst))
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return nil
}

// Uint32ToBytes encodes a single u32 the way WGSL reads it.
func Uint32ToBytes(v uint32) []byte {
	output := make([]byte, 4)
	binary.LittleEndian.PutUint32(output, v)
	return output
}

// BytesToUint64s decodes resolved timestamp query values.
func BytesToUint64s(src []byte) []uint64 {
	output := make([]uint64, len(src)/8)
	for i := range output {
		output[i] = binary.LittleEndian.Uint64(src[i*8:])
	}
	return output
}

func readUint32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

// bytesAsFloat32s reinterprets 4-byte aligned buffer memory in place.
func bytesAsFloat32s(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func putUint64(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}
