package matrix

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// upper is the largest float32 below 1. Rounding a float64 sample close to 1
// to float32 can otherwise produce 1.0 itself.
var upper = math.Nextafter32(1, 0)

// Random returns a size×size matrix of independent uniform values in
// [-1, 1) drawn from a freshly seeded stream.
func Random(size int) (Matrix, error) {
	return RandomWithSource(size, rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// RandomWithSource is Random drawing from src.
func RandomWithSource(size int, src rand.Source) (Matrix, error) {
	if size <= 0 {
		return Matrix{}, fmt.Errorf("%w: matrix size must be positive, got %d", ErrPrecondition, size)
	}
	dist := distuv.Uniform{Min: -1, Max: 1, Src: src}
	data := make([]float32, size*size)
	for i := range data {
		v := float32(dist.Rand())
		if v >= 1 {
			v = upper
		}
		data[i] = v
	}
	return Matrix{N: size, Data: data}, nil
}
