// Package matrix holds the square float32 matrices exchanged between the
// generator, the CPU kernels and the compute device.
package matrix

import (
	"errors"
	"fmt"
	"math"
)

// ErrPrecondition reports a matrix whose length does not match its dimension,
// or two matrices of different dimensions.
var ErrPrecondition = errors.New("precondition violated")

// Matrix is an N×N matrix of float32 values in row-major order.
type Matrix struct {
	N    int
	Data []float32
}

// New wraps data as an n×n matrix.
func New(n int, data []float32) (Matrix, error) {
	m := Matrix{N: n, Data: data}
	if err := m.Validate(); err != nil {
		return Matrix{}, err
	}
	return m, nil
}

// Zeros returns the n×n zero matrix. n must be positive.
func Zeros(n int) Matrix {
	return Matrix{N: n, Data: make([]float32, n*n)}
}

// Identity returns the n×n identity matrix. n must be positive.
func Identity(n int) Matrix {
	m := Zeros(n)
	for i := 0; i < n; i++ {
		m.Data[i*n+i] = 1
	}
	return m
}

// Validate checks len(Data) == N*N.
func (m Matrix) Validate() error {
	if m.N <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrPrecondition, m.N)
	}
	if len(m.Data) != m.N*m.N {
		return fmt.Errorf("%w: matrix of dimension %d has %d elements, expected %d",
			ErrPrecondition, m.N, len(m.Data), m.N*m.N)
	}
	return nil
}

// At returns the element at row i, column j.
func (m Matrix) At(i, j int) float32 {
	return m.Data[i*m.N+j]
}

// ByteSize is the size of the matrix payload in bytes.
func (m Matrix) ByteSize() int {
	return len(m.Data) * 4
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	data := make([]float32, len(m.Data))
	copy(data, m.Data)
	return Matrix{N: m.N, Data: data}
}

// Checksum sums all elements left to right in float32.
func Checksum(data []float32) float32 {
	var sum float32
	for _, v := range data {
		sum += v
	}
	return sum
}

// MaxAbs returns the largest absolute value in data.
func MaxAbs(data []float32) float32 {
	var max float32
	for _, v := range data {
		if a := float32(math.Abs(float64(v))); a > max {
			max = a
		}
	}
	return max
}

// MaxAbsDiff returns the maximum absolute element-wise difference (MAE)
// between a and b.
func MaxAbsDiff(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: cannot compare %d elements with %d", ErrPrecondition, len(a), len(b))
	}
	var max float32
	for i := range a {
		d := float32(math.Abs(float64(a[i] - b[i])))
		if d > max || math.IsNaN(float64(d)) {
			max = d
		}
	}
	return max, nil
}
