// Package kernels contains the CPU reference formulations of square matrix
// multiplication. They serve as the correctness oracle for the device path
// and as CPU throughput baselines.
//
// Every formulation accumulates C[i][j] left to right over k and rounds each
// product to float32 before adding it, so the compiler cannot fuse the
// multiply-add differently in one formulation than in another. Given the same
// inputs all formulations produce bit-identical results.
package kernels

import (
	"errors"
	"fmt"

	"github.com/fxnlabs/matbench/internal/matrix"
)

var (
	ErrPrecondition = matrix.ErrPrecondition

	// ErrCorrectnessDivergence reports two formulations (or two reruns of one
	// formulation) disagreeing on the same inputs.
	ErrCorrectnessDivergence = errors.New("correctness divergence")
)

// Func multiplies two size×size row-major matrices.
type Func func(a, b []float32, size int) ([]float32, error)

// Formulation is a named CPU matmul implementation.
type Formulation struct {
	Name string
	Fn   Func
}

// Formulations returns every CPU formulation, oracle first.
func Formulations() []Formulation {
	return []Formulation{
		{Name: "indexed", Fn: Indexed},
		{Name: "cursor", Fn: CursorMatmul},
		{Name: "sliced", Fn: Sliced},
	}
}

// Lookup returns the formulations with the given names, in order. An empty
// list selects all of them.
func Lookup(names []string) ([]Formulation, error) {
	all := Formulations()
	if len(names) == 0 {
		return all, nil
	}
	selected := make([]Formulation, 0, len(names))
	for _, name := range names {
		found := false
		for _, f := range all {
			if f.Name == name {
				selected = append(selected, f)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown formulation %q", name)
		}
	}
	return selected, nil
}

func checkInputs(a, b []float32, size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrPrecondition, size)
	}
	if len(a) != size*size {
		return fmt.Errorf("%w: matrix A has %d elements, expected %d", ErrPrecondition, len(a), size*size)
	}
	if len(b) != size*size {
		return fmt.Errorf("%w: matrix B has %d elements, expected %d", ErrPrecondition, len(b), size*size)
	}
	return nil
}

// Indexed is the index-computed triple loop.
func Indexed(a, b []float32, size int) ([]float32, error) {
	if err := checkInputs(a, b, size); err != nil {
		return nil, err
	}
	out := make([]float32, size*size)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			var sum float32
			for k := 0; k < size; k++ {
				sum += float32(a[i*size+k] * b[k*size+j])
			}
			out[i*size+j] = sum
		}
	}
	return out, nil
}

// Sliced re-slices the current row of A and the current column origin of B
// so the inner loop ranges over a fixed-length row. It replaces a raw pointer
// walk with a memory-safe equivalent.
func Sliced(a, b []float32, size int) ([]float32, error) {
	if err := checkInputs(a, b, size); err != nil {
		return nil, err
	}
	out := make([]float32, size*size)
	for i := 0; i < size; i++ {
		row := a[i*size : (i+1)*size : (i+1)*size]
		dst := out[i*size : (i+1)*size]
		for j := range dst {
			col := b[j:]
			var sum float32
			for k, av := range row {
				sum += float32(av * col[k*size])
			}
			dst[j] = sum
		}
	}
	return out, nil
}
