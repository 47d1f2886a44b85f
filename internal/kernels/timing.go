package kernels

import (
	"fmt"
	"math"
	"time"

	"github.com/fxnlabs/matbench/internal/matrix"
)

// Timing is the result of running one formulation several times.
type Timing struct {
	Name     string
	Size     int
	Runs     int
	Mean     time.Duration
	Checksum float32
	Output   []float32
}

// Time runs f runs times on the same inputs and returns the mean wall-clock
// duration. The checksum of every run must match the first one; it also keeps
// the result observable so the computation cannot be elided.
func Time(f Formulation, a, b []float32, size, runs int) (Timing, error) {
	if runs < 1 {
		return Timing{}, fmt.Errorf("%w: runs must be at least 1, got %d", ErrPrecondition, runs)
	}
	timing := Timing{Name: f.Name, Size: size, Runs: runs}
	start := time.Now()
	for run := 0; run < runs; run++ {
		out, err := f.Fn(a, b, size)
		if err != nil {
			return Timing{}, fmt.Errorf("matmul %s: %w", f.Name, err)
		}
		sum := matrix.Checksum(out)
		if run > 0 && math.Float32bits(sum) != math.Float32bits(timing.Checksum) {
			return Timing{}, fmt.Errorf("%w: matmul %s checksum changed between runs: %v != %v",
				ErrCorrectnessDivergence, f.Name, sum, timing.Checksum)
		}
		timing.Checksum = sum
		timing.Output = out
	}
	timing.Mean = time.Since(start) / time.Duration(runs)
	return timing, nil
}

// CrossCheck asserts that every timing produced exactly the same output as
// the first one.
func CrossCheck(timings []Timing) error {
	if len(timings) < 2 {
		return nil
	}
	ref := timings[0]
	for _, t := range timings[1:] {
		if len(t.Output) != len(ref.Output) {
			return fmt.Errorf("%w: %s produced %d elements, %s produced %d",
				ErrCorrectnessDivergence, t.Name, len(t.Output), ref.Name, len(ref.Output))
		}
		for i := range ref.Output {
			if math.Float32bits(t.Output[i]) != math.Float32bits(ref.Output[i]) {
				return fmt.Errorf("%w: %s and %s differ at (%d, %d): %v != %v",
					ErrCorrectnessDivergence, t.Name, ref.Name, i/ref.Size, i%ref.Size, t.Output[i], ref.Output[i])
			}
		}
	}
	return nil
}
