// Package verify checks a device-computed product against host data: a
// forward error bound for float32 accumulation and Freivalds' probabilistic
// test.
package verify

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/fxnlabs/matbench/internal/matrix"
)

// Eps32 is the float32 machine epsilon, 2^-23.
const Eps32 = 1.0 / (1 << 23)

// Tolerance bounds the maximum absolute error expected between two float32
// matrix products of dimension n whose inputs are bounded by maxA and maxB,
// when the products differ only in rounding (accumulation order, fused
// multiply-add).
func Tolerance(n int, maxA, maxB float64) float64 {
	return 2 * float64(n) * Eps32 * maxA * maxB
}

// Freivalds performs Freivalds' algorithm to probabilistically verify that
// c = a·b for n×n row-major matrices. Each iteration draws a random 0/1
// vector r and compares A(Br) with Cr in float64, allowing each row the
// float32 rounding a correct c could carry. A wrong product survives an
// iteration with probability at most 1/2. src may be nil.
func Freivalds(a, b, c []float32, n, iterations int, src rand.Source) bool {
	if n <= 0 || len(a) != n*n || len(b) != n*n || len(c) != n*n {
		return false
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	rng := rand.New(src)

	A := dense(a, n)
	B := dense(b, n)
	C := dense(c, n)

	// Every entry of c may be off by Tolerance, and Cr sums up to n of them.
	rowTol := float64(n)*Tolerance(n, float64(matrix.MaxAbs(a)), float64(matrix.MaxAbs(b))) + 1e-12

	r := mat.NewVecDense(n, nil)
	br := mat.NewVecDense(n, nil)
	abr := mat.NewVecDense(n, nil)
	cr := mat.NewVecDense(n, nil)
	for i := 0; i < iterations; i++ {
		for j := 0; j < n; j++ {
			r.SetVec(j, float64(rng.IntN(2)))
		}
		br.MulVec(B, r)
		abr.MulVec(A, br)
		cr.MulVec(C, r)

		for j := 0; j < n; j++ {
			d := math.Abs(abr.AtVec(j) - cr.AtVec(j))
			if d > rowTol || math.IsNaN(d) {
				return false
			}
		}
	}
	return true
}

func dense(data []float32, n int) *mat.Dense {
	values := make([]float64, len(data))
	for i, v := range data {
		values[i] = float64(v)
	}
	return mat.NewDense(n, n, values)
}

// Sample is one element of a result matrix.
type Sample struct {
	Row   int     `json:"row"`
	Col   int     `json:"col"`
	Value float32 `json:"value"`
}

// ResultSamples returns up to count elements of an n×n matrix at fixed
// positions: first, middle, last, quarter and three-quarter.
func ResultSamples(c []float32, n, count int) []Sample {
	count = max(count, 0)
	samples := make([]Sample, 0, count)
	if n <= 0 || len(c) != n*n {
		return samples
	}

	positions := [][2]int{
		{0, 0},
		{n / 2, n / 2},
		{n - 1, n - 1},
		{n / 4, n / 4},
		{3 * n / 4, 3 * n / 4},
	}
	for i := 0; i < count && i < len(positions); i++ {
		row, col := positions[i][0], positions[i][1]
		samples = append(samples, Sample{Row: row, Col: col, Value: c[row*n+col]})
	}
	return samples
}
