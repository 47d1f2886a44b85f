package gpu

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func BenchmarkDispatchAndWait_Software(b *testing.B) {
	for _, size := range []int{64, 128, 256} {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			ctx := newSoftwareContext(b, false)
			x, y := asymmetricPair(b, size, uint64(size))
			out := make([]float32, size*size)

			job, err := ctx.BuildJob(x, y, out, size)
			require.NoError(b, err)
			defer job.Release()

			var seconds float64
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				timing, err := ctx.DispatchAndWait(job, out, 1)
				if err != nil {
					b.Fatal(err)
				}
				seconds += timing.Seconds
			}

			flops := 2 * float64(size) * float64(size) * float64(size) * float64(b.N)
			b.ReportMetric(flops/seconds/1e9, "GFLOPS")
			b.ReportMetric(float64(size*size*4*3)/(1<<20), "MB")
		})
	}
}
