package kernels

import (
	"fmt"
	"testing"
)

func BenchmarkFormulations(b *testing.B) {
	sizes := []int{64, 128, 256}

	for _, f := range Formulations() {
		for _, size := range sizes {
			b.Run(fmt.Sprintf("%s/size_%d", f.Name, size), func(b *testing.B) {
				ma, mb := randomPair(b, size, uint64(size))

				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := f.Fn(ma.Data, mb.Data, size); err != nil {
						b.Fatal(err)
					}
				}

				flops := int64(2 * size * size * size * b.N)
				gflops := float64(flops) / b.Elapsed().Seconds() / 1e9
				b.ReportMetric(gflops, "GFLOPS")
			})
		}
	}
}
