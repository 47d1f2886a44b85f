package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the benchmark collectors. They live on their own registry so
// a run exports only benchmark results.
type Metrics struct {
	Registry *prometheus.Registry

	GPUGFLOPS         *prometheus.GaugeVec
	GPUDuration       *prometheus.GaugeVec
	MAE               *prometheus.GaugeVec
	Tolerance         *prometheus.GaugeVec
	CPUDuration       *prometheus.GaugeVec
	ToleranceExceeded prometheus.Counter
	Dispatches        *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		GPUGFLOPS: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "matbench_gpu_gflops",
			Help: "Device matrix multiplication throughput in GFLOP/s",
		}, []string{"size"}),

		GPUDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "matbench_gpu_duration_seconds",
			Help: "Duration of one device dispatch in seconds",
		}, []string{"size", "timing"}),

		MAE: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "matbench_mae",
			Help: "Maximum absolute error between the device result and the CPU oracle",
		}, []string{"size"}),

		Tolerance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "matbench_mae_tolerance",
			Help: "Float32 rounding bound the maximum absolute error is checked against",
		}, []string{"size"}),

		CPUDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "matbench_cpu_duration_seconds",
			Help: "Mean duration of a CPU reference formulation in seconds",
		}, []string{"formulation", "size"}),

		ToleranceExceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "matbench_tolerance_exceeded_total",
			Help: "Number of sizes whose device result exceeded the error tolerance",
		}),

		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matbench_dispatches_total",
			Help: "Total number of device dispatches by backend",
		}, []string{"backend"}),
	}
}

// RecordGPU records one device trial.
func (m *Metrics) RecordGPU(backend string, size int, seconds float64, timing string, gflops float64) {
	s := strconv.Itoa(size)
	m.GPUGFLOPS.WithLabelValues(s).Set(gflops)
	m.GPUDuration.WithLabelValues(s, timing).Set(seconds)
	m.Dispatches.WithLabelValues(backend).Inc()
}

// RecordError records the accuracy of one device trial.
func (m *Metrics) RecordError(size int, mae, tolerance float64) {
	s := strconv.Itoa(size)
	m.MAE.WithLabelValues(s).Set(mae)
	m.Tolerance.WithLabelValues(s).Set(tolerance)
	if mae > tolerance {
		m.ToleranceExceeded.Inc()
	}
}

// RecordCPU records the mean duration of a CPU formulation.
func (m *Metrics) RecordCPU(formulation string, size int, seconds float64) {
	m.CPUDuration.WithLabelValues(formulation, strconv.Itoa(size)).Set(seconds)
}

// WriteTextfile writes the registry in the text exposition format, for the
// node exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
