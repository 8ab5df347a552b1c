package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npubench_submissions_total",
		Help: "Total number of kernel runs submitted to the accelerator",
	}, []string{"kernel"})

	RunOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npubench_run_outcomes_total",
		Help: "Completed, faulted and timed out runs",
	}, []string{"outcome"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "npubench_run_duration_seconds",
		Help:    "Submit-to-completion time of single kernel runs",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 14),
	}, []string{"kernel"})

	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "npubench_buffer_sync_duration_seconds",
		Help:    "Host/device buffer synchronization time",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 14),
	}, []string{"direction"})

	BufferBytesAllocated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "npubench_buffer_bytes_allocated",
		Help: "Bytes currently held by transfer buffers",
	})

	WorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "npubench_workers_active",
		Help: "Benchmark workers currently running an iteration loop",
	})

	Failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npubench_failures_total",
		Help: "Benchmark failures by error kind",
	}, []string{"kind"})

	Mismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "npubench_verify_mismatches_total",
		Help: "Loopback verifications that found differing words",
	})

	ResultValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "npubench_result",
		Help: "Last reported benchmark metric value",
	}, []string{"harness", "metric", "unit"})

	DeviceConfigChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npubench_device_config_changes_total",
		Help: "Device configuration toggles applied",
	}, []string{"feature", "state"})

	ExportErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "npubench_export_errors_total",
		Help: "Failed result exports to the Flight collector",
	})
)

func RecordSubmission(kernel string) {
	SubmissionsTotal.WithLabelValues(kernel).Inc()
}

func RecordRun(kernel, outcome string, duration time.Duration) {
	RunOutcomes.WithLabelValues(outcome).Inc()
	RunDuration.WithLabelValues(kernel).Observe(duration.Seconds())
}

func RecordSync(direction string, duration time.Duration) {
	SyncDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

func RecordBufferBytes(delta int64) {
	BufferBytesAllocated.Add(float64(delta))
}

func RecordFailure(kind string) {
	Failures.WithLabelValues(kind).Inc()
}

func RecordMismatch() {
	Mismatches.Inc()
}

func RecordResult(harness, metric, unit string, value float64) {
	ResultValue.WithLabelValues(harness, metric, unit).Set(value)
}

func RecordDeviceConfig(feature string, enabled bool) {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	DeviceConfigChanges.WithLabelValues(feature, state).Inc()
}

func RecordExportError() {
	ExportErrors.Inc()
}
