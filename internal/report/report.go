// Package report turns raw timings and cycle counts into benchmark metrics
// and prints them.
package report

import (
	"fmt"
)

// Workload constants of the shipped harness programs.
const (
	// GEMMOps is the op count of one GEMM tile program: 8x8x8 MACs, two ops
	// per MAC, over 2*2*12*4 inner and outer loop iterations.
	GEMMOps = 8 * 8 * 8 * 2 * (2 * 2 * 12 * 4)

	DefaultClockMHz = 1810

	LoopbackTransferGB = 1
	// DirectionLoopback counts the read and the write of a loopback.
	DirectionLoopback = 2
)

// Result is one named, immutable metric value.
type Result struct {
	Name  string  `json:"metric"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// MetricError reports a metric that cannot be derived, such as one with a
// zero denominator.
type MetricError struct {
	Metric string
	Reason string
}

func (e *MetricError) Error() string {
	return fmt.Sprintf("cannot compute %s: %s", e.Metric, e.Reason)
}

// Bandwidth in GB/s for iterations transfers of transferGB each way.
func Bandwidth(transferGB float64, iterations int, directionFactor float64, elapsedSeconds float64) (float64, error) {
	if elapsedSeconds <= 0 {
		return 0, &MetricError{Metric: "bandwidth", Reason: "elapsed time is zero"}
	}
	return transferGB * float64(iterations) * directionFactor / elapsedSeconds, nil
}

// Latency is the average time per sample in microseconds.
func Latency(elapsedMicros float64, samples int) (float64, error) {
	if samples <= 0 {
		return 0, &MetricError{Metric: "latency", Reason: "no samples"}
	}
	return elapsedMicros / float64(samples), nil
}

// Throughput in samples per second.
func Throughput(samples int, elapsedSeconds float64) (float64, error) {
	if elapsedSeconds <= 0 {
		return 0, &MetricError{Metric: "throughput", Reason: "elapsed time is zero"}
	}
	return float64(samples) / elapsedSeconds, nil
}

// Overhead is the extra time per event a feature adds, in microseconds.
func Overhead(withFeatureMicros, withoutFeatureMicros float64, events int) (float64, error) {
	if events <= 0 {
		return 0, &MetricError{Metric: "overhead", Reason: "event count is zero"}
	}
	return (withFeatureMicros - withoutFeatureMicros) / float64(events), nil
}

// TOPSResult is the compute throughput derived from per-core cycle counts.
type TOPSResult struct {
	PerCore       []float64
	Total         float64
	AverageCycles float64
	ExecutionNs   float64
}

// TOPS derives tera-ops per second for each core from its cycle count.
// Total is the sum over cores.
func TOPS(totalOps float64, clockPeriodNs float64, cycles []uint32) (TOPSResult, error) {
	if len(cycles) == 0 {
		return TOPSResult{}, &MetricError{Metric: "TOPS", Reason: "no cores"}
	}
	if clockPeriodNs <= 0 {
		return TOPSResult{}, &MetricError{Metric: "TOPS", Reason: "clock period is zero"}
	}
	res := TOPSResult{PerCore: make([]float64, len(cycles))}
	var sum float64
	for i, c := range cycles {
		if c == 0 {
			return TOPSResult{}, &MetricError{Metric: "TOPS", Reason: fmt.Sprintf("core %d reported zero cycles", i)}
		}
		// ops per ns is GOPS; divide by 1000 for TOPS
		res.PerCore[i] = totalOps / (clockPeriodNs * float64(c) * 1000)
		res.Total += res.PerCore[i]
		sum += float64(c)
	}
	res.AverageCycles = sum / float64(len(cycles))
	res.ExecutionNs = clockPeriodNs * res.AverageCycles
	return res, nil
}
