// Package harness implements the benchmark programs: DF bandwidth, TCT
// latency, preemption overhead and GEMM TOPS. Each binds its kernel once,
// runs its workload through the runner and returns the derived metrics.
package harness

import (
	"context"
	"time"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/logger"
	"github.com/23skdu/longbow-npubench/internal/metrics"
	"github.com/23skdu/longbow-npubench/internal/report"
)

type Harness interface {
	Name() string
	Run(ctx context.Context) ([]report.Result, error)
}

// Common holds the settings every harness shares.
type Common struct {
	Device      accel.Device
	Policy      accel.MatchPolicy
	WaitTimeout time.Duration
}

func (c Common) bind(ctx context.Context, prog accel.Program) (*accel.Session, error) {
	return accel.Bind(ctx, c.Device, prog, c.Policy)
}

func publish(harness string, results []report.Result) []report.Result {
	for _, r := range results {
		metrics.RecordResult(harness, r.Name, r.Unit, r.Value)
		logger.Log.Debug("Result", "harness", harness, "metric", r.Name, "value", r.Value, "unit", r.Unit)
	}
	return results
}
