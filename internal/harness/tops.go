package harness

import (
	"context"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/logger"
	"github.com/23skdu/longbow-npubench/internal/report"
	"github.com/23skdu/longbow-npubench/internal/sequence"
	"github.com/23skdu/longbow-npubench/internal/telemetry"
	"github.com/23skdu/longbow-npubench/internal/xfer"
)

const DefaultCores = 32

// TOPS runs the GEMM program once and derives compute throughput from the
// per-core cycle counts the device records in its telemetry buffer.
type TOPS struct {
	Common
	Program      accel.Program
	SequencePath string
	ClockMHz     int
	Cores        int
}

func (h *TOPS) Name() string { return "tops" }

func (h *TOPS) Run(ctx context.Context) ([]report.Result, error) {
	clock, cores := h.ClockMHz, h.Cores
	if clock <= 0 {
		clock = report.DefaultClockMHz
	}
	if cores <= 0 {
		cores = DefaultCores
	}
	if capacity := telemetry.Capacity(telemetry.BufferSize, telemetry.Offset); cores > capacity {
		return nil, &telemetry.CapacityError{Cores: cores, Capacity: capacity}
	}

	n, err := sequence.CountFile(h.SequencePath)
	if err != nil {
		return nil, err
	}

	sess, err := h.bind(ctx, h.Program)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	log := logger.Log.With("harness", h.Name(), "kernel", sess.KernelName())

	set := xfer.NewSet(sess)
	defer set.Close()

	instr, err := set.Allocate(accel.RoleInstruction, n*xfer.WordSize)
	if err != nil {
		return nil, err
	}
	if _, err := sequence.LoadFile(h.SequencePath, instr); err != nil {
		return nil, err
	}
	if err := instr.PushToDevice(); err != nil {
		return nil, err
	}
	result, err := set.Allocate(accel.RoleTelemetry, telemetry.BufferSize)
	if err != nil {
		return nil, err
	}

	log.Info("Running the performance test", "clock_mhz", clock)
	if _, err := sess.Execute(accel.TelemetryArgs(accel.OpcodeHostApp, instr, n), h.WaitTimeout); err != nil {
		return nil, err
	}
	if err := result.PullFromDevice(); err != nil {
		return nil, err
	}

	raw, err := result.Read(0, result.Size())
	if err != nil {
		return nil, err
	}
	recs, count, err := telemetry.Decode(raw, telemetry.Offset, cores)
	if err != nil {
		return nil, err
	}
	if int(count) < cores {
		log.Warn("Device recorded fewer entries than cores", "recorded", count, "cores", cores)
	}

	period := 1e9 / (float64(clock) * 1e6)
	tops, err := report.TOPS(report.GEMMOps, period, telemetry.Cycles(recs))
	if err != nil {
		return nil, err
	}
	for i, r := range recs {
		log.Debug("Core", "core", r.CoreID, "cycles", r.Cycles, "tops", tops.PerCore[i])
	}

	return publish(h.Name(), []report.Result{
		{Name: "Total OPs", Value: report.GEMMOps, Unit: "ops"},
		{Name: "Average cycle count", Value: tops.AverageCycles, Unit: "cycles"},
		{Name: "Total execution time", Value: tops.ExecutionNs, Unit: "ns"},
		{Name: "Total TOPS", Value: tops.Total, Unit: "TOPS"},
	}), nil
}
