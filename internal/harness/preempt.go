package harness

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/logger"
	"github.com/23skdu/longbow-npubench/internal/report"
	"github.com/23skdu/longbow-npubench/internal/runner"
	"github.com/23skdu/longbow-npubench/internal/xfer"
)

const (
	DefaultPreemptions = 500
	// PreemptBufferSize is the size of each feature-map and weight buffer.
	PreemptBufferSize = 20
)

// Memory groups of the preemption kernel's buffer arguments.
const (
	bankWeights1 = 3
	bankWeights2 = 4
	bankIFM      = 5
	bankOFM      = 6
)

var DefaultColumns = []int{1, 2, 4}

// PreemptProgram names the image and ELF module of the 4xN column design.
func PreemptProgram(xclbinDir, sequenceDir string, columns int) accel.Program {
	return accel.Program{
		Path: filepath.Join(xclbinDir, fmt.Sprintf("validate_npu4_elf_4x%d.xclbin", columns)),
		ELF:  filepath.Join(sequenceDir, fmt.Sprintf("preempt_4x%d.elf", columns)),
	}
}

// Preempt measures the average cost of one forced preemption by timing a
// no-op workload with forced preemption off and then on.
type Preempt struct {
	Common
	Toggle      runner.Toggle
	DeviceID    string
	XclbinDir   string
	SequenceDir string
	Columns     []int
	Preemptions int
}

func (h *Preempt) Name() string { return "preempt" }

func (h *Preempt) Run(ctx context.Context) ([]report.Result, error) {
	columns := h.Columns
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	preemptions := h.Preemptions
	if preemptions <= 0 {
		preemptions = DefaultPreemptions
	}

	var results []report.Result
	for _, ncol := range columns {
		delta, err := h.column(ctx, PreemptProgram(h.XclbinDir, h.SequenceDir, ncol))
		if err != nil {
			return nil, fmt.Errorf("4x%d design: %w", ncol, err)
		}
		overhead, err := report.Overhead(delta.With, delta.Without, preemptions)
		if err != nil {
			return nil, err
		}
		results = append(results, report.Result{
			Name:  fmt.Sprintf("Average preemption overhead for 4x%d design", ncol),
			Value: overhead,
			Unit:  "us",
		})
	}
	return publish(h.Name(), results), nil
}

// column binds prog once and runs the delta protocol against that session,
// so both measurements time the same bound program.
func (h *Preempt) column(ctx context.Context, prog accel.Program) (runner.DeltaResult, error) {
	sess, err := h.bind(ctx, prog)
	if err != nil {
		return runner.DeltaResult{}, err
	}
	defer sess.Close()

	set := xfer.NewSet(sess)
	defer set.Close()

	ifm, err := set.AllocateAt(accel.RoleInput, PreemptBufferSize, bankIFM)
	if err != nil {
		return runner.DeltaResult{}, err
	}
	ofm, err := set.AllocateAt(accel.RoleOutput, PreemptBufferSize, bankOFM)
	if err != nil {
		return runner.DeltaResult{}, err
	}
	wts1, err := set.AllocateAt(accel.RoleInput, PreemptBufferSize, bankWeights1)
	if err != nil {
		return runner.DeltaResult{}, err
	}
	wts2, err := set.AllocateAt(accel.RoleInput, PreemptBufferSize, bankWeights2)
	if err != nil {
		return runner.DeltaResult{}, err
	}

	args := accel.PreemptArgs(accel.OpcodePreemptApp, ifm, ofm, wts1, wts2)
	return runner.Delta(ctx, h.Toggle, h.DeviceID, func(ctx context.Context) (float64, error) {
		return h.measure(ctx, sess, args)
	})
}

// measure times one run of the no-op workload in microseconds.
func (h *Preempt) measure(ctx context.Context, sess *accel.Session, args accel.Args) (float64, error) {
	samples, err := runner.RunIterations(ctx, sess, args, 1, runner.ModeBatch, h.WaitTimeout)
	if err != nil {
		return 0, err
	}
	us := samples[0].Micros()
	logger.Log.Info("Time taken", "program", sess.Program().String(), "us", us)
	return us, nil
}
