package harness

import (
	"context"
	"fmt"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/logger"
	"github.com/23skdu/longbow-npubench/internal/report"
	"github.com/23skdu/longbow-npubench/internal/runner"
	"github.com/23skdu/longbow-npubench/internal/sequence"
)

const (
	DefaultIterations = 600
	// DFBWModulus bounds the random loopback input words.
	DFBWModulus = 8192
)

// DFBW measures data-fabric bandwidth by looping a large buffer through the
// device repeatedly.
type DFBW struct {
	Common
	Program       accel.Program
	SequencePath  string
	Iterations    int
	Workers       int
	TransferBytes int
	Seed          uint64

	// Samples receives every worker's batch sample when set.
	Samples func(worker int, samples []runner.Sample)
}

func (h *DFBW) Name() string { return "dfbw" }

func (h *DFBW) Run(ctx context.Context) ([]report.Result, error) {
	iterations, workers := h.Iterations, h.Workers
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if workers <= 0 {
		workers = 1
	}

	words, err := sequence.ParseFile(h.SequencePath)
	if err != nil {
		return nil, err
	}

	sess, err := h.bind(ctx, h.Program)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	log := logger.Log.With("harness", h.Name(), "kernel", sess.KernelName())
	log.Info("Transaction word count", "words", fmt.Sprintf("0x%x", h.TransferBytes/4))

	pool := make([]runner.Worker, 0, workers)
	for i := 0; i < workers; i++ {
		w, err := runner.NewLoopbackWorker(sess, i, runner.LoopbackConfig{
			Size:         h.TransferBytes,
			Instructions: words,
			Modulus:      DFBWModulus,
			Seed:         h.Seed,
		})
		if err != nil {
			return nil, err
		}
		defer w.Close()
		pool = append(pool, w)
	}

	log.Info("Iteration count", "iterations", iterations, "workers", workers)
	r, err := runner.New(sess, runner.Options{
		Iterations:  iterations,
		Mode:        runner.ModeBatch,
		WaitTimeout: h.WaitTimeout,
	})
	if err != nil {
		return nil, err
	}
	rep, err := r.RunWorkers(ctx, pool)
	if err != nil {
		return nil, err
	}
	log.Info("Data transfer complete. Checking results...")

	gb := float64(h.TransferBytes) / (1 << 30)
	var results []report.Result
	for _, wr := range rep.Workers {
		if h.Samples != nil {
			h.Samples(wr.Worker, wr.Samples)
		}
		s := wr.Samples[0]
		bw, err := report.Bandwidth(gb, iterations, report.DirectionLoopback, s.Seconds())
		if err != nil {
			return nil, err
		}
		prefix := ""
		if workers > 1 {
			prefix = fmt.Sprintf("Worker %d ", wr.Worker)
		}
		results = append(results,
			report.Result{Name: prefix + "Time taken", Value: s.Micros(), Unit: "us"},
			report.Result{Name: prefix + "AIE DF bandwidth", Value: bw, Unit: "GB/s"},
		)
	}
	if workers > 1 {
		span := runner.Span(rep.Samples())
		bw, err := report.Bandwidth(gb, iterations*workers, report.DirectionLoopback, span.Seconds())
		if err != nil {
			return nil, err
		}
		results = append(results, report.Result{Name: "Aggregate AIE DF bandwidth", Value: bw, Unit: "GB/s"})
	}
	return publish(h.Name(), results), nil
}
