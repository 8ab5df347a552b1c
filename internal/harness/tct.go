package harness

import (
	"context"
	"strings"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/logger"
	"github.com/23skdu/longbow-npubench/internal/report"
	"github.com/23skdu/longbow-npubench/internal/runner"
	"github.com/23skdu/longbow-npubench/internal/sequence"
)

const (
	TCTTransferBytes = 4
	TCTModulus       = 4096

	DefaultTokens    = 10000
	AllColumnsTokens = 20000
)

// TokensFor returns the token count a TCT sequence emits. All-column
// sequences carry "4col" in their name.
func TokensFor(sequencePath string) int {
	if strings.Contains(sequencePath, "4col") {
		return AllColumnsTokens
	}
	return DefaultTokens
}

// TCT measures task-completion-token latency and throughput over a single
// run of a small loopback.
type TCT struct {
	Common
	Program      accel.Program
	SequencePath string
	// Tokens overrides the count derived from the sequence name.
	Tokens int
	Seed   uint64
}

func (h *TCT) Name() string { return "tct" }

func (h *TCT) Run(ctx context.Context) ([]report.Result, error) {
	tokens := h.Tokens
	if tokens <= 0 {
		tokens = TokensFor(h.SequencePath)
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

	w, err := runner.NewLoopbackWorker(sess, 0, runner.LoopbackConfig{
		Size:         TCTTransferBytes,
		OutputSize:   4 * TCTTransferBytes,
		Instructions: words,
		Modulus:      TCTModulus,
		Seed:         h.Seed,
	})
	if err != nil {
		return nil, err
	}
	defer w.Close()

	r, err := runner.New(sess, runner.Options{
		Iterations:  1,
		Mode:        runner.ModeBatch,
		WaitTimeout: h.WaitTimeout,
	})
	if err != nil {
		return nil, err
	}
	rep, err := r.RunWorkers(ctx, []runner.Worker{w})
	if err != nil {
		return nil, err
	}

	s := rep.Workers[0].Samples[0]
	logger.Log.Info("TCT run complete", "tokens", tokens, "elapsed", s.Elapsed())

	latency, err := report.Latency(s.Micros(), tokens)
	if err != nil {
		return nil, err
	}
	throughput, err := report.Throughput(tokens, s.Seconds())
	if err != nil {
		return nil, err
	}
	return publish(h.Name(), []report.Result{
		{Name: "Average Time for TCT", Value: latency, Unit: "us"},
		{Name: "Average TCT/s", Value: throughput, Unit: "tokens/s"},
	}), nil
}
