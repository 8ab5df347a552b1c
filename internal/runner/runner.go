package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/logger"
	"github.com/23skdu/longbow-npubench/internal/metrics"
	"github.com/23skdu/longbow-npubench/internal/sequence"
	"github.com/23skdu/longbow-npubench/internal/verify"
)

type Options struct {
	Iterations  int
	Mode        Mode
	WaitTimeout time.Duration

	// OnState, when set, observes every worker state transition. It is
	// called concurrently from worker goroutines.
	OnState func(worker int, from, to State)
}

// Runner executes workers against one bound session.
type Runner struct {
	sess *accel.Session
	opts Options
}

func New(sess *accel.Session, opts Options) (*Runner, error) {
	if opts.Iterations <= 0 {
		return nil, fmt.Errorf("iteration count must be positive, got %d", opts.Iterations)
	}
	return &Runner{sess: sess, opts: opts}, nil
}

// WorkerResult holds the samples of a worker that finished cleanly.
type WorkerResult struct {
	Worker  int
	Samples []Sample
}

type Report struct {
	Workers []WorkerResult
}

// Samples returns every collected sample across workers.
func (r Report) Samples() []Sample {
	var all []Sample
	for _, w := range r.Workers {
		all = append(all, w.Samples...)
	}
	return all
}

// WorkerError is the first failure of one worker.
type WorkerError struct {
	Worker int
	State  State
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d failed during %s: %v", e.Worker, e.State, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// WorkerErrors aggregates the failures of a worker pool.
type WorkerErrors struct {
	Errs []*WorkerError
}

func (e *WorkerErrors) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d workers failed: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *WorkerErrors) Unwrap() []error {
	out := make([]error, len(e.Errs))
	for i, err := range e.Errs {
		out[i] = err
	}
	return out
}

// RunWorkers runs every worker on its own goroutine and joins them all. A
// failing worker does not cancel the others; the report holds the samples
// of the workers that succeeded and the error lists every failure.
func (r *Runner) RunWorkers(ctx context.Context, workers []Worker) (Report, error) {
	results := make([]*WorkerResult, len(workers))
	failures := make([]*WorkerError, len(workers))

	var g errgroup.Group
	for i, w := range workers {
		g.Go(func() error {
			samples, err := r.runWorker(ctx, i, w)
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = &WorkerResult{Worker: i, Samples: samples}
			return nil
		})
	}
	_ = g.Wait()

	var rep Report
	for _, res := range results {
		if res != nil {
			rep.Workers = append(rep.Workers, *res)
		}
	}
	var errs []*WorkerError
	for _, f := range failures {
		if f != nil {
			errs = append(errs, f)
		}
	}
	if len(errs) > 0 {
		return rep, &WorkerErrors{Errs: errs}
	}
	return rep, nil
}

func (r *Runner) runWorker(ctx context.Context, id int, w Worker) ([]Sample, *WorkerError) {
	log := logger.Log.With("worker", id, "kernel", r.sess.KernelName())
	metrics.WorkersActive.Inc()
	defer metrics.WorkersActive.Dec()

	state := StateInit
	step := func(next State) {
		log.Debug("Worker state", "from", state.String(), "to", next.String())
		if r.opts.OnState != nil {
			r.opts.OnState(id, state, next)
		}
		state = next
	}
	fail := func(err error) *WorkerError {
		failed := state
		step(StateFailed)
		metrics.RecordFailure(FailureKind(err))
		log.Error("Worker failed", err, "state", failed.String())
		return &WorkerError{Worker: id, State: failed, Err: err}
	}

	step(StateFillInput)
	if err := w.Fill(); err != nil {
		return nil, fail(err)
	}

	start := time.Now()
	samples, err := runIterations(ctx, r.sess, w.Args(), r.opts.Iterations, r.opts.Mode, r.opts.WaitTimeout, step)
	if err != nil {
		return nil, fail(err)
	}
	log.Debug("Iterations complete", "iterations", r.opts.Iterations, "elapsed", time.Since(start))

	step(StateVerify)
	if err := w.Verify(); err != nil {
		return nil, fail(err)
	}
	step(StateDone)
	return samples, nil
}

// FailureKind classifies err for the failures metric.
func FailureKind(err error) string {
	var (
		fe *sequence.FormatError
		be *accel.BindError
		ee *accel.ExecutionError
		me *verify.MismatchError
		te *ToggleError
	)
	switch {
	case errors.As(err, &fe):
		return "format"
	case errors.As(err, &be):
		return "bind"
	case errors.As(err, &ee):
		return "execution"
	case errors.As(err, &me):
		return "mismatch"
	case errors.As(err, &te):
		return "toggle"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
