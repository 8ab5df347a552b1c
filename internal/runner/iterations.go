// Package runner drives bound kernels through timed iteration loops, fans
// the loops out over workers and measures feature-toggle deltas.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/23skdu/longbow-npubench/internal/accel"
)

// Sample is one timed span. Both ends carry Go's monotonic clock reading.
type Sample struct {
	Start time.Time
	End   time.Time
}

func (s Sample) Elapsed() time.Duration { return s.End.Sub(s.Start) }

func (s Sample) Micros() float64 { return float64(s.Elapsed().Nanoseconds()) / 1e3 }

func (s Sample) Seconds() float64 { return s.Elapsed().Seconds() }

// Mode selects how iterations are timed.
type Mode int

const (
	// ModeBatch yields one sample spanning all iterations.
	ModeBatch Mode = iota
	// ModePerIteration yields one sample per iteration.
	ModePerIteration
)

func (m Mode) String() string {
	if m == ModePerIteration {
		return "per-iteration"
	}
	return "batch"
}

// RunIterations submits args n times, waiting for each run before the next.
// Any failure aborts the loop and no samples are returned.
func RunIterations(ctx context.Context, sess *accel.Session, args accel.Args, n int, mode Mode, timeout time.Duration) ([]Sample, error) {
	return runIterations(ctx, sess, args, n, mode, timeout, nil)
}

// runIterations is RunIterations with step called on entering the submit and
// wait phases of every iteration.
func runIterations(ctx context.Context, sess *accel.Session, args accel.Args, n int, mode Mode, timeout time.Duration, step func(State)) ([]Sample, error) {
	if step == nil {
		step = func(State) {}
	}
	if n <= 0 {
		return nil, fmt.Errorf("iteration count must be positive, got %d", n)
	}

	var samples []Sample
	if mode == ModePerIteration {
		samples = make([]Sample, 0, n)
	}

	batchStart := time.Now()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		step(StateSubmit)
		start := time.Now()
		h, err := sess.Submit(args)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		step(StateWait)
		if _, err := sess.Wait(h, timeout); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		if mode == ModePerIteration {
			samples = append(samples, Sample{Start: start, End: time.Now()})
		}
	}
	if mode == ModeBatch {
		samples = []Sample{{Start: batchStart, End: time.Now()}}
	}
	return samples, nil
}

// Span covers the earliest start to the latest end of samples.
func Span(samples []Sample) Sample {
	var s Sample
	for i, x := range samples {
		if i == 0 || x.Start.Before(s.Start) {
			s.Start = x.Start
		}
		if i == 0 || x.End.After(s.End) {
			s.End = x.End
		}
	}
	return s
}
