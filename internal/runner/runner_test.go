package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/device/sim"
	"github.com/23skdu/longbow-npubench/internal/metrics"
	"github.com/23skdu/longbow-npubench/internal/verify"
)

var loopbackProgram = []uint32{0x01000000, 0x00000001, 0x00000002, 0x00000003}

func newSession(t *testing.T, dev *sim.Device) *accel.Session {
	t.Helper()
	sess, err := accel.Bind(context.Background(), dev, accel.Program{Path: "loopback.xclbin"}, accel.MatchPolicy{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func newDevice(kernels ...string) *sim.Device {
	cfg := sim.DefaultConfig()
	cfg.RunLatency = 0
	cfg.PreemptCost = 0
	if len(kernels) > 0 {
		cfg.Kernels = kernels
	}
	return sim.New("sim0", cfg)
}

func newWorkers(t *testing.T, sess *accel.Session, n, size int) []*LoopbackWorker {
	t.Helper()
	var ws []*LoopbackWorker
	for i := 0; i < n; i++ {
		w, err := NewLoopbackWorker(sess, i, LoopbackConfig{Size: size, Instructions: loopbackProgram, Seed: 7})
		require.NoError(t, err)
		t.Cleanup(func() { _ = w.Close() })
		ws = append(ws, w)
	}
	return ws
}

func asWorkers(ws []*LoopbackWorker) []Worker {
	out := make([]Worker, len(ws))
	for i, w := range ws {
		out[i] = w
	}
	return out
}

func TestRunIterationsModes(t *testing.T) {
	dev := newDevice()
	sess := newSession(t, dev)
	w := newWorkers(t, sess, 1, 64)[0]
	require.NoError(t, w.Fill())

	samples, err := RunIterations(context.Background(), sess, w.Args(), 5, ModeBatch, 0)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.False(t, samples[0].End.Before(samples[0].Start))

	samples, err = RunIterations(context.Background(), sess, w.Args(), 5, ModePerIteration, 0)
	require.NoError(t, err)
	assert.Len(t, samples, 5)
	assert.Equal(t, int64(10), dev.Runs())

	_, err = RunIterations(context.Background(), sess, w.Args(), 0, ModeBatch, 0)
	assert.Error(t, err)
}

func TestRunIterationsFailureDiscardsSamples(t *testing.T) {
	dev := newDevice()
	dev.Fault = func(seq int64, _ accel.Args) error {
		if seq == 3 {
			return errors.New("fault")
		}
		return nil
	}
	sess := newSession(t, dev)
	w := newWorkers(t, sess, 1, 16)[0]

	samples, err := RunIterations(context.Background(), sess, w.Args(), 5, ModePerIteration, 0)
	assert.Nil(t, samples)
	var ee *accel.ExecutionError
	assert.ErrorAs(t, err, &ee)
	assert.Equal(t, int64(3), dev.Runs())
}

func TestRunIterationsCanceled(t *testing.T) {
	sess := newSession(t, newDevice())
	w := newWorkers(t, sess, 1, 16)[0]
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunIterations(ctx, sess, w.Args(), 3, ModeBatch, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "canceled", FailureKind(err))
}

func TestRunWorkersFourByHundred(t *testing.T) {
	dev := newDevice()
	sess := newSession(t, dev)
	ws := newWorkers(t, sess, 4, 1024)

	before := testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues(sess.KernelName()))
	r, err := New(sess, Options{Iterations: 100, Mode: ModeBatch})
	require.NoError(t, err)
	rep, err := r.RunWorkers(context.Background(), asWorkers(ws))
	require.NoError(t, err)
	assert.Len(t, rep.Workers, 4)
	assert.Len(t, rep.Samples(), 4)
	assert.Equal(t, int64(400), dev.Runs())
	assert.Equal(t, before+400, testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues(sess.KernelName())))
	assert.Zero(t, testutil.ToFloat64(metrics.WorkersActive))

	// private buffers: every worker saw its own input come back
	first, err := ws[0].Output().Words(0, 16)
	require.NoError(t, err)
	second, err := ws[1].Output().Words(0, 16)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

type corruptingWorker struct {
	*LoopbackWorker
}

func (c corruptingWorker) Verify() error {
	if err := c.Output().WriteWord(0, 0xFFFFFFFF); err != nil {
		return err
	}
	got, _ := c.Output().Words(0, 1)
	return verify.Words([]uint32{0}, got, 1)
}

func TestRunWorkersAggregatesFailures(t *testing.T) {
	dev := newDevice()
	sess := newSession(t, dev)
	ws := newWorkers(t, sess, 3, 64)

	workers := []Worker{ws[0], corruptingWorker{ws[1]}, ws[2]}
	r, err := New(sess, Options{Iterations: 10})
	require.NoError(t, err)
	rep, err := r.RunWorkers(context.Background(), workers)

	var we *WorkerErrors
	require.ErrorAs(t, err, &we)
	require.Len(t, we.Errs, 1)
	assert.Equal(t, 1, we.Errs[0].Worker)
	assert.Equal(t, StateVerify, we.Errs[0].State)

	var me *verify.MismatchError
	assert.ErrorAs(t, err, &me)
	assert.Equal(t, "mismatch", FailureKind(err))

	// the others still ran to completion
	assert.Len(t, rep.Workers, 2)
	assert.Equal(t, int64(30), dev.Runs())
}

func TestRunWorkersTimeout(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.RunLatency = 100 * time.Millisecond
	dev := sim.New("sim0", cfg)
	sess := newSession(t, dev)
	ws := newWorkers(t, sess, 2, 16)

	r, err := New(sess, Options{Iterations: 1, WaitTimeout: time.Millisecond})
	require.NoError(t, err)
	_, err = r.RunWorkers(context.Background(), asWorkers(ws))
	var we *WorkerErrors
	require.ErrorAs(t, err, &we)
	assert.Len(t, we.Errs, 2)
	assert.Contains(t, err.Error(), "2 workers failed")
	var ee *accel.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, accel.StateTimedOut, ee.State)
	assert.Equal(t, StateWait, we.Errs[0].State)
}

func TestNewRejectsNonPositiveIterations(t *testing.T) {
	sess := newSession(t, newDevice())
	for _, n := range []int{0, -3} {
		_, err := New(sess, Options{Iterations: n})
		assert.Error(t, err)
	}
}

func TestWorkerStateTransitions(t *testing.T) {
	sess := newSession(t, newDevice())
	ws := newWorkers(t, sess, 1, 64)

	var got []string
	r, err := New(sess, Options{
		Iterations: 2,
		OnState: func(worker int, from, to State) {
			got = append(got, from.String()+">"+to.String())
		},
	})
	require.NoError(t, err)
	_, err = r.RunWorkers(context.Background(), asWorkers(ws))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"init>fill_input",
		"fill_input>submit",
		"submit>wait",
		"wait>submit",
		"submit>wait",
		"wait>verify",
		"verify>done",
	}, got)
}

func TestSpan(t *testing.T) {
	t0 := time.Now()
	s := Span([]Sample{
		{Start: t0.Add(time.Millisecond), End: t0.Add(3 * time.Millisecond)},
		{Start: t0, End: t0.Add(2 * time.Millisecond)},
	})
	assert.Equal(t, 3*time.Millisecond, s.Elapsed())
	assert.InDelta(t, 3000.0, s.Micros(), 1e-6)
}

func TestLoopbackWorkerRejectsShortOutput(t *testing.T) {
	sess := newSession(t, newDevice())
	_, err := NewLoopbackWorker(sess, 0, LoopbackConfig{Size: 16, OutputSize: 8, Instructions: loopbackProgram})
	assert.Error(t, err)
	_, err = NewLoopbackWorker(sess, 0, LoopbackConfig{Size: 16})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "fill_input", StateFillInput.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.Equal(t, "per-iteration", ModePerIteration.String())
}
