package accel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/23skdu/longbow-npubench/internal/logger"
	"github.com/23skdu/longbow-npubench/internal/metrics"
)

// DefaultPrefix is the conventional name prefix of DPU kernels.
const DefaultPrefix = "DPU"

// MatchPolicy selects the kernel to bind: the first name, in discovery
// order, that starts with Prefix.
type MatchPolicy struct {
	Prefix          string
	CaseInsensitive bool
}

func (p MatchPolicy) prefix() string {
	if p.Prefix == "" {
		return DefaultPrefix
	}
	return p.Prefix
}

func (p MatchPolicy) Match(name string) bool {
	prefix := p.prefix()
	if len(name) < len(prefix) {
		return false
	}
	if p.CaseInsensitive {
		return strings.EqualFold(name[:len(prefix)], prefix)
	}
	return strings.HasPrefix(name, prefix)
}

func (p MatchPolicy) String() string {
	if p.CaseInsensitive {
		return fmt.Sprintf("prefix %q (any case)", p.prefix())
	}
	return fmt.Sprintf("prefix %q", p.prefix())
}

// Session is a kernel bound on a device. It is immutable after Bind and may
// be shared by any number of workers.
type Session struct {
	device  Device
	program Program
	kernel  Kernel
	name    string
}

// Bind resolves the program's kernel once.
func Bind(ctx context.Context, dev Device, prog Program, policy MatchPolicy) (*Session, error) {
	names, err := dev.Kernels(ctx, prog)
	if err != nil {
		return nil, &BindError{Program: prog, Policy: policy, Err: err}
	}

	var name string
	for _, n := range names {
		if policy.Match(n) {
			name = n
			break
		}
	}
	if name == "" {
		return nil, &BindError{Program: prog, Policy: policy, Candidates: names}
	}

	logger.Log.Info("Found kernel", "kernel", name, "program", prog.String(), "device", dev.ID())

	k, err := dev.OpenKernel(ctx, prog, name)
	if err != nil {
		return nil, &BindError{Program: prog, Policy: policy, Candidates: names, Err: err}
	}
	return &Session{device: dev, program: prog, kernel: k, name: name}, nil
}

func (s *Session) KernelName() string { return s.name }
func (s *Session) Program() Program   { return s.program }
func (s *Session) DeviceID() string   { return s.device.ID() }

// Alloc places buffer memory in the kernel's memory group for bank.
func (s *Session) Alloc(role Role, size int, bank int) (Memory, error) {
	return s.kernel.Alloc(role, size, bank)
}

// RunHandle is one submitted run.
type RunHandle struct {
	run       RunDriver
	submitted time.Time
}

// Outcome summarizes a finished run.
type Outcome struct {
	State   State
	Elapsed time.Duration
}

// Submit enqueues one invocation and returns without waiting.
func (s *Session) Submit(args Args) (*RunHandle, error) {
	start := time.Now()
	run, err := s.kernel.Start(args)
	if err != nil {
		return nil, &ExecutionError{Kernel: s.name, Op: "submit", Err: err}
	}
	metrics.RecordSubmission(s.name)
	return &RunHandle{run: run, submitted: start}, nil
}

// Wait blocks until the run completes, faults, or timeout expires. A zero
// timeout waits indefinitely.
func (s *Session) Wait(h *RunHandle, timeout time.Duration) (Outcome, error) {
	state, err := h.run.Wait(timeout)
	out := Outcome{State: state, Elapsed: time.Since(h.submitted)}
	metrics.RecordRun(s.name, state.String(), out.Elapsed)

	if err == nil && state != StateCompleted {
		err = fmt.Errorf("device reported %s", state)
	}
	if err != nil {
		if state == StateCompleted {
			state = StateFaulted
			out.State = state
		}
		return out, &ExecutionError{Kernel: s.name, Op: "wait", State: state, Err: err}
	}
	return out, nil
}

// Execute submits args and waits for the run.
func (s *Session) Execute(args Args, timeout time.Duration) (Outcome, error) {
	h, err := s.Submit(args)
	if err != nil {
		return Outcome{}, err
	}
	return s.Wait(h, timeout)
}

func (s *Session) Close() error {
	return s.kernel.Close()
}
