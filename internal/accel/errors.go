package accel

import (
	"fmt"
	"strings"
)

// BindError means no kernel of the program matched the naming policy.
type BindError struct {
	Program    Program
	Policy     MatchPolicy
	Candidates []string
	Err        error
}

func (e *BindError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failure to bind DPU kernel from %s: %v", e.Program, e.Err)
	}
	return fmt.Sprintf("failure to find DPU kernel in %s: no kernel matches %s (found: [%s])",
		e.Program, e.Policy, strings.Join(e.Candidates, ", "))
}

func (e *BindError) Unwrap() error { return e.Err }

// ExecutionError is a submission failure or a device-reported fault.
type ExecutionError struct {
	Kernel string
	Op     string
	State  State
	Err    error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("kernel %s: %s failed", e.Kernel, e.Op)
	if e.Op == "wait" {
		msg = fmt.Sprintf("kernel %s: run %s", e.Kernel, e.State)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }
