// Package accel binds a DPU kernel from an accelerator program and submits
// runs to it. Device access goes through the Device/Kernel/Memory/RunDriver
// interfaces, which hardware backends and the simulator implement.
package accel

import (
	"context"
	"time"
)

// Program identifies a compiled accelerator image and, for kernels built as
// ELF modules, the module file.
type Program struct {
	Path string
	ELF  string
}

func (p Program) String() string {
	if p.ELF != "" {
		return p.Path + "+" + p.ELF
	}
	return p.Path
}

// Role tags a buffer with its purpose in a run.
type Role int

const (
	RoleInstruction Role = iota
	RoleInput
	RoleOutput
	RoleTelemetry
)

func (r Role) String() string {
	switch r {
	case RoleInstruction:
		return "instruction"
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	case RoleTelemetry:
		return "telemetry"
	default:
		return "unknown"
	}
}

// Direction of an explicit buffer synchronization.
type Direction int

const (
	ToDevice Direction = iota
	FromDevice
)

func (d Direction) String() string {
	if d == ToDevice {
		return "to_device"
	}
	return "from_device"
}

// State is the terminal state a run reports from Wait.
type State int

const (
	StateCompleted State = iota
	StateFaulted
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateCompleted:
		return "completed"
	case StateFaulted:
		return "faulted"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Device resolves programs into kernels.
type Device interface {
	ID() string
	// Kernels lists the kernel names of prog in discovery order.
	Kernels(ctx context.Context, prog Program) ([]string, error)
	OpenKernel(ctx context.Context, prog Program, name string) (Kernel, error)
}

// Kernel is a bound kernel instance. Implementations must accept concurrent
// Start calls and serialize hardware submission internally.
type Kernel interface {
	Name() string
	// Alloc returns host-visible memory placed in the memory group of
	// kernel argument bank.
	Alloc(role Role, size int, bank int) (Memory, error)
	Start(args Args) (RunDriver, error)
	Close() error
}

// Memory is host-mapped device memory.
type Memory interface {
	Bytes() []byte
	Sync(dir Direction) error
	Free() error
}

// RunDriver observes one submitted run. A zero timeout blocks until the
// device reports completion or a fault.
type RunDriver interface {
	Wait(timeout time.Duration) (State, error)
}
