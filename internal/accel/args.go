package accel

import "fmt"

// ArgKind distinguishes the slots of a kernel argument list.
type ArgKind int

const (
	ArgNone ArgKind = iota
	ArgScalar
	ArgBuffer
)

// Arg is one kernel argument slot.
type Arg struct {
	Kind   ArgKind
	Scalar uint64
	Buffer Memory
}

// MemoryRef is anything backed by device memory, such as a transfer buffer.
type MemoryRef interface {
	DeviceMemory() Memory
}

func None() Arg              { return Arg{Kind: ArgNone} }
func Scalar(v uint64) Arg    { return Arg{Kind: ArgScalar, Scalar: v} }
func Buffer(m MemoryRef) Arg { return Arg{Kind: ArgBuffer, Buffer: m.DeviceMemory()} }

func (a Arg) String() string {
	switch a.Kind {
	case ArgScalar:
		return fmt.Sprintf("%d", a.Scalar)
	case ArgBuffer:
		return fmt.Sprintf("bo(%d)", len(a.Buffer.Bytes()))
	default:
		return "none"
	}
}

// Args is the full argument list of one run; slot 0 is the opcode.
type Args []Arg

// Opcodes understood by the DPU firmware.
const (
	OpcodeHostApp    uint64 = 1
	OpcodePreemptApp uint64 = 3
)

// Argument slots of the standard DPU kernel signature.
const (
	SlotOpcode     = 0
	SlotInput      = 1
	SlotOutput     = 3
	SlotInstr      = 5
	SlotInstrCount = 6
)

// LoopbackArgs builds (opcode, in, -, out, -, instr, count, -).
func LoopbackArgs(opcode uint64, in, out, instr MemoryRef, count int) Args {
	return Args{
		Scalar(opcode), Buffer(in), None(), Buffer(out), None(),
		Buffer(instr), Scalar(uint64(count)), None(),
	}
}

// TelemetryArgs builds (opcode, -, -, -, -, instr, count, -) for kernels that
// only report through a telemetry buffer.
func TelemetryArgs(opcode uint64, instr MemoryRef, count int) Args {
	return Args{
		Scalar(opcode), None(), None(), None(), None(),
		Buffer(instr), Scalar(uint64(count)), None(),
	}
}

// PreemptArgs builds (opcode, 0, 0, ifm, ofm, wts1, wts2, 0) for ELF module kernels.
func PreemptArgs(opcode uint64, ifm, ofm, wts1, wts2 MemoryRef) Args {
	return Args{
		Scalar(opcode), Scalar(0), Scalar(0), Buffer(ifm), Buffer(ofm),
		Buffer(wts1), Buffer(wts2), Scalar(0),
	}
}

// BufferAt returns the memory in slot i, or nil if the slot is not a buffer.
func (a Args) BufferAt(i int) Memory {
	if i < 0 || i >= len(a) || a[i].Kind != ArgBuffer {
		return nil
	}
	return a[i].Buffer
}

// ScalarAt returns the scalar in slot i.
func (a Args) ScalarAt(i int) (uint64, bool) {
	if i < 0 || i >= len(a) || a[i].Kind != ArgScalar {
		return 0, false
	}
	return a[i].Scalar, true
}
