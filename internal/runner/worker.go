package runner

import (
	"fmt"
	"math/rand/v2"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/verify"
	"github.com/23skdu/longbow-npubench/internal/xfer"
)

// State is a worker's position in its lifecycle.
type State int

const (
	StateInit State = iota
	StateFillInput
	StateSubmit
	StateWait
	StateVerify
	StateDone
	StateFailed
)

var stateNames = [...]string{"init", "fill_input", "submit", "wait", "verify", "done", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Worker owns the buffers of one iteration loop.
type Worker interface {
	// Fill prepares inputs and pushes them to the device.
	Fill() error
	// Args is the argument list submitted on every iteration.
	Args() accel.Args
	// Verify pulls results and checks them after the last iteration.
	Verify() error
}

// LoopbackConfig describes the buffers of a loopback worker.
type LoopbackConfig struct {
	// Size is the input transfer length in bytes.
	Size int
	// OutputSize defaults to Size.
	OutputSize   int
	Instructions []uint32
	// Modulus bounds the random input words.
	Modulus uint32
	Seed    uint64
}

// LoopbackWorker sends random words through the device and expects them
// back unchanged.
type LoopbackWorker struct {
	set   *xfer.Set
	instr *xfer.Buffer
	in    *xfer.Buffer
	out   *xfer.Buffer
	count int
	mod   uint32
	rng   *rand.Rand
}

// NewLoopbackWorker allocates and loads the worker's private buffers.
func NewLoopbackWorker(alloc xfer.Allocator, id int, cfg LoopbackConfig) (*LoopbackWorker, error) {
	if len(cfg.Instructions) == 0 {
		return nil, fmt.Errorf("worker %d: empty instruction program", id)
	}
	if cfg.OutputSize == 0 {
		cfg.OutputSize = cfg.Size
	}
	if cfg.OutputSize < cfg.Size {
		return nil, fmt.Errorf("worker %d: output of %d bytes cannot hold input of %d", id, cfg.OutputSize, cfg.Size)
	}
	if cfg.Modulus == 0 {
		cfg.Modulus = 8192
	}

	w := &LoopbackWorker{
		set:   xfer.NewSet(alloc),
		count: len(cfg.Instructions),
		mod:   cfg.Modulus,
		rng:   rand.New(rand.NewPCG(cfg.Seed, uint64(id))),
	}
	var err error
	if w.instr, err = w.set.Allocate(accel.RoleInstruction, len(cfg.Instructions)*xfer.WordSize); err != nil {
		return nil, w.fail(err)
	}
	if err = w.instr.PutWords(0, cfg.Instructions); err != nil {
		return nil, w.fail(err)
	}
	if err = w.instr.PushToDevice(); err != nil {
		return nil, w.fail(err)
	}
	if w.in, err = w.set.Allocate(accel.RoleInput, cfg.Size); err != nil {
		return nil, w.fail(err)
	}
	if w.out, err = w.set.Allocate(accel.RoleOutput, cfg.OutputSize); err != nil {
		return nil, w.fail(err)
	}
	return w, nil
}

func (w *LoopbackWorker) fail(err error) error {
	_ = w.set.Close()
	return err
}

func (w *LoopbackWorker) Fill() error {
	w.in.Fill(func(int) uint32 { return w.rng.Uint32() % w.mod })
	w.out.Zero()
	if err := w.in.PushToDevice(); err != nil {
		return err
	}
	return w.out.PushToDevice()
}

func (w *LoopbackWorker) Args() accel.Args {
	return accel.LoopbackArgs(accel.OpcodeHostApp, w.in, w.out, w.instr, w.count)
}

func (w *LoopbackWorker) Verify() error {
	if err := w.out.PullFromDevice(); err != nil {
		return err
	}
	return verify.Buffers(w.in, w.out, w.in.WordCount())
}

// Output exposes the output buffer.
func (w *LoopbackWorker) Output() *xfer.Buffer { return w.out }

func (w *LoopbackWorker) Close() error { return w.set.Close() }
