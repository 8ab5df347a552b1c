// Package sim is a software accelerator that implements the accel driver
// interfaces. Its DPU kernel copies the input buffer to the output buffer,
// reports per-core cycle counts through telemetry buffers, and stretches
// runs by a configurable cost while forced preemption is enabled.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/telemetry"
)

type Config struct {
	Kernels     []string
	RunLatency  time.Duration
	PreemptCost time.Duration
	Preemptions int
	CycleCount  uint32
	Cores       int
}

func DefaultConfig() Config {
	return Config{
		Kernels:     []string{"DPU_PDI_0"},
		RunLatency:  20 * time.Microsecond,
		PreemptCost: 2 * time.Microsecond,
		Preemptions: 500,
		CycleCount:  229,
		Cores:       32,
	}
}

// Device is a simulated accelerator. It is safe for concurrent use.
type Device struct {
	id  string
	cfg Config

	preempt atomic.Bool
	runs    atomic.Int64

	// Fault, when set, is consulted before every run executes; a non-nil
	// error makes that run fault.
	Fault func(seq int64, args accel.Args) error
	// Corrupt, when set, sees every completed loopback after the copy.
	Corrupt func(seq int64, args accel.Args)
}

func New(id string, cfg Config) *Device {
	return &Device{id: id, cfg: cfg}
}

func (d *Device) ID() string { return d.id }

// Runs is the number of runs started on the device.
func (d *Device) Runs() int64 { return d.runs.Load() }

// SetForcePreemption toggles the simulated preemption feature.
func (d *Device) SetForcePreemption(_ context.Context, deviceID string, enabled bool) error {
	if deviceID != "" && deviceID != d.id {
		return fmt.Errorf("unknown device %q", deviceID)
	}
	d.preempt.Store(enabled)
	return nil
}

func (d *Device) ForcePreemption() bool { return d.preempt.Load() }

// PreemptionToggle exposes forced preemption as a switchable feature.
func (d *Device) PreemptionToggle() PreemptionToggle { return PreemptionToggle{dev: d} }

type PreemptionToggle struct {
	dev *Device
}

func (PreemptionToggle) Feature() string { return "force_preemption" }

func (t PreemptionToggle) Set(ctx context.Context, deviceID string, enabled bool) error {
	return t.dev.SetForcePreemption(ctx, deviceID, enabled)
}

func (d *Device) Kernels(_ context.Context, prog accel.Program) ([]string, error) {
	if prog.Path == "" {
		return nil, errors.New("empty program path")
	}
	return append([]string(nil), d.cfg.Kernels...), nil
}

func (d *Device) OpenKernel(_ context.Context, prog accel.Program, name string) (accel.Kernel, error) {
	return &Kernel{dev: d, name: name}, nil
}

// Kernel is a simulated DPU kernel.
type Kernel struct {
	dev  *Device
	name string

	mu        sync.Mutex
	telemetry []*Memory
	closed    bool

	inflight sync.WaitGroup
}

func (k *Kernel) Name() string { return k.name }

func (k *Kernel) Alloc(role accel.Role, size int, bank int) (accel.Memory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid size %d", size)
	}
	data, release, err := mapHost(size)
	if err != nil {
		return nil, err
	}
	m := &Memory{data: data, release: release, role: role, kernel: k}
	if role == accel.RoleTelemetry {
		k.mu.Lock()
		k.telemetry = append(k.telemetry, m)
		k.mu.Unlock()
	}
	return m, nil
}

// Start queues one run. Queueing is serialized per kernel; execution of
// queued runs overlaps.
func (k *Kernel) Start(args accel.Args) (accel.RunDriver, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, errors.New("kernel closed")
	}
	if len(args) == 0 {
		return nil, errors.New("empty argument list")
	}
	seq := k.dev.runs.Add(1)
	r := &run{done: make(chan struct{})}
	tel := append([]*Memory(nil), k.telemetry...)
	k.inflight.Add(1)
	go func() {
		defer k.inflight.Done()
		r.execute(k.dev, seq, args, tel)
	}()
	return r, nil
}

func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	return nil
}

type run struct {
	done chan struct{}
	err  error
}

func (r *run) execute(d *Device, seq int64, args accel.Args, tel []*Memory) {
	defer close(r.done)

	latency := d.cfg.RunLatency
	if d.preempt.Load() {
		latency += time.Duration(d.cfg.Preemptions) * d.cfg.PreemptCost
	}
	if latency > 0 {
		time.Sleep(latency)
	}

	if d.Fault != nil {
		if err := d.Fault(seq, args); err != nil {
			r.err = err
			return
		}
	}

	opcode, _ := args.ScalarAt(accel.SlotOpcode)
	switch opcode {
	case accel.OpcodeHostApp:
		r.err = loopback(args)
		if r.err == nil && d.Corrupt != nil {
			d.Corrupt(seq, args)
		}
		if r.err == nil {
			r.err = d.report(tel)
		}
	case accel.OpcodePreemptApp:
		// no-op workload; only its duration matters
	default:
		r.err = fmt.Errorf("unsupported opcode %d", opcode)
	}
}

func loopback(args accel.Args) error {
	instr := args.BufferAt(accel.SlotInstr)
	count, ok := args.ScalarAt(accel.SlotInstrCount)
	if instr == nil || !ok || count == 0 {
		return errors.New("missing instruction buffer")
	}
	if int(count)*4 > len(instr.Bytes()) {
		return fmt.Errorf("instruction count %d exceeds buffer of %d bytes", count, len(instr.Bytes()))
	}
	in, out := args.BufferAt(accel.SlotInput), args.BufferAt(accel.SlotOutput)
	if in != nil && out != nil {
		copy(out.Bytes(), in.Bytes())
	}
	return nil
}

func (d *Device) report(tel []*Memory) error {
	if len(tel) == 0 {
		return nil
	}
	recs := make([]telemetry.Record, d.cfg.Cores)
	for i := range recs {
		recs[i] = telemetry.Record{CoreID: uint32(i), Cycles: d.cfg.CycleCount}
	}
	for _, m := range tel {
		if err := telemetry.Encode(m.Bytes(), telemetry.Offset, recs); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) Wait(timeout time.Duration) (accel.State, error) {
	if timeout <= 0 {
		<-r.done
	} else {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-r.done:
		case <-t.C:
			return accel.StateTimedOut, fmt.Errorf("no completion within %s", timeout)
		}
	}
	if r.err != nil {
		return accel.StateFaulted, r.err
	}
	return accel.StateCompleted, nil
}

// Memory is host memory standing in for a device buffer object.
type Memory struct {
	data    []byte
	release func() error
	role    accel.Role
	kernel  *Kernel

	syncs atomic.Int64
}

func (m *Memory) Bytes() []byte { return m.data }

// Sync has nothing to flush on a host-only device.
func (m *Memory) Sync(accel.Direction) error {
	m.syncs.Add(1)
	return nil
}

func (m *Memory) Syncs() int64 { return m.syncs.Load() }

// Free unmaps the memory once no run of its kernel is still executing, so
// a run abandoned after a wait timeout never writes to a released mapping.
func (m *Memory) Free() error {
	if m.release == nil {
		return nil
	}
	m.kernel.inflight.Wait()
	err := m.release()
	m.release = nil
	m.data = nil
	return err
}
