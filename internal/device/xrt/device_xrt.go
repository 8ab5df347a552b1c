//go:build linux && cgo && xrt

package xrt

/*
#cgo CXXFLAGS: -std=c++17 -I/opt/xilinx/xrt/include
#cgo CFLAGS: -I/opt/xilinx/xrt/include -I${SRCDIR}
#cgo LDFLAGS: -L/opt/xilinx/xrt/lib -lxrt_coreutil -lstdc++
#include <stdlib.h>
#include "shim.h"
*/
import "C"
import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/logger"
)

type cErr struct{ buf *C.char }

func newErr() cErr         { return cErr{buf: (*C.char)(C.calloc(errLen, 1))} }
func (e cErr) free()       { C.free(unsafe.Pointer(e.buf)) }
func (e cErr) msg() string { return C.GoString(e.buf) }

// Device is an opened NPU.
type Device struct {
	id string
	h  unsafe.Pointer
}

// Open opens the device with the given BDF or decimal index.
func Open(id string) (*Device, error) {
	if id == "" {
		id = "0"
	}
	cid := C.CString(id)
	defer C.free(unsafe.Pointer(cid))
	e := newErr()
	defer e.free()

	var h unsafe.Pointer
	if C.npb_device_open(cid, &h, e.buf, errLen) != 0 {
		return nil, fmt.Errorf("xrt: open device %s: %s", id, e.msg())
	}
	logger.Log.Info("Opened XRT device", "device", id)
	return &Device{id: id, h: h}, nil
}

func (d *Device) ID() string { return d.id }

func (d *Device) Close() error {
	if d.h != nil {
		C.npb_device_close(d.h)
		d.h = nil
	}
	return nil
}

func (d *Device) Kernels(ctx context.Context, prog accel.Program) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cpath := C.CString(prog.Path)
	defer C.free(unsafe.Pointer(cpath))
	buf := (*C.char)(C.calloc(namesLen, 1))
	defer C.free(unsafe.Pointer(buf))
	e := newErr()
	defer e.free()

	if C.npb_xclbin_kernels(cpath, buf, namesLen, e.buf, errLen) != 0 {
		return nil, fmt.Errorf("xrt: read %s: %s", prog.Path, e.msg())
	}
	return splitNames(C.GoString(buf)), nil
}

func (d *Device) OpenKernel(ctx context.Context, prog accel.Program, name string) (accel.Kernel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cpath := C.CString(prog.Path)
	defer C.free(unsafe.Pointer(cpath))
	celf := C.CString(prog.ELF)
	defer C.free(unsafe.Pointer(celf))
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	e := newErr()
	defer e.free()

	var h unsafe.Pointer
	if C.npb_kernel_open(d.h, cpath, celf, cname, &h, e.buf, errLen) != 0 {
		return nil, fmt.Errorf("xrt: open kernel %s: %s", name, e.msg())
	}
	return &Kernel{name: name, h: h}, nil
}

// Kernel is a kernel bound in a hardware context.
type Kernel struct {
	name string
	mu   sync.Mutex
	h    unsafe.Pointer
}

func (k *Kernel) Name() string { return k.name }

func (k *Kernel) Alloc(role accel.Role, size int, bank int) (accel.Memory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("xrt: invalid buffer size %d", size)
	}
	cacheable := C.int(0)
	if role == accel.RoleInstruction {
		cacheable = 1
	}
	e := newErr()
	defer e.free()

	var bo, host unsafe.Pointer
	if C.npb_bo_alloc(k.h, C.size_t(size), C.int(bank), cacheable, &bo, &host, e.buf, errLen) != 0 {
		return nil, fmt.Errorf("xrt: alloc %d bytes in bank %d: %s", size, bank, e.msg())
	}
	return &Memory{bo: bo, data: unsafe.Slice((*byte)(host), size)}, nil
}

// Start submits one run. Submissions are serialized per kernel.
func (k *Kernel) Start(args accel.Args) (accel.RunDriver, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("xrt: empty argument list")
	}
	cargs := make([]C.npb_arg, len(args))
	for i, a := range args {
		switch a.Kind {
		case accel.ArgScalar:
			cargs[i].kind = C.NPB_ARG_SCALAR
			cargs[i].scalar = C.uint64_t(a.Scalar)
		case accel.ArgBuffer:
			m, ok := a.Buffer.(*Memory)
			if !ok {
				return nil, fmt.Errorf("xrt: argument %d is not XRT memory", i)
			}
			cargs[i].kind = C.NPB_ARG_BUFFER
			cargs[i].bo = m.bo
		default:
			cargs[i].kind = C.NPB_ARG_NONE
		}
	}
	e := newErr()
	defer e.free()

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.h == nil {
		return nil, fmt.Errorf("xrt: kernel %s is closed", k.name)
	}
	var h unsafe.Pointer
	if C.npb_run_start(k.h, &cargs[0], C.int(len(cargs)), &h, e.buf, errLen) != 0 {
		return nil, fmt.Errorf("xrt: start %s: %s", k.name, e.msg())
	}
	return &run{h: h}, nil
}

func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.h != nil {
		C.npb_kernel_close(k.h)
		k.h = nil
	}
	return nil
}

// Memory is a host-mapped buffer object.
type Memory struct {
	bo   unsafe.Pointer
	data []byte
}

func (m *Memory) Bytes() []byte { return m.data }

func (m *Memory) Sync(dir accel.Direction) error {
	toDevice := C.int(0)
	if dir == accel.ToDevice {
		toDevice = 1
	}
	e := newErr()
	defer e.free()
	if C.npb_bo_sync(m.bo, toDevice, e.buf, errLen) != 0 {
		return fmt.Errorf("xrt: sync %s: %s", dir, e.msg())
	}
	return nil
}

func (m *Memory) Free() error {
	if m.bo != nil {
		C.npb_bo_free(m.bo)
		m.bo = nil
		m.data = nil
	}
	return nil
}

type run struct {
	h unsafe.Pointer
}

// Wait releases the run handle once the run reaches a terminal state. A
// timed out run keeps its handle since the device may still own it.
func (r *run) Wait(timeout time.Duration) (accel.State, error) {
	if r.h == nil {
		return accel.StateFaulted, fmt.Errorf("xrt: run already waited")
	}
	ms := C.uint(0)
	if timeout > 0 {
		ms = C.uint(max(timeout.Milliseconds(), 1))
	}
	e := newErr()
	defer e.free()

	var state C.int
	rc := C.npb_run_wait(r.h, ms, &state, e.buf, errLen)
	switch {
	case rc != 0:
		C.npb_run_free(r.h)
		r.h = nil
		return accel.StateFaulted, fmt.Errorf("xrt: %s", e.msg())
	case state == C.NPB_STATE_TIMED_OUT:
		return accel.StateTimedOut, nil
	}
	C.npb_run_free(r.h)
	r.h = nil
	return accel.StateCompleted, nil
}
