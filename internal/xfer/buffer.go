// Package xfer manages the host-visible buffers of one benchmark run and
// their explicit synchronization with the device.
package xfer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/metrics"
)

const WordSize = 4

var ErrInvalidSize = errors.New("buffer size must be positive")

// BoundsError rejects host access outside a buffer.
type BoundsError struct {
	Role   accel.Role
	Offset int
	Length int
	Size   int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("%s buffer access [%d, %d) out of bounds (size %d)",
		e.Role, e.Offset, e.Offset+e.Length, e.Size)
}

// Allocator hands out device memory; a bound accel.Session is one.
type Allocator interface {
	Alloc(role accel.Role, size int, bank int) (accel.Memory, error)
}

// DefaultBank maps roles to the argument slot whose memory group backs them
// in the standard DPU kernel signature.
var DefaultBank = map[accel.Role]int{
	accel.RoleInstruction: accel.SlotInstr,
	accel.RoleInput:       accel.SlotInput,
	accel.RoleOutput:      accel.SlotOutput,
	accel.RoleTelemetry:   accel.SlotInstr,
}

// Buffer is a bounds-checked view over one device memory mapping.
type Buffer struct {
	role accel.Role
	bank int
	mem  accel.Memory
	data []byte
}

func (b *Buffer) Role() accel.Role           { return b.role }
func (b *Buffer) Bank() int                  { return b.bank }
func (b *Buffer) Size() int                  { return len(b.data) }
func (b *Buffer) WordCount() int             { return len(b.data) / WordSize }
func (b *Buffer) DeviceMemory() accel.Memory { return b.mem }

func (b *Buffer) check(off, n int) error {
	if off < 0 || n < 0 || off+n > len(b.data) {
		return &BoundsError{Role: b.role, Offset: off, Length: n, Size: len(b.data)}
	}
	return nil
}

func (b *Buffer) Write(off int, data []byte) error {
	if err := b.check(off, len(data)); err != nil {
		return err
	}
	copy(b.data[off:], data)
	return nil
}

// Read returns a copy of n bytes at off.
func (b *Buffer) Read(off, n int) ([]byte, error) {
	if err := b.check(off, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.data[off:off+n])
	return out, nil
}

// WriteWord stores w at word index i.
func (b *Buffer) WriteWord(i int, w uint32) error {
	if err := b.check(i*WordSize, WordSize); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b.data[i*WordSize:], w)
	return nil
}

func (b *Buffer) Word(i int) (uint32, error) {
	if err := b.check(i*WordSize, WordSize); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.data[i*WordSize:]), nil
}

// Words copies n words starting at word index i.
func (b *Buffer) Words(i, n int) ([]uint32, error) {
	if err := b.check(i*WordSize, n*WordSize); err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for k := range out {
		out[k] = binary.LittleEndian.Uint32(b.data[(i+k)*WordSize:])
	}
	return out, nil
}

func (b *Buffer) PutWords(i int, words []uint32) error {
	if err := b.check(i*WordSize, len(words)*WordSize); err != nil {
		return err
	}
	for k, w := range words {
		binary.LittleEndian.PutUint32(b.data[(i+k)*WordSize:], w)
	}
	return nil
}

// Fill sets every word from fn.
func (b *Buffer) Fill(fn func(i int) uint32) {
	for i := 0; i < b.WordCount(); i++ {
		binary.LittleEndian.PutUint32(b.data[i*WordSize:], fn(i))
	}
}

func (b *Buffer) Zero() {
	clear(b.data)
}

func (b *Buffer) sync(dir accel.Direction) error {
	start := time.Now()
	if err := b.mem.Sync(dir); err != nil {
		return fmt.Errorf("sync %s buffer %s: %w", b.role, dir, err)
	}
	metrics.RecordSync(dir.String(), time.Since(start))
	return nil
}

// PushToDevice makes host writes visible to the device.
func (b *Buffer) PushToDevice() error { return b.sync(accel.ToDevice) }

// PullFromDevice makes device writes visible to the host.
func (b *Buffer) PullFromDevice() error { return b.sync(accel.FromDevice) }

// Set owns the buffers of one worker for the lifetime of a session. Buffers
// are allocated once and overwritten between iterations.
type Set struct {
	alloc Allocator

	mu      sync.Mutex
	buffers []*Buffer
}

func NewSet(alloc Allocator) *Set {
	return &Set{alloc: alloc}
}

// Allocate places a buffer in the default memory group for role.
func (s *Set) Allocate(role accel.Role, size int) (*Buffer, error) {
	return s.AllocateAt(role, size, DefaultBank[role])
}

// AllocateAt places a buffer in the memory group of argument slot bank.
func (s *Set) AllocateAt(role accel.Role, size int, bank int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("allocate %s buffer of %d bytes: %w", role, size, ErrInvalidSize)
	}
	mem, err := s.alloc.Alloc(role, size, bank)
	if err != nil {
		return nil, fmt.Errorf("allocate %s buffer of %d bytes: %w", role, size, err)
	}
	data := mem.Bytes()
	if len(data) < size {
		_ = mem.Free()
		return nil, fmt.Errorf("allocate %s buffer: mapped %d bytes, want %d", role, len(data), size)
	}
	b := &Buffer{role: role, bank: bank, mem: mem, data: data[:size]}

	s.mu.Lock()
	s.buffers = append(s.buffers, b)
	s.mu.Unlock()
	metrics.RecordBufferBytes(int64(size))
	return b, nil
}

// Buffers returns the allocated buffers in allocation order.
func (s *Set) Buffers() []*Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Buffer(nil), s.buffers...)
}

// Close frees every buffer of the set.
func (s *Set) Close() error {
	s.mu.Lock()
	bufs := s.buffers
	s.buffers = nil
	s.mu.Unlock()

	var errs []error
	for _, b := range bufs {
		metrics.RecordBufferBytes(-int64(b.Size()))
		if err := b.mem.Free(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
