// Package telemetry encodes the profiling region the DPU writes into the
// result buffer: a running record count followed by (core id, cycle count)
// pairs, all little-endian 32-bit words.
package telemetry

import (
	"encoding/binary"
	"fmt"
)

const (
	BufferSize = 0x1000
	Offset     = 0x0C00
	RecordSize = 8
)

type Record struct {
	CoreID uint32
	Cycles uint32
}

// CapacityError means the configured core count cannot fit the region.
type CapacityError struct {
	Cores    int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("telemetry region holds at most %d records, %d cores requested", e.Capacity, e.Cores)
}

// Capacity is the number of records that fit between offset and the end of
// a buffer of size bytes. The leading count word takes one record slot.
func Capacity(size, offset int) int {
	if offset < 0 || size-offset < RecordSize {
		return 0
	}
	return (size-offset)/RecordSize - 1
}

// Encode writes the count and records at offset.
func Encode(buf []byte, offset int, recs []Record) error {
	if capacity := Capacity(len(buf), offset); len(recs) > capacity {
		return &CapacityError{Cores: len(recs), Capacity: capacity}
	}
	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(recs)))
	p := offset + RecordSize
	for _, r := range recs {
		binary.LittleEndian.PutUint32(buf[p:], r.CoreID)
		binary.LittleEndian.PutUint32(buf[p+4:], r.Cycles)
		p += RecordSize
	}
	return nil
}

// Decode reads cores records at offset and returns them with the count the
// device recorded.
func Decode(buf []byte, offset int, cores int) ([]Record, uint32, error) {
	capacity := Capacity(len(buf), offset)
	if cores <= 0 || cores > capacity {
		return nil, 0, &CapacityError{Cores: cores, Capacity: capacity}
	}
	count := binary.LittleEndian.Uint32(buf[offset:])
	recs := make([]Record, cores)
	p := offset + RecordSize
	for i := range recs {
		recs[i] = Record{
			CoreID: binary.LittleEndian.Uint32(buf[p:]),
			Cycles: binary.LittleEndian.Uint32(buf[p+4:]),
		}
		p += RecordSize
	}
	return recs, count, nil
}

// Cycles extracts the cycle counts in record order.
func Cycles(recs []Record) []uint32 {
	out := make([]uint32, len(recs))
	for i, r := range recs {
		out[i] = r.Cycles
	}
	return out
}
