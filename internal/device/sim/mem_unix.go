//go:build unix

package sim

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mapHost backs a buffer with an anonymous private mapping so large
// transfer buffers stay outside the Go heap.
func mapHost(size int) ([]byte, func() error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
