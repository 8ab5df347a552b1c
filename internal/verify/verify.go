// Package verify compares device output against the expected words.
package verify

import (
	"fmt"

	"github.com/23skdu/longbow-npubench/internal/metrics"
	"github.com/23skdu/longbow-npubench/internal/xfer"
)

// MismatchError reports the first differing word.
type MismatchError struct {
	Index    int
	Expected uint32
	Actual   uint32
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("Error found at index %d: expected 0x%08X, got 0x%08X", e.Index, e.Expected, e.Actual)
}

// Words checks the first n words and stops at the first difference.
func Words(expected, actual []uint32, n int) error {
	if n < 0 || n > len(expected) || n > len(actual) {
		return fmt.Errorf("verify %d words: expected has %d, actual has %d", n, len(expected), len(actual))
	}
	for i := 0; i < n; i++ {
		if expected[i] != actual[i] {
			metrics.RecordMismatch()
			return &MismatchError{Index: i, Expected: expected[i], Actual: actual[i]}
		}
	}
	return nil
}

// Buffers compares the first n words of two host buffers. The caller is
// responsible for pulling the actual buffer from the device first.
func Buffers(expected, actual *xfer.Buffer, n int) error {
	want, err := expected.Words(0, n)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	got, err := actual.Words(0, n)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	return Words(want, got, n)
}
