// Package xrt drives AMD NPUs through the XRT runtime. The hardware backend
// needs cgo, the XRT headers and libxrt_coreutil, and is built with -tags xrt.
// Without the tag Open reports ErrUnavailable.
package xrt

import (
	"errors"
	"strings"
)

var ErrUnavailable = errors.New("xrt: hardware backend not built, rebuild with -tags xrt")

const (
	errLen   = 1024
	namesLen = 16 << 10
)

func splitNames(s string) []string {
	var names []string
	for _, n := range strings.Split(s, "\n") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
