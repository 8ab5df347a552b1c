//go:build !(linux && cgo && xrt)

package xrt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/23skdu/longbow-npubench/internal/accel"
)

var _ accel.Device = (*Device)(nil)

func TestOpenWithoutBackend(t *testing.T) {
	_, err := Open("0000:c5:00.1")
	assert.ErrorIs(t, err, ErrUnavailable)

	var d Device
	_, err = d.Kernels(context.Background(), accel.Program{Path: "a.xclbin"})
	assert.ErrorIs(t, err, ErrUnavailable)
}
