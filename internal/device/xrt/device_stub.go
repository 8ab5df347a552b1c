//go:build !(linux && cgo && xrt)

package xrt

import (
	"context"

	"github.com/23skdu/longbow-npubench/internal/accel"
)

// Device is unavailable in builds without the xrt tag.
type Device struct{}

func Open(id string) (*Device, error) { return nil, ErrUnavailable }

func (d *Device) ID() string   { return "" }
func (d *Device) Close() error { return nil }

func (d *Device) Kernels(context.Context, accel.Program) ([]string, error) {
	return nil, ErrUnavailable
}

func (d *Device) OpenKernel(context.Context, accel.Program, string) (accel.Kernel, error) {
	return nil, ErrUnavailable
}
