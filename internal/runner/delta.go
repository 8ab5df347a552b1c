package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/23skdu/longbow-npubench/internal/logger"
	"github.com/23skdu/longbow-npubench/internal/metrics"
)

// Toggle switches a device feature on or off.
type Toggle interface {
	Feature() string
	Set(ctx context.Context, deviceID string, enabled bool) error
}

// ToggleError is a failed device configuration change.
type ToggleError struct {
	Feature string
	Device  string
	Enabled bool
	Err     error
}

func (e *ToggleError) Error() string {
	verb := "disable"
	if e.Enabled {
		verb = "enable"
	}
	return fmt.Sprintf("failed to %s %s on %s: %v", verb, e.Feature, e.Device, e.Err)
}

func (e *ToggleError) Unwrap() error { return e.Err }

// Measure runs one measurement and returns its value, typically elapsed µs.
type Measure func(ctx context.Context) (float64, error)

type DeltaResult struct {
	Without float64
	With    float64
}

// Diff is With minus Without.
func (d DeltaResult) Diff() float64 { return d.With - d.Without }

func set(ctx context.Context, t Toggle, deviceID string, enabled bool) error {
	if err := t.Set(ctx, deviceID, enabled); err != nil {
		return &ToggleError{Feature: t.Feature(), Device: deviceID, Enabled: enabled, Err: err}
	}
	metrics.RecordDeviceConfig(t.Feature(), enabled)
	logger.Log.Debug("Device feature set", "feature", t.Feature(), "device", deviceID, "enabled", enabled)
	return nil
}

// Delta measures with the feature disabled, then enabled. Once the initial
// disable succeeds the feature is disabled again on every return path.
func Delta(ctx context.Context, t Toggle, deviceID string, measure Measure) (res DeltaResult, err error) {
	if err = set(ctx, t, deviceID, false); err != nil {
		return res, err
	}
	defer func() {
		// restore even when ctx is already canceled
		if rerr := set(context.WithoutCancel(ctx), t, deviceID, false); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	if res.Without, err = measure(ctx); err != nil {
		return res, fmt.Errorf("baseline measurement: %w", err)
	}
	if err = set(ctx, t, deviceID, true); err != nil {
		return res, err
	}
	if res.With, err = measure(ctx); err != nil {
		return res, fmt.Errorf("measurement with %s: %w", t.Feature(), err)
	}
	return res, nil
}
