// Package smi changes device configuration through the xrt-smi tool.
package smi

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/23skdu/longbow-npubench/internal/logger"
)

const FeatureForcePreemption = "force_preemption"

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Toggle switches forced preemption with
// `xrt-smi configure --force-preemption enable|disable -d <bdf>`.
type Toggle struct {
	Path string
	Sudo bool
	Run  Runner
}

func NewToggle(path string, sudo bool) *Toggle {
	if path == "" {
		path = "xrt-smi"
	}
	return &Toggle{Path: path, Sudo: sudo, Run: execRunner}
}

func (t *Toggle) Feature() string { return FeatureForcePreemption }

// Command returns the argv for one toggle invocation.
func (t *Toggle) Command(deviceID string, enabled bool) []string {
	state := "disable"
	if enabled {
		state = "enable"
	}
	argv := []string{t.Path, "configure", "--force-preemption", state, "-d", deviceID}
	if t.Sudo {
		argv = append([]string{"sudo", "-n"}, argv...)
	}
	return argv
}

func (t *Toggle) Set(ctx context.Context, deviceID string, enabled bool) error {
	if deviceID == "" {
		return fmt.Errorf("device BDF is required")
	}
	argv := t.Command(deviceID, enabled)
	logger.Log.Debug("Running device configuration", "cmd", strings.Join(argv, " "))

	run := t.Run
	if run == nil {
		run = execRunner
	}
	out, err := run(ctx, argv[0], argv[1:]...)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}
