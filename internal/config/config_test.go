package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "sim", cfg.Device)
	assert.Equal(t, "DPU", cfg.KernelPrefix)
	assert.Equal(t, MatchCaseSensitive, cfg.KernelMatch)
	assert.Equal(t, 600, cfg.Iterations)
	assert.Equal(t, 1<<30, cfg.TransferBytes)
	assert.Equal(t, 1810, cfg.ClockMHz)
	assert.Equal(t, 32, cfg.Cores)
	assert.Equal(t, 500, cfg.Preemptions)
	assert.Equal(t, []int{1, 2, 4}, cfg.Columns)
	assert.Zero(t, cfg.WaitTimeout, "wait blocks indefinitely by default")
	assert.Equal(t, "sequences/df_bw_4col.txt", cfg.DFBWSequence)
	assert.Equal(t, "gemm_npu4.xclbin", cfg.TOPSXclbin)
	assert.Equal(t, int64(1), cfg.Seed)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"unknown device", func(c *Config) { c.Device = "gpu" }, true},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"zero iterations", func(c *Config) { c.Iterations = 0 }, true},
		{"negative timeout", func(c *Config) { c.WaitTimeout = -time.Second }, true},
		{"unaligned transfer", func(c *Config) { c.TransferBytes = 6 }, true},
		{"empty prefix", func(c *Config) { c.KernelPrefix = "" }, true},
		{"padded prefix", func(c *Config) { c.KernelPrefix = " DPU" }, true},
		{"bad match policy", func(c *Config) { c.KernelMatch = "fuzzy" }, true},
		{"no columns", func(c *Config) { c.Columns = nil }, true},
		{"zero column", func(c *Config) { c.Columns = []int{1, 0} }, true},
		{"bad output", func(c *Config) { c.Output = "xml" }, true},
		{"case insensitive ok", func(c *Config) { c.KernelMatch = MatchCaseInsensitive }, false},
		{"sim without kernels", func(c *Config) { c.Sim.Kernels = nil }, true},
		{"no tops sequence", func(c *Config) { c.TOPSSequence = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClockPeriod(t *testing.T) {
	cfg := Default()
	cfg.ClockMHz = 1000
	assert.InDelta(t, 1.0, cfg.ClockPeriodNs(), 1e-12)
}

func TestLoadFromFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "npubench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers: 4
iterations: 10
wait_timeout: 2s
columns: [1, 2]
sim:
  cycle_count: 300
`), 0o644))

	t.Setenv("NPUBENCH_ITERATIONS", "25")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("kernel-match", string(MatchCaseSensitive), "")
	flags.Int("workers", 1, "")
	flags.Int64("seed", 1, "")
	require.NoError(t, flags.Parse([]string{"--kernel-match=case-insensitive", "--seed=42"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers, "file wins over unchanged flag default")
	assert.Equal(t, 25, cfg.Iterations, "env wins over file")
	assert.Equal(t, 2*time.Second, cfg.WaitTimeout)
	assert.Equal(t, []int{1, 2}, cfg.Columns)
	assert.Equal(t, uint32(300), cfg.Sim.CycleCount)
	assert.Equal(t, MatchCaseInsensitive, cfg.KernelMatch)
	assert.Equal(t, "DPU", cfg.KernelPrefix)
	assert.Equal(t, int64(42), cfg.Seed)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("NPUBENCH_WORKERS", "0")
	_, err := Load("", nil)
	assert.Error(t, err)
}
