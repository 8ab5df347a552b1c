package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// KernelMatch selects how kernel names are compared against the prefix.
type KernelMatch string

const (
	MatchCaseSensitive   KernelMatch = "case-sensitive"
	MatchCaseInsensitive KernelMatch = "case-insensitive"
)

// SimConfig tunes the software loopback device.
type SimConfig struct {
	RunLatency  time.Duration `mapstructure:"run_latency" validate:"gte=0"`
	PreemptCost time.Duration `mapstructure:"preempt_cost" validate:"gte=0"`
	Preemptions int           `mapstructure:"preemptions" validate:"gte=0"`
	CycleCount  uint32        `mapstructure:"cycle_count" validate:"gt=0"`
	Kernels     []string      `mapstructure:"kernels" validate:"min=1"`
}

type Config struct {
	Device      string `mapstructure:"device" validate:"oneof=sim xrt"`
	DeviceIndex int    `mapstructure:"device_index" validate:"gte=0"`
	BDF         string `mapstructure:"bdf"`

	KernelPrefix string      `mapstructure:"kernel_prefix" validate:"required"`
	KernelMatch  KernelMatch `mapstructure:"kernel_match" validate:"oneof=case-sensitive case-insensitive"`

	Workers       int           `mapstructure:"workers" validate:"gte=1,lte=256"`
	Iterations    int           `mapstructure:"iterations" validate:"gte=1"`
	TransferBytes int           `mapstructure:"transfer_bytes" validate:"gt=0"`
	WaitTimeout   time.Duration `mapstructure:"wait_timeout" validate:"gte=0"`

	ClockMHz    int   `mapstructure:"clock_mhz" validate:"gt=0"`
	Cores       int   `mapstructure:"cores" validate:"gt=0"`
	Preemptions int   `mapstructure:"preemptions" validate:"gt=0"`
	Columns     []int `mapstructure:"columns" validate:"min=1,dive,gt=0"`

	XclbinDir     string `mapstructure:"xclbin_dir"`
	SequenceDir   string `mapstructure:"sequence_dir"`
	DFBWSequence  string `mapstructure:"dfbw_sequence" validate:"required"`
	TOPSXclbin    string `mapstructure:"tops_xclbin" validate:"required"`
	TOPSSequence  string `mapstructure:"tops_sequence" validate:"required"`
	SMIPath       string `mapstructure:"smi_path" validate:"required"`
	Sudo          bool   `mapstructure:"sudo"`
	Seed          int64  `mapstructure:"seed"`

	Output      string `mapstructure:"output" validate:"oneof=text json"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format" validate:"oneof=console json"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	FlightAddr  string `mapstructure:"flight_addr"`

	Sim SimConfig `mapstructure:"sim"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Device == "xrt" && c.DeviceIndex < 0 {
		return fmt.Errorf("invalid device_index: %d (must be non-negative)", c.DeviceIndex)
	}
	if c.TransferBytes%4 != 0 {
		return fmt.Errorf("invalid transfer_bytes: %d (must be a multiple of 4)", c.TransferBytes)
	}
	if strings.TrimSpace(c.KernelPrefix) != c.KernelPrefix {
		return fmt.Errorf("invalid kernel_prefix: %q (surrounding whitespace)", c.KernelPrefix)
	}
	return nil
}

// ClockPeriodNs is the accelerator clock period in nanoseconds.
func (c *Config) ClockPeriodNs() float64 {
	return 1e9 / (float64(c.ClockMHz) * 1e6)
}

func (c *Config) CaseInsensitiveMatch() bool {
	return c.KernelMatch == MatchCaseInsensitive
}

func Default() Config {
	return Config{
		Device:        "sim",
		KernelPrefix:  "DPU",
		KernelMatch:   MatchCaseSensitive,
		Workers:       1,
		Iterations:    600,
		TransferBytes: 1 << 30,
		ClockMHz:      1810,
		Cores:         32,
		Preemptions:   500,
		Columns:       []int{1, 2, 4},
		XclbinDir:     "../xclbin_prod",
		SequenceDir:   "../sequences",
		DFBWSequence:  "sequences/df_bw_4col.txt",
		TOPSXclbin:    "gemm_npu4.xclbin",
		TOPSSequence:  "sequences/gemm_int8.txt",
		Seed:          1,
		SMIPath:       "xrt-smi",
		Sudo:          true,
		Output:        "text",
		LogLevel:      "info",
		LogFormat:     "console",

		Sim: SimConfig{
			RunLatency:  20 * time.Microsecond,
			PreemptCost: 2 * time.Microsecond,
			Preemptions: 500,
			CycleCount:  229,
			Kernels:     []string{"DPU_PDI_0"},
		},
	}
}
