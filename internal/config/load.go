package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "NPUBENCH"

// flagKeys maps config keys onto the CLI flag that overrides them.
var flagKeys = map[string]string{
	"device":        "device",
	"device_index":  "device-index",
	"kernel_match":  "kernel-match",
	"kernel_prefix": "kernel-prefix",
	"workers":       "workers",
	"wait_timeout":  "wait-timeout",
	"output":        "output",
	"log_level":     "log-level",
	"log_format":    "log-format",
	"metrics_addr":  "metrics-addr",
	"flight_addr":   "flight-addr",
	"xclbin_dir":    "xclbin-dir",
	"sequence_dir":  "sequence-dir",
	"sudo":          "sudo",
	"seed":          "seed",
	"iterations":    "iterations",
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("device", d.Device)
	v.SetDefault("device_index", d.DeviceIndex)
	v.SetDefault("bdf", d.BDF)
	v.SetDefault("kernel_prefix", d.KernelPrefix)
	v.SetDefault("kernel_match", string(d.KernelMatch))
	v.SetDefault("workers", d.Workers)
	v.SetDefault("iterations", d.Iterations)
	v.SetDefault("transfer_bytes", d.TransferBytes)
	v.SetDefault("wait_timeout", d.WaitTimeout)
	v.SetDefault("clock_mhz", d.ClockMHz)
	v.SetDefault("cores", d.Cores)
	v.SetDefault("preemptions", d.Preemptions)
	v.SetDefault("columns", d.Columns)
	v.SetDefault("xclbin_dir", d.XclbinDir)
	v.SetDefault("sequence_dir", d.SequenceDir)
	v.SetDefault("dfbw_sequence", d.DFBWSequence)
	v.SetDefault("tops_xclbin", d.TOPSXclbin)
	v.SetDefault("tops_sequence", d.TOPSSequence)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("smi_path", d.SMIPath)
	v.SetDefault("sudo", d.Sudo)
	v.SetDefault("output", d.Output)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("flight_addr", d.FlightAddr)
	v.SetDefault("sim.run_latency", d.Sim.RunLatency)
	v.SetDefault("sim.preempt_cost", d.Sim.PreemptCost)
	v.SetDefault("sim.preemptions", d.Sim.Preemptions)
	v.SetDefault("sim.cycle_count", d.Sim.CycleCount)
	v.SetDefault("sim.kernels", d.Sim.Kernels)
}

// Load resolves configuration from defaults, an optional YAML file, a .env
// file, NPUBENCH_* environment variables and finally the given flags.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("npubench")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	}

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
