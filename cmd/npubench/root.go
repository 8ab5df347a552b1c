package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/config"
	"github.com/23skdu/longbow-npubench/internal/device/sim"
	"github.com/23skdu/longbow-npubench/internal/device/xrt"
	"github.com/23skdu/longbow-npubench/internal/export"
	"github.com/23skdu/longbow-npubench/internal/harness"
	"github.com/23skdu/longbow-npubench/internal/logger"
	"github.com/23skdu/longbow-npubench/internal/metrics"
	"github.com/23skdu/longbow-npubench/internal/monitoring"
	"github.com/23skdu/longbow-npubench/internal/report"
	"github.com/23skdu/longbow-npubench/internal/runner"
)

// errReported marks a failure whose verdict was already printed.
var errReported = errors.New("failure reported")

// app carries the state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	cfg     config.Config
	session string
	out     io.Writer

	sim      *sim.Device
	monitor  *monitoring.HealthMonitor
	exporter *export.Exporter
	closers  []func() error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "npubench",
		Short: "Benchmark harnesses for AMD NPUs",
		Long: `npubench binds a DPU kernel from an accelerator image, drives it through
loopback or telemetry workloads and reports bandwidth, latency, preemption
overhead or compute throughput. Every harness ends with TEST PASSED! or the
error followed by TEST FAILED!.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	addFlags(root.PersistentFlags(), &a.cfgFile)
	root.AddCommand(
		newDFBWCmd(a),
		newTCTCmd(a),
		newPreemptCmd(a),
		newTOPSCmd(a),
		newCollectCmd(a),
	)
	return root
}

func addFlags(fs *pflag.FlagSet, cfgFile *string) {
	d := config.Default()
	fs.StringVar(cfgFile, "config", "", "config file (default ./npubench.yaml)")
	fs.String("device", d.Device, "device backend: sim or xrt")
	fs.Int("device-index", d.DeviceIndex, "device index when no BDF is given")
	fs.Int("workers", d.Workers, "concurrent loopback workers")
	fs.Int("iterations", d.Iterations, "iterations per worker")
	fs.Duration("wait-timeout", d.WaitTimeout, "per-run wait timeout, 0 blocks")
	fs.String("kernel-match", string(d.KernelMatch), "kernel name matching: case-sensitive or case-insensitive")
	fs.String("kernel-prefix", d.KernelPrefix, "kernel name prefix")
	fs.String("output", d.Output, "result format: text or json")
	fs.String("metrics-addr", d.MetricsAddr, "serve health and Prometheus metrics on this address")
	fs.String("flight-addr", d.FlightAddr, "export results to this Arrow Flight collector")
	fs.String("log-level", d.LogLevel, "log level")
	fs.String("log-format", d.LogFormat, "log format: console or json")
	fs.String("xclbin-dir", d.XclbinDir, "directory of the preemption images")
	fs.String("sequence-dir", d.SequenceDir, "directory of the preemption ELF modules")
	fs.Bool("sudo", d.Sudo, "run xrt-smi through sudo -n")
	fs.Int64("seed", d.Seed, "random input seed")
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	a.session = uuid.NewString()

	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	logger.Log = logger.Log.With("session", a.session)

	if cfg.MetricsAddr != "" {
		a.monitor = monitoring.NewHealthMonitor(a.session, cfg.Device)
		if _, err := a.monitor.Start(cfg.MetricsAddr); err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.monitor.Stop(ctx)
		})
	}
	if cfg.FlightAddr != "" {
		exp, err := export.Dial(cfg.FlightAddr, a.session)
		if err != nil {
			// export never decides the outcome
			logger.Log.Warn("Result export disabled", err, "addr", cfg.FlightAddr)
		} else {
			a.exporter = exp
			a.closers = append(a.closers, exp.Close)
		}
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Log.Warn("Shutdown", err)
		}
	}
	a.closers = nil
}

// openDevice opens the configured backend. id is a BDF or empty.
func (a *app) openDevice(id string) (accel.Device, error) {
	if id == "" {
		id = a.cfg.BDF
	}
	if a.cfg.Device == "xrt" {
		if id == "" {
			id = strconv.Itoa(a.cfg.DeviceIndex)
		}
		dev, err := xrt.Open(id)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, dev.Close)
		return dev, nil
	}

	if id == "" {
		id = fmt.Sprintf("sim%d", a.cfg.DeviceIndex)
	}
	s := a.cfg.Sim
	a.sim = sim.New(id, sim.Config{
		Kernels:     s.Kernels,
		RunLatency:  s.RunLatency,
		PreemptCost: s.PreemptCost,
		Preemptions: s.Preemptions,
		CycleCount:  s.CycleCount,
		Cores:       a.cfg.Cores,
	})
	return a.sim, nil
}

func (a *app) common(dev accel.Device) harness.Common {
	return harness.Common{
		Device: dev,
		Policy: accel.MatchPolicy{
			Prefix:          a.cfg.KernelPrefix,
			CaseInsensitive: a.cfg.CaseInsensitiveMatch(),
		},
		WaitTimeout: a.cfg.WaitTimeout,
	}
}

// run executes h, prints its results and verdict and exports the results.
func (a *app) run(ctx context.Context, h harness.Harness) error {
	name := h.Name()
	if a.monitor != nil {
		a.monitor.BeginHarness(name)
	}
	logger.Log.Info("Running harness", "harness", name, "device", a.cfg.Device)

	start := time.Now()
	results, err := h.Run(ctx)
	logger.Log.Info("Harness finished", "harness", name, "elapsed", time.Since(start), "ok", err == nil)

	p := report.NewPrinter(a.out, a.cfg.Output, a.session)
	if perr := p.Print(name, results); perr != nil && err == nil {
		err = perr
	}
	if a.exporter != nil && len(results) > 0 {
		if xerr := a.exporter.PutResults(ctx, name, results); xerr != nil {
			logger.Log.Warn("Result export failed", xerr, "harness", name)
		}
	}
	if a.monitor != nil {
		a.monitor.FinishHarness(results, err)
	}

	if err != nil {
		var werrs *runner.WorkerErrors
		if !errors.As(err, &werrs) {
			metrics.RecordFailure(runner.FailureKind(err))
		}
		p.Status(err)
		return errReported
	}
	p.Status(nil)
	return nil
}
