package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/device/smi"
	"github.com/23skdu/longbow-npubench/internal/export"
	"github.com/23skdu/longbow-npubench/internal/harness"
	"github.com/23skdu/longbow-npubench/internal/logger"
	"github.com/23skdu/longbow-npubench/internal/runner"
)

func newDFBWCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dfbw <xclbin> [iterations]",
		Short: "Measure data-fabric bandwidth with a 1 GiB loopback",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			iterations := a.cfg.Iterations
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid iteration count %q", args[1])
				}
				iterations = n
			}
			dev, err := a.openDevice("")
			if err != nil {
				return err
			}

			var mu sync.Mutex
			batches := make(map[int][]runner.Sample)
			h := &harness.DFBW{
				Common:        a.common(dev),
				Program:       accel.Program{Path: args[0]},
				SequencePath:  a.cfg.DFBWSequence,
				Iterations:    iterations,
				Workers:       a.cfg.Workers,
				TransferBytes: a.cfg.TransferBytes,
				Seed:          uint64(a.cfg.Seed),
				Samples: func(worker int, samples []runner.Sample) {
					mu.Lock()
					batches[worker] = samples
					mu.Unlock()
				},
			}
			err = a.run(cmd.Context(), h)
			a.exportSamples(cmd.Context(), h.Name(), batches)
			return err
		},
	}
}

func newTCTCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tct <xclbin> <sequence> <bdf>",
		Short: "Measure task-completion-token latency and throughput",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			dev, err := a.openDevice(args[2])
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), &harness.TCT{
				Common:       a.common(dev),
				Program:      accel.Program{Path: args[0]},
				SequencePath: args[1],
				Seed:         uint64(a.cfg.Seed),
			})
		},
	}
}

func newPreemptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "preempt <bdf>",
		Short: "Measure the overhead of forced preemption per column design",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			dev, err := a.openDevice(args[0])
			if err != nil {
				return err
			}
			var toggle runner.Toggle = smi.NewToggle(a.cfg.SMIPath, a.cfg.Sudo)
			if a.sim != nil {
				toggle = a.sim.PreemptionToggle()
			}
			return a.run(cmd.Context(), &harness.Preempt{
				Common:      a.common(dev),
				Toggle:      toggle,
				DeviceID:    dev.ID(),
				XclbinDir:   a.cfg.XclbinDir,
				SequenceDir: a.cfg.SequenceDir,
				Columns:     a.cfg.Columns,
				Preemptions: a.cfg.Preemptions,
			})
		},
	}
}

func newTOPSCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tops [xclbin]",
		Short: "Measure GEMM compute throughput from per-core cycle telemetry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			xclbin := a.cfg.TOPSXclbin
			if len(args) == 1 {
				xclbin = args[0]
			}
			dev, err := a.openDevice("")
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), &harness.TOPS{
				Common:       a.common(dev),
				Program:      accel.Program{Path: xclbin},
				SequencePath: a.cfg.TOPSSequence,
				ClockMHz:     a.cfg.ClockMHz,
				Cores:        a.cfg.Cores,
			})
		},
	}
}

func newCollectCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run an Arrow Flight collector that logs exported results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			col := export.NewCollector()
			defer col.Release()
			col.OnRecord = func(path string, rec arrow.Record) {
				logger.Log.Info("Received batch", "path", path, "rows", rec.NumRows())
			}
			srv, err := export.Serve(listen, col)
			if err != nil {
				return err
			}
			logger.Log.Info("Collector listening", "addr", srv.Addr().String())
			<-cmd.Context().Done()
			srv.Shutdown()
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8815", "collector listen address")
	return cmd
}

func (a *app) exportSamples(ctx context.Context, name string, batches map[int][]runner.Sample) {
	if a.exporter == nil {
		return
	}
	for worker, samples := range batches {
		if err := a.exporter.PutSamples(ctx, name, worker, samples); err != nil {
			logger.Log.Warn("Sample export failed", err, "harness", name, "worker", worker)
		}
	}
}
