// Command npubench runs the NPU benchmark harnesses: data-fabric bandwidth,
// TCT latency, preemption overhead and GEMM TOPS.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/23skdu/longbow-npubench/internal/report"
)

var exit = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			fmt.Fprintln(os.Stdout, report.VerdictFailed)
		}
		exit(1)
	}
}
