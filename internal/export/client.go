package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/longbow-npubench/internal/logger"
	"github.com/23skdu/longbow-npubench/internal/metrics"
	"github.com/23skdu/longbow-npubench/internal/report"
	"github.com/23skdu/longbow-npubench/internal/runner"
)

const DefaultTimeout = 30 * time.Second

// Exporter streams result batches to a Flight collector with DoPut.
type Exporter struct {
	addr    string
	client  flight.Client
	mem     memory.Allocator
	timeout time.Duration
	session string
}

// Dial connects to the collector at addr (host:port).
func Dial(addr, session string) (*Exporter, error) {
	if addr == "" {
		return nil, errors.New("flight address is empty")
	}
	client, err := flight.NewClientWithMiddleware(addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create Flight client: %w", err)
	}
	return &Exporter{
		addr:    addr,
		client:  client,
		mem:     memory.NewGoAllocator(),
		timeout: DefaultTimeout,
		session: session,
	}, nil
}

func (e *Exporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// PutResults sends the results of one harness run.
func (e *Exporter) PutResults(ctx context.Context, harness string, results []report.Result) error {
	rec := ResultsRecord(e.mem, e.session, harness, results, time.Now())
	defer rec.Release()
	return e.put(ctx, ResultsPath, rec)
}

// PutSamples sends the timing samples of one worker.
func (e *Exporter) PutSamples(ctx context.Context, harness string, worker int, samples []runner.Sample) error {
	rec := SamplesRecord(e.mem, e.session, harness, worker, samples)
	defer rec.Release()
	return e.put(ctx, SamplesPath, rec)
}

func (e *Exporter) put(ctx context.Context, path []string, rec arrow.Record) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	stream, err := e.client.DoPut(ctx)
	if err != nil {
		return e.fail(fmt.Errorf("failed to open DoPut stream: %w", err))
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(e.mem))
	w.SetFlightDescriptor(&flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: path})
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return e.fail(fmt.Errorf("failed to write record: %w", err))
	}
	if err := w.Close(); err != nil {
		return e.fail(fmt.Errorf("failed to close writer: %w", err))
	}
	if err := stream.CloseSend(); err != nil {
		return e.fail(fmt.Errorf("failed to close stream: %w", err))
	}
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return e.fail(fmt.Errorf("collector rejected batch: %w", err))
		}
	}

	logger.Log.Debug("Exported batch", "addr", e.addr, "path", path, "rows", rec.NumRows())
	return nil
}

func (e *Exporter) fail(err error) error {
	metrics.RecordExportError()
	return err
}
