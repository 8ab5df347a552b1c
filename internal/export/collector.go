package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"

	"github.com/23skdu/longbow-npubench/internal/logger"
)

// Collector is a Flight service that keeps every batch it receives, keyed
// by descriptor path.
type Collector struct {
	flight.BaseFlightServer

	mu      sync.Mutex
	batches map[string][]arrow.Record

	// OnRecord, when set, is called for every received batch.
	OnRecord func(path string, rec arrow.Record)
}

func NewCollector() *Collector {
	return &Collector{batches: make(map[string][]arrow.Record)}
}

func (c *Collector) DoPut(stream flight.FlightService_DoPutServer) error {
	rdr, err := flight.NewRecordReader(stream)
	if err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	defer rdr.Release()

	var key string
	for rdr.Next() {
		if d := rdr.LatestFlightDescriptor(); d != nil {
			key = strings.Join(d.Path, "/")
		}
		rec := rdr.Record()
		rec.Retain()

		c.mu.Lock()
		c.batches[key] = append(c.batches[key], rec)
		c.mu.Unlock()

		logger.Log.Debug("Received batch", "path", key, "rows", rec.NumRows())
		if c.OnRecord != nil {
			c.OnRecord(key, rec)
		}
	}
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Records returns the batches received under path.
func (c *Collector) Records(path []string) []arrow.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]arrow.Record(nil), c.batches[strings.Join(path, "/")]...)
}

// Release drops every retained batch.
func (c *Collector) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, recs := range c.batches {
		for _, r := range recs {
			r.Release()
		}
		delete(c.batches, k)
	}
}

// Serve starts a Flight server for c on addr and returns it running.
func Serve(addr string, c *Collector) (flight.Server, error) {
	srv := flight.NewServerWithMiddleware(nil)
	if err := srv.Init(addr); err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv.RegisterFlightService(c)
	go func() {
		if err := srv.Serve(); err != nil {
			logger.Log.Error("Flight server stopped", err)
		}
	}()
	return srv, nil
}
