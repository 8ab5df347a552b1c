// Package export ships finished benchmark results to an Arrow Flight
// collector and provides a minimal collector to receive them.
package export

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-npubench/internal/report"
	"github.com/23skdu/longbow-npubench/internal/runner"
)

// Descriptor paths of the two record streams.
var (
	ResultsPath = []string{"npubench", "results"}
	SamplesPath = []string{"npubench", "samples"}
)

var ResultsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "session", Type: arrow.BinaryTypes.String},
	{Name: "harness", Type: arrow.BinaryTypes.String},
	{Name: "metric", Type: arrow.BinaryTypes.String},
	{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	{Name: "unit", Type: arrow.BinaryTypes.String},
	{Name: "timestamp", Type: arrow.FixedWidthTypes.Timestamp_us},
}, nil)

var SamplesSchema = arrow.NewSchema([]arrow.Field{
	{Name: "session", Type: arrow.BinaryTypes.String},
	{Name: "harness", Type: arrow.BinaryTypes.String},
	{Name: "worker", Type: arrow.PrimitiveTypes.Int32},
	{Name: "index", Type: arrow.PrimitiveTypes.Int32},
	{Name: "elapsed_us", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// ResultsRecord builds one row per result. The caller releases the record.
func ResultsRecord(mem memory.Allocator, session, harness string, results []report.Result, at time.Time) arrow.Record {
	b := array.NewRecordBuilder(mem, ResultsSchema)
	defer b.Release()

	ts := arrow.Timestamp(at.UTC().UnixMicro())
	for _, r := range results {
		b.Field(0).(*array.StringBuilder).Append(session)
		b.Field(1).(*array.StringBuilder).Append(harness)
		b.Field(2).(*array.StringBuilder).Append(r.Name)
		b.Field(3).(*array.Float64Builder).Append(r.Value)
		b.Field(4).(*array.StringBuilder).Append(r.Unit)
		b.Field(5).(*array.TimestampBuilder).Append(ts)
	}
	return b.NewRecord()
}

// SamplesRecord builds one row per timing sample of one worker.
func SamplesRecord(mem memory.Allocator, session, harness string, worker int, samples []runner.Sample) arrow.Record {
	b := array.NewRecordBuilder(mem, SamplesSchema)
	defer b.Release()

	for i, s := range samples {
		b.Field(0).(*array.StringBuilder).Append(session)
		b.Field(1).(*array.StringBuilder).Append(harness)
		b.Field(2).(*array.Int32Builder).Append(int32(worker))
		b.Field(3).(*array.Int32Builder).Append(int32(i))
		b.Field(4).(*array.Float64Builder).Append(s.Micros())
	}
	return b.NewRecord()
}
