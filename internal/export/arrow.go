// Package export writes batch trajectories as Apache Arrow IPC files for
// analysis in columnar tools.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/bankrun/internal/montecarlo"
)

// ErrNoSeries is returned when per-run series were not kept by the batch.
var ErrNoSeries = errors.New("batch has no per-run series (run with KeepSeries)")

var seriesFields = []arrow.Field{
	{Name: "liquidity", Type: arrow.PrimitiveTypes.Float64},
	{Name: "withdrawn", Type: arrow.PrimitiveTypes.Float64},
	{Name: "informed", Type: arrow.PrimitiveTypes.Float64},
	{Name: "withdrawn_customers", Type: arrow.PrimitiveTypes.Float64},
	{Name: "alert_non_customers", Type: arrow.PrimitiveTypes.Float64},
}

// MeanSchema is the schema of WriteMean: one row per turn.
var MeanSchema = arrow.NewSchema(append([]arrow.Field{
	{Name: "turn", Type: arrow.PrimitiveTypes.Int32},
}, seriesFields...), nil)

// RunsSchema is the schema of WriteRuns: one row per (run, turn).
var RunsSchema = arrow.NewSchema(append([]arrow.Field{
	{Name: "run", Type: arrow.PrimitiveTypes.Int32},
	{Name: "turn", Type: arrow.PrimitiveTypes.Int32},
}, seriesFields...), nil)

// SummarySchema is the schema of WriteSummaries: one row per run.
var SummarySchema = arrow.NewSchema([]arrow.Field{
	{Name: "run", Type: arrow.PrimitiveTypes.Int32},
	{Name: "turns", Type: arrow.PrimitiveTypes.Int32},
	{Name: "defaulted", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "collapse_turn", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "final_liquidity", Type: arrow.PrimitiveTypes.Float64},
	{Name: "final_withdrawn", Type: arrow.PrimitiveTypes.Float64},
	{Name: "final_informed", Type: arrow.PrimitiveTypes.Int32},
}, nil)

// WriteMean writes the batch's mean trajectory.
func WriteMean(w io.WriteSeeker, res *montecarlo.BatchResult) error {
	return write(w, MeanSchema, res, func(b *array.RecordBuilder) {
		appendTurns(b.Field(0).(*array.Int32Builder), res.Mean.Len())
		appendSeries(b, 1, res.Mean)
	})
}

// WriteRuns writes every run's padded trajectory in long format.
func WriteRuns(w io.WriteSeeker, res *montecarlo.BatchResult) error {
	if res != nil && len(res.RunSeries) == 0 {
		return ErrNoSeries
	}
	return write(w, RunsSchema, res, func(b *array.RecordBuilder) {
		runs := b.Field(0).(*array.Int32Builder)
		turns := b.Field(1).(*array.Int32Builder)
		for i, s := range res.RunSeries {
			for k := 0; k < s.Len(); k++ {
				runs.Append(int32(i))
			}
			appendTurns(turns, s.Len())
			appendSeries(b, 2, s)
		}
	})
}

// WriteSummaries writes one row per run. collapse_turn is null for runs
// that did not default.
func WriteSummaries(w io.WriteSeeker, res *montecarlo.BatchResult) error {
	return write(w, SummarySchema, res, func(b *array.RecordBuilder) {
		for _, r := range res.PerRun {
			b.Field(0).(*array.Int32Builder).Append(int32(r.Index))
			b.Field(1).(*array.Int32Builder).Append(int32(r.Turns))
			b.Field(2).(*array.BooleanBuilder).Append(r.Defaulted)
			if r.Defaulted {
				b.Field(3).(*array.Int32Builder).Append(int32(r.CollapseTurn))
			} else {
				b.Field(3).(*array.Int32Builder).AppendNull()
			}
			b.Field(4).(*array.Float64Builder).Append(r.FinalLiquidity)
			b.Field(5).(*array.Float64Builder).Append(r.FinalWithdrawn)
			b.Field(6).(*array.Int32Builder).Append(int32(r.FinalInformed))
		}
	})
}

// write builds a single record with fill and writes it as an IPC file.
// The file footer needs a seekable destination.
// Batch-level facts travel as schema metadata.
func write(w io.WriteSeeker, schema *arrow.Schema, res *montecarlo.BatchResult, fill func(*array.RecordBuilder)) error {
	if res == nil {
		return errors.New("nil batch result")
	}
	mem := memory.NewGoAllocator()

	md := arrow.NewMetadata(
		[]string{"seed", "runs", "nodes", "default_probability"},
		[]string{
			strconv.FormatUint(res.Options.Seed, 10),
			strconv.Itoa(res.Options.Runs),
			strconv.Itoa(res.Params.Nodes),
			strconv.FormatFloat(res.DefaultProbability, 'g', -1, 64),
		},
	)
	schema = arrow.NewSchema(schema.Fields(), &md)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	fill(b)
	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}

func appendTurns(b *array.Int32Builder, n int) {
	for k := 0; k < n; k++ {
		b.Append(int32(k))
	}
}

// appendSeries appends the five series columns starting at field index first.
func appendSeries(b *array.RecordBuilder, first int, s montecarlo.Series) {
	cols := [][]float64{s.Liquidity, s.Withdrawn, s.Informed, s.WithdrawnCustomers, s.AlertNonCustomers}
	for i, col := range cols {
		b.Field(first+i).(*array.Float64Builder).AppendValues(col, nil)
	}
}
