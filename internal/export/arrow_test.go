package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/bankrun/internal/montecarlo"
	"github.com/nvandessel/bankrun/internal/simulation"
)

func testBatch(t *testing.T, keep bool) *montecarlo.BatchResult {
	t.Helper()
	params := simulation.WithParams(simulation.Nodes(40), func(p *simulation.Params) { p.MaxTurns = 12 })
	res, err := montecarlo.RunBatch(context.Background(), params, montecarlo.Options{Runs: 4, Seed: 21, KeepSeries: keep})
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}
	return res
}

// createFile opens a fresh file under the test's temp dir.
func createFile(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

// readSingle reopens the IPC file at path, reads its one record and hands
// it to check while the reader is still open.
func readSingle(t *testing.T, path string, check func(arrow.Record, *arrow.Schema)) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()
	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		t.Fatalf("NewFileReader() error = %v", err)
	}
	defer r.Close()
	if n := r.NumRecords(); n != 1 {
		t.Fatalf("NumRecords() = %d, want 1", n)
	}
	rec, err := r.Record(0)
	if err != nil {
		t.Fatalf("Record(0) error = %v", err)
	}
	check(rec, r.Schema())
}

func TestWriteMean(t *testing.T) {
	res := testBatch(t, false)
	f := createFile(t, "mean.arrow")
	if err := WriteMean(f, res); err != nil {
		t.Fatalf("WriteMean() error = %v", err)
	}

	readSingle(t, f.Name(), func(rec arrow.Record, schema *arrow.Schema) {
		if int(rec.NumRows()) != res.Turns {
			t.Fatalf("rows = %d, want %d", rec.NumRows(), res.Turns)
		}
		if int(rec.NumCols()) != len(MeanSchema.Fields()) {
			t.Fatalf("cols = %d, want %d", rec.NumCols(), len(MeanSchema.Fields()))
		}
		turns := rec.Column(0).(*array.Int32)
		liq := rec.Column(1).(*array.Float64)
		for k := 0; k < res.Turns; k++ {
			if turns.Value(k) != int32(k) {
				t.Errorf("turn[%d] = %d", k, turns.Value(k))
			}
			if liq.Value(k) != res.Mean.Liquidity[k] {
				t.Errorf("liquidity[%d] = %v, want %v", k, liq.Value(k), res.Mean.Liquidity[k])
			}
		}
		md := schema.Metadata()
		if i := md.FindKey("seed"); i < 0 || md.Values()[i] != "21" {
			t.Errorf("seed metadata missing or wrong: %v", md)
		}
	})
}

func TestWriteRuns(t *testing.T) {
	res := testBatch(t, true)
	f := createFile(t, "runs.arrow")
	if err := WriteRuns(f, res); err != nil {
		t.Fatalf("WriteRuns() error = %v", err)
	}

	readSingle(t, f.Name(), func(rec arrow.Record, _ *arrow.Schema) {
		want := len(res.RunSeries) * res.Turns
		if int(rec.NumRows()) != want {
			t.Fatalf("rows = %d, want %d", rec.NumRows(), want)
		}
		runs := rec.Column(0).(*array.Int32)
		turns := rec.Column(1).(*array.Int32)
		withdrawn := rec.Column(3).(*array.Float64)
		for row := 0; row < want; row++ {
			run, turn := row/res.Turns, row%res.Turns
			if runs.Value(row) != int32(run) || turns.Value(row) != int32(turn) {
				t.Fatalf("row %d = (%d,%d), want (%d,%d)", row, runs.Value(row), turns.Value(row), run, turn)
			}
			if withdrawn.Value(row) != res.RunSeries[run].Withdrawn[turn] {
				t.Errorf("row %d withdrawn = %v", row, withdrawn.Value(row))
			}
		}
	})
}

func TestWriteRuns_NoSeries(t *testing.T) {
	f := createFile(t, "runs.arrow")
	if err := WriteRuns(f, testBatch(t, false)); !errors.Is(err, ErrNoSeries) {
		t.Errorf("WriteRuns() error = %v, want ErrNoSeries", err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 0 {
		t.Error("WriteRuns wrote bytes on error")
	}
}

func TestWriteSummaries(t *testing.T) {
	res := testBatch(t, false)
	f := createFile(t, "summary.arrow")
	if err := WriteSummaries(f, res); err != nil {
		t.Fatalf("WriteSummaries() error = %v", err)
	}

	readSingle(t, f.Name(), func(rec arrow.Record, _ *arrow.Schema) {
		if int(rec.NumRows()) != len(res.PerRun) {
			t.Fatalf("rows = %d, want %d", rec.NumRows(), len(res.PerRun))
		}
		defaulted := rec.Column(2).(*array.Boolean)
		collapse := rec.Column(3).(*array.Int32)
		for i, r := range res.PerRun {
			if defaulted.Value(i) != r.Defaulted {
				t.Errorf("run %d defaulted = %v, want %v", i, defaulted.Value(i), r.Defaulted)
			}
			if r.Defaulted {
				if collapse.IsNull(i) || collapse.Value(i) != int32(r.CollapseTurn) {
					t.Errorf("run %d collapse turn mismatch", i)
				}
			} else if !collapse.IsNull(i) {
				t.Errorf("run %d collapse turn should be null", i)
			}
		}
	})
}

func TestWrite_NilResult(t *testing.T) {
	if err := WriteMean(createFile(t, "nil.arrow"), nil); err == nil {
		t.Error("expected error for nil result")
	}
}
