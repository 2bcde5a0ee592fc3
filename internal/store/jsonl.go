package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ExportJSONL writes every report in s to w, one JSON object per line,
// oldest first.
func ExportJSONL(ctx context.Context, s ResultStore, w io.Writer) (int, error) {
	summaries, err := s.List(ctx, 0)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	n := 0
	for i := len(summaries) - 1; i >= 0; i-- {
		r, err := s.Get(ctx, summaries[i].ID)
		if err != nil {
			return n, err
		}
		if err := enc.Encode(r); err != nil {
			return n, fmt.Errorf("failed to encode report %s: %w", r.ID, err)
		}
		n++
	}
	return n, nil
}

// ImportJSONL reads reports written by ExportJSONL and saves them into s.
// Reports with an existing ID are replaced. Blank lines are skipped.
func ImportJSONL(ctx context.Context, s ResultStore, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	// Reports with kept series can be large
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 64*1024*1024)

	n, lineNum := 0, 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var report Report
		if err := json.Unmarshal(line, &report); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if err := s.Save(ctx, &report); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNum, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("scanner error: %w", err)
	}
	return n, nil
}
