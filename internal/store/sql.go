package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nvandessel/bankrun/internal/montecarlo"
	"github.com/nvandessel/bankrun/internal/pathutil"
)

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLResultStore implements ResultStore on SQLite or PostgreSQL.
type SQLResultStore struct {
	db      *sql.DB
	dialect dialect

	// retry builds the backoff policy for one write.
	retry func() backoff.BackOff
}

// OpenSQLite opens (creating if needed) a SQLite history database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLResultStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", pathutil.RedactPath(dir), err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", pathutil.RedactPath(path), err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	return newSQLResultStore(ctx, db, sqliteDialect)
}

// OpenPostgres connects to a PostgreSQL history database.
func OpenPostgres(ctx context.Context, dsn string) (*SQLResultStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return newSQLResultStore(ctx, db, postgresDialect)
}

func newSQLResultStore(ctx context.Context, db *sql.DB, d dialect) (*SQLResultStore, error) {
	if err := InitSchema(ctx, db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLResultStore{db: db, dialect: d, retry: defaultRetry}, nil
}

func defaultRetry() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return b
}

// Save persists a report, replacing any report with the same ID.
func (s *SQLResultStore) Save(ctx context.Context, report *Report) error {
	if err := validateReport(report); err != nil {
		return err
	}
	data, err := json.Marshal(report.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	sum := report.Summary()

	var meanCollapse sql.NullFloat64
	if sum.MeanCollapseTurn != nil {
		meanCollapse = sql.NullFloat64{Float64: *sum.MeanCollapseTurn, Valid: true}
	}

	query := s.dialect.rebind(`
		INSERT INTO reports (id, created_at, label, seed, runs, nodes, news_score, default_probability, mean_collapse_turn, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			created_at = excluded.created_at,
			label = excluded.label,
			seed = excluded.seed,
			runs = excluded.runs,
			nodes = excluded.nodes,
			news_score = excluded.news_score,
			default_probability = excluded.default_probability,
			mean_collapse_turn = excluded.mean_collapse_turn,
			result = excluded.result`)

	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			sum.ID,
			sum.CreatedAt.UTC().Format(timeLayout),
			sum.Label,
			strconv.FormatUint(sum.Seed, 10),
			sum.Runs,
			sum.Nodes,
			sum.NewsScore,
			sum.DefaultProbability,
			meanCollapse,
			string(data),
		)
		if err != nil {
			return fmt.Errorf("failed to save report %s: %w", sum.ID, err)
		}
		return nil
	})
}

// Get retrieves a full report by ID.
func (s *SQLResultStore) Get(ctx context.Context, id string) (*Report, error) {
	row := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT id, created_at, label, result FROM reports WHERE id = ?`), id)

	var (
		r         Report
		createdAt string
		data      string
	)
	if err := row.Scan(&r.ID, &createdAt, &r.Label, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to query report: %w", err)
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("report %s: bad created_at: %w", id, err)
	}
	r.CreatedAt = t

	var res montecarlo.BatchResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("report %s: failed to decode result: %w", id, err)
	}
	r.Result = &res
	return &r, nil
}

// List returns report summaries, newest first.
func (s *SQLResultStore) List(ctx context.Context, limit int) ([]Summary, error) {
	query := `SELECT id, created_at, label, seed, runs, nodes, news_score, default_probability, mean_collapse_turn
		FROM reports ORDER BY created_at DESC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum          Summary
			createdAt    string
			seed         string
			meanCollapse sql.NullFloat64
		)
		if err := rows.Scan(&sum.ID, &createdAt, &sum.Label, &seed, &sum.Runs, &sum.Nodes,
			&sum.NewsScore, &sum.DefaultProbability, &meanCollapse); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		if sum.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("report %s: bad created_at: %w", sum.ID, err)
		}
		if sum.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("report %s: bad seed: %w", sum.ID, err)
		}
		if meanCollapse.Valid {
			v := meanCollapse.Float64
			sum.MeanCollapseTurn = &v
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return out, nil
}

// Delete removes a report.
func (s *SQLResultStore) Delete(ctx context.Context, id string) error {
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM reports WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete report %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete report %s: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// Close closes the database connection.
func (s *SQLResultStore) Close() error {
	return s.db.Close()
}

// withRetry runs op, retrying with exponential backoff while the database
// reports lock contention. Any other error stops immediately.
func (s *SQLResultStore) withRetry(ctx context.Context, op func() error) error {
	operation := func() error {
		err := op()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(s.retry(), ctx))
}

// isTransient reports whether err is a lock or serialization conflict
// worth retrying.
func isTransient(err error) bool {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}
	return false
}
