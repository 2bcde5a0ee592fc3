package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// dialect captures the SQL differences between SQLite and PostgreSQL.
type dialect struct {
	name string

	// realType is the column type for float64 values.
	realType string

	// numbered placeholders ($1, $2) instead of ?.
	numbered bool
}

var (
	sqliteDialect   = dialect{name: "sqlite", realType: "REAL"}
	postgresDialect = dialect{name: "postgres", realType: "DOUBLE PRECISION", numbered: true}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// schema returns the DDL for the dialect. Seeds are stored as text because
// they span the full uint64 range.
func (d dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    label TEXT NOT NULL DEFAULT '',
    seed TEXT NOT NULL,
    runs INTEGER NOT NULL,
    nodes INTEGER NOT NULL,
    news_score ` + d.realType + ` NOT NULL,
    default_probability ` + d.realType + ` NOT NULL,
    mean_collapse_turn ` + d.realType + `,
    result TEXT NOT NULL  -- JSON
)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at)`,
		`CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`,
	}
}

// InitSchema creates the tables if needed and records the schema version.
func InitSchema(ctx context.Context, db *sql.DB, d dialect) error {
	for _, stmt := range d.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	current, err := getSchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, SchemaVersion)
	}
	if current < SchemaVersion {
		_, err := db.ExecContext(ctx,
			d.rebind(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`),
			SchemaVersion, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}
	return nil
}

// getSchemaVersion returns the highest applied version, or 0 for a fresh
// database.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}
