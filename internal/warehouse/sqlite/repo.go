// Package sqlite implements a SQLite-backed warehouse.Repository using
// database/sql. Batched INSERTs run inside a transaction; SQLite has no
// dedicated bulk-load API, but transactions keep performance acceptable for
// moderate volumes.
//
// Conflict resolution uses INSERT OR REPLACE, which rewrites the whole
// conflicting row rather than updating individual columns. Callers supplying
// full rows see the same final state as the column-level backends.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Repository is a SQLite-backed implementation of warehouse.Repository.
type Repository struct {
	db *sql.DB
}

// New opens a SQLite connection from a DSN and pings it with a short timeout
// to fail fast on invalid paths. Foreign keys are enabled when the driver
// supports the pragma.
//
// The DSN is passed to database/sql untouched, e.g.:
//
//	"file:warehouse.db?cache=shared"
//	"warehouse.db"
func New(ctx context.Context, dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON;")
	return &Repository{db: db}, nil
}

// NewFromDB wraps an existing handle. Used by tests.
func NewFromDB(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

func (r *Repository) Exec(ctx context.Context, query string, args ...any) error {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

func (r *Repository) TableExists(ctx context.Context, table string) (bool, error) {
	var name string
	err := r.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: table exists: %w", err)
	}
	return true, nil
}

func (r *Repository) DeleteAll(ctx context.Context, table string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("sqlite: delete all: %w", err)
	}
	return nil
}

// InsertRows appends rows inside a single transaction with a prepared
// statement.
func (r *Repository) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return r.execRows(ctx, insertSQL("INSERT", table, columns), table, columns, rows)
}

// Upsert resolves key conflicts by replacing the whole conflicting row
// (INSERT OR REPLACE). keyCols and updateCols are accepted for interface
// parity; SQLite's replacement granularity is the full row.
func (r *Repository) Upsert(ctx context.Context, table string, columns, keyCols, updateCols []string, rows [][]any) (int64, error) {
	return r.execRows(ctx, insertSQL("INSERT OR REPLACE", table, columns), table, columns, rows)
}

func insertSQL(verb, table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return fmt.Sprintf("%s INTO %s (%s) VALUES (%s)",
		verb, table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}

func (r *Repository) execRows(ctx context.Context, stmtSQL, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	var written int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return written, fmt.Errorf("sqlite: row length %d != columns length %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, normalizeArgs(row)...); err != nil {
			_ = tx.Rollback()
			return written, fmt.Errorf("sqlite: insert into %s: %w", table, err)
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		return written, fmt.Errorf("sqlite: commit: %w", err)
	}
	return written, nil
}

// normalizeArgs renders timestamps in the canonical text layout SQLite
// queries compare correctly.
func normalizeArgs(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if ts, ok := v.(time.Time); ok {
			out[i] = ts.UTC().Format("2006-01-02 15:04:05")
			continue
		}
		out[i] = v
	}
	return out
}

func (r *Repository) MaxTimestamp(ctx context.Context, table, column string) (time.Time, bool, error) {
	var raw any
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", column, table)
	if err := r.db.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("sqlite: max %s: %w", column, err)
	}
	return parseTimestamp(raw)
}

// parseTimestamp handles the representations the driver may hand back:
// native time, text in the canonical layout, or nothing for an empty table.
func parseTimestamp(raw any) (time.Time, bool, error) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return v, true, nil
	case string:
		return parseTimestampText(v)
	case []byte:
		return parseTimestampText(string(v))
	default:
		return time.Time{}, false, fmt.Errorf("sqlite: unexpected timestamp type %T", raw)
	}
}

func parseTimestampText(s string) (time.Time, bool, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("sqlite: cannot parse timestamp %q", s)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
