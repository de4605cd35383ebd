// Package mysql implements a MySQL-backed warehouse.Repository using
// database/sql. Upserts use INSERT ... ON DUPLICATE KEY UPDATE, the
// column-level conflict resolution.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Repository is a MySQL-backed implementation of warehouse.Repository.
type Repository struct {
	db *sql.DB
}

// New opens a connection from the DSN and pings it with a short timeout.
// DSNs should carry parseTime=true so timestamp scans yield time.Time.
func New(ctx context.Context, dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("mysql: DSN must not be empty")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &Repository{db: db}, nil
}

// NewFromDB wraps an existing handle. Used by tests.
func NewFromDB(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("mysql: ping: %w", err)
	}
	return nil
}

func (r *Repository) Exec(ctx context.Context, query string, args ...any) error {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mysql: exec: %w", err)
	}
	return nil
}

func (r *Repository) TableExists(ctx context.Context, table string) (bool, error) {
	var name string
	err := r.db.QueryRowContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mysql: table exists: %w", err)
	}
	return true, nil
}

func (r *Repository) DeleteAll(ctx context.Context, table string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("mysql: delete all: %w", err)
	}
	return nil
}

// InsertRows appends rows inside a transaction with a prepared statement.
func (r *Repository) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders(len(columns)))
	return r.execRows(ctx, stmt, table, columns, rows)
}

// Upsert inserts rows and, on a duplicate key, updates only updateCols from
// the incoming row. keyCols is implicit in MySQL: the table's unique keys
// decide what conflicts.
func (r *Repository) Upsert(ctx context.Context, table string, columns, keyCols, updateCols []string, rows [][]any) (int64, error) {
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders(len(columns)))
	if len(sets) > 0 {
		stmt += " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return r.execRows(ctx, stmt, table, columns, rows)
}

func placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = "?"
	}
	return strings.Join(ps, ", ")
}

func (r *Repository) execRows(ctx context.Context, stmtSQL, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("mysql: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mysql: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("mysql: prepare: %w", err)
	}
	defer stmt.Close()

	var written int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return written, fmt.Errorf("mysql: row length %d != columns length %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return written, fmt.Errorf("mysql: write into %s: %w", table, err)
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		return written, fmt.Errorf("mysql: commit: %w", err)
	}
	return written, nil
}

func (r *Repository) MaxTimestamp(ctx context.Context, table, column string) (time.Time, bool, error) {
	var ts sql.NullTime
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", column, table)
	if err := r.db.QueryRowContext(ctx, query).Scan(&ts); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("mysql: max %s: %w", column, err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return ts.Time, true, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
