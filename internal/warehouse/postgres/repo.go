// Package postgres implements a Postgres-backed warehouse.Repository using
// pgx v5. Bulk appends go through the COPY protocol; upserts use
// INSERT ... ON CONFLICT DO UPDATE, the column-level conflict resolution.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is a Postgres-backed implementation of warehouse.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// New opens a connection pool from the DSN and pings it so unreachable
// targets surface immediately.
func New(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

func (r *Repository) Exec(ctx context.Context, sql string, args ...any) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	return nil
}

func (r *Repository) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: table exists: %w", err)
	}
	return exists, nil
}

func (r *Repository) DeleteAll(ctx context.Context, table string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM "+pgFQN(table)); err != nil {
		return fmt.Errorf("postgres: delete all: %w", err)
	}
	return nil
}

// InsertRows bulk-appends through the COPY protocol.
func (r *Repository) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	n, err := r.pool.CopyFrom(ctx, splitFQN(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("postgres: copy into %s: %w", table, err)
	}
	return n, nil
}

// Upsert inserts rows and, on a conflict over keyCols, updates only
// updateCols from the incoming row (EXCLUDED).
func (r *Repository) Upsert(ctx context.Context, table string, columns, keyCols, updateCols []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", pgIdent(c), pgIdent(c))
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		pgFQN(table),
		strings.Join(mapIdent(columns), ", "),
		strings.Join(placeholders, ", "),
		strings.Join(mapIdent(keyCols), ", "),
		action)

	// One statement per row inside a transaction; conflict targets rule out
	// multi-row COPY here.
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var written int64
	for _, row := range rows {
		if len(row) != len(columns) {
			return written, fmt.Errorf("postgres: row length %d != columns length %d", len(row), len(columns))
		}
		if _, err := tx.Exec(ctx, query, row...); err != nil {
			return written, fmt.Errorf("postgres: upsert into %s: %w", table, err)
		}
		written++
	}
	if err := tx.Commit(ctx); err != nil {
		return written, fmt.Errorf("postgres: commit: %w", err)
	}
	return written, nil
}

func (r *Repository) MaxTimestamp(ctx context.Context, table, column string) (time.Time, bool, error) {
	var ts *time.Time
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", pgIdent(column), pgFQN(table))
	if err := r.pool.QueryRow(ctx, query).Scan(&ts); err != nil {
		return time.Time{}, false, fmt.Errorf("postgres: max %s: %w", column, err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return *ts, true, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// pgIdent safely quotes a single identifier segment.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.fact_sales" to
// "public"."fact_sales".
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// splitFQN converts "schema.table" into a pgx.Identifier.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}

// mapIdent maps column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
