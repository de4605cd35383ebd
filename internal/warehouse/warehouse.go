// Package warehouse contains the warehouse-agnostic contracts of the load
// stage: the Repository interface every backend implements, a factory keyed
// by backend kind, the star-schema DDL bootstrap, and the batched Loader.
//
// Backends (postgres, sqlite, mysql) register themselves at init time;
// importing warehouse/all (even blank) makes every built-in kind available.
package warehouse

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Repository is the backend contract consumed by the Loader. Implementations
// wrap a concrete driver and translate these operations into their dialect.
type Repository interface {
	// Ping verifies the warehouse is reachable.
	Ping(ctx context.Context) error

	// Exec runs an arbitrary statement, typically DDL.
	Exec(ctx context.Context, sql string, args ...any) error

	// TableExists reports whether the named table exists.
	TableExists(ctx context.Context, table string) (bool, error)

	// DeleteAll removes every row from the named table.
	DeleteAll(ctx context.Context, table string) error

	// InsertRows bulk-appends rows (aligned to columns order) and returns the
	// number of rows inserted.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// Upsert inserts rows, and on a conflict over keyCols updates updateCols
	// from the incoming row. Backends differ in conflict precision (whole-row
	// replace vs column-level update) but must converge to the same final
	// state for equivalent inputs.
	Upsert(ctx context.Context, table string, columns, keyCols, updateCols []string, rows [][]any) (int64, error)

	// MaxTimestamp returns the maximum value of a timestamp column, with
	// ok=false when the table is empty or the column is all null.
	MaxTimestamp(ctx context.Context, table, column string) (time.Time, bool, error)

	// Close releases the underlying connection resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Kind is the registered backend name: "postgres", "sqlite", "mysql".
	Kind string
	// DSN is passed to the backend driver untouched.
	DSN string
}

// ConnectionError reports an unreachable or unopenable warehouse. The
// orchestrator treats it as blocking regardless of the continue-on-error
// policy.
type ConnectionError struct {
	Kind string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("warehouse %s unreachable: %v", e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Factory opens a Repository from a Config.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for a backend kind. It is
// called from backend packages' init functions.
func Register(kind string, fn Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = fn
}

// New opens a Repository for cfg.Kind. Unregistered kinds are an error;
// factory failures pass through so connection errors keep their type.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	fn, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported warehouse.kind=%s", cfg.Kind)
	}
	return fn(ctx, cfg)
}

// ListKinds returns a sorted snapshot of the registered backend kinds.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
