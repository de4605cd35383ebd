package warehouse

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// The star schema loaded by the pipeline: three dimensions and one fact
// table, with indexes on the fact foreign keys and created_at columns.
// Statement text is dialect-specific, so each backend registers its own
// rendition at init time.

// Tables in creation order (dimensions before the fact table referencing
// them).
var StarSchemaTables = []string{"dim_customers", "dim_products", "dim_date", "fact_sales"}

// DDL is an ordered list of idempotent statements that create the star
// schema for one dialect.
type DDL []string

var (
	ddlMu    sync.RWMutex
	ddlByKnd = map[string]DDL{}
)

// RegisterDDL registers (or replaces) the star-schema DDL for a backend
// kind. Called from backend packages' init functions.
func RegisterDDL(kind string, stmts DDL) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlByKnd[kind] = stmts
}

// EnsureStarSchema applies the registered DDL for kind through repo. All
// statements are idempotent (CREATE TABLE IF NOT EXISTS and equivalents), so
// repeated bootstraps are safe.
func EnsureStarSchema(ctx context.Context, kind string, repo Repository) error {
	ddlMu.RLock()
	stmts, ok := ddlByKnd[kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no star-schema DDL registered for warehouse.kind=%s", kind)
	}
	for _, stmt := range stmts {
		if err := repo.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap star schema: %w", err)
		}
	}
	log.Printf("warehouse: star schema ensured kind=%s tables=%d", kind, len(StarSchemaTables))
	return nil
}
