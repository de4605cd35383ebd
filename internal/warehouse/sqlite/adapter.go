// Registration of the SQLite backend with the warehouse factory. Callers do
// not import this package directly; importing warehouse/all pulls it in.
package sqlite

import (
	"context"

	"salesetl/internal/warehouse"
)

// newRepository is a test hook pointing at New by default.
var newRepository = New

var _ warehouse.Repository = (*Repository)(nil)

func init() {
	warehouse.Register("sqlite", func(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
		r, err := newRepository(ctx, cfg.DSN)
		if err != nil {
			return nil, &warehouse.ConnectionError{Kind: "sqlite", Err: err}
		}
		return r, nil
	})

	warehouse.RegisterDDL("sqlite", warehouse.DDL{
		`CREATE TABLE IF NOT EXISTS dim_customers (
			customer_id   TEXT PRIMARY KEY,
			customer_name TEXT,
			email         TEXT,
			city          TEXT,
			country       TEXT,
			created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS dim_products (
			product_id   TEXT PRIMARY KEY,
			product_name TEXT,
			category     TEXT,
			brand        TEXT,
			price        REAL,
			created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS dim_date (
			date_id     INTEGER PRIMARY KEY,
			date        DATE UNIQUE,
			year        INTEGER,
			quarter     INTEGER,
			month       INTEGER,
			week        INTEGER,
			day_of_week INTEGER,
			created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS fact_sales (
			sale_id      INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id  TEXT REFERENCES dim_customers(customer_id),
			product_id   TEXT REFERENCES dim_products(product_id),
			date_id      INTEGER REFERENCES dim_date(date_id),
			quantity     INTEGER,
			unit_price   REAL,
			total_amount REAL,
			discount     REAL,
			created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fact_sales_customer ON fact_sales(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fact_sales_product ON fact_sales(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fact_sales_date ON fact_sales(date_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fact_sales_created ON fact_sales(created_at)`,
	})
}
