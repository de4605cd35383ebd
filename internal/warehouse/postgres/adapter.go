// Registration of the Postgres backend with the warehouse factory.
package postgres

import (
	"context"

	"salesetl/internal/warehouse"
)

var newRepository = New

var _ warehouse.Repository = (*Repository)(nil)

func init() {
	warehouse.Register("postgres", func(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
		r, err := newRepository(ctx, cfg.DSN)
		if err != nil {
			return nil, &warehouse.ConnectionError{Kind: "postgres", Err: err}
		}
		return r, nil
	})

	warehouse.RegisterDDL("postgres", warehouse.DDL{
		`CREATE TABLE IF NOT EXISTS dim_customers (
			customer_id   TEXT PRIMARY KEY,
			customer_name TEXT,
			email         TEXT,
			city          TEXT,
			country       TEXT,
			created_at    TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS dim_products (
			product_id   TEXT PRIMARY KEY,
			product_name TEXT,
			category     TEXT,
			brand        TEXT,
			price        DOUBLE PRECISION,
			created_at   TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS dim_date (
			date_id     INTEGER PRIMARY KEY,
			date        DATE UNIQUE,
			year        INTEGER,
			quarter     INTEGER,
			month       INTEGER,
			week        INTEGER,
			day_of_week INTEGER,
			created_at  TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS fact_sales (
			sale_id      BIGSERIAL PRIMARY KEY,
			customer_id  TEXT REFERENCES dim_customers(customer_id),
			product_id   TEXT REFERENCES dim_products(product_id),
			date_id      INTEGER REFERENCES dim_date(date_id),
			quantity     INTEGER,
			unit_price   DOUBLE PRECISION,
			total_amount DOUBLE PRECISION,
			discount     DOUBLE PRECISION,
			created_at   TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fact_sales_customer ON fact_sales(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fact_sales_product ON fact_sales(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fact_sales_date ON fact_sales(date_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fact_sales_created ON fact_sales(created_at)`,
	})
}
