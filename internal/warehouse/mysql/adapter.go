// Registration of the MySQL backend with the warehouse factory.
package mysql

import (
	"context"

	"salesetl/internal/warehouse"
)

var newRepository = New

var _ warehouse.Repository = (*Repository)(nil)

func init() {
	warehouse.Register("mysql", func(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
		r, err := newRepository(ctx, cfg.DSN)
		if err != nil {
			return nil, &warehouse.ConnectionError{Kind: "mysql", Err: err}
		}
		return r, nil
	})

	warehouse.RegisterDDL("mysql", warehouse.DDL{
		`CREATE TABLE IF NOT EXISTS dim_customers (
			customer_id   VARCHAR(64) PRIMARY KEY,
			customer_name VARCHAR(255),
			email         VARCHAR(255),
			city          VARCHAR(128),
			country       VARCHAR(128),
			created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS dim_products (
			product_id   VARCHAR(64) PRIMARY KEY,
			product_name VARCHAR(255),
			category     VARCHAR(128),
			brand        VARCHAR(128),
			price        DOUBLE,
			created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS dim_date (
			date_id     INT PRIMARY KEY,
			date        DATE UNIQUE,
			year        INT,
			quarter     INT,
			month       INT,
			week        INT,
			day_of_week INT,
			created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS fact_sales (
			sale_id      BIGINT AUTO_INCREMENT PRIMARY KEY,
			customer_id  VARCHAR(64),
			product_id   VARCHAR(64),
			date_id      INT,
			quantity     INT,
			unit_price   DOUBLE,
			total_amount DOUBLE,
			discount     DOUBLE,
			created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_fact_sales_customer (customer_id),
			INDEX idx_fact_sales_product (product_id),
			INDEX idx_fact_sales_date (date_id),
			INDEX idx_fact_sales_created (created_at),
			FOREIGN KEY (customer_id) REFERENCES dim_customers(customer_id),
			FOREIGN KEY (product_id) REFERENCES dim_products(product_id),
			FOREIGN KEY (date_id) REFERENCES dim_date(date_id)
		)`,
	})
}
