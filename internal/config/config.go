// Package config defines the canonical, JSON-serializable configuration model
// for the sales ETL application. It is intentionally small, explicit, and
// dependency-free so that pipelines can be loaded from disk (or other sources)
// and passed through the program without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON structure used in pipeline
//     files under configs/*.json.
//  3. Minimalism: No third-party config libraries; decoding is performed by
//     the standard library over Default() values, so absent keys keep their
//     defaults.
//
// Example (trimmed):
//
//	{
//	  "job": "sales_daily",
//	  "sources": {
//	    "orders":    { "path": "data/orders.csv", "delimiter": ";" },
//	    "customers": { "path": "data/customers.json" },
//	    "products":  { "url": "https://api.example.com/products", "record_path": "items" }
//	  },
//	  "warehouse": { "kind": "postgres", "dsn": "postgresql://..." }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pipeline describes the full ETL run in JSON. It is the top-level object
// decoded from a pipeline file.
type Pipeline struct {
	// Job names the run for logging and metrics labeling.
	Job string `json:"job"`

	// Sources describes where the three input datasets come from.
	Sources Sources `json:"sources"`

	// API tunes the HTTP client used for URL sources.
	API API `json:"api"`

	// Validation configures schema/completeness/rule checks on extracted data.
	Validation Validation `json:"validation"`

	// Cleaning configures deduplication, null handling, and normalization.
	Cleaning Cleaning `json:"cleaning"`

	// Transform configures joins, derived fields, filtering, and aggregation.
	Transform Transform `json:"transform"`

	// Lake configures raw/processed snapshots on the local data lake.
	Lake Lake `json:"lake"`

	// Warehouse configures the star-schema destination.
	Warehouse Warehouse `json:"warehouse"`

	// Metrics selects an optional metrics backend.
	Metrics Metrics `json:"metrics"`

	// ContinueOnError lets non-critical step failures skip the step instead of
	// aborting the run. Validation failures and warehouse connection failures
	// always abort.
	ContinueOnError bool `json:"continue_on_error"`
}

// Sources identifies the three input datasets. Orders is required; customers
// and products are optional and, when absent, the dependent transform steps
// degrade gracefully.
type Sources struct {
	Orders    Source `json:"orders"`
	Customers Source `json:"customers"`
	Products  Source `json:"products"`
}

// Source holds configuration for one input dataset. Exactly one of Path or
// URL should be set; Path wins when both are present.
type Source struct {
	// Path is the local filesystem path to the input file. The extension
	// selects the format (.csv or .json) unless Format overrides it.
	Path string `json:"path"`

	// URL fetches the dataset from an HTTP JSON API instead of a file.
	URL string `json:"url"`

	// Method is the HTTP method for URL sources. Default "GET".
	Method string `json:"method"`

	// Format forces "csv" or "json" regardless of the path extension.
	Format string `json:"format"`

	// Delimiter is the CSV field separator. Single character; default ",".
	Delimiter string `json:"delimiter"`

	// Encoding names the CSV character encoding (utf-8, latin-1, ...).
	Encoding string `json:"encoding"`

	// HeaderRow is the zero-based row index of the CSV header. Rows above it
	// are skipped.
	HeaderRow int `json:"header_row"`

	// RecordPath is a dotted path to the record array inside a nested JSON
	// document (e.g. "catalog.products").
	RecordPath string `json:"record_path"`

	// MetaFields lists top-level JSON fields copied onto every record when
	// RecordPath is set.
	MetaFields []string `json:"meta_fields"`
}

// API tunes the HTTP client shared by all URL sources.
type API struct {
	// TimeoutSeconds is the per-request timeout.
	TimeoutSeconds int `json:"timeout_seconds"`

	// MaxRetries is the number of retries after the initial attempt. Zero
	// means a single attempt.
	MaxRetries int `json:"max_retries"`

	// RetryDelayMS is the base backoff before the first retry; each further
	// retry doubles it.
	RetryDelayMS int `json:"retry_delay_ms"`
}

// Validation configures the post-extract quality gate. A failed validation
// always aborts the run, regardless of ContinueOnError.
type Validation struct {
	Enabled bool `json:"enabled"`

	// RequiredColumns maps dataset name (orders, customers, products) to the
	// columns that must be present.
	RequiredColumns map[string][]string `json:"required_columns"`

	// MinCompleteness is the minimum non-null ratio per column, in [0, 1].
	MinCompleteness float64 `json:"min_completeness"`
}

// Cleaning configures the cleaning step.
type Cleaning struct {
	Enabled bool `json:"enabled"`

	RemoveDuplicates bool `json:"remove_duplicates"`

	// DuplicatePolicy is one of "keep_first", "keep_last", "drop_all".
	DuplicatePolicy string `json:"duplicate_policy"`

	// NullStrategy is one of "fill", "drop", "skip".
	NullStrategy string `json:"null_strategy"`

	// FillMethod is one of "constant", "mean", "median", "mode", "forward",
	// "backward". Only used when NullStrategy is "fill".
	FillMethod string `json:"fill_method"`

	// FillConstant is the replacement value for the "constant" fill method.
	FillConstant string `json:"fill_constant"`

	// NullColumns restricts null handling to these columns. Empty means all.
	NullColumns []string `json:"null_columns"`

	TrimWhitespace bool `json:"trim_whitespace"`

	// DateColumns are normalized to timestamps from common layouts.
	DateColumns []string `json:"date_columns"`

	// DateLayout optionally forces a single Go reference layout for
	// DateColumns instead of trying the common ones.
	DateLayout string `json:"date_layout"`

	// EmailColumns are lowercased and trimmed.
	EmailColumns []string `json:"email_columns"`
}

// Calculation derives a new column from an expression over existing columns.
type Calculation struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// Transform configures the enrichment step. The built-in sales flow (join
// customers, enrich products, compute amounts) always runs when enabled;
// Calculations and Filter add to it.
type Transform struct {
	Enabled bool `json:"enabled"`

	// Calculations are extra derived columns evaluated in order after the
	// built-in amount fields.
	Calculations []Calculation `json:"calculations"`

	// Filter drops rows for which the expression is not true.
	Filter string `json:"filter"`

	// DailyAggregation adds a per-day sales summary dataset.
	DailyAggregation bool `json:"daily_aggregation"`
}

// Lake configures local snapshot storage.
type Lake struct {
	Enabled bool `json:"enabled"`

	// BasePath is the lake root; raw/ and processed/ live under it.
	BasePath string `json:"base_path"`

	// Format is one of "binary", "csv", "json".
	Format string `json:"format"`
}

// Warehouse configures the star-schema destination database.
type Warehouse struct {
	Enabled bool `json:"enabled"`

	// Kind selects the backend: "sqlite", "postgres", or "mysql".
	Kind string `json:"kind"`

	// DSN is the backend-specific connection string.
	DSN string `json:"dsn"`

	// BatchSize caps rows per insert batch.
	BatchSize int `json:"batch_size"`

	// AutoCreateTables applies the star-schema DDL before loading.
	AutoCreateTables bool `json:"auto_create_tables"`

	// Mode is one of "append", "replace", "fail" for the fact load.
	Mode string `json:"mode"`

	// Incremental loads only fact rows newer than the warehouse watermark.
	Incremental bool `json:"incremental"`

	// WatermarkColumn names the timestamp column for incremental loads.
	WatermarkColumn string `json:"watermark_column"`
}

// Metrics selects a metrics backend. An empty Backend keeps the no-op
// default.
type Metrics struct {
	// Backend is "", "prometheus", or "datadog".
	Backend string `json:"backend"`

	// PushgatewayURL is required for the "prometheus" backend.
	PushgatewayURL string `json:"pushgateway_url"`

	// StatsdAddr is required for the "datadog" backend.
	StatsdAddr string `json:"statsd_addr"`
}

// Default returns the configuration used when a pipeline file leaves fields
// unset. Decoding JSON over this value means absent keys keep these defaults.
func Default() Pipeline {
	return Pipeline{
		Job: "sales_etl",
		API: API{
			TimeoutSeconds: 30,
			MaxRetries:     3,
			RetryDelayMS:   200,
		},
		Validation: Validation{
			Enabled:         true,
			MinCompleteness: 0.95,
		},
		Cleaning: Cleaning{
			Enabled:          true,
			RemoveDuplicates: true,
			DuplicatePolicy:  "keep_first",
			NullStrategy:     "fill",
			FillMethod:       "mean",
			TrimWhitespace:   true,
		},
		Transform: Transform{
			Enabled:          true,
			DailyAggregation: true,
		},
		Lake: Lake{
			Enabled:  true,
			BasePath: "data/lake",
			Format:   "binary",
		},
		Warehouse: Warehouse{
			Enabled:          true,
			Kind:             "sqlite",
			DSN:              "warehouse.db",
			BatchSize:        1000,
			AutoCreateTables: true,
			Mode:             "append",
			WatermarkColumn:  "created_at",
		},
	}
}

// Load reads a pipeline file and decodes it over Default().
func Load(path string) (Pipeline, error) {
	p := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return p, nil
}
