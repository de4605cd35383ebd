// Static linting of Pipeline values: checks over a decoded Pipeline that
// return a list of issues (errors and warnings) callers can surface in a CLI
// or tests.
package config

import (
	"fmt"
	"strings"

	"salesetl/internal/transform"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "warehouse.kind",
// "transform.calculations[1].expr"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is severity error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
//
// Example:
//
//	p, err := config.Load(path)
//	if err != nil { ... }
//	issues := config.ValidatePipeline(p)
//	for _, iss := range issues {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSources(p.Sources)...)
	issues = append(issues, validateAPI(p.API)...)
	issues = append(issues, validateValidation(p.Validation)...)
	issues = append(issues, validateCleaning(p.Cleaning)...)
	issues = append(issues, validateTransform(p.Transform)...)
	issues = append(issues, validateLake(p.Lake)...)
	issues = append(issues, validateWarehouse(p.Warehouse)...)
	issues = append(issues, validateMetrics(p.Metrics)...)

	return issues
}

func validateSources(s Sources) []Issue {
	var issues []Issue

	// Orders drives the whole pipeline and is required.
	if strings.TrimSpace(s.Orders.Path) == "" && strings.TrimSpace(s.Orders.URL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sources.orders",
			Message:  "orders source requires a path or url",
		})
	}
	if strings.TrimSpace(s.Customers.Path) == "" && strings.TrimSpace(s.Customers.URL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sources.customers",
			Message:  "no customers source; the customer join will be skipped",
		})
	}
	if strings.TrimSpace(s.Products.Path) == "" && strings.TrimSpace(s.Products.URL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sources.products",
			Message:  "no products source; product enrichment will be skipped",
		})
	}

	for name, src := range map[string]Source{
		"orders":    s.Orders,
		"customers": s.Customers,
		"products":  s.Products,
	} {
		issues = append(issues, validateSource("sources."+name, src)...)
	}
	return issues
}

func validateSource(path string, s Source) []Issue {
	var issues []Issue

	switch s.Format {
	case "", "csv", "json":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".format",
			Message:  fmt.Sprintf("unknown format %q; supported: csv, json", s.Format),
		})
	}
	if len([]rune(s.Delimiter)) > 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".delimiter",
			Message:  fmt.Sprintf("delimiter %q must be a single character", s.Delimiter),
		})
	}
	if s.HeaderRow < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".header_row",
			Message:  "header_row must not be negative",
		})
	}
	if s.Path != "" && s.URL != "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     path,
			Message:  "both path and url are set; path takes precedence",
		})
	}
	switch s.Method {
	case "", "GET", "POST", "PUT", "DELETE":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".method",
			Message:  fmt.Sprintf("unknown method %q; supported: GET, POST, PUT, DELETE", s.Method),
		})
	}
	if s.Method != "" && s.URL == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     path + ".method",
			Message:  "method has no effect without a url",
		})
	}
	return issues
}

func validateAPI(a API) []Issue {
	var issues []Issue
	if a.TimeoutSeconds < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "api.timeout_seconds",
			Message:  fmt.Sprintf("timeout_seconds=%d must not be negative", a.TimeoutSeconds),
		})
	}
	if a.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "api.max_retries",
			Message:  fmt.Sprintf("max_retries=%d must not be negative", a.MaxRetries),
		})
	}
	if a.RetryDelayMS < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "api.retry_delay_ms",
			Message:  fmt.Sprintf("retry_delay_ms=%d must not be negative", a.RetryDelayMS),
		})
	}
	return issues
}

func validateValidation(v Validation) []Issue {
	var issues []Issue
	if !v.Enabled {
		return issues
	}
	if v.MinCompleteness < 0 || v.MinCompleteness > 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "validation.min_completeness",
			Message:  fmt.Sprintf("min_completeness=%v must be in [0, 1]", v.MinCompleteness),
		})
	}
	known := map[string]struct{}{"orders": {}, "customers": {}, "products": {}}
	for dataset := range v.RequiredColumns {
		if _, ok := known[dataset]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "validation.required_columns." + dataset,
				Message:  fmt.Sprintf("unknown dataset %q; expected orders, customers, or products", dataset),
			})
		}
	}
	return issues
}

func validateCleaning(c Cleaning) []Issue {
	var issues []Issue
	if !c.Enabled {
		return issues
	}
	switch c.DuplicatePolicy {
	case "", "keep_first", "keep_last", "drop_all":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "cleaning.duplicate_policy",
			Message:  fmt.Sprintf("unknown policy %q; supported: keep_first, keep_last, drop_all", c.DuplicatePolicy),
		})
	}
	switch c.NullStrategy {
	case "", "fill", "drop", "skip":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "cleaning.null_strategy",
			Message:  fmt.Sprintf("unknown strategy %q; supported: fill, drop, skip", c.NullStrategy),
		})
	}
	switch c.FillMethod {
	case "", "constant", "mean", "median", "mode", "forward", "backward":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "cleaning.fill_method",
			Message:  fmt.Sprintf("unknown method %q; supported: constant, mean, median, mode, forward, backward", c.FillMethod),
		})
	}
	if c.NullStrategy == "fill" && c.FillMethod == "constant" && c.FillConstant == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "cleaning.fill_constant",
			Message:  "constant fill with an empty constant replaces nulls with empty text",
		})
	}
	return issues
}

func validateTransform(t Transform) []Issue {
	var issues []Issue
	if !t.Enabled {
		return issues
	}
	for i, c := range t.Calculations {
		if strings.TrimSpace(c.Name) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("transform.calculations[%d].name", i),
				Message:  "calculation name must not be empty",
			})
		}
		// Compile now to catch syntax errors before the run starts.
		if _, err := transform.Compile(c.Expr); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("transform.calculations[%d].expr", i),
				Message:  err.Error(),
			})
		}
	}
	if t.Filter != "" {
		if _, err := transform.Compile(t.Filter); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "transform.filter",
				Message:  err.Error(),
			})
		}
	}
	return issues
}

func validateLake(l Lake) []Issue {
	var issues []Issue
	if !l.Enabled {
		return issues
	}
	if strings.TrimSpace(l.BasePath) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "lake.base_path",
			Message:  "lake.base_path must not be empty when the lake is enabled",
		})
	}
	switch l.Format {
	case "", "binary", "csv", "json":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "lake.format",
			Message:  fmt.Sprintf("unknown format %q; supported: binary, csv, json", l.Format),
		})
	}
	return issues
}

func validateWarehouse(w Warehouse) []Issue {
	var issues []Issue
	if !w.Enabled {
		return issues
	}

	if strings.TrimSpace(w.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.kind",
			Message:  "warehouse.kind must not be empty",
		})
		return issues
	}

	// Known backend kinds. Unknown kinds are warnings (for forward
	// compatibility with externally registered backends).
	known := map[string]struct{}{
		"sqlite":   {},
		"postgres": {},
		"mysql":    {},
	}
	if _, ok := known[w.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "warehouse.kind",
			Message:  fmt.Sprintf("unknown warehouse kind %q; ensure a matching backend is registered", w.Kind),
		})
	}

	if strings.TrimSpace(w.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.dsn",
			Message:  "warehouse.dsn must not be empty",
		})
	}
	if w.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "warehouse.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; non-positive batch sizes fall back to the default", w.BatchSize),
		})
	}
	switch w.Mode {
	case "", "append", "replace", "fail":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.mode",
			Message:  fmt.Sprintf("unknown mode %q; supported: append, replace, fail", w.Mode),
		})
	}
	if w.Incremental && strings.TrimSpace(w.WatermarkColumn) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.watermark_column",
			Message:  "incremental loads require a watermark_column",
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "prometheus", "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend requires a pushgateway_url",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.StatsdAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.statsd_addr",
				Message:  "datadog backend requires a statsd_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; supported: prometheus, datadog", m.Backend),
		})
	}
	return issues
}
