package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

// validPipeline returns a pipeline that should lint without errors.
func validPipeline() Pipeline {
	p := Default()
	p.Sources.Orders.Path = "data/orders.csv"
	p.Sources.Customers.Path = "data/customers.csv"
	p.Sources.Products.Path = "data/products.json"
	return p
}

func TestValidatePipeline_ValidDefaults(t *testing.T) {
	issues := ValidatePipeline(validPipeline())
	if HasErrors(issues) {
		t.Fatalf("expected no errors; got issues: %+v", issues)
	}
}

func TestValidatePipeline_MissingJob(t *testing.T) {
	p := validPipeline()
	p.Job = ""

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "job", "job must not be empty") {
		t.Fatalf("expected SeverityError for job; got issues: %+v", issues)
	}
}

func TestValidatePipeline_MissingOrdersSource(t *testing.T) {
	p := validPipeline()
	p.Sources.Orders = Source{}

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "sources.orders", "path or url") {
		t.Fatalf("expected SeverityError for sources.orders; got issues: %+v", issues)
	}
}

func TestValidatePipeline_MissingOptionalSourcesWarn(t *testing.T) {
	p := validPipeline()
	p.Sources.Customers = Source{}
	p.Sources.Products = Source{}

	issues := ValidatePipeline(p)
	if HasErrors(issues) {
		t.Fatalf("optional sources must not produce errors; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityWarning, "sources.customers", "join will be skipped") {
		t.Fatalf("expected warning for sources.customers; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityWarning, "sources.products", "enrichment will be skipped") {
		t.Fatalf("expected warning for sources.products; got %+v", issues)
	}
}

func TestValidatePipeline_SourceShape(t *testing.T) {
	p := validPipeline()
	p.Sources.Orders.Format = "parquet"
	p.Sources.Orders.Delimiter = "||"
	p.Sources.Orders.HeaderRow = -1

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "sources.orders.format", "parquet") {
		t.Fatalf("expected format error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "sources.orders.delimiter", "single character") {
		t.Fatalf("expected delimiter error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "sources.orders.header_row", "negative") {
		t.Fatalf("expected header_row error; got %+v", issues)
	}
}

func TestValidatePipeline_SourceMethod(t *testing.T) {
	p := validPipeline()
	p.Sources.Products = Source{URL: "https://api.example.com/products", Method: "FETCH"}

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "sources.products.method", "FETCH") {
		t.Fatalf("expected method error; got %+v", issues)
	}

	// A method on a file source does nothing and is worth a warning.
	p.Sources.Products = Source{Path: "data/products.json", Method: "POST"}
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityWarning, "sources.products.method", "without a url") {
		t.Fatalf("expected method warning; got %+v", issues)
	}
}

func TestValidatePipeline_APIKnobs(t *testing.T) {
	p := validPipeline()
	p.API.TimeoutSeconds = -1
	p.API.MaxRetries = -2
	p.API.RetryDelayMS = -100

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "api.timeout_seconds", "negative") {
		t.Fatalf("expected timeout error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "api.max_retries", "negative") {
		t.Fatalf("expected retries error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "api.retry_delay_ms", "negative") {
		t.Fatalf("expected delay error; got %+v", issues)
	}
}

func TestValidatePipeline_CompletenessRange(t *testing.T) {
	p := validPipeline()
	p.Validation.MinCompleteness = 1.5

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "validation.min_completeness", "[0, 1]") {
		t.Fatalf("expected completeness range error; got %+v", issues)
	}

	// Disabled validation skips the check entirely.
	p.Validation.Enabled = false
	if HasErrors(ValidatePipeline(p)) {
		t.Fatal("disabled validation must not produce errors")
	}
}

func TestValidatePipeline_CleaningEnums(t *testing.T) {
	p := validPipeline()
	p.Cleaning.DuplicatePolicy = "keep_some"
	p.Cleaning.NullStrategy = "ignore"
	p.Cleaning.FillMethod = "magic"

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "cleaning.duplicate_policy", "keep_some") {
		t.Fatalf("expected duplicate_policy error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "cleaning.null_strategy", "ignore") {
		t.Fatalf("expected null_strategy error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "cleaning.fill_method", "magic") {
		t.Fatalf("expected fill_method error; got %+v", issues)
	}
}

func TestValidatePipeline_BadExpressionsFailEarly(t *testing.T) {
	p := validPipeline()
	p.Transform.Calculations = []Calculation{
		{Name: "good", Expr: "quantity * unit_price"},
		{Name: "", Expr: "1 +"},
	}
	p.Transform.Filter = "(quantity > 0"

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "transform.calculations[1].name", "must not be empty") {
		t.Fatalf("expected name error; got %+v", issues)
	}
	found := false
	for _, iss := range issues {
		if iss.Severity == SeverityError && iss.Path == "transform.calculations[1].expr" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected expr compile error; got %+v", issues)
	}
	foundFilter := false
	for _, iss := range issues {
		if iss.Severity == SeverityError && iss.Path == "transform.filter" {
			foundFilter = true
		}
	}
	if !foundFilter {
		t.Fatalf("expected filter compile error; got %+v", issues)
	}
}

func TestValidatePipeline_Lake(t *testing.T) {
	p := validPipeline()
	p.Lake.BasePath = " "
	p.Lake.Format = "parquet"

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "lake.base_path", "must not be empty") {
		t.Fatalf("expected base_path error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "lake.format", "parquet") {
		t.Fatalf("expected format error; got %+v", issues)
	}
}

func TestValidatePipeline_Warehouse(t *testing.T) {
	p := validPipeline()
	p.Warehouse.Kind = "oracle"
	p.Warehouse.DSN = ""
	p.Warehouse.BatchSize = 0
	p.Warehouse.Mode = "merge"
	p.Warehouse.Incremental = true
	p.Warehouse.WatermarkColumn = ""

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityWarning, "warehouse.kind", "oracle") {
		t.Fatalf("expected kind warning; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "warehouse.dsn", "must not be empty") {
		t.Fatalf("expected dsn error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityWarning, "warehouse.batch_size", "batch_size=0") {
		t.Fatalf("expected batch_size warning; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "warehouse.mode", "merge") {
		t.Fatalf("expected mode error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "warehouse.watermark_column", "watermark_column") {
		t.Fatalf("expected watermark error; got %+v", issues)
	}

	// Disabled warehouse skips all of it.
	p.Warehouse.Enabled = false
	if HasErrors(ValidatePipeline(p)) {
		t.Fatal("disabled warehouse must not produce errors")
	}
}

func TestValidatePipeline_Metrics(t *testing.T) {
	p := validPipeline()

	p.Metrics = Metrics{Backend: "prometheus"}
	if !hasIssue(t, ValidatePipeline(p), SeverityError, "metrics.pushgateway_url", "pushgateway_url") {
		t.Fatal("expected pushgateway_url error")
	}

	p.Metrics = Metrics{Backend: "datadog"}
	if !hasIssue(t, ValidatePipeline(p), SeverityError, "metrics.statsd_addr", "statsd_addr") {
		t.Fatal("expected statsd_addr error")
	}

	p.Metrics = Metrics{Backend: "graphite"}
	if !hasIssue(t, ValidatePipeline(p), SeverityError, "metrics.backend", "graphite") {
		t.Fatal("expected unknown backend error")
	}

	p.Metrics = Metrics{}
	if HasErrors(ValidatePipeline(p)) {
		t.Fatal("empty metrics backend must lint clean")
	}
}
