// Package metrics instruments pipeline runs. Step outcomes, per-kind row
// counts, and warehouse batch flushes are recorded through a pluggable
// Backend; the default backend discards everything, so instrumentation is
// always safe to call.
//
// Metric names and label sets are fixed here so every backend reports the
// same series: sales_etl_steps_total{job,step,status},
// sales_etl_step_seconds{job,step,status}, sales_etl_rows_total{job,kind},
// and sales_etl_batches_total{job}. Step label values are the orchestrator's
// step names (extract, validate, clean, transform, load_to_warehouse, ...);
// row kinds mirror the run statistics (extracted, cleaned_dropped, filtered,
// loaded).
package metrics

import "time"

// Metric names shared by all backends.
const (
	MetricSteps       = "sales_etl_steps_total"
	MetricStepSeconds = "sales_etl_step_seconds"
	MetricRows        = "sales_etl_rows_total"
	MetricBatches     = "sales_etl_batches_total"
)

// Step statuses reported on the status label.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Labels are the key/value pairs attached to one observation.
type Labels map[string]string

// Backend receives the package's observations. Implementations map the fixed
// metric names onto their own wire format.
type Backend interface {
	// Count adds n to the named counter.
	Count(name string, n float64, labels Labels)
	// Timing records one duration observation for the named metric.
	Timing(name string, d time.Duration, labels Labels)
	// Flush delivers anything buffered; called once at process end.
	Flush() error
}

// discard drops every observation. It is the default backend.
type discard struct{}

func (discard) Count(string, float64, Labels)        {}
func (discard) Timing(string, time.Duration, Labels) {}
func (discard) Flush() error                         { return nil }

var current Backend = discard{}

// SetBackend installs b as the process-wide backend. A nil b keeps whatever
// is installed.
func SetBackend(b Backend) {
	if b != nil {
		current = b
	}
}

// Flush delegates to the installed backend.
func Flush() error { return current.Flush() }

// RecordStep files one step execution: a count by outcome plus its wall-clock
// duration. err == nil reports StatusOK, anything else StatusFailed.
func RecordStep(job, step string, err error, d time.Duration) {
	status := StatusOK
	if err != nil {
		status = StatusFailed
	}
	l := Labels{"job": job, "step": step, "status": status}
	current.Count(MetricSteps, 1, l)
	current.Timing(MetricStepSeconds, d, l)
}

// RecordRows adds n rows of the given kind for the job. Zero and negative
// counts are dropped so callers can pass deltas unconditionally.
func RecordRows(job, kind string, n int64) {
	if n <= 0 {
		return
	}
	current.Count(MetricRows, float64(n), Labels{"job": job, "kind": kind})
}

// RecordBatches adds n flushed warehouse batches for the job.
func RecordBatches(job string, n int64) {
	if n <= 0 {
		return
	}
	current.Count(MetricBatches, float64(n), Labels{"job": job})
}
