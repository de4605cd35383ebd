package prompush

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salesetl/internal/metrics"

	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, b *Backend) map[string]*dto.MetricFamily {
	t.Helper()
	fams, err := b.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := map[string]*dto.MetricFamily{}
	for _, f := range fams {
		out[f.GetName()] = f
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestNewBackendRequiresGatewayURL(t *testing.T) {
	if _, err := NewBackend("sales_etl", ""); err == nil {
		t.Fatal("want error for empty gateway URL")
	}
}

func TestNewBackendDefaultsJob(t *testing.T) {
	b, err := NewBackend("", "http://gw:9091")
	if err != nil {
		t.Fatal(err)
	}
	if b.job != "sales_etl" {
		t.Fatalf("job = %q", b.job)
	}
}

func TestStepCountsByOutcome(t *testing.T) {
	b, err := NewBackend("sales_etl", "http://gw:9091")
	if err != nil {
		t.Fatal(err)
	}

	step := metrics.Labels{"job": "sales_etl", "step": "extract", "status": metrics.StatusOK}
	b.Count(metrics.MetricSteps, 1, step)
	b.Count(metrics.MetricSteps, 1, step)
	b.Count(metrics.MetricSteps, 1, metrics.Labels{
		"job": "sales_etl", "step": "load_to_warehouse", "status": metrics.StatusFailed,
	})

	fam := gather(t, b)[metrics.MetricSteps]
	if fam == nil {
		t.Fatalf("%s not collected", metrics.MetricSteps)
	}
	if len(fam.GetMetric()) != 2 {
		t.Fatalf("series = %d", len(fam.GetMetric()))
	}
	for _, m := range fam.GetMetric() {
		switch labelValue(m, "step") {
		case "extract":
			if m.GetCounter().GetValue() != 2 || labelValue(m, "status") != metrics.StatusOK {
				t.Fatalf("extract series = %v", m)
			}
		case "load_to_warehouse":
			if m.GetCounter().GetValue() != 1 || labelValue(m, "status") != metrics.StatusFailed {
				t.Fatalf("load series = %v", m)
			}
		default:
			t.Fatalf("unexpected step %q", labelValue(m, "step"))
		}
	}
}

func TestStepSecondsHistogram(t *testing.T) {
	b, err := NewBackend("sales_etl", "http://gw:9091")
	if err != nil {
		t.Fatal(err)
	}

	l := metrics.Labels{"job": "sales_etl", "step": "transform", "status": metrics.StatusOK}
	b.Timing(metrics.MetricStepSeconds, 250*time.Millisecond, l)
	b.Timing(metrics.MetricStepSeconds, 750*time.Millisecond, l)
	// Other metric names must not land in the histogram.
	b.Timing(metrics.MetricRows, time.Second, l)

	fam := gather(t, b)[metrics.MetricStepSeconds]
	if fam == nil {
		t.Fatalf("%s not collected", metrics.MetricStepSeconds)
	}
	h := fam.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Fatalf("sample count = %d", h.GetSampleCount())
	}
	if sum := h.GetSampleSum(); sum < 0.999 || sum > 1.001 {
		t.Fatalf("sample sum = %v", sum)
	}
	if got := labelValue(fam.GetMetric()[0], "step"); got != "transform" {
		t.Fatalf("step label = %q", got)
	}
}

func TestRowAndBatchCounters(t *testing.T) {
	b, err := NewBackend("sales_etl", "http://gw:9091")
	if err != nil {
		t.Fatal(err)
	}

	b.Count(metrics.MetricRows, 100, metrics.Labels{"job": "sales_etl", "kind": "extracted"})
	b.Count(metrics.MetricRows, 3, metrics.Labels{"job": "sales_etl", "kind": "filtered"})
	b.Count(metrics.MetricBatches, 2, metrics.Labels{"job": "sales_etl"})
	// Unknown metric names are ignored rather than misfiled.
	b.Count("bogus_metric", 99, nil)

	fams := gather(t, b)
	rows := fams[metrics.MetricRows]
	if rows == nil || len(rows.GetMetric()) != 2 {
		t.Fatalf("rows family = %v", rows)
	}
	for _, m := range rows.GetMetric() {
		switch labelValue(m, "kind") {
		case "extracted":
			if m.GetCounter().GetValue() != 100 {
				t.Fatalf("extracted = %v", m.GetCounter().GetValue())
			}
		case "filtered":
			if m.GetCounter().GetValue() != 3 {
				t.Fatalf("filtered = %v", m.GetCounter().GetValue())
			}
		}
	}
	batches := fams[metrics.MetricBatches]
	if batches == nil || batches.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("batches family = %v", batches)
	}
	if _, ok := fams["bogus_metric"]; ok {
		t.Fatal("unknown metric was registered")
	}
}

func TestFlushPushesToGateway(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("sales_etl", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	b.Count(metrics.MetricBatches, 1, metrics.Labels{"job": "sales_etl"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("method = %q", gotMethod)
	}
	if !strings.HasSuffix(gotPath, "/job/sales_etl") {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestFlushReportsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway broken", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b, err := NewBackend("sales_etl", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Flush(); err == nil {
		t.Fatal("want error from failed push")
	}
}
