package metrics

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

type observation struct {
	name   string
	n      float64
	d      time.Duration
	labels Labels
}

// capture records every observation so tests can assert what the package
// emits for each helper.
type capture struct {
	counts   []observation
	timings  []observation
	flushErr error
	flushed  int
}

func (c *capture) Count(name string, n float64, labels Labels) {
	c.counts = append(c.counts, observation{name: name, n: n, labels: labels})
}

func (c *capture) Timing(name string, d time.Duration, labels Labels) {
	c.timings = append(c.timings, observation{name: name, d: d, labels: labels})
}

func (c *capture) Flush() error {
	c.flushed++
	return c.flushErr
}

func install(t *testing.T) *capture {
	t.Helper()
	c := &capture{}
	prev := current
	SetBackend(c)
	t.Cleanup(func() { current = prev })
	return c
}

func TestRecordStepStatuses(t *testing.T) {
	c := install(t)

	RecordStep("sales_etl", "extract", nil, 120*time.Millisecond)
	RecordStep("sales_etl", "load_to_warehouse", errors.New("warehouse down"), time.Second)

	if len(c.counts) != 2 || len(c.timings) != 2 {
		t.Fatalf("counts=%d timings=%d", len(c.counts), len(c.timings))
	}
	want := Labels{"job": "sales_etl", "step": "extract", "status": StatusOK}
	if c.counts[0].name != MetricSteps || !reflect.DeepEqual(c.counts[0].labels, want) {
		t.Fatalf("first count = %+v", c.counts[0])
	}
	if got := c.counts[1].labels["status"]; got != StatusFailed {
		t.Fatalf("failed step status = %q", got)
	}
	if c.timings[0].name != MetricStepSeconds || c.timings[0].d != 120*time.Millisecond {
		t.Fatalf("timing = %+v", c.timings[0])
	}
	if got := c.timings[1].labels["step"]; got != "load_to_warehouse" {
		t.Fatalf("timing step = %q", got)
	}
}

func TestRecordRowsDropsNonPositive(t *testing.T) {
	c := install(t)

	RecordRows("sales_etl", "extracted", 7)
	RecordRows("sales_etl", "filtered", 0)
	RecordRows("sales_etl", "loaded", -3)

	if len(c.counts) != 1 {
		t.Fatalf("counts = %+v", c.counts)
	}
	if c.counts[0].name != MetricRows || c.counts[0].n != 7 {
		t.Fatalf("count = %+v", c.counts[0])
	}
	if !reflect.DeepEqual(c.counts[0].labels, Labels{"job": "sales_etl", "kind": "extracted"}) {
		t.Fatalf("labels = %v", c.counts[0].labels)
	}
}

func TestRecordBatches(t *testing.T) {
	c := install(t)

	RecordBatches("sales_etl", 4)
	RecordBatches("sales_etl", 0)

	if len(c.counts) != 1 || c.counts[0].name != MetricBatches || c.counts[0].n != 4 {
		t.Fatalf("counts = %+v", c.counts)
	}
}

func TestSetBackendNilKeepsInstalled(t *testing.T) {
	c := install(t)
	SetBackend(nil)

	RecordBatches("sales_etl", 1)
	if len(c.counts) != 1 {
		t.Fatalf("nil SetBackend replaced the backend: %+v", c.counts)
	}
}

func TestFlushDelegates(t *testing.T) {
	c := install(t)
	c.flushErr = errors.New("push failed")

	if err := Flush(); !errors.Is(err, c.flushErr) {
		t.Fatalf("Flush = %v", err)
	}
	if c.flushed != 1 {
		t.Fatalf("flushed = %d", c.flushed)
	}
}

func TestDiscardBackendIsSafe(t *testing.T) {
	prev := current
	current = discard{}
	defer func() { current = prev }()

	RecordStep("sales_etl", "clean", nil, time.Millisecond)
	RecordRows("sales_etl", "cleaned_dropped", 2)
	if err := Flush(); err != nil {
		t.Fatalf("discard Flush = %v", err)
	}
}
