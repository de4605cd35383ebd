// Package prompush delivers pipeline metrics to a Prometheus Pushgateway.
//
// Batch jobs have no scrape surface, so the run accumulates its series in a
// private registry and pushes them once at the end (metrics.Flush). The job
// name doubles as the Pushgateway grouping key, which keeps repeated runs of
// the same pipeline under one group.
package prompush

import (
	"fmt"
	"time"

	"salesetl/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend implements metrics.Backend on a private Prometheus registry.
type Backend struct {
	url string
	job string
	reg *prometheus.Registry

	steps       *prometheus.CounterVec
	stepSeconds *prometheus.HistogramVec
	rows        *prometheus.CounterVec
	batches     prometheus.Counter
}

// NewBackend builds a backend pushing to gatewayURL under the job group.
func NewBackend(job, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if job == "" {
		job = "sales_etl"
	}

	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Backend{
		url: gatewayURL,
		job: job,
		reg: reg,
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.MetricSteps,
			Help: "Pipeline step executions by step and outcome.",
		}, []string{"step", "status"}),
		stepSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: metrics.MetricStepSeconds,
			Help: "Wall-clock seconds spent in each pipeline step.",
			// Steps range from sub-second validation to multi-minute loads.
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
		}, []string{"step"}),
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.MetricRows,
			Help: "Rows handled per kind (extracted, cleaned_dropped, filtered, loaded).",
		}, []string{"kind"}),
		batches: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.MetricBatches,
			Help: "Warehouse batches flushed by the loader.",
		}),
	}, nil
}

// Count routes the fixed metric names onto their collectors. The job label is
// dropped here: the push group already carries it.
func (b *Backend) Count(name string, n float64, labels metrics.Labels) {
	switch name {
	case metrics.MetricSteps:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(n)
	case metrics.MetricRows:
		b.rows.WithLabelValues(labels["kind"]).Add(n)
	case metrics.MetricBatches:
		b.batches.Add(n)
	}
}

func (b *Backend) Timing(name string, d time.Duration, labels metrics.Labels) {
	if name != metrics.MetricStepSeconds {
		return
	}
	b.stepSeconds.WithLabelValues(labels["step"]).Observe(d.Seconds())
}

// Flush pushes the accumulated registry to the gateway.
func (b *Backend) Flush() error {
	return push.New(b.url, b.job).Gatherer(b.reg).Push()
}
