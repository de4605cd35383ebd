// Package datadog forwards pipeline metrics to a DogStatsD agent.
//
// Counters map onto DogStatsD counts and step durations onto timings, with
// labels rendered as "key:value" tags. Unlike the Pushgateway backend nothing
// accumulates locally; the agent aggregates, so Flush only drains the client
// buffer before shutdown.
package datadog

import (
	"fmt"
	"sort"
	"time"

	"salesetl/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Config selects the agent and the decoration applied to every metric.
type Config struct {
	// Addr is the DogStatsD endpoint, "host:port" or "unix:///path".
	Addr string
	// Namespace prefixes every metric name, e.g. "salesetl.".
	Namespace string
	// Tags are added to every metric, e.g. "env:prod", "job:sales_etl".
	Tags []string
}

// Backend implements metrics.Backend over a statsd client.
type Backend struct {
	client *statsd.Client
}

// NewBackend connects to the agent at cfg.Addr.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: statsd address is required")
	}
	var opts []statsd.Option
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.Tags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.Tags))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: connect %s: %w", cfg.Addr, err)
	}
	return &Backend{client: c}, nil
}

// Count forwards a counter increment. DogStatsD counts are integral, so
// fractional deltas truncate.
func (b *Backend) Count(name string, n float64, labels metrics.Labels) {
	_ = b.client.Count(name, int64(n), tags(labels), 1)
}

// Timing forwards a duration observation.
func (b *Backend) Timing(name string, d time.Duration, labels metrics.Labels) {
	_ = b.client.Timing(name, d, tags(labels), 1)
}

// Flush drains the client buffer and closes the connection.
func (b *Backend) Flush() error {
	if err := b.client.Flush(); err != nil {
		return err
	}
	return b.client.Close()
}

// tags renders labels as sorted "key:value" strings so a given label set
// always produces the same tag list.
func tags(labels metrics.Labels) []string {
	if len(labels) == 0 {
		return nil
	}
	out := make([]string, 0, len(labels))
	for k, v := range labels {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
