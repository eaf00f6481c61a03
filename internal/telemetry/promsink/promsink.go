// Package promsink is a concrete metrics.MeterProvider backed by
// Prometheus, grounded on internal/observability/metrics.go's NewMetrics():
// the same promauto-registered CounterVec/HistogramVec pattern, but built
// lazily per metric name instead of as one fixed struct of fields, since the
// collector calls Int64Counter/Float64Histogram with names it already knows
// (the fixed list in agent/metrics) rather than a name this package picks.
package promsink

import (
	"context"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/haasonsaas/agentrt/internal/agent/metrics"
)

// toolScopedMetrics lists the metric names the collector always calls with a
// single "tool_name" attribute (see internal/agent/metrics/collector.go);
// every other metric name is registered with no labels. Prometheus requires
// a fixed label schema per vector, so the schema is declared here rather
// than inferred from the first call's attrs.
var toolScopedMetrics = map[string]bool{
	"tool.call.count":    true,
	"tool.success.count": true,
	"tool.error.count":   true,
	"tool.duration":      true,
}

// Sink implements metrics.MeterProvider by registering one Prometheus
// CounterVec or HistogramVec per distinct metric name on first use, all
// under a single namespace/prefix, and scoping label sets to the attribute
// keys observed on first call.
type Sink struct {
	registerer prometheus.Registerer
	namespace  string

	mu         sync.Mutex
	counters   map[string]*promCounter
	histograms map[string]*promHistogram
}

// New constructs a Sink registering metrics against reg (use
// prometheus.DefaultRegisterer for the process-wide default registry).
// namespace is prepended to every metric name, e.g. "agentrt_cycle_count".
func New(reg prometheus.Registerer, namespace string) *Sink {
	return &Sink{
		registerer: reg,
		namespace:  namespace,
		counters:   make(map[string]*promCounter),
		histograms: make(map[string]*promHistogram),
	}
}

type promCounter struct {
	vec    *prometheus.CounterVec
	labels []string
}

func (c *promCounter) Add(_ context.Context, delta int64, attrs map[string]string) {
	c.vec.With(labelValues(c.labels, attrs)).Add(float64(delta))
}

type promHistogram struct {
	vec    *prometheus.HistogramVec
	labels []string
}

func (h *promHistogram) Record(_ context.Context, value float64, attrs map[string]string) {
	h.vec.With(labelValues(h.labels, attrs)).Observe(value)
}

func labelValues(labels []string, attrs map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(labels))
	for _, l := range labels {
		out[l] = attrs[l]
	}
	return out
}

func labelsFor(name string) []string {
	if toolScopedMetrics[name] {
		return []string{"tool_name"}
	}
	return nil
}

func (s *Sink) metricName(name string) string {
	sanitized := strings.ReplaceAll(name, ".", "_")
	if s.namespace == "" {
		return sanitized
	}
	return s.namespace + "_" + sanitized
}

// Int64Counter implements metrics.MeterProvider, lazily registering a
// CounterVec on first use of name.
func (s *Sink) Int64Counter(name string) (metrics.Int64Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.counters[name]; ok {
		return c, nil
	}
	labels := labelsFor(name)
	vec := promauto.With(s.registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: s.metricName(name),
			Help: "agentrt " + name + " counter",
		},
		labels,
	)
	c := &promCounter{vec: vec, labels: labels}
	s.counters[name] = c
	return c, nil
}

// Float64Histogram implements metrics.MeterProvider, lazily registering a
// HistogramVec on first use of name.
func (s *Sink) Float64Histogram(name string) (metrics.Float64Histogram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.histograms[name]; ok {
		return h, nil
	}
	labels := labelsFor(name)
	vec := promauto.With(s.registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    s.metricName(name),
			Help:    "agentrt " + name + " histogram",
			Buckets: prometheus.DefBuckets,
		},
		labels,
	)
	h := &promHistogram{vec: vec, labels: labels}
	s.histograms[name] = h
	return h, nil
}
