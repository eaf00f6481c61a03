// Package metrics implements the in-memory aggregate and trace tree an Agent
// accumulates across cycles and tool executions. Adapted from the counter
// shape of internal/observability/metrics.go, but the aggregate itself is
// plain structs guarded by a mutex rather than Prometheus directly —
// Prometheus becomes an optional sink behind the MeterProvider interface
// (see internal/telemetry/promsink), not the aggregate's storage.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ToolStats aggregates outcomes for one tool name.
type ToolStats struct {
	CallCount    int64
	SuccessCount int64
	ErrorCount   int64
	TotalMs      int64
}

// AverageMs returns the mean duration across all recorded calls, or 0 if
// none have completed yet.
func (s ToolStats) AverageMs() float64 {
	if s.CallCount == 0 {
		return 0
	}
	return float64(s.TotalMs) / float64(s.CallCount)
}

// Snapshot is a deep, independent copy of a Collector's state at the moment
// GetMetrics was called — mutating it never affects the live Collector.
type Snapshot struct {
	CycleCount           int64
	CycleDurationTotalMs  int64
	ModelInvocationCount int64
	ModelLatencyTotalMs  int64
	InputTokens          int64
	OutputTokens         int64
	CacheReadTokens      int64
	CacheWriteTokens     int64
	ToolStats            map[string]ToolStats
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.ToolStats = make(map[string]ToolStats, len(s.ToolStats))
	for k, v := range s.ToolStats {
		out.ToolStats[k] = v
	}
	return out
}

// TraceNode is one span in the in-memory trace tree: a cycle or a tool
// execution. Children are appended under the collector's lock at start
// time, mirroring the teacher's trace.go JSONL tree-building discipline but
// held in memory instead of streamed to a file.
type TraceNode struct {
	ID         string
	Name       string
	StartTime  time.Time
	EndTime    time.Time
	DurationMs int64
	ParentID   string
	Children   []*TraceNode
	Metadata   map[string]any
}

// Collector is the in-memory aggregate an Agent owns for the lifetime of a
// run. Safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	snapshot Snapshot
	meter    MeterProvider
}

// New constructs an empty Collector. meter may be nil, in which case no
// metrics are exported to an external sink — only the in-memory aggregate
// is kept.
func New(meter MeterProvider) *Collector {
	return &Collector{
		snapshot: Snapshot{ToolStats: make(map[string]ToolStats)},
		meter:    meter,
	}
}

// StartCycle begins a new cycle span, incrementing the cycle counter and
// returning a trace node plus a close func that records its duration. The
// returned *TraceNode has no parent; callers append tool-execution children
// to it via StartToolExecution.
func (c *Collector) StartCycle(ctx context.Context) (trace *TraceNode, closeFn func()) {
	node := &TraceNode{ID: uuid.New().String(), Name: "cycle", StartTime: time.Now()}

	c.mu.Lock()
	c.snapshot.CycleCount++
	c.mu.Unlock()
	c.count(ctx, "cycle.count", 1, nil)

	return node, func() {
		node.EndTime = time.Now()
		node.DurationMs = node.EndTime.Sub(node.StartTime).Milliseconds()

		c.mu.Lock()
		c.snapshot.CycleDurationTotalMs += node.DurationMs
		c.mu.Unlock()
		c.observe(ctx, "cycle.duration", float64(node.DurationMs), nil)
	}
}

// RecordModelInvocation records one completed model call's latency and
// token usage.
func (c *Collector) RecordModelInvocation(ctx context.Context, latencyMs int64, input, output, cacheRead, cacheWrite int) {
	c.mu.Lock()
	c.snapshot.ModelInvocationCount++
	c.snapshot.ModelLatencyTotalMs += latencyMs
	c.snapshot.InputTokens += int64(input)
	c.snapshot.OutputTokens += int64(output)
	c.snapshot.CacheReadTokens += int64(cacheRead)
	c.snapshot.CacheWriteTokens += int64(cacheWrite)
	c.mu.Unlock()

	c.count(ctx, "model.invocation.count", 1, nil)
	c.observe(ctx, "model.latency", float64(latencyMs), nil)
	c.observe(ctx, "model.input_tokens", float64(input), nil)
	c.observe(ctx, "model.output_tokens", float64(output), nil)
	c.observe(ctx, "model.cache_read_tokens", float64(cacheRead), nil)
	c.observe(ctx, "model.cache_write_tokens", float64(cacheWrite), nil)
}

// StartToolExecution begins a tool-execution span as a child of parent (if
// non-nil). The default recorded outcome is error: callers must invoke
// markSuccess before close to record a success, matching the
// scoped-acquisition contract used for approval/lock guards elsewhere in
// the agent package.
func (c *Collector) StartToolExecution(ctx context.Context, name string, parent *TraceNode) (trace *TraceNode, markSuccess func(), closeFn func()) {
	node := &TraceNode{ID: uuid.New().String(), Name: name, StartTime: time.Now()}
	if parent != nil {
		node.ParentID = parent.ID
		c.mu.Lock()
		parent.Children = append(parent.Children, node)
		c.mu.Unlock()
	}

	c.count(ctx, "tool.call.count", 1, map[string]string{"tool_name": name})

	succeeded := false
	markSuccess = func() { succeeded = true }

	closeFn = func() {
		node.EndTime = time.Now()
		node.DurationMs = node.EndTime.Sub(node.StartTime).Milliseconds()

		c.mu.Lock()
		stats := c.snapshot.ToolStats[name]
		stats.CallCount++
		stats.TotalMs += node.DurationMs
		if succeeded {
			stats.SuccessCount++
		} else {
			stats.ErrorCount++
		}
		c.snapshot.ToolStats[name] = stats
		c.mu.Unlock()

		attrs := map[string]string{"tool_name": name}
		if succeeded {
			c.count(ctx, "tool.success.count", 1, attrs)
		} else {
			c.count(ctx, "tool.error.count", 1, attrs)
		}
		c.observe(ctx, "tool.duration", float64(node.DurationMs), attrs)
	}
	return node, markSuccess, closeFn
}

// GetMetrics returns a deep copy of the aggregate: mutating the result never
// affects the collector's internal state.
func (c *Collector) GetMetrics() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.clone()
}

func (c *Collector) count(ctx context.Context, name string, delta int64, attrs map[string]string) {
	if c.meter == nil {
		return
	}
	counter, err := c.meter.Int64Counter(name)
	if err != nil {
		return
	}
	counter.Add(ctx, delta, attrs)
}

func (c *Collector) observe(ctx context.Context, name string, value float64, attrs map[string]string) {
	if c.meter == nil {
		return
	}
	hist, err := c.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	hist.Record(ctx, value, attrs)
}
