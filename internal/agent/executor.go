package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/haasonsaas/agentrt/internal/agent/interrupt"
	"github.com/haasonsaas/agentrt/internal/jsonschema"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// ExecutorConfig configures tool execution timeouts and retry behavior.
// Concurrency here is NOT intra-turn tool parallelism — within one cycle,
// §4.2/§5 requires tools to run sequentially in block order, so the
// semaphore this executor once used for parallel fan-out is dropped here
// and repurposed instead for multi-agent node-level parallelism in
// internal/multiagent/graph.
type ExecutorConfig struct {
	// DefaultTimeout is the default timeout for tool execution.
	// Default: 30s
	DefaultTimeout time.Duration

	// DefaultRetries is the default number of retries for retryable errors.
	// Default: 2
	DefaultRetries int

	// RetryBackoff is the initial backoff duration between retries.
	// Default: 100ms
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff.
	// Default: 5s
	MaxRetryBackoff time.Duration
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		DefaultTimeout:  30 * time.Second,
		DefaultRetries:  2,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
	}
}

// ToolConfig holds per-tool overrides for timeout and retry settings.
type ToolConfig struct {
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// ExecutorMetrics tracks executor performance counters.
type ExecutorMetrics struct {
	mu              sync.Mutex
	TotalExecutions int64
	TotalRetries    int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
}

// Snapshot returns a copy of the current counters.
func (m *ExecutorMetrics) Snapshot() ExecutorMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ExecutorMetricsSnapshot{
		TotalExecutions: m.TotalExecutions,
		TotalRetries:    m.TotalRetries,
		TotalFailures:   m.TotalFailures,
		TotalTimeouts:   m.TotalTimeouts,
		TotalPanics:     m.TotalPanics,
	}
}

// ExecutorMetricsSnapshot is a point-in-time copy of ExecutorMetrics.
type ExecutorMetricsSnapshot struct {
	TotalExecutions int64
	TotalRetries    int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
}

// Executor runs one tool use at a time against a ToolRegistry, with a
// per-tool timeout, exponential-backoff retry on retryable errors, and
// panic recovery converted into a ToolError.
type Executor struct {
	registry   *ToolRegistry
	config     *ExecutorConfig
	toolConfig map[string]*ToolConfig
	mu         sync.RWMutex
	metrics    *ExecutorMetrics
	validator  *jsonschema.Validator
}

// NewExecutor creates a tool executor bound to registry. If config is nil,
// DefaultExecutorConfig is used.
func NewExecutor(registry *ToolRegistry, config *ExecutorConfig) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	return &Executor{
		registry:   registry,
		config:     config,
		toolConfig: make(map[string]*ToolConfig),
		metrics:    &ExecutorMetrics{},
		validator:  jsonschema.NewValidator(),
	}
}

// ConfigureTool sets per-tool timeout/retry overrides for name.
func (e *Executor) ConfigureTool(name string, config *ToolConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toolConfig[name] = config
}

func (e *Executor) getToolConfig(name string) *ToolConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.toolConfig[name]
}

// Metrics returns a snapshot of the executor's counters.
func (e *Executor) Metrics() ExecutorMetricsSnapshot {
	return e.metrics.Snapshot()
}

// Execute runs one tool use to completion (with retries), or synthesizes an
// error ToolResultBlock if the named tool is not registered.
func (e *Executor) Execute(ctx context.Context, toolUse blocks.ToolUseBlock) blocks.ToolResultBlock {
	tool, ok := e.registry.Get(toolUse.Name)
	if !ok {
		return blocks.NewErrorToolResult(toolUse.ToolUseID, fmt.Sprintf("tool not found: %s", toolUse.Name))
	}
	if len(toolUse.Name) > MaxToolNameLength {
		return blocks.NewErrorToolResult(toolUse.ToolUseID, fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength))
	}
	if len(toolUse.Input) > MaxToolParamsSize {
		return blocks.NewErrorToolResult(toolUse.ToolUseID, fmt.Sprintf("tool input exceeds maximum size of %d bytes", MaxToolParamsSize))
	}
	if err := e.validator.Validate(tool.InputSchema(), toolUse.Input); err != nil {
		valErr := &JSONValidationError{Subject: "tool input", Cause: err}
		return blocks.NewErrorToolResult(toolUse.ToolUseID, valErr.Error())
	}

	tc := e.getToolConfig(toolUse.Name)
	timeout := e.config.DefaultTimeout
	maxRetries := e.config.DefaultRetries
	backoff := e.config.RetryBackoff
	if tc != nil {
		if tc.Timeout > 0 {
			timeout = tc.Timeout
		}
		if tc.Retries >= 0 {
			maxRetries = tc.Retries
		}
		if tc.RetryBackoff > 0 {
			backoff = tc.RetryBackoff
		}
	}

	var result blocks.ToolResultBlock
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, lastErr = e.executeOnce(ctx, tool, toolUse, timeout)
		if lastErr == nil {
			e.metrics.mu.Lock()
			e.metrics.TotalExecutions++
			if attempt > 0 {
				e.metrics.TotalRetries += int64(attempt)
			}
			e.metrics.mu.Unlock()
			return result
		}

		if !IsToolRetryable(lastErr) || ctx.Err() != nil || attempt >= maxRetries {
			break
		}

		sleep := backoff * time.Duration(1<<uint(attempt))
		if sleep > e.config.MaxRetryBackoff {
			sleep = e.config.MaxRetryBackoff
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			lastErr = NewToolError(toolUse.Name, ctx.Err()).WithType(ToolErrorTimeout).WithToolCallID(toolUse.ToolUseID)
		}
	}

	e.metrics.mu.Lock()
	e.metrics.TotalExecutions++
	e.metrics.TotalFailures++
	if toolErr, ok := GetToolError(lastErr); ok && toolErr.Type == ToolErrorTimeout {
		e.metrics.TotalTimeouts++
	}
	e.metrics.mu.Unlock()

	var raised *interrupt.RaisedError
	if errors.As(lastErr, &raised) {
		return blocks.NewErrorToolResult(toolUse.ToolUseID, interrupt.ResultMarkerPrefix+raised.ID)
	}

	return blocks.NewErrorToolResult(toolUse.ToolUseID, lastErr.Error())
}

func (e *Executor) executeOnce(ctx context.Context, tool Tool, toolUse blocks.ToolUseBlock, timeout time.Duration) (result blocks.ToolResultBlock, execErr error) {
	execCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				e.metrics.mu.Lock()
				e.metrics.TotalPanics++
				e.metrics.mu.Unlock()
				execErr = NewToolError(toolUse.Name, fmt.Errorf("tool panicked: %v\n%s", r, debug.Stack())).
					WithToolCallID(toolUse.ToolUseID)
			}
		}()
		var err error
		result, err = tool.Execute(execCtx, json.RawMessage(toolUse.Input))
		if err != nil {
			execErr = NewToolError(toolUse.Name, err).WithToolCallID(toolUse.ToolUseID)
			return
		}
		result.ToolUseID = toolUse.ToolUseID
	}()

	select {
	case <-done:
		return result, execErr
	case <-execCtx.Done():
		return blocks.ToolResultBlock{}, NewToolError(toolUse.Name, execCtx.Err()).
			WithType(ToolErrorTimeout).
			WithToolCallID(toolUse.ToolUseID)
	}
}
