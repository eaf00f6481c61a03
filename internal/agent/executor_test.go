package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/agentrt/pkg/blocks"
)

type fakeTool struct {
	name    string
	calls   int
	fail    int // number of leading calls that fail
	err     error
	sleep   time.Duration
	panics  bool
	success blocks.ToolResultBlock
	schema  json.RawMessage
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "fake" }
func (t *fakeTool) InputSchema() json.RawMessage {
	if t.schema != nil {
		return t.schema
	}
	return json.RawMessage(`{}`)
}
func (t *fakeTool) Execute(ctx context.Context, input json.RawMessage) (blocks.ToolResultBlock, error) {
	t.calls++
	if t.sleep > 0 {
		select {
		case <-time.After(t.sleep):
		case <-ctx.Done():
			return blocks.ToolResultBlock{}, ctx.Err()
		}
	}
	if t.panics {
		panic("boom")
	}
	if t.calls <= t.fail {
		return blocks.ToolResultBlock{}, t.err
	}
	return t.success, nil
}

func TestExecutorSucceedsOnFirstAttempt(t *testing.T) {
	reg := NewToolRegistry()
	tool := &fakeTool{name: "search", success: blocks.NewSuccessTextResult("", "ok")}
	reg.Register(tool)

	e := NewExecutor(reg, DefaultExecutorConfig())
	result := e.Execute(context.Background(), blocks.ToolUseBlock{Name: "search", ToolUseID: "t1", Input: json.RawMessage(`{}`)})

	if result.Status != blocks.ToolResultSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.ToolUseID != "t1" {
		t.Fatalf("expected tool_use_id propagated, got %q", result.ToolUseID)
	}
	if tool.calls != 1 {
		t.Fatalf("expected 1 call, got %d", tool.calls)
	}
}

func TestExecutorToolNotFound(t *testing.T) {
	reg := NewToolRegistry()
	e := NewExecutor(reg, DefaultExecutorConfig())
	result := e.Execute(context.Background(), blocks.ToolUseBlock{Name: "missing", ToolUseID: "t1"})
	if result.Status != blocks.ToolResultError {
		t.Fatalf("expected error result for missing tool, got %+v", result)
	}
}

func TestExecutorRetriesRetryableErrors(t *testing.T) {
	reg := NewToolRegistry()
	tool := &fakeTool{name: "flaky", fail: 2, err: errors.New("connection refused"), success: blocks.NewSuccessTextResult("", "ok")}
	reg.Register(tool)

	cfg := DefaultExecutorConfig()
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxRetryBackoff = 5 * time.Millisecond
	e := NewExecutor(reg, cfg)

	result := e.Execute(context.Background(), blocks.ToolUseBlock{Name: "flaky", ToolUseID: "t1"})
	if result.Status != blocks.ToolResultSuccess {
		t.Fatalf("expected eventual success, got %+v", result)
	}
	if tool.calls != 3 {
		t.Fatalf("expected 3 attempts (2 failures + 1 success), got %d", tool.calls)
	}
}

func TestExecutorDoesNotRetryNonRetryableErrors(t *testing.T) {
	reg := NewToolRegistry()
	tool := &fakeTool{name: "bad_input", fail: 5, err: errors.New("invalid: missing field"), success: blocks.NewSuccessTextResult("", "ok")}
	reg.Register(tool)

	e := NewExecutor(reg, DefaultExecutorConfig())
	result := e.Execute(context.Background(), blocks.ToolUseBlock{Name: "bad_input", ToolUseID: "t1"})
	if result.Status != blocks.ToolResultError {
		t.Fatalf("expected error result, got %+v", result)
	}
	if tool.calls != 1 {
		t.Fatalf("expected no retries for a non-retryable error, got %d calls", tool.calls)
	}
}

func TestExecutorTimeout(t *testing.T) {
	reg := NewToolRegistry()
	tool := &fakeTool{name: "slow", sleep: 50 * time.Millisecond, success: blocks.NewSuccessTextResult("", "ok")}
	reg.Register(tool)

	cfg := DefaultExecutorConfig()
	cfg.DefaultTimeout = 5 * time.Millisecond
	cfg.DefaultRetries = 0
	e := NewExecutor(reg, cfg)

	result := e.Execute(context.Background(), blocks.ToolUseBlock{Name: "slow", ToolUseID: "t1"})
	if result.Status != blocks.ToolResultError {
		t.Fatalf("expected timeout to produce an error result, got %+v", result)
	}
}

func TestExecutorRecoversFromPanic(t *testing.T) {
	reg := NewToolRegistry()
	tool := &fakeTool{name: "panics", panics: true}
	reg.Register(tool)

	cfg := DefaultExecutorConfig()
	cfg.DefaultRetries = 0
	e := NewExecutor(reg, cfg)

	result := e.Execute(context.Background(), blocks.ToolUseBlock{Name: "panics", ToolUseID: "t1"})
	if result.Status != blocks.ToolResultError {
		t.Fatalf("expected panic to be recovered into an error result, got %+v", result)
	}
	snap := e.Metrics()
	if snap.TotalPanics != 1 {
		t.Fatalf("expected panic counted in metrics, got %+v", snap)
	}
}

func TestExecutorOversizedInputRejected(t *testing.T) {
	reg := NewToolRegistry()
	tool := &fakeTool{name: "ok", success: blocks.NewSuccessTextResult("", "ok")}
	reg.Register(tool)

	e := NewExecutor(reg, DefaultExecutorConfig())
	huge := make([]byte, MaxToolParamsSize+1)
	result := e.Execute(context.Background(), blocks.ToolUseBlock{Name: "ok", ToolUseID: "t1", Input: huge})
	if result.Status != blocks.ToolResultError {
		t.Fatalf("expected oversized input rejected, got %+v", result)
	}
	if tool.calls != 0 {
		t.Fatal("expected tool not to be invoked for oversized input")
	}
}

func TestExecutorRejectsInputFailingSchemaValidation(t *testing.T) {
	reg := NewToolRegistry()
	tool := &fakeTool{
		name:    "search",
		schema:  json.RawMessage(`{"type":"object","required":["q"],"properties":{"q":{"type":"string"}}}`),
		success: blocks.NewSuccessTextResult("", "ok"),
	}
	reg.Register(tool)

	e := NewExecutor(reg, DefaultExecutorConfig())
	result := e.Execute(context.Background(), blocks.ToolUseBlock{Name: "search", ToolUseID: "t1", Input: json.RawMessage(`{"q":123}`)})
	if result.Status != blocks.ToolResultError {
		t.Fatalf("expected schema validation failure, got %+v", result)
	}
	if tool.calls != 0 {
		t.Fatal("expected tool not to be invoked when input fails schema validation")
	}
}
