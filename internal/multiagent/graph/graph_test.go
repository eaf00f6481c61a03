package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/agentrt/internal/multiagent"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// fakeExecutor is a minimal NodeExecutor test double: it records every
// input it was given and returns a canned result (or error) per call.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   int
	inputs  [][]blocks.ContentBlock
	text    string
	err     error
	delay   time.Duration
	onStart func()
}

func (f *fakeExecutor) RunNode(ctx context.Context, input []blocks.ContentBlock) (*blocks.AgentResult, error) {
	f.mu.Lock()
	f.calls++
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()

	if f.onStart != nil {
		f.onStart()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &blocks.AgentResult{
		StopReason:  blocks.StopEndTurn,
		LastMessage: blocks.Message{Role: blocks.RoleAssistant, Content: blocks.ContentBlockList{blocks.TextBlock{Text: f.text}}},
	}, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func textInput(s string) []blocks.ContentBlock {
	return []blocks.ContentBlock{blocks.TextBlock{Text: s}}
}

func TestGraphRunsLinearChain(t *testing.T) {
	a := &fakeExecutor{text: "a-out"}
	b := &fakeExecutor{text: "b-out"}

	g, err := NewGraphBuilder().
		AddNode("a", a).
		AddNode("b", b).
		AddEdge("a", "b", nil).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	result, err := g.Run(context.Background(), textInput("task"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != multiagent.MultiAgentCompleted {
		t.Fatalf("expected completed, got %v (reason %s)", result.Status, result.FailureReason)
	}
	if result.Results["a"].Status != multiagent.NodeCompleted || result.Results["b"].Status != multiagent.NodeCompleted {
		t.Fatalf("expected both nodes completed, got %+v", result.Results)
	}
	if b.callCount() != 1 {
		t.Fatalf("expected b to run once, got %d", b.callCount())
	}
}

func TestGraphRunsIndependentNodesConcurrently(t *testing.T) {
	started := make(chan string, 2)

	a := &fakeExecutor{text: "a-out", onStart: func() { started <- "a" }, delay: 20 * time.Millisecond}
	b := &fakeExecutor{text: "b-out", onStart: func() { started <- "b" }, delay: 20 * time.Millisecond}
	c := &fakeExecutor{text: "c-out"}

	g, err := NewGraphBuilder().
		AddNode("a", a).
		AddNode("b", b).
		AddNode("c", c).
		AddEdge("a", "c", nil).
		AddEdge("b", "c", nil).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	runDone := make(chan struct{})
	var result *multiagent.MultiAgentResult
	go func() {
		result, err = g.Run(context.Background(), textInput("task"))
		close(runDone)
	}()

	// Both independent nodes must start before either finishes its delay —
	// proof they ran concurrently, not sequentially.
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the first independent node to start")
	}
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the second independent node to start before the first finished")
	}

	<-runDone
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != multiagent.MultiAgentCompleted {
		t.Fatalf("expected completed, got %v", result.Status)
	}
	if c.callCount() != 1 {
		t.Fatalf("expected c to run exactly once after both dependencies, got %d", c.callCount())
	}
}

func TestGraphNodeErrorFailsFastWithPartialResults(t *testing.T) {
	a := &fakeExecutor{text: "a-out"}
	b := &fakeExecutor{err: errors.New("boom")}
	c := &fakeExecutor{text: "c-out"}

	g, err := NewGraphBuilder().
		AddNode("a", a).
		AddNode("b", b).
		AddNode("c", c).
		AddEdge("a", "b", nil).
		AddEdge("b", "c", nil).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	result, err := g.Run(context.Background(), textInput("task"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != multiagent.MultiAgentFailed {
		t.Fatalf("expected failed, got %v", result.Status)
	}
	if result.Results["a"].Status != multiagent.NodeCompleted {
		t.Fatalf("expected a to have completed before b failed, got %+v", result.Results["a"])
	}
	if result.Results["b"].Status != multiagent.NodeFailed {
		t.Fatalf("expected b failed, got %+v", result.Results["b"])
	}
	if _, ran := result.Results["c"]; ran {
		t.Fatalf("expected c never to run after b failed fail-fast, got %+v", result.Results["c"])
	}
	if c.callCount() != 0 {
		t.Fatalf("expected c not to run, got %d calls", c.callCount())
	}
}

func TestGraphMaxNodeExecutionsExceeded(t *testing.T) {
	a := &fakeExecutor{text: "a-out"}

	g, err := NewGraphBuilder().
		AddNode("a", a).
		SetMaxNodeExecutions(0).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	result, err := g.Run(context.Background(), textInput("task"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != multiagent.MultiAgentFailed || result.FailureReason != "Max node executions" {
		t.Fatalf("expected Max node executions failure, got %v %q", result.Status, result.FailureReason)
	}
}

func TestGraphExecutionTimeout(t *testing.T) {
	a := &fakeExecutor{text: "a-out", delay: 50 * time.Millisecond}

	g, err := NewGraphBuilder().
		AddNode("a", a).
		SetExecutionTimeout(5 * time.Millisecond).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	result, err := g.Run(context.Background(), textInput("task"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != multiagent.MultiAgentFailed {
		t.Fatalf("expected failed on timeout, got %v", result.Status)
	}
}

func TestGraphEntryPointDefaultsToNodesWithNoIncomingEdges(t *testing.T) {
	a := &fakeExecutor{text: "a-out"}
	b := &fakeExecutor{text: "b-out"}

	g, err := NewGraphBuilder().AddNode("a", a).AddNode("b", b).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.entryPoints) != 2 {
		t.Fatalf("expected both disconnected nodes to be entry points, got %v", g.entryPoints)
	}

	result, err := g.Run(context.Background(), textInput("task"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.callCount() != 1 || b.callCount() != 1 {
		t.Fatalf("expected both entry nodes to run once, got a=%d b=%d", a.callCount(), b.callCount())
	}
	if result.Status != multiagent.MultiAgentCompleted {
		t.Fatalf("expected completed, got %v", result.Status)
	}
}

func TestGraphBuildFailsWithNoEntryPoint(t *testing.T) {
	a := &fakeExecutor{}
	b := &fakeExecutor{}

	_, err := NewGraphBuilder().
		AddNode("a", a).
		AddNode("b", b).
		AddEdge("a", "b", nil).
		AddEdge("b", "a", nil).
		Build()
	if err == nil {
		t.Fatal("expected build failure: every node has an incoming edge")
	}
}

func TestGraphEdgeConditionGatesTraversal(t *testing.T) {
	a := &fakeExecutor{text: "go"}
	b := &fakeExecutor{text: "b-out"}

	cond := func(state map[string]any) bool {
		nr, ok := state["a"].(multiagent.NodeResult)
		return ok && nr.Result != nil && nr.Result.String() == "go"
	}

	g, err := NewGraphBuilder().
		AddNode("a", a).
		AddNode("b", b).
		AddEdge("a", "b", cond).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	result, err := g.Run(context.Background(), textInput("task"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Results["b"].Status != multiagent.NodeCompleted {
		t.Fatalf("expected b to run once condition is satisfied, got %+v", result.Results["b"])
	}
}

func TestGraphBuildRejectsUnknownEdgeEndpoint(t *testing.T) {
	a := &fakeExecutor{}
	_, err := NewGraphBuilder().AddNode("a", a).AddEdge("a", "missing", nil).Build()
	if err == nil {
		t.Fatal("expected build failure for unknown edge endpoint")
	}
}
