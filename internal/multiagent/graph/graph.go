// Package graph implements the dependency-DAG multi-agent executor: nodes
// become runnable once every predecessor has completed and its edge
// condition (if any) evaluates true, and independent nodes run concurrently.
//
// Grounded on the teacher's DependencyGraph/BuildDependencyGraph stage
// computation in internal/multiagent/swarm.go (indegree counting, a
// dependents adjacency map), generalized from static stage batching — every
// node in one indegree-zero batch runs together, then the whole batch is
// awaited before the next — to a dynamic scheduler where a node starts the
// moment its own predecessors finish, without waiting on unrelated siblings.
package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/agentrt/internal/agent"
	"github.com/haasonsaas/agentrt/internal/agent/hooks"
	"github.com/haasonsaas/agentrt/internal/multiagent"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// NodeExecutor is anything a graph node can run: a single Agent (via
// AgentExecutor) or another Graph, composed recursively.
type NodeExecutor interface {
	RunNode(ctx context.Context, input []blocks.ContentBlock) (*blocks.AgentResult, error)
}

// AgentExecutor adapts an *agent.Agent to NodeExecutor.
type AgentExecutor struct {
	Agent *agent.Agent
}

func (a AgentExecutor) RunNode(ctx context.Context, input []blocks.ContentBlock) (*blocks.AgentResult, error) {
	return a.Agent.Invoke(ctx, agent.BlocksInput(input))
}

// EdgeCondition gates an edge on the graph's shared state, read-only.
// A nil condition is always true.
type EdgeCondition func(state map[string]any) bool

type edge struct {
	from, to string
	cond     EdgeCondition
}

// SessionManager persists a graph's MultiAgentResult between runs — the
// hook point SetSessionManager exposes. Left unimplemented by this module;
// callers that need durable graph state across process restarts supply
// their own.
type SessionManager interface {
	SaveGraphState(ctx context.Context, graphID string, data []byte) error
	LoadGraphState(ctx context.Context, graphID string) ([]byte, error)
}

// GraphError is a failure mode that maps 1:1 onto spec.md §4.7's bullet
// list: max node executions exceeded, a graph-wide timeout, a per-node
// timeout, a node error, or an unsupported executor type.
type GraphError struct {
	Reason string
	NodeID string
	Err    error
}

func (e *GraphError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("graph: %s (node %q): %v", e.Reason, e.NodeID, e.Err)
	}
	return fmt.Sprintf("graph: %s", e.Reason)
}

func (e *GraphError) Unwrap() error { return e.Err }

type nodeDef struct {
	id       string
	executor NodeExecutor
}

// GraphBuilder is the fluent construction API spec.md §6 names.
type GraphBuilder struct {
	nodes             map[string]nodeDef
	order             []string
	edges             []edge
	entryPoints       []string
	maxNodeExecutions int
	nodeTimeout       time.Duration
	executionTimeout  time.Duration
	resetOnRevisit    bool
	hookProvider      *hooks.Provider
	sessionManager    SessionManager
}

// NewGraphBuilder starts a new graph construction.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		nodes:             make(map[string]nodeDef),
		maxNodeExecutions: 100,
	}
}

// AddNode registers a node under id, running executor when scheduled.
func (b *GraphBuilder) AddNode(id string, executor NodeExecutor) *GraphBuilder {
	if _, exists := b.nodes[id]; !exists {
		b.order = append(b.order, id)
	}
	b.nodes[id] = nodeDef{id: id, executor: executor}
	return b
}

// AddEdge records a directed edge from → to, gated on cond if non-nil.
func (b *GraphBuilder) AddEdge(from, to string, cond EdgeCondition) *GraphBuilder {
	b.edges = append(b.edges, edge{from: from, to: to, cond: cond})
	return b
}

// SetEntryPoint overrides automatic entry-point detection.
func (b *GraphBuilder) SetEntryPoint(ids ...string) *GraphBuilder {
	b.entryPoints = ids
	return b
}

// SetMaxNodeExecutions bounds total executions across all nodes, counting
// re-executions from resetOnRevisit.
func (b *GraphBuilder) SetMaxNodeExecutions(n int) *GraphBuilder {
	b.maxNodeExecutions = n
	return b
}

// SetNodeTimeout bounds a single node execution; zero means no per-node
// timeout.
func (b *GraphBuilder) SetNodeTimeout(d time.Duration) *GraphBuilder {
	b.nodeTimeout = d
	return b
}

// SetExecutionTimeout bounds the whole graph run; zero means no timeout.
func (b *GraphBuilder) SetExecutionTimeout(d time.Duration) *GraphBuilder {
	b.executionTimeout = d
	return b
}

// ResetOnRevisit controls whether a cyclic edge re-entering a completed node
// re-runs it from its first-execution input snapshot.
func (b *GraphBuilder) ResetOnRevisit(v bool) *GraphBuilder {
	b.resetOnRevisit = v
	return b
}

// SetHookProviders attaches the hook provider BeforeNodeCallEvent /
// AfterNodeCallEvent / BeforeMultiAgentInvocationEvent /
// AfterMultiAgentInvocationEvent / MultiAgentInitializedEvent dispatch
// through.
func (b *GraphBuilder) SetHookProviders(p *hooks.Provider) *GraphBuilder {
	b.hookProvider = p
	return b
}

// SetSessionManager attaches an optional state-persistence backend.
func (b *GraphBuilder) SetSessionManager(m SessionManager) *GraphBuilder {
	b.sessionManager = m
	return b
}

// Build validates the graph (unknown edge endpoints, entry-point
// resolution) and dispatches MultiAgentInitializedEvent exactly once, at
// construction — not per Run/Stream call, so two successive runs of the
// same built Graph never re-fire it.
func (b *GraphBuilder) Build() (*Graph, error) {
	if len(b.nodes) == 0 {
		return nil, &GraphError{Reason: "graph has no nodes"}
	}

	incoming := make(map[string][]edge)
	for _, e := range b.edges {
		if _, ok := b.nodes[e.from]; !ok {
			return nil, &GraphError{Reason: fmt.Sprintf("edge references unknown node %q", e.from)}
		}
		if _, ok := b.nodes[e.to]; !ok {
			return nil, &GraphError{Reason: fmt.Sprintf("edge references unknown node %q", e.to)}
		}
		incoming[e.to] = append(incoming[e.to], e)
	}

	entryPoints := b.entryPoints
	if len(entryPoints) == 0 {
		for _, id := range b.order {
			if len(incoming[id]) == 0 {
				entryPoints = append(entryPoints, id)
			}
		}
	}
	if len(entryPoints) == 0 {
		return nil, &GraphError{Reason: "no entry point: every node has an incoming edge"}
	}
	for _, id := range entryPoints {
		if _, ok := b.nodes[id]; !ok {
			return nil, &GraphError{Reason: fmt.Sprintf("entry point references unknown node %q", id)}
		}
	}

	g := &Graph{
		nodes:             b.nodes,
		order:             append([]string(nil), b.order...),
		incoming:          incoming,
		entryPoints:       entryPoints,
		maxNodeExecutions: b.maxNodeExecutions,
		nodeTimeout:       b.nodeTimeout,
		executionTimeout:  b.executionTimeout,
		resetOnRevisit:    b.resetOnRevisit,
		hooks:             b.hookProvider,
		sessionManager:    b.sessionManager,
	}

	if g.hooks != nil {
		_ = hooks.Dispatch(context.Background(), g.hooks, hooks.MultiAgentInitializedEvent{Kind: "graph"})
	}

	return g, nil
}

// Graph is a built, runnable dependency-DAG multi-agent executor.
type Graph struct {
	nodes             map[string]nodeDef
	order             []string
	incoming          map[string][]edge
	entryPoints       []string
	maxNodeExecutions int
	nodeTimeout       time.Duration
	executionTimeout  time.Duration
	resetOnRevisit    bool
	hooks             *hooks.Provider
	sessionManager    SessionManager

	mu        sync.Mutex
	snapshots map[string][]blocks.ContentBlock
}

// RunNode lets a Graph itself serve as another graph's node — recursive
// composition. The nested result is summarized into a single AgentResult
// whose LastMessage text concatenates each completed node's AgentResult
// string, in the same deterministic dependency-completion order the nested
// graph itself produced its results.
func (g *Graph) RunNode(ctx context.Context, input []blocks.ContentBlock) (*blocks.AgentResult, error) {
	result, err := g.Run(ctx, input)
	if err != nil {
		return nil, err
	}

	stop := blocks.StopEndTurn
	switch result.Status {
	case multiagent.MultiAgentFailed:
		stop = blocks.StopMaxTokens
	case multiagent.MultiAgentInterrupted:
		stop = blocks.StopInterrupt
	}

	var text string
	for _, id := range g.order {
		nr, ok := result.Results[id]
		if !ok || nr.Result == nil {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += nr.Result.String()
	}

	return &blocks.AgentResult{
		StopReason:  stop,
		LastMessage: blocks.Message{Role: blocks.RoleAssistant, Content: blocks.ContentBlockList{blocks.TextBlock{Text: text}}},
	}, nil
}

// graphState is the shared, lock-guarded state edge conditions read and
// node completions write to.
type graphState struct {
	mu   sync.RWMutex
	vals map[string]any
}

func newGraphState() *graphState { return &graphState{vals: make(map[string]any)} }

func (s *graphState) set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = v
}

func (s *graphState) snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.vals))
	for k, v := range s.vals {
		out[k] = v
	}
	return out
}

// Run drives the graph to completion from the caller-supplied task input on
// every entry node, returning once every reachable node has settled or a
// failure mode aborts the run fail-fast.
func (g *Graph) Run(ctx context.Context, input []blocks.ContentBlock) (*multiagent.MultiAgentResult, error) {
	if g.executionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.executionTimeout)
		defer cancel()
	}

	if g.hooks != nil {
		_ = hooks.Dispatch(ctx, g.hooks, hooks.BeforeMultiAgentInvocationEvent{Kind: "graph"})
	}

	sched := &scheduler{
		graph:      g,
		state:      newGraphState(),
		results:    make(map[string]multiagent.NodeResult),
		executions: make(map[string]int),
		completed:  make(map[string]bool),
		input:      input,
	}

	status, failureReason := sched.run(ctx)

	result := &multiagent.MultiAgentResult{
		Status:        status,
		Results:       sched.snapshotResults(),
		FailureReason: failureReason,
	}

	if g.hooks != nil {
		_ = hooks.Dispatch(ctx, g.hooks, hooks.AfterMultiAgentInvocationEvent{Kind: "graph", Status: string(status)})
	}

	return result, nil
}

// scheduler holds one Run call's mutable state: which nodes have completed,
// how many times each has executed, and the accumulated results.
type scheduler struct {
	graph *Graph
	state *graphState
	input []blocks.ContentBlock

	mu            sync.Mutex
	results       map[string]multiagent.NodeResult
	executions    map[string]int
	completed     map[string]bool
	totalExecs    int
	failed        *GraphError
	failOnce      sync.Once
}

func (s *scheduler) snapshotResults() map[string]multiagent.NodeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]multiagent.NodeResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

func (s *scheduler) recordFailure(ge *GraphError) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.failed = ge
		s.mu.Unlock()
	})
}

func (s *scheduler) failure() *GraphError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// run executes the breadth-first dependency-gated schedule: each round
// finds every node whose predecessors are all complete and whose edge
// conditions hold, runs that round's nodes concurrently, then re-evaluates.
// The loop terminates when a round finds nothing new runnable, a failure is
// recorded, or the context is done.
func (s *scheduler) run(ctx context.Context) (multiagent.MultiAgentStatus, string) {
	for {
		if ctx.Err() != nil {
			return multiagent.MultiAgentFailed, "Execution timed out"
		}
		if ge := s.failure(); ge != nil {
			return multiagent.MultiAgentFailed, ge.Reason
		}

		runnable := s.runnableNodes()
		if len(runnable) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, id := range runnable {
			id := id
			s.mu.Lock()
			s.completed[id] = false // mark as "in flight" so it isn't picked twice this round
			s.mu.Unlock()

			wg.Add(1)
			go func() {
				defer wg.Done()
				s.runNode(ctx, id)
			}()
		}
		wg.Wait()
	}

	if ge := s.failure(); ge != nil {
		return multiagent.MultiAgentFailed, ge.Reason
	}
	return multiagent.MultiAgentCompleted, ""
}

// runnableNodes returns every node not yet completed (or, for
// resetOnRevisit, eligible for re-execution) whose incoming edges are all
// satisfied. Evaluating it repeatedly after each round is idempotent.
func (s *scheduler) runnableNodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state.snapshot()
	var runnable []string
	for _, id := range s.graph.order {
		if done, ok := s.completed[id]; ok && done {
			if !s.graph.resetOnRevisit {
				continue
			}
			if s.executions[id] >= s.graph.maxNodeExecutions {
				continue
			}
		} else if ok {
			continue // currently in flight
		}

		edges := s.graph.incoming[id]
		ready := true
		for _, e := range edges {
			if !s.completed[e.from] {
				ready = false
				break
			}
			if e.cond != nil && !e.cond(state) {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}

		// An already-completed node is only runnable again via
		// resetOnRevisit AND a satisfied incoming edge — entry nodes with
		// no incoming edges never re-fire once completed.
		if done := s.completed[id]; done && len(edges) == 0 {
			continue
		}

		runnable = append(runnable, id)
	}
	sort.Strings(runnable)
	return runnable
}

func (s *scheduler) buildNodeInput(id string) []blocks.ContentBlock {
	edges := s.graph.incoming[id]
	if len(edges) == 0 {
		return s.input
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var text string
	for _, e := range edges {
		nr, ok := s.results[e.from]
		if !ok || nr.Result == nil {
			continue
		}
		if text != "" {
			text += "\n\n"
		}
		text += fmt.Sprintf("[%s]: %s", e.from, nr.Result.String())
	}
	return []blocks.ContentBlock{blocks.TextBlock{Text: text}}
}

func (s *scheduler) runNode(ctx context.Context, id string) {
	node := s.graph.nodes[id]

	s.mu.Lock()
	s.totalExecs++
	if s.totalExecs > s.graph.maxNodeExecutions {
		s.mu.Unlock()
		s.recordFailure(&GraphError{Reason: "Max node executions", NodeID: id})
		return
	}
	s.executions[id]++
	s.mu.Unlock()

	var input []blocks.ContentBlock
	if s.graph.resetOnRevisit {
		s.mu.Lock()
		snap, ok := s.graph.snapshotFor(id)
		s.mu.Unlock()
		if ok {
			input = snap
		}
	}
	if input == nil {
		input = s.buildNodeInput(id)
		if s.graph.resetOnRevisit {
			s.mu.Lock()
			s.graph.storeSnapshot(id, input)
			s.mu.Unlock()
		}
	}

	if node.executor == nil {
		s.recordFailure(&GraphError{Reason: fmt.Sprintf("Unsupported executor type for node '%s'", id), NodeID: id})
		return
	}

	nodeCtx := ctx
	var cancel context.CancelFunc
	if s.graph.nodeTimeout > 0 {
		nodeCtx, cancel = context.WithTimeout(ctx, s.graph.nodeTimeout)
		defer cancel()
	}

	if s.graph.hooks != nil {
		_ = hooks.Dispatch(nodeCtx, s.graph.hooks, hooks.BeforeNodeCallEvent{NodeID: id})
	}

	result, err := node.executor.RunNode(nodeCtx, input)

	status := multiagent.NodeCompleted
	if err != nil {
		status = multiagent.NodeFailed
		if nodeCtx.Err() != nil {
			s.recordFailure(&GraphError{Reason: "node timed out", NodeID: id, Err: nodeCtx.Err()})
		} else {
			s.recordFailure(&GraphError{Reason: "node error", NodeID: id, Err: err})
		}
	} else if result != nil && result.StopReason == blocks.StopInterrupt {
		status = multiagent.NodeInterrupted
	}

	nr := multiagent.NodeResult{NodeID: id, Result: result, Status: status, Err: err}

	if s.graph.hooks != nil {
		_ = hooks.Dispatch(nodeCtx, s.graph.hooks, hooks.AfterNodeCallEvent{NodeID: id, Status: string(status)})
	}

	s.mu.Lock()
	s.results[id] = nr
	s.completed[id] = true
	s.mu.Unlock()

	s.state.set(id, nr)
}

func (g *Graph) snapshotFor(id string) ([]blocks.ContentBlock, bool) {
	if g.snapshots == nil {
		return nil, false
	}
	v, ok := g.snapshots[id]
	return v, ok
}

func (g *Graph) storeSnapshot(id string, input []blocks.ContentBlock) {
	if g.snapshots == nil {
		g.snapshots = make(map[string][]blocks.ContentBlock)
	}
	if _, exists := g.snapshots[id]; exists {
		return
	}
	g.snapshots[id] = input
}
