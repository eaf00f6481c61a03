// Package swarm implements the handoff-driven multi-agent executor: one
// agent runs to completion at a time, and may transfer control to a named
// peer by calling the handoff_to_agent coordination tool installed on every
// member at registration.
//
// Grounded directly on the teacher's internal/multiagent/handoff_tool.go
// (HandoffTool, HandoffRequest, target-lookup-by-ID-or-name, self-handoff
// rejection) and the history-tracking idea in internal/multiagent/router.go,
// but rewritten so the coordination tool carries the spec's fixed name
// handoff_to_agent instead of the teacher's generic "handoff", and installed
// directly through ToolRegistry.RegisterReserved rather than the teacher's
// Orchestrator-mediated tool wiring.
package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/agentrt/internal/agent"
	"github.com/haasonsaas/agentrt/internal/agent/hooks"
	"github.com/haasonsaas/agentrt/internal/jsonschema"
	"github.com/haasonsaas/agentrt/internal/multiagent"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// SharedContext is the JSON-valued per-key map swarm members' tools can read
// and write through their ToolContext. Values written through SetValidated
// are checked against a caller-supplied JSON Schema via internal/jsonschema
// before being stored; plain Set skips validation for callers that don't
// need it.
type SharedContext struct {
	mu        sync.RWMutex
	vals      map[string]json.RawMessage
	validator *jsonschema.Validator
}

// NewSharedContext returns an empty shared context.
func NewSharedContext() *SharedContext {
	return &SharedContext{vals: make(map[string]json.RawMessage), validator: jsonschema.NewValidator()}
}

// Set stores a value under key, overwriting any prior value.
func (c *SharedContext) Set(key string, value json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[key] = value
}

// SetValidated stores value under key only if it satisfies schema, leaving
// any prior value under key untouched on validation failure.
func (c *SharedContext) SetValidated(key string, value json.RawMessage, schema json.RawMessage) error {
	if err := c.validator.Validate(schema, value); err != nil {
		return fmt.Errorf("shared context value for %q: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[key] = value
	return nil
}

// Get returns the value stored under key, if any.
func (c *SharedContext) Get(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vals[key]
	return v, ok
}

// HistoryEntry records one node's turn within a swarm run, in execution
// order — the basis for repetitive-handoff detection.
type HistoryEntry struct {
	NodeID string
	Result multiagent.NodeResult
}

// EntryPointSelector picks the starting node from the caller-supplied task,
// for swarms that don't declare a fixed EntryPoint — an optional strategy
// point the spec leaves open ("some way to choose the start node").
type EntryPointSelector func(task []blocks.ContentBlock) string

// Swarm is a set of member agents, one entry, coordinating via handoffs.
type Swarm struct {
	Nodes         map[string]*agent.Agent
	EntryPoint    string
	SharedContext *SharedContext

	MaxHandoffs      int
	MaxIterations    int
	ExecutionTimeout time.Duration

	// RepetitiveHandoffDetectionWindow <= 0 disables the check.
	RepetitiveHandoffDetectionWindow int
	RepetitiveHandoffMinUniqueAgents int

	EntryPointSelector EntryPointSelector

	hooks *hooks.Provider

	handoffSigs map[string]*handoffSignal
}

// SwarmError surfaces the named failure reasons spec.md §4.8 requires:
// "Repetitive handoff", an execution timeout, or a node error.
type SwarmError struct {
	Reason string
	NodeID string
	Err    error
}

func (e *SwarmError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("swarm: %s (node %q): %v", e.Reason, e.NodeID, e.Err)
	}
	return fmt.Sprintf("swarm: %s", e.Reason)
}

func (e *SwarmError) Unwrap() error { return e.Err }

// New constructs a Swarm and installs the handoff_to_agent coordination tool
// on every member's registry. It dispatches MultiAgentInitializedEvent
// exactly once, at construction.
func New(nodes map[string]*agent.Agent, entryPoint string, opts ...Option) (*Swarm, error) {
	if len(nodes) == 0 {
		return nil, &SwarmError{Reason: "swarm has no member agents"}
	}

	s := &Swarm{
		Nodes:            nodes,
		EntryPoint:       entryPoint,
		SharedContext:    NewSharedContext(),
		MaxHandoffs:      25,
		MaxIterations:    50,
		handoffSigs:      make(map[string]*handoffSignal),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.EntryPoint == "" && s.EntryPointSelector == nil {
		return nil, &SwarmError{Reason: "no entry point and no EntryPointSelector"}
	}
	if s.EntryPoint != "" {
		if _, ok := s.Nodes[s.EntryPoint]; !ok {
			return nil, &SwarmError{Reason: fmt.Sprintf("entry point references unknown node %q", s.EntryPoint)}
		}
	}

	for id, a := range nodes {
		sig := &handoffSignal{}
		s.handoffSigs[id] = sig
		tool := newHandoffTool(id, s, sig)
		if err := a.Loop().Registry().RegisterReserved(tool); err != nil {
			return nil, fmt.Errorf("swarm: installing handoff tool for %q: %w", id, err)
		}
	}

	if s.hooks != nil {
		_ = hooks.Dispatch(context.Background(), s.hooks, hooks.MultiAgentInitializedEvent{Kind: "swarm"})
	}

	return s, nil
}

// Option configures a Swarm at construction.
type Option func(*Swarm)

func WithMaxHandoffs(n int) Option           { return func(s *Swarm) { s.MaxHandoffs = n } }
func WithMaxIterations(n int) Option         { return func(s *Swarm) { s.MaxIterations = n } }
func WithExecutionTimeout(d time.Duration) Option { return func(s *Swarm) { s.ExecutionTimeout = d } }
func WithRepetitiveHandoffDetection(window, minUniqueAgents int) Option {
	return func(s *Swarm) {
		s.RepetitiveHandoffDetectionWindow = window
		s.RepetitiveHandoffMinUniqueAgents = minUniqueAgents
	}
}
func WithEntryPointSelector(sel EntryPointSelector) Option { return func(s *Swarm) { s.EntryPointSelector = sel } }
func WithHookProvider(p *hooks.Provider) Option            { return func(s *Swarm) { s.hooks = p } }

// Run drives the swarm from task, starting at EntryPoint (or the node
// EntryPointSelector picks), following handoffs until a member completes
// without handing off, a limit is exceeded, or a node errors.
func (s *Swarm) Run(ctx context.Context, task []blocks.ContentBlock) (*multiagent.MultiAgentResult, error) {
	if s.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ExecutionTimeout)
		defer cancel()
	}

	if s.hooks != nil {
		_ = hooks.Dispatch(ctx, s.hooks, hooks.BeforeMultiAgentInvocationEvent{Kind: "swarm"})
	}

	current := s.EntryPoint
	if current == "" {
		current = s.EntryPointSelector(task)
	}

	var history []HistoryEntry
	results := make(map[string]multiagent.NodeResult)
	handoffCount := 0

	var input agent.AgentInput = agent.BlocksInput(task)
	var status multiagent.MultiAgentStatus
	var failureReason string

	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil {
			status, failureReason = multiagent.MultiAgentFailed, "Execution timed out"
			break
		}
		if iteration >= s.MaxIterations {
			status, failureReason = multiagent.MultiAgentFailed, "Max iterations exceeded"
			break
		}

		node, ok := s.Nodes[current]
		if !ok {
			status, failureReason = multiagent.MultiAgentFailed, fmt.Sprintf("unknown node %q", current)
			break
		}

		if s.hooks != nil {
			_ = hooks.Dispatch(ctx, s.hooks, hooks.BeforeNodeCallEvent{NodeID: current})
		}

		result, err := node.Invoke(ctx, input)

		nodeStatus := multiagent.NodeCompleted
		if err != nil {
			nodeStatus = multiagent.NodeFailed
		} else if result.StopReason == blocks.StopInterrupt {
			nodeStatus = multiagent.NodeInterrupted
		}
		nr := multiagent.NodeResult{NodeID: current, Result: result, Status: nodeStatus, Err: err}
		results[current] = nr
		history = append(history, HistoryEntry{NodeID: current, Result: nr})

		if s.hooks != nil {
			_ = hooks.Dispatch(ctx, s.hooks, hooks.AfterNodeCallEvent{NodeID: current, Status: string(nodeStatus)})
		}

		if err != nil {
			status, failureReason = multiagent.MultiAgentFailed, fmt.Sprintf("node %q error: %v", current, err)
			break
		}
		if nodeStatus == multiagent.NodeInterrupted {
			status = multiagent.MultiAgentInterrupted
			break
		}

		target, message, handedOff := s.handoffSigs[current].take()
		if !handedOff {
			status = multiagent.MultiAgentCompleted
			break
		}

		handoffCount++
		if handoffCount > s.MaxHandoffs {
			status, failureReason = multiagent.MultiAgentFailed, "Max handoffs exceeded"
			break
		}

		if s.repetitive(history) {
			status, failureReason = multiagent.MultiAgentFailed, "Repetitive handoff"
			break
		}

		current = target
		input = agent.PromptInput(message)
	}

	result := &multiagent.MultiAgentResult{Status: status, Results: results, FailureReason: failureReason}

	if s.hooks != nil {
		_ = hooks.Dispatch(ctx, s.hooks, hooks.AfterMultiAgentInvocationEvent{Kind: "swarm", Status: string(status)})
	}

	return result, nil
}

// repetitive checks spec.md §4.8's window rule: if the last N history
// entries contain fewer than M unique agents, the swarm is looping. A
// non-positive window disables the check (the Open Question resolution
// DESIGN.md records).
func (s *Swarm) repetitive(history []HistoryEntry) bool {
	window := s.RepetitiveHandoffDetectionWindow
	if window <= 0 || len(history) < window {
		return false
	}
	recent := history[len(history)-window:]
	unique := make(map[string]struct{}, window)
	for _, h := range recent {
		unique[h.NodeID] = struct{}{}
	}
	return len(unique) < s.RepetitiveHandoffMinUniqueAgents
}

// handoffSignal carries one recorded handoff request from a HandoffTool
// execution back to the Swarm scheduling loop, mirroring the teacher's
// "serialize the handoff request for the orchestrator to process" design —
// the tool call itself cannot change control flow, so it leaves a record the
// caller reads after the agent's turn completes.
type handoffSignal struct {
	mu      sync.Mutex
	target  string
	message string
	set     bool
}

func (s *handoffSignal) record(target, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target, s.message, s.set = target, message, true
}

func (s *handoffSignal) take() (target, message string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, message, ok = s.target, s.message, s.set
	s.target, s.message, s.set = "", "", false
	return
}

// handoffInput is the JSON input schema for handoff_to_agent.
type handoffInput struct {
	AgentName string `json:"agent_name"`
	Message   string `json:"message"`
}

// handoffTool is installed on every member's registry under the reserved
// name agent.ReservedToolName ("handoff_to_agent"). Grounded on the
// teacher's HandoffTool.Execute: validates the target, rejects self-handoff,
// and on success records the request for the swarm loop rather than
// attempting to change control flow itself.
type handoffTool struct {
	selfID string
	swarm  *Swarm
	signal *handoffSignal
}

func newHandoffTool(selfID string, s *Swarm, sig *handoffSignal) *handoffTool {
	return &handoffTool{selfID: selfID, swarm: s, signal: sig}
}

func (h *handoffTool) Name() string { return agent.ReservedToolName }

func (h *handoffTool) Description() string {
	var peers strings.Builder
	for id := range h.swarm.Nodes {
		if id == h.selfID {
			continue
		}
		peers.WriteString(fmt.Sprintf("\n- %s", id))
	}
	return fmt.Sprintf("Transfer control to another agent in this swarm when the task needs their specialization. Available agents:%s", peers.String())
}

func (h *handoffTool) InputSchema() json.RawMessage {
	names := make([]string, 0, len(h.swarm.Nodes)-1)
	for id := range h.swarm.Nodes {
		if id != h.selfID {
			names = append(names, id)
		}
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": map[string]any{
				"type": "string",
				"enum": names,
			},
			"message": map[string]any{
				"type":        "string",
				"description": "What the receiving agent should do, including any context it needs",
			},
		},
		"required": []string{"agent_name", "message"},
	}
	data, _ := json.Marshal(schema)
	return data
}

func (h *handoffTool) Execute(ctx context.Context, input json.RawMessage) (blocks.ToolResultBlock, error) {
	var in handoffInput
	if err := json.Unmarshal(input, &in); err != nil {
		return blocks.NewErrorToolResult("", fmt.Sprintf("invalid handoff input: %v", err)), nil
	}

	target := strings.TrimSpace(in.AgentName)
	if target == h.selfID {
		return blocks.NewErrorToolResult("", "cannot hand off to yourself"), nil
	}
	if _, ok := h.swarm.Nodes[target]; !ok {
		names := make([]string, 0, len(h.swarm.Nodes))
		for id := range h.swarm.Nodes {
			names = append(names, id)
		}
		return blocks.NewErrorToolResult("", fmt.Sprintf("target agent not found: %s. Available agents: %s", target, strings.Join(names, ", "))), nil
	}

	h.signal.record(target, in.Message)
	return blocks.NewSuccessTextResult("", fmt.Sprintf("handoff to %s initiated", target)), nil
}
