// Package multiagent provides the shared node-result algebra and
// serialization shape the graph and swarm executors build on. Grounded on
// the teacher's HandoffRequest/SharedContext struct style in
// internal/multiagent/types.go, restructured around node results instead of
// the teacher's rule-based HandoffRule/RoutingTrigger config model.
package multiagent

import (
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// NodeStatus is the terminal or in-flight state of one node's execution.
type NodeStatus string

const (
	NodePending     NodeStatus = "pending"
	NodeExecuting   NodeStatus = "executing"
	NodeCompleted   NodeStatus = "completed"
	NodeFailed      NodeStatus = "failed"
	NodeInterrupted NodeStatus = "interrupted"
)

// NodeResult is the outcome of running one agent within a graph or swarm.
type NodeResult struct {
	NodeID string             `json:"node_id"`
	Result *blocks.AgentResult `json:"result,omitempty"`
	Status NodeStatus         `json:"status"`
	Err    error              `json:"-"`
}

// ErrString returns Err's message for serialization, since error does not
// itself round-trip through JSON.
func (n NodeResult) ErrString() string {
	if n.Err == nil {
		return ""
	}
	return n.Err.Error()
}

// MultiAgentStatus is the terminal state of an entire graph or swarm run.
type MultiAgentStatus string

const (
	MultiAgentCompleted   MultiAgentStatus = "completed"
	MultiAgentFailed      MultiAgentStatus = "failed"
	MultiAgentInterrupted MultiAgentStatus = "interrupted"
)

// MultiAgentResult is the terminal value of a graph or swarm Run call.
type MultiAgentResult struct {
	Status        MultiAgentStatus      `json:"status"`
	Results       map[string]NodeResult `json:"results"`
	FailureReason string                `json:"failure_reason,omitempty"`
}

// wireNodeResult is the JSON-safe projection of a NodeResult — Err becomes a
// plain string since the error interface does not marshal.
type wireNodeResult struct {
	NodeID string              `json:"node_id"`
	Result *blocks.AgentResult `json:"result,omitempty"`
	Status NodeStatus          `json:"status"`
	Err    string              `json:"err,omitempty"`
}

// wireMultiAgentResult is the discriminated-union wire shape persisted by
// SerializeState: {"type": "graph"|"swarm", ...} mirrors the teacher's
// consistent json+yaml dual-tagging of config structs, generalized to a
// single discriminator field instead of a second parallel tag set.
type wireMultiAgentResult struct {
	Type          string                    `json:"type"`
	Status        MultiAgentStatus          `json:"status"`
	Results       map[string]wireNodeResult `json:"results"`
	FailureReason string                    `json:"failure_reason,omitempty"`
}

// SerializeState encodes r as the discriminated {"type": kind, ...} JSON
// shape, where kind is "graph" or "swarm" — the persisted form a caller can
// store alongside a paused run's interrupt state and use to resume later.
func (r MultiAgentResult) SerializeState(kind string) ([]byte, error) {
	wire := wireMultiAgentResult{
		Type:          kind,
		Status:        r.Status,
		FailureReason: r.FailureReason,
		Results:       make(map[string]wireNodeResult, len(r.Results)),
	}
	for id, nr := range r.Results {
		wire.Results[id] = wireNodeResult{
			NodeID: nr.NodeID,
			Result: nr.Result,
			Status: nr.Status,
			Err:    nr.ErrString(),
		}
	}
	return json.Marshal(wire)
}

// DeserializeState decodes data produced by SerializeState, reconstructing
// Err as a plain error value (losing any original type information — callers
// that need to distinguish error kinds should inspect Status instead).
func DeserializeState(data []byte) (kind string, result MultiAgentResult, err error) {
	var wire wireMultiAgentResult
	if err := json.Unmarshal(data, &wire); err != nil {
		return "", MultiAgentResult{}, fmt.Errorf("multiagent: decode state: %w", err)
	}

	result = MultiAgentResult{
		Status:        wire.Status,
		FailureReason: wire.FailureReason,
		Results:       make(map[string]NodeResult, len(wire.Results)),
	}
	for id, wnr := range wire.Results {
		nr := NodeResult{NodeID: wnr.NodeID, Result: wnr.Result, Status: wnr.Status}
		if wnr.Err != "" {
			nr.Err = fmt.Errorf("%s", wnr.Err)
		}
		result.Results[id] = nr
	}
	return wire.Type, result, nil
}
