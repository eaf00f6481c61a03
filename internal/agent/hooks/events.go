package hooks

import (
	"encoding/json"

	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// BeforeInvocationEvent fires once at the start of every Agent.Invoke/Stream.
type BeforeInvocationEvent struct {
	RunID string
}

func (BeforeInvocationEvent) ReverseOrdered() bool { return false }

// AfterInvocationEvent fires on every exit path of a run, including errors,
// via the loop's scope guard. Handlers run LIFO relative to Before* setup
// hooks that paired with this invocation.
type AfterInvocationEvent struct {
	RunID string
	Err   error
}

func (AfterInvocationEvent) ReverseOrdered() bool { return true }

// BeforeModelCallEvent carries a snapshot of the conversation as it stood
// immediately before the model call — observers must not see later mutations.
type BeforeModelCallEvent struct {
	Messages []blocks.Message
}

func (BeforeModelCallEvent) ReverseOrdered() bool { return false }

// AfterModelCallEvent carries the assembled message and its normalized stop
// reason once a model turn completes.
type AfterModelCallEvent struct {
	Message    blocks.Message
	StopReason blocks.StopReason
}

func (AfterModelCallEvent) ReverseOrdered() bool { return true }

// InterruptFunc is the callback a BeforeToolCallEvent hook uses to pause the
// loop, bound by the loop to the active interrupt.State without hooks
// importing the interrupt package directly.
type InterruptFunc func(name, reason string) (json.RawMessage, error)

// BeforeToolCallEvent fires once per tool use before execution. A handler
// may cancel the call by writing to *Canceled/*CancelReason, or pause the
// loop by invoking Interrupt.
type BeforeToolCallEvent struct {
	ToolUse      blocks.ToolUseBlock
	Canceled     *bool
	CancelReason *string
	Interrupt    InterruptFunc
}

func (BeforeToolCallEvent) ReverseOrdered() bool { return false }

// AfterToolCallEvent fires once per tool use after its result is known.
type AfterToolCallEvent struct {
	ToolUse blocks.ToolUseBlock
	Result  blocks.ToolResultBlock
}

func (AfterToolCallEvent) ReverseOrdered() bool { return true }

// MultiAgentInitializedEvent fires once when a graph or swarm finishes
// construction, before any node executes.
type MultiAgentInitializedEvent struct {
	Kind string // "graph" | "swarm"
}

func (MultiAgentInitializedEvent) ReverseOrdered() bool { return false }

// BeforeMultiAgentInvocationEvent fires once per graph/swarm Run call.
type BeforeMultiAgentInvocationEvent struct {
	Kind string
}

func (BeforeMultiAgentInvocationEvent) ReverseOrdered() bool { return false }

// AfterMultiAgentInvocationEvent fires once per graph/swarm Run call, on
// every exit path.
type AfterMultiAgentInvocationEvent struct {
	Kind   string
	Status string
}

func (AfterMultiAgentInvocationEvent) ReverseOrdered() bool { return true }

// BeforeNodeCallEvent fires once per node execution within a graph or swarm.
type BeforeNodeCallEvent struct {
	NodeID string
}

func (BeforeNodeCallEvent) ReverseOrdered() bool { return false }

// AfterNodeCallEvent fires once per node execution within a graph or swarm.
type AfterNodeCallEvent struct {
	NodeID string
	Status string
}

func (AfterNodeCallEvent) ReverseOrdered() bool { return true }
