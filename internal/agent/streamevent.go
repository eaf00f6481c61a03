package agent

import (
	"github.com/haasonsaas/agentrt/internal/agent/stream"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// StreamEventKind discriminates the concrete type behind a StreamEvent.
type StreamEventKind string

const (
	SEKindBeforeInvocation StreamEventKind = "before_invocation"
	SEKindBeforeModel      StreamEventKind = "before_model"
	SEKindProvider         StreamEventKind = "provider"
	SEKindAfterModel       StreamEventKind = "after_model"
	SEKindBeforeTools      StreamEventKind = "before_tools"
	SEKindToolResult       StreamEventKind = "tool_result"
	SEKindAfterTools       StreamEventKind = "after_tools"
	SEKindAfterInvocation  StreamEventKind = "after_invocation"
)

// StreamEvent is the sum type the loop emits on its output channel — every
// event §4.2 names in turn-cycle order, not just the provider passthrough.
type StreamEvent interface {
	StreamKind() StreamEventKind
}

// BeforeInvocationStreamEvent fires once per Run, before the first cycle.
type BeforeInvocationStreamEvent struct{ RunID string }

func (BeforeInvocationStreamEvent) StreamKind() StreamEventKind { return SEKindBeforeInvocation }

// BeforeModelStreamEvent carries the exact message snapshot passed to the
// model for this cycle — a copy, per the "observers must not see later
// mutations" contract.
type BeforeModelStreamEvent struct{ Messages []blocks.Message }

func (BeforeModelStreamEvent) StreamKind() StreamEventKind { return SEKindBeforeModel }

// ProviderStreamEvent wraps one passthrough event from the streaming
// assembler.
type ProviderStreamEvent struct{ Event stream.ProviderEvent }

func (ProviderStreamEvent) StreamKind() StreamEventKind { return SEKindProvider }

// AfterModelStreamEvent carries the assembled message and normalized stop
// reason once a cycle's model call completes.
type AfterModelStreamEvent struct {
	Message    blocks.Message
	StopReason blocks.StopReason
}

func (AfterModelStreamEvent) StreamKind() StreamEventKind { return SEKindAfterModel }

// BeforeToolsStreamEvent fires once per cycle that has tool uses to run.
type BeforeToolsStreamEvent struct{ AssistantMessage blocks.Message }

func (BeforeToolsStreamEvent) StreamKind() StreamEventKind { return SEKindBeforeTools }

// ToolResultStreamEvent fires once per completed tool use, in block order.
type ToolResultStreamEvent struct{ Result blocks.ToolResultBlock }

func (ToolResultStreamEvent) StreamKind() StreamEventKind { return SEKindToolResult }

// AfterToolsStreamEvent carries the assembled user message of tool results
// once every tool use in the cycle has completed.
type AfterToolsStreamEvent struct{ ToolResultMessage blocks.Message }

func (AfterToolsStreamEvent) StreamKind() StreamEventKind { return SEKindAfterTools }

// AfterInvocationStreamEvent fires on every exit path of Run, including
// errors and interrupt pauses, via the loop's scope guard.
type AfterInvocationStreamEvent struct {
	RunID string
	Err   error
}

func (AfterInvocationStreamEvent) StreamKind() StreamEventKind { return SEKindAfterInvocation }
