// Package stream assembles a provider's flat streaming event sequence into
// a blocks.Message, normalizing stop reasons and resolving content-block
// kinds as they arrive. Grounded on the channel-of-chunks pattern in the
// teacher's provider_types.go/providers/anthropic.go processStream, widened
// from a single flat chunk type to the full provider event set.
package stream

import (
	"encoding/json"

	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// EventKind discriminates the concrete type behind a ProviderEvent.
type EventKind string

const (
	EventMessageStart      EventKind = "message_start"
	EventContentBlockStart EventKind = "content_block_start"
	EventContentBlockDelta EventKind = "content_block_delta"
	EventContentBlockStop  EventKind = "content_block_stop"
	EventMessageStop       EventKind = "message_stop"
	EventMetadata          EventKind = "metadata"
)

// ProviderEvent is the sum type a Provider emits and the assembler both
// consumes and forwards unchanged to callers.
type ProviderEvent interface {
	Kind() EventKind
}

// MessageStartEvent opens a new assistant message.
type MessageStartEvent struct {
	Role blocks.MessageRole
}

func (MessageStartEvent) Kind() EventKind { return EventMessageStart }

// ToolUseStart carries the tool identity when a content block is a tool use.
type ToolUseStart struct {
	Name      string
	ToolUseID string
}

// ContentBlockStartEvent opens a new content block at Index. Start is
// non-nil only when the upcoming block is a tool use.
type ContentBlockStartEvent struct {
	Index int
	Start *ToolUseStart
}

func (ContentBlockStartEvent) Kind() EventKind { return EventContentBlockStart }

// Delta is the sum type of incremental content a block accumulates.
type Delta interface {
	deltaKind() string
}

// TextDelta is an incremental fragment of plain text.
type TextDelta struct {
	Text string
}

func (TextDelta) deltaKind() string { return "text" }

// ReasoningDelta is an incremental fragment of chain-of-thought content.
type ReasoningDelta struct {
	Text            string
	Signature       string
	RedactedContent []byte
}

func (ReasoningDelta) deltaKind() string { return "reasoning" }

// ToolUseInputDelta is a fragment of a tool use's JSON input, accumulated
// as raw text until ContentBlockStopEvent parses the full buffer.
type ToolUseInputDelta struct {
	Input string
}

func (ToolUseInputDelta) deltaKind() string { return "tool_use_input" }

// ContentBlockDeltaEvent carries one incremental update for the block at Index.
type ContentBlockDeltaEvent struct {
	Index int
	Delta Delta
}

func (ContentBlockDeltaEvent) Kind() EventKind { return EventContentBlockDelta }

// ContentBlockStopEvent closes the block at Index; the assembler finalizes
// its accumulated content into a blocks.ContentBlock at this point.
type ContentBlockStopEvent struct {
	Index int
}

func (ContentBlockStopEvent) Kind() EventKind { return EventContentBlockStop }

// MessageStopEvent closes the message with the provider's raw stop reason.
type MessageStopEvent struct {
	StopReason              string
	AdditionalResponseFields json.RawMessage
}

func (MessageStopEvent) Kind() EventKind { return EventMessageStop }

// MetadataEvent carries usage/metrics/trace data that updates the metrics
// collector but never affects the assembled message.
type MetadataEvent struct {
	Usage   blocks.Usage
	Metrics map[string]any
	Trace   json.RawMessage
}

func (MetadataEvent) Kind() EventKind { return EventMetadata }
