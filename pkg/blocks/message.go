package blocks

import (
	"encoding/json"
	"strings"
)

// MessageRole is the author of a Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn of a conversation. Messages are append-only: the core
// never mutates a committed message in place, only appends new ones.
type Message struct {
	Role    MessageRole  `json:"role"`
	Content ContentBlockList `json:"content"`
}

// ToolUses returns every ToolUseBlock in the message, in block order.
func (m Message) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, b := range m.Content {
		if tu, ok := b.(ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// ToolResults returns every ToolResultBlock in the message, in block order.
func (m Message) ToolResults() []ToolResultBlock {
	var out []ToolResultBlock
	for _, b := range m.Content {
		if tr, ok := b.(ToolResultBlock); ok {
			out = append(out, tr)
		}
	}
	return out
}

// NewUserMessage builds a user message from a single text block, the
// common entry point for prompt-string input.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: ContentBlockList{TextBlock{Text: text}}}
}

// NewToolResultMessage assembles the user message committed after tool
// execution, preserving the input order of the results.
func NewToolResultMessage(results []ToolResultBlock) Message {
	content := make(ContentBlockList, len(results))
	for i, r := range results {
		content[i] = r
	}
	return Message{Role: RoleUser, Content: content}
}

// StopReason is the normalized terminal condition of a model turn.
type StopReason string

const (
	StopEndTurn                    StopReason = "endTurn"
	StopToolUse                    StopReason = "toolUse"
	StopMaxTokens                  StopReason = "maxTokens"
	StopSequence                   StopReason = "stopSequence"
	StopContentFiltered            StopReason = "contentFiltered"
	StopGuardrailIntervened        StopReason = "guardrailIntervened"
	StopModelContextWindowExceeded StopReason = "modelContextWindowExceeded"
	StopInterrupt                  StopReason = "interrupt"
)

// Usage is token accounting for a single model invocation or an aggregated
// session. Invariant: TotalTokens == InputTokens + OutputTokens.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
}

// Add accumulates another Usage into u, keeping the TotalTokens invariant.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
}

// InterruptResponse is a single resume item the caller supplies to
// Agent.Invoke/Stream when continuing a paused run.
type InterruptResponse struct {
	InterruptID string          `json:"interrupt_id"`
	Response    json.RawMessage `json:"response"`
}

// AgentResult is the terminal value of an agent run.
type AgentResult struct {
	StopReason       StopReason              `json:"stop_reason"`
	LastMessage      Message                 `json:"last_message"`
	Interrupts       []InterruptSummary      `json:"interrupts,omitempty"`
	StructuredOutput json.RawMessage         `json:"structured_output,omitempty"`
	Usage            Usage                   `json:"usage"`
}

// InterruptSummary is the subset of an Interrupt surfaced on AgentResult.
type InterruptSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

const reasoningMarker = "[reasoning] "

// String implements §4.1's rendering rule: structured output JSON if
// present, else the concatenation of text/reasoning blocks from the last
// assistant message, reasoning prefixed with a fixed marker, empty when only
// tool uses remain.
func (r AgentResult) String() string {
	if len(r.StructuredOutput) > 0 {
		return string(r.StructuredOutput)
	}
	var sb strings.Builder
	for _, b := range r.LastMessage.Content {
		switch v := b.(type) {
		case TextBlock:
			sb.WriteString(v.Text)
		case ReasoningBlock:
			sb.WriteString(reasoningMarker)
			sb.WriteString(v.Text)
		}
	}
	return sb.String()
}
