package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/agentrt/internal/agent/stream"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// ToolDefinition is the wire-facing shape of a Tool handed to a provider —
// everything the model needs to decide whether and how to call it, with the
// executable Execute method stripped out.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// toolDefinitions snapshots a registry's tools into their wire shape, in
// registration order, so providers see a stable tool list across a turn.
func toolDefinitions(tools []Tool) []ToolDefinition {
	defs := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = ToolDefinition{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()}
	}
	return defs
}

// CompletionRequest is everything one model turn needs: the full message
// history (the provider is stateless across calls), the tool set the model
// may invoke, and the generation parameters in force for this agent.
type CompletionRequest struct {
	Model                  string
	System                 string
	Messages               []blocks.Message
	Tools                  []ToolDefinition
	MaxTokens              int
	Temperature            float64
	StructuredOutputSchema json.RawMessage
}

// Provider is the boundary between the loop and a concrete model backend
// (internal/provider/anthropic, internal/provider/openai, ...). StreamChat
// returns immediately with a live event channel; the provider closes it when
// the turn's events are exhausted or ctx is cancelled.
type Provider interface {
	StreamChat(ctx context.Context, req CompletionRequest) (<-chan stream.ProviderEvent, error)
}
