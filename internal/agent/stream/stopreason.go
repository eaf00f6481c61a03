package stream

import "github.com/haasonsaas/agentrt/pkg/blocks"

// providerStopReasons maps the raw strings seen across the reference
// providers (internal/provider/anthropic, internal/provider/openai) to the
// canonical set in blocks.StopReason. Unrecognized strings pass through
// unchanged so a new provider's terminology is still observable rather than
// silently coerced.
var providerStopReasons = map[string]blocks.StopReason{
	"end_turn":        blocks.StopEndTurn,
	"endTurn":         blocks.StopEndTurn,
	"stop":            blocks.StopEndTurn,
	"tool_use":        blocks.StopToolUse,
	"toolUse":         blocks.StopToolUse,
	"tool_calls":      blocks.StopToolUse,
	"max_tokens":      blocks.StopMaxTokens,
	"maxTokens":       blocks.StopMaxTokens,
	"length":          blocks.StopMaxTokens,
	"stop_sequence":   blocks.StopSequence,
	"stopSequence":    blocks.StopSequence,
	"content_filter":  blocks.StopContentFiltered,
	"contentFiltered": blocks.StopContentFiltered,
	"guardrail":       blocks.StopGuardrailIntervened,
	"model_context_window_exceeded": blocks.StopModelContextWindowExceeded,
}

// NormalizeStopReason maps a provider-specific stop string to the canonical
// set, passing through unrecognized values unchanged.
func NormalizeStopReason(raw string) blocks.StopReason {
	if norm, ok := providerStopReasons[raw]; ok {
		return norm
	}
	return blocks.StopReason(raw)
}
