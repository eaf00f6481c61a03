package agent

import "encoding/json"

// AgentConfig holds the generation parameters and identity an Agent applies
// to every CompletionRequest it builds, mirroring the teacher's per-agent
// model/system/sampling configuration but scoped down to what CompletionRequest
// needs rather than the teacher's full provider-selection config.
type AgentConfig struct {
	// ID identifies this agent within hook dispatch, tracing, and — for
	// swarm members — handoff routing. Required.
	ID string

	// Model is the provider-specific model identifier.
	Model string

	// System is the system prompt prefixed to every turn.
	System string

	// MaxTokens bounds each model call's output.
	MaxTokens int

	// Temperature controls sampling randomness; 0 means the provider default.
	Temperature float64

	// StructuredOutputSchema, if set, requests the model constrain its final
	// response to this JSON Schema. Resuming from an interrupt is rejected
	// while this is configured, per interrupt.ErrResumeWithStructuredOutput.
	StructuredOutputSchema json.RawMessage

	// Loop bounds the turn cycle; nil uses DefaultLoopConfig.
	Loop *LoopConfig
}
