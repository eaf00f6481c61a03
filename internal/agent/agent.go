package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/agentrt/internal/agent/hooks"
	"github.com/haasonsaas/agentrt/internal/agent/interrupt"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// AgentInputKind discriminates the concrete type behind an AgentInput.
type AgentInputKind string

const (
	AgentInputPrompt AgentInputKind = "prompt"
	AgentInputBlocks AgentInputKind = "blocks"
	AgentInputResume AgentInputKind = "resume"
)

// AgentInput is the closed sum type Agent.Invoke/Stream accepts: a plain
// text prompt, a richer multi-block user turn, or a batch of interrupt
// responses continuing a paused run. Grounded on the teacher's
// CompletionRequest builder, narrowed to exactly the three shapes a turn
// can start from.
type AgentInput interface {
	agentInputKind() AgentInputKind
}

// PromptInput starts a turn from a single text message.
type PromptInput string

func (PromptInput) agentInputKind() AgentInputKind { return AgentInputPrompt }

// BlocksInput starts a turn from an arbitrary user-authored content block
// list (text, images, documents, ...).
type BlocksInput []blocks.ContentBlock

func (BlocksInput) agentInputKind() AgentInputKind { return AgentInputBlocks }

// ResumeInput continues a run that previously paused, supplying one
// response per outstanding interrupt.
type ResumeInput []blocks.InterruptResponse

func (ResumeInput) agentInputKind() AgentInputKind { return AgentInputResume }

// Agent is the single-agent façade SPEC_FULL names as C8: it owns the
// durable conversation history a Loop does not, and decides — per run —
// whether that history advances or stays put, per the §4.6 commit rule
// (a paused run's generated messages are never committed).
type Agent struct {
	config   AgentConfig
	registry *ToolRegistry
	loop     *Loop

	mu           sync.Mutex
	conversation []blocks.Message
}

// NewAgent constructs an Agent bound to provider/registry with config. Loop
// options (WithHooks, WithMeter) pass through to the underlying Loop so a
// caller can share a hook provider across several agents, e.g. the members
// of a swarm.
func NewAgent(provider Provider, registry *ToolRegistry, config AgentConfig, opts ...LoopOption) *Agent {
	return &Agent{
		config:   config,
		registry: registry,
		loop:     NewLoop(provider, registry, config.Loop, opts...),
	}
}

// Loop exposes the underlying Loop, for callers (swarm, graph) that need to
// register hooks or inspect interrupt/metrics state directly.
func (a *Agent) Loop() *Loop { return a.loop }

// Conversation returns a snapshot of the committed message history.
func (a *Agent) Conversation() []blocks.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]blocks.Message(nil), a.conversation...)
}

// prepare turns one AgentInput into the CompletionRequest for this run and
// reports whether the run is a resume of a previously paused one. It must
// be called with a.mu held.
func (a *Agent) prepare(input AgentInput) (CompletionRequest, bool, error) {
	req := CompletionRequest{
		Model:                  a.config.Model,
		System:                 a.config.System,
		Tools:                  toolDefinitions(a.registry.List()),
		MaxTokens:              a.config.MaxTokens,
		Temperature:            a.config.Temperature,
		StructuredOutputSchema: a.config.StructuredOutputSchema,
	}

	switch in := input.(type) {
	case PromptInput:
		a.conversation = append(a.conversation, blocks.NewUserMessage(string(in)))
		req.Messages = append([]blocks.Message(nil), a.conversation...)
		return req, false, nil

	case BlocksInput:
		a.conversation = append(a.conversation, blocks.Message{Role: blocks.RoleUser, Content: blocks.ContentBlockList(in)})
		req.Messages = append([]blocks.Message(nil), a.conversation...)
		return req, false, nil

	case ResumeInput:
		items := make([]interrupt.ResumeItem, len(in))
		for i, r := range in {
			items[i] = interrupt.ResumeItem{InterruptID: r.InterruptID, Response: r.Response}
		}
		structured := len(a.config.StructuredOutputSchema) > 0
		if err := a.loop.Interrupts().Resume(items, structured); err != nil {
			return CompletionRequest{}, false, err
		}
		req.Messages = append([]blocks.Message(nil), a.conversation...)
		return req, true, nil

	default:
		return CompletionRequest{}, false, fmt.Errorf("agent: unsupported input kind %T", input)
	}
}

// Stream starts or resumes one run and returns its live event channel
// alongside a future that resolves once the run's committed history (if
// any) has been folded back into the agent's conversation.
func (a *Agent) Stream(ctx context.Context, input AgentInput) (<-chan StreamEvent, *ResultFuture, error) {
	a.mu.Lock()
	req, resuming, err := a.prepare(input)
	if err != nil {
		a.mu.Unlock()
		return nil, nil, err
	}
	inner, innerFuture, err := a.loop.Run(ctx, req, resuming)
	a.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	out := make(chan StreamEvent)
	outerFuture := &ResultFuture{done: make(chan struct{})}

	go func() {
		for ev := range inner {
			out <- ev
		}
		close(out)

		result, err := innerFuture.Wait()

		a.mu.Lock()
		if err == nil && result.StopReason != blocks.StopInterrupt {
			a.conversation = innerFuture.messages
		}
		a.mu.Unlock()

		outerFuture.result = result
		outerFuture.err = err
		close(outerFuture.done)
	}()

	return out, outerFuture, nil
}

// Invoke runs input to completion, draining its event stream internally,
// and returns the terminal AgentResult.
func (a *Agent) Invoke(ctx context.Context, input AgentInput) (*blocks.AgentResult, error) {
	out, future, err := a.Stream(ctx, input)
	if err != nil {
		return nil, err
	}
	for range out {
	}
	return future.Wait()
}

// RegisterHook is a convenience wrapper around hooks.On against this
// agent's loop, letting callers avoid importing the hooks package just to
// attach a handler.
func RegisterHook[E any](a *Agent, fn func(context.Context, E) error) {
	hooks.On(a.loop.Hooks(), fn)
}
