// Package agent implements the core single-agent event loop: the turn
// cycle that drives a provider through repeated model calls and tool
// executions, plus the registry, executor, streaming assembler, hook
// dispatcher, interrupt/resume protocol, and metrics collector it wires
// together. Adapted from the teacher's AgenticLoop/ResponseChunk phase
// machine, rebuilt around a push-channel-plus-terminal-future contract and
// a typed hook dispatcher instead of a flat ResponseChunk struct and a
// string-keyed callback registry.
package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentrt/internal/agent/hooks"
	"github.com/haasonsaas/agentrt/internal/agent/interrupt"
	"github.com/haasonsaas/agentrt/internal/agent/metrics"
	"github.com/haasonsaas/agentrt/internal/jsonschema"
	"github.com/haasonsaas/agentrt/internal/observability"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// LoopConfig bounds one Loop.Run call.
type LoopConfig struct {
	// MaxIterations caps the number of model-call cycles in a single run,
	// guarding against a model that never stops requesting tools.
	MaxIterations int
}

// DefaultLoopConfig returns the default loop bounds.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{MaxIterations: 50}
}

func sanitizeLoopConfig(c *LoopConfig) *LoopConfig {
	if c == nil {
		cp := *DefaultLoopConfig()
		return &cp
	}
	cp := *c
	if cp.MaxIterations <= 0 {
		cp.MaxIterations = DefaultLoopConfig().MaxIterations
	}
	return &cp
}

// LoopOption configures a Loop using the functional-options pattern (the
// same shape trace.go uses for TracePlugin options).
type LoopOption func(*Loop)

// WithMeter attaches a metrics.MeterProvider so the loop's in-memory
// collector also exports counters/histograms to an external sink.
func WithMeter(meter metrics.MeterProvider) LoopOption {
	return func(l *Loop) { l.metrics = metrics.New(meter) }
}

// WithHooks attaches a caller-constructed hook provider instead of an
// internally created empty one, letting an Agent share one provider across
// its loop and any multi-agent wrapper.
func WithHooks(p *hooks.Provider) LoopOption {
	return func(l *Loop) { l.hooks = p }
}

// WithLogger attaches a structured logger. A Loop with no logger configured
// emits no log lines — logging, like tracing, is opt-in so a library caller
// never gets stdout writes it didn't ask for.
func WithLogger(logger *observability.Logger) LoopOption {
	return func(l *Loop) { l.logger = logger }
}

// WithTracer attaches an OpenTelemetry tracer. Each model call and tool
// execution becomes a span under it; with no tracer configured, span
// creation is skipped entirely rather than falling back to a no-op tracer,
// so the hot path pays nothing for a feature the caller didn't enable.
func WithTracer(tracer *observability.Tracer) LoopOption {
	return func(l *Loop) { l.tracer = tracer }
}

// Loop drives one agent's turn cycle against a Provider. It holds no
// conversation state of its own — callers (the Agent façade) own the
// message history and decide what to commit after each Run.
type Loop struct {
	provider  Provider
	registry  *ToolRegistry
	executor  *Executor
	hooks     *hooks.Provider
	metrics   *metrics.Collector
	validator *jsonschema.Validator
	logger    *observability.Logger
	tracer    *observability.Tracer

	config *LoopConfig

	// interrupts is owned by the loop for the lifetime of a conversation,
	// not just one Run call, since a paused run's state must survive until
	// the caller resumes it.
	interrupts *interrupt.State

	invoking atomic.Bool
}

// NewLoop constructs a Loop bound to provider and registry. If config is
// nil, DefaultLoopConfig is used.
func NewLoop(provider Provider, registry *ToolRegistry, config *LoopConfig, opts ...LoopOption) *Loop {
	l := &Loop{
		provider:   provider,
		registry:   registry,
		executor:   NewExecutor(registry, DefaultExecutorConfig()),
		hooks:      hooks.NewProvider(),
		metrics:    metrics.New(nil),
		validator:  jsonschema.NewValidator(),
		config:     sanitizeLoopConfig(config),
		interrupts: interrupt.NewState(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Interrupts exposes the loop's pause/resume state so the Agent façade can
// inspect pending interrupts and validate resume payloads.
func (l *Loop) Interrupts() *interrupt.State { return l.interrupts }

// Hooks exposes the loop's hook provider for registration.
func (l *Loop) Hooks() *hooks.Provider { return l.hooks }

// Metrics exposes the loop's metrics collector.
func (l *Loop) Metrics() *metrics.Collector { return l.metrics }

// Registry exposes the loop's tool registry.
func (l *Loop) Registry() *ToolRegistry { return l.registry }

// scope guarantees a close func runs exactly once per Run call regardless of
// which exit path is taken (success, error, cancellation) — the same
// scoped-acquisition discipline StartToolExecution uses for tool spans.
type scope struct {
	once  sync.Once
	close func()
}

func newScope(close func()) *scope { return &scope{close: close} }
func (s *scope) Close()            { s.once.Do(s.close) }

// ResultFuture is the terminal value of a Run call, resolved once the
// returned event channel has been fully drained.
type ResultFuture struct {
	done   chan struct{}
	result *blocks.AgentResult
	// messages is the full message list this run produced, starting from
	// req.Messages and appending each completed cycle's assistant and tool-
	// result pair — everything the Agent façade needs to commit to durable
	// conversation history on a non-paused, successful exit.
	messages []blocks.Message
	err      error
}

// Wait blocks until Run's output channel closes, then returns the
// AgentResult (StopReason=interrupt on a pause) or the fatal error that
// ended the run.
func (f *ResultFuture) Wait() (*blocks.AgentResult, error) {
	<-f.done
	return f.result, f.err
}

// Run drives the turn cycle against req.Messages (the full conversation
// snapshot, including any already-committed turns) until the model stops
// requesting tools, a pause is raised, an error occurs, or MaxIterations is
// exceeded. It rejects, rather than blocks, a second concurrent call with
// ErrConcurrentInvocation.
//
// resuming indicates the conversation's last cycle was previously paused by
// an interrupt and the caller has already supplied responses via
// l.Interrupts().Resume — the first cycle then replays the saved assistant
// message instead of calling the model again.
func (l *Loop) Run(ctx context.Context, req CompletionRequest, resuming bool) (<-chan StreamEvent, *ResultFuture, error) {
	if !l.invoking.CompareAndSwap(false, true) {
		return nil, nil, ErrConcurrentInvocation
	}

	out := make(chan StreamEvent)
	future := &ResultFuture{done: make(chan struct{})}
	runID := uuid.New().String()

	go func() {
		defer l.invoking.Store(false)
		defer close(out)

		sc := newScope(func() {
			_ = hooks.Dispatch(ctx, l.hooks, hooks.AfterInvocationEvent{RunID: runID, Err: future.err})
			emit(out, AfterInvocationStreamEvent{RunID: runID, Err: future.err})
			close(future.done)
		})
		defer sc.Close()

		if err := hooks.Dispatch(ctx, l.hooks, hooks.BeforeInvocationEvent{RunID: runID}); err != nil {
			future.err = err
			return
		}
		emit(out, BeforeInvocationStreamEvent{RunID: runID})

		messages := append([]blocks.Message(nil), req.Messages...)
		firstCycle := true
		var totalUsage blocks.Usage

		for iteration := 0; iteration < l.config.MaxIterations; iteration++ {
			cycleReq := req
			cycleReq.Messages = messages

			outcome, err := l.runCycle(ctx, cycleReq, out, resuming && firstCycle)
			firstCycle = false

			if err != nil {
				future.err = err
				return
			}

			totalUsage.Add(outcome.usage)

			if outcome.paused {
				// The cycle that paused contributed no committed message —
				// messages still reflects only what was true before it ran.
				future.messages = messages
				future.result = &blocks.AgentResult{
					StopReason:  blocks.StopInterrupt,
					LastMessage: outcome.assistantMsg,
					Interrupts:  interruptSummaries(l.interrupts.Snapshot()),
					Usage:       totalUsage,
				}
				return
			}

			if outcome.toolResultMsg == nil {
				var structuredOutput json.RawMessage
				if len(req.StructuredOutputSchema) > 0 {
					text := []byte(textContent(outcome.assistantMsg))
					if err := l.validator.Validate(req.StructuredOutputSchema, text); err != nil {
						future.err = &JSONValidationError{Subject: "structured output", Cause: err}
						return
					}
					structuredOutput = text
				}
				l.interrupts.Clear()
				future.messages = append(messages, outcome.assistantMsg)
				future.result = &blocks.AgentResult{
					StopReason:       outcome.stopReason,
					LastMessage:      outcome.assistantMsg,
					StructuredOutput: structuredOutput,
					Usage:            totalUsage,
				}
				return
			}

			l.interrupts.Clear()
			messages = append(messages, outcome.assistantMsg, *outcome.toolResultMsg)
		}

		future.err = ErrMaxIterations
	}()

	return out, future, nil
}

// textContent concatenates every TextBlock in msg, the same rendering rule
// AgentResult.String() uses for its non-structured-output fallback.
func textContent(msg blocks.Message) string {
	var sb strings.Builder
	for _, b := range msg.Content {
		if t, ok := b.(blocks.TextBlock); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

func interruptSummaries(raw []interrupt.Interrupt) []blocks.InterruptSummary {
	out := make([]blocks.InterruptSummary, len(raw))
	for i, r := range raw {
		out[i] = blocks.InterruptSummary{ID: r.ID, Name: r.Name, Reason: r.Reason}
	}
	return out
}
