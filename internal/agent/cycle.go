package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/agentrt/internal/agent/hooks"
	"github.com/haasonsaas/agentrt/internal/agent/interrupt"
	"github.com/haasonsaas/agentrt/internal/agent/stream"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// cycleOutcome is the result of one trip through runCycle. When paused is
// true, assistantMsg and the tool results collected so far have been saved
// to interrupt state but are NOT committed to the conversation — the caller
// replays the whole cycle again on resume.
type cycleOutcome struct {
	assistantMsg  blocks.Message
	toolResultMsg *blocks.Message
	stopReason    blocks.StopReason
	usage         blocks.Usage
	paused        bool
	pauseIDs      []string
}

// runCycle executes exactly one beforeModel -> model -> afterModel -> tools
// turn per §4.2. On a fresh cycle it calls the model; when resuming, the
// assistant message saved by a prior pause is replayed instead of calling
// the model again, and tool uses whose result was already collected are
// skipped rather than re-run.
func (l *Loop) runCycle(ctx context.Context, req CompletionRequest, out chan<- StreamEvent, resuming bool) (cycleOutcome, error) {
	var assistantMsg blocks.Message
	var stopReason blocks.StopReason
	var usage blocks.Usage

	if resuming {
		pending, ok := l.interrupts.PendingAssistant()
		if !ok {
			return cycleOutcome{}, &LoopError{Phase: PhaseStream, Message: "resume requested but no pending assistant message was recorded"}
		}
		assistantMsg = pending
		stopReason = blocks.StopToolUse
	} else {
		if err := hooks.Dispatch(ctx, l.hooks, hooks.BeforeModelCallEvent{Messages: req.Messages}); err != nil {
			return cycleOutcome{}, err
		}
		emit(out, BeforeModelStreamEvent{Messages: req.Messages})

		_, closeCycle := l.metrics.StartCycle(ctx)
		start := time.Now()

		spanCtx := ctx
		var span trace.Span
		if l.tracer != nil {
			spanCtx, span = l.tracer.TraceModelInvocation(ctx, req.Model)
		}
		if l.logger != nil {
			l.logger.Debug(ctx, "model call starting", "model", req.Model, "message_count", len(req.Messages))
		}

		events, err := l.provider.StreamChat(spanCtx, req)
		if err != nil {
			closeCycle()
			if span != nil {
				l.tracer.RecordError(span, err)
				span.End()
			}
			if l.logger != nil {
				l.logger.Error(ctx, "model call failed", "model", req.Model, "error", err)
			}
			return cycleOutcome{}, &ModelError{Message: "provider stream failed", Cause: err}
		}

		assembler := stream.NewAssembler()
		forwarded, future := assembler.Run(ctx, events)
		for ev := range forwarded {
			if meta, ok := ev.(stream.MetadataEvent); ok {
				usage.Add(meta.Usage)
			}
			emit(out, ProviderStreamEvent{Event: ev})
		}
		assistantMsg, stopReason, err = future.Wait()
		closeCycle()
		if err != nil {
			if span != nil {
				l.tracer.RecordError(span, err)
				span.End()
			}
			if l.logger != nil {
				l.logger.Error(ctx, "stream assembly failed", "model", req.Model, "error", err)
			}
			return cycleOutcome{}, &ModelError{Message: "stream assembly failed", Cause: err}
		}
		if span != nil {
			span.End()
		}

		l.metrics.RecordModelInvocation(ctx, time.Since(start).Milliseconds(), usage.InputTokens, usage.OutputTokens, usage.CacheReadTokens, usage.CacheWriteTokens)
		if l.logger != nil {
			l.logger.Info(ctx, "model call completed",
				"model", req.Model,
				"stop_reason", string(stopReason),
				"duration_ms", time.Since(start).Milliseconds(),
				"input_tokens", usage.InputTokens,
				"output_tokens", usage.OutputTokens,
			)
		}

		if err := hooks.Dispatch(ctx, l.hooks, hooks.AfterModelCallEvent{Message: assistantMsg, StopReason: stopReason}); err != nil {
			return cycleOutcome{}, err
		}
		emit(out, AfterModelStreamEvent{Message: assistantMsg, StopReason: stopReason})
	}

	if stopReason == blocks.StopMaxTokens {
		return cycleOutcome{}, NewMaxTokensError(assistantMsg)
	}
	if stopReason != blocks.StopToolUse {
		return cycleOutcome{assistantMsg: assistantMsg, stopReason: stopReason, usage: usage}, nil
	}

	outcome, err := l.runTools(ctx, assistantMsg, out)
	outcome.usage = usage
	return outcome, err
}

// runTools executes every tool use in assistantMsg in block order — §5
// requires tools to run sequentially within a turn — skipping uses whose
// result was already collected before an earlier pause.
func (l *Loop) runTools(ctx context.Context, assistantMsg blocks.Message, out chan<- StreamEvent) (cycleOutcome, error) {
	toolUses := assistantMsg.ToolUses()
	emit(out, BeforeToolsStreamEvent{AssistantMessage: assistantMsg})

	results := make([]blocks.ToolResultBlock, 0, len(toolUses))
	var pausedIDs []string

	for ordinal, toolUse := range toolUses {
		if cached, ok := l.interrupts.ToolResult(toolUse.ToolUseID); ok {
			result, err := blocks.UnmarshalToolResultBlock(cached)
			if err != nil {
				return cycleOutcome{}, err
			}
			results = append(results, result)
			continue
		}

		canceled := false
		cancelReason := ""
		raiseFromHook := func(name, reason string) (json.RawMessage, error) {
			return l.interrupts.Raise("tool:"+toolUse.Name, name, reason, toolUse.ToolUseID, ordinal, toolUse.Input)
		}
		hookEvent := hooks.BeforeToolCallEvent{
			ToolUse:      toolUse,
			Canceled:     &canceled,
			CancelReason: &cancelReason,
			Interrupt:    raiseFromHook,
		}
		if err := hooks.Dispatch(ctx, l.hooks, hookEvent); err != nil {
			var raised *interrupt.RaisedError
			if errors.As(err, &raised) {
				pausedIDs = append(pausedIDs, raised.ID)
				continue
			}
			return cycleOutcome{}, err
		}
		if canceled {
			result := blocks.NewErrorToolResult(toolUse.ToolUseID, "tool call canceled: "+cancelReason)
			results = append(results, result)
			if err := dispatchAfterTool(ctx, l, toolUse, result, out); err != nil {
				return cycleOutcome{}, err
			}
			continue
		}

		toolCtx := interrupt.WithFunc(ctx, func(name, reason string) (json.RawMessage, error) {
			return l.interrupts.Raise("tool:"+toolUse.Name, name, reason, toolUse.ToolUseID, ordinal, toolUse.Input)
		})

		var toolSpan trace.Span
		if l.tracer != nil {
			toolCtx, toolSpan = l.tracer.TraceToolExecution(toolCtx, toolUse.Name)
		}
		toolStart := time.Now()

		_, markSuccess, closeSpan := l.metrics.StartToolExecution(toolCtx, toolUse.Name, nil)
		result := l.executor.Execute(toolCtx, toolUse)
		closeSpan()

		if toolSpan != nil {
			if result.Status == blocks.ToolResultError {
				toolSpan.SetStatus(codes.Error, "tool returned an error result")
			}
			toolSpan.End()
		}
		if l.logger != nil {
			l.logger.Info(ctx, "tool executed",
				"tool", toolUse.Name,
				"tool_call_id", toolUse.ToolUseID,
				"status", string(result.Status),
				"duration_ms", time.Since(toolStart).Milliseconds(),
			)
		}

		if pauseID, ok := pauseIDFromResult(result); ok {
			pausedIDs = append(pausedIDs, pauseID)
			continue
		}
		if result.Status == blocks.ToolResultSuccess {
			markSuccess()
		}

		if raw, err := json.Marshal(result); err == nil {
			l.interrupts.SaveToolResult(toolUse.ToolUseID, raw)
		}
		results = append(results, result)
		if err := dispatchAfterTool(ctx, l, toolUse, result, out); err != nil {
			return cycleOutcome{}, err
		}
	}

	if len(pausedIDs) > 0 {
		l.interrupts.SavePendingAssistant(assistantMsg)
		return cycleOutcome{assistantMsg: assistantMsg, stopReason: blocks.StopInterrupt, paused: true, pauseIDs: pausedIDs}, nil
	}

	toolResultMsg := blocks.NewToolResultMessage(results)
	emit(out, AfterToolsStreamEvent{ToolResultMessage: toolResultMsg})

	return cycleOutcome{assistantMsg: assistantMsg, toolResultMsg: &toolResultMsg, stopReason: blocks.StopToolUse}, nil
}

// dispatchAfterTool fires the AfterToolCallEvent hook and, only if every
// callback accepted the result, emits the corresponding stream event. A hook
// error must propagate out of the cycle rather than be swallowed — a
// callback that rejects a tool result is signaling the run should stop, not
// that the event was merely uninteresting.
func dispatchAfterTool(ctx context.Context, l *Loop, toolUse blocks.ToolUseBlock, result blocks.ToolResultBlock, out chan<- StreamEvent) error {
	if err := hooks.Dispatch(ctx, l.hooks, hooks.AfterToolCallEvent{ToolUse: toolUse, Result: result}); err != nil {
		return err
	}
	emit(out, ToolResultStreamEvent{Result: result})
	return nil
}

func emit(out chan<- StreamEvent, ev StreamEvent) {
	out <- ev
}

// pauseIDFromResult recognizes the sentinel marker executor.Execute writes
// into an error ToolResultBlock when the tool itself called
// interrupt.FromContext(ctx) mid-execution rather than the loop raising one
// on its behalf via the BeforeToolCallEvent hook.
func pauseIDFromResult(result blocks.ToolResultBlock) (string, bool) {
	if result.Status != blocks.ToolResultError {
		return "", false
	}
	for _, c := range result.Content {
		if text, ok := c.(blocks.ToolResultText); ok {
			if id, found := strings.CutPrefix(text.Text, interrupt.ResultMarkerPrefix); found {
				return id, true
			}
		}
	}
	return "", false
}
