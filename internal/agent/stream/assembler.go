package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// AssembledFuture is the terminal value of a Run call — the push-channel
// carries every inner event as it arrives, while this future resolves once
// the output channel has been fully drained, matching the "lazy sequence
// that also returns a terminal value" split called out for the model-call
// contract: a channel for the live sequence, a separate slot for the result.
type AssembledFuture struct {
	done   chan struct{}
	result blocks.Message
	reason blocks.StopReason
	err    error
}

// Wait blocks until the assembler's output channel is closed, then returns
// the assembled message, normalized stop reason, and any assembly error.
func (f *AssembledFuture) Wait() (blocks.Message, blocks.StopReason, error) {
	<-f.done
	return f.result, f.reason, f.err
}

type pendingBlock struct {
	kind      string // "", "text", "reasoning", "tool_use"
	text      string
	signature string
	redacted  []byte
	toolName  string
	toolUseID string
	inputBuf  string
}

// Assembler turns a provider's flat ProviderEvent sequence into a single
// blocks.Message, forwarding every event unchanged on the returned channel.
type Assembler struct{}

// NewAssembler constructs an Assembler. It holds no state between runs.
func NewAssembler() *Assembler { return &Assembler{} }

// Run consumes events until the source channel closes or ctx is cancelled,
// forwarding each event on the returned channel and resolving the returned
// future once assembly completes. On context cancellation the future
// resolves with ctx.Err() and no partial message is returned.
func (a *Assembler) Run(ctx context.Context, events <-chan ProviderEvent) (<-chan ProviderEvent, *AssembledFuture) {
	out := make(chan ProviderEvent)
	future := &AssembledFuture{done: make(chan struct{})}

	go func() {
		defer close(out)
		defer close(future.done)

		var role blocks.MessageRole = blocks.RoleAssistant
		pending := make(map[int]*pendingBlock)
		var order []int
		var stopReason blocks.StopReason

		finalize := func(idx int) (blocks.ContentBlock, bool) {
			p, ok := pending[idx]
			if !ok {
				return nil, false
			}
			switch p.kind {
			case "text":
				return blocks.TextBlock{Text: p.text}, true
			case "reasoning":
				return blocks.ReasoningBlock{Text: p.text, Signature: p.signature, RedactedBytes: p.redacted}, true
			case "tool_use":
				input := json.RawMessage(p.inputBuf)
				if len(p.inputBuf) == 0 {
					input = json.RawMessage(`{}`)
				} else if !json.Valid(input) {
					future.err = fmt.Errorf("stream: tool use %q produced invalid JSON input: %s", p.toolName, p.inputBuf)
				}
				return blocks.ToolUseBlock{Name: p.toolName, ToolUseID: p.toolUseID, Input: input}, true
			default:
				return nil, false
			}
		}

		for {
			select {
			case <-ctx.Done():
				future.err = ctx.Err()
				return
			case ev, ok := <-events:
				if !ok {
					content := make(blocks.ContentBlockList, 0, len(order))
					for _, idx := range order {
						if b, ok := finalize(idx); ok {
							content = append(content, b)
						}
					}
					if future.err == nil {
						future.result = blocks.Message{Role: role, Content: content}
						future.reason = stopReason
					}
					return
				}

				select {
				case out <- ev:
				case <-ctx.Done():
					future.err = ctx.Err()
					return
				}

				switch e := ev.(type) {
				case MessageStartEvent:
					role = e.Role
				case ContentBlockStartEvent:
					p := &pendingBlock{}
					if e.Start != nil {
						p.kind = "tool_use"
						p.toolName = e.Start.Name
						p.toolUseID = e.Start.ToolUseID
					}
					pending[e.Index] = p
					order = append(order, e.Index)
				case ContentBlockDeltaEvent:
					p, ok := pending[e.Index]
					if !ok {
						p = &pendingBlock{}
						pending[e.Index] = p
						order = append(order, e.Index)
					}
					switch d := e.Delta.(type) {
					case TextDelta:
						if p.kind == "" {
							p.kind = "text"
						}
						p.text += d.Text
					case ReasoningDelta:
						if p.kind == "" {
							p.kind = "reasoning"
						}
						p.text += d.Text
						if d.Signature != "" {
							p.signature = d.Signature
						}
						if len(d.RedactedContent) > 0 {
							p.redacted = d.RedactedContent
						}
					case ToolUseInputDelta:
						if p.kind == "" {
							p.kind = "tool_use"
						}
						p.inputBuf += d.Input
					}
				case ContentBlockStopEvent:
					// Finalization happens lazily in the drain step above;
					// nothing to do here beyond having observed the stop.
				case MessageStopEvent:
					stopReason = NormalizeStopReason(e.StopReason)
				case MetadataEvent:
					// Usage/metrics are consumed by the metrics collector via
					// a separate subscriber; the assembler only forwards.
				}
			}
		}
	}()

	return out, future
}
