// Package anthropic adapts Anthropic's Claude API to agent.Provider,
// translating between blocks.Message/stream.ProviderEvent and the official
// SDK's request/event types.
//
// Grounded on the teacher's internal/agent/providers/anthropic.go
// (AnthropicProvider, its retry-with-exponential-backoff Complete loop, and
// processStream's event-type switch), narrowed to this module's
// stream.ProviderEvent sum type instead of the teacher's flat
// CompletionChunk, and built directly against anthropic-sdk-go rather than
// the teacher's bufio-based ParseSSEStream fallback.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/agentrt/internal/agent"
	"github.com/haasonsaas/agentrt/internal/agent/stream"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// Config holds the parameters needed to construct a Provider.
type Config struct {
	// APIKey is the Anthropic API authentication key (required).
	APIKey string

	// BaseURL overrides the default Anthropic API base URL.
	BaseURL string

	// DefaultModel is used when a CompletionRequest leaves Model empty.
	DefaultModel string
}

// Provider implements agent.Provider against Anthropic's Messages API.
type Provider struct {
	client       anthropic.Client
	defaultModel string
}

// New constructs a Provider. APIKey is required; every other field has a
// sensible default.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// StreamChat implements agent.Provider.
func (p *Provider) StreamChat(ctx context.Context, req agent.CompletionRequest) (<-chan stream.ProviderEvent, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	out := make(chan stream.ProviderEvent)
	go func() {
		defer close(out)
		s := p.client.Messages.NewStreaming(ctx, params)
		p.processStream(ctx, s, out)
	}()

	return out, nil
}

func (p *Provider) buildParams(req agent.CompletionRequest) (anthropic.MessageNewParams, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	return params, nil
}

// convertMessages maps blocks.Message history onto anthropic.MessageParam,
// splitting each ContentBlock into the matching Anthropic content-block
// constructor. Grounded on the teacher's convertMessages, widened from the
// teacher's flat Content/ToolCalls/ToolResults fields to this module's
// ContentBlockList sum type.
func (p *Provider) convertMessages(messages []blocks.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		for _, block := range msg.Content {
			switch b := block.(type) {
			case blocks.TextBlock:
				content = append(content, anthropic.NewTextBlock(b.Text))

			case blocks.ToolUseBlock:
				var input map[string]any
				if len(b.Input) > 0 {
					if err := json.Unmarshal(b.Input, &input); err != nil {
						return nil, fmt.Errorf("invalid tool use input for %s: %w", b.Name, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(b.ToolUseID, input, b.Name))

			case blocks.ToolResultBlock:
				content = append(content, anthropic.NewToolResultBlock(b.ToolUseID, toolResultText(b), b.Status == blocks.ToolResultError))

			case blocks.ReasoningBlock:
				// Anthropic does not accept assistant-authored thinking
				// blocks back as input; it only ever streams them out.
			}
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == blocks.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		result = append(result, anthropic.MessageParam{Role: role, Content: content})
	}

	return result, nil
}

func toolResultText(b blocks.ToolResultBlock) string {
	var sb strings.Builder
	for _, c := range b.Content {
		if t, ok := c.(blocks.ToolResultText); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// convertTools maps ToolDefinition onto anthropic.ToolUnionParam.
func (p *Provider) convertTools(tools []agent.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
		}
		toolParam.OfTool.Description = anthropic.String(t.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// processStream converts Anthropic SSE events into stream.ProviderEvent,
// mirroring the teacher's processStream event-type switch but emitting the
// discriminated ProviderEvent sum type instead of a flat CompletionChunk.
func (p *Provider) processStream(ctx context.Context, s interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}, out chan<- stream.ProviderEvent,
) {
	var inputTokens, outputTokens int64
	var toolUseIndex = -1

	for s.Next() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		event := s.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			inputTokens = ms.Message.Usage.InputTokens
			out <- stream.MessageStartEvent{Role: blocks.RoleAssistant}

		case "content_block_start":
			cbs := event.AsContentBlockStart()
			block := cbs.ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				toolUseIndex = int(cbs.Index)
				out <- stream.ContentBlockStartEvent{
					Index: int(cbs.Index),
					Start: &stream.ToolUseStart{Name: tu.Name, ToolUseID: tu.ID},
				}
			} else {
				out <- stream.ContentBlockStartEvent{Index: int(cbs.Index)}
			}

		case "content_block_delta":
			cbd := event.AsContentBlockDelta()
			switch cbd.Delta.Type {
			case "text_delta":
				if cbd.Delta.Text != "" {
					out <- stream.ContentBlockDeltaEvent{Index: int(cbd.Index), Delta: stream.TextDelta{Text: cbd.Delta.Text}}
				}
			case "thinking_delta":
				if cbd.Delta.Thinking != "" {
					out <- stream.ContentBlockDeltaEvent{Index: int(cbd.Index), Delta: stream.ReasoningDelta{Text: cbd.Delta.Thinking}}
				}
			case "signature_delta":
				if cbd.Delta.Signature != "" {
					out <- stream.ContentBlockDeltaEvent{Index: int(cbd.Index), Delta: stream.ReasoningDelta{Signature: cbd.Delta.Signature}}
				}
			case "input_json_delta":
				if cbd.Delta.PartialJSON != "" {
					out <- stream.ContentBlockDeltaEvent{Index: int(cbd.Index), Delta: stream.ToolUseInputDelta{Input: cbd.Delta.PartialJSON}}
				}
			}

		case "content_block_stop":
			cbs := event.AsContentBlockStop()
			out <- stream.ContentBlockStopEvent{Index: int(cbs.Index)}
			if int(cbs.Index) == toolUseIndex {
				toolUseIndex = -1
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = md.Usage.OutputTokens
			}
			if md.Delta.StopReason != "" {
				out <- stream.MetadataEvent{Usage: blocks.Usage{
					InputTokens:  int(inputTokens),
					OutputTokens: int(outputTokens),
					TotalTokens:  int(inputTokens + outputTokens),
				}}
				out <- stream.MessageStopEvent{StopReason: string(md.Delta.StopReason)}
				return
			}

		case "message_stop":
			out <- stream.MetadataEvent{Usage: blocks.Usage{
				InputTokens:  int(inputTokens),
				OutputTokens: int(outputTokens),
				TotalTokens:  int(inputTokens + outputTokens),
			}}
			return

		case "error":
			out <- stream.MessageStopEvent{StopReason: "error"}
			return
		}
	}

	if err := s.Err(); err != nil {
		out <- stream.MessageStopEvent{StopReason: "error"}
	}
}

// IsRetryable classifies an error returned from the SDK as transient
// (rate limits, 5xx, timeouts) or permanent, the same categories the
// teacher's isRetryableError recognizes. The agent executor's per-tool
// retry config (internal/agent/executor.go) does not cover provider calls,
// so callers building their own retry loop around StreamChat use this to
// decide whether another attempt is worthwhile.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		}
	}
	msg := err.Error()
	for _, needle := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
