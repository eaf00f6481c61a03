// Package openai adapts OpenAI's Chat Completions API to agent.Provider.
//
// Grounded on the teacher's internal/agent/providers/openai.go
// (OpenAIProvider.Complete's retry-then-stream flow and processStream's
// per-Index tool-call accumulation), rebuilt to emit this module's
// discriminated stream.ProviderEvent sequence instead of the teacher's flat
// CompletionChunk. OpenAI's wire format has no message_start/
// content_block_start framing of its own, so this adapter synthesizes it:
// content index 0 is reserved for text, and each streamed tool call claims
// index tc.Index+1 the first time it appears.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/agentrt/internal/agent"
	"github.com/haasonsaas/agentrt/internal/agent/stream"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// Config holds the parameters needed to construct a Provider.
type Config struct {
	// APIKey is the OpenAI API authentication key (required).
	APIKey string

	// BaseURL overrides the default OpenAI API base URL, for
	// OpenAI-compatible gateways.
	BaseURL string

	// DefaultModel is used when a CompletionRequest leaves Model empty.
	DefaultModel string
}

// Provider implements agent.Provider against OpenAI's Chat Completions API.
type Provider struct {
	client       *openai.Client
	defaultModel string
}

// New constructs a Provider. APIKey is required; every other field has a
// sensible default.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = openai.GPT4o
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// StreamChat implements agent.Provider.
func (p *Provider) StreamChat(ctx context.Context, req agent.CompletionRequest) (<-chan stream.ProviderEvent, error) {
	chatReq, err := p.buildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	sdkStream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to start stream: %w", err)
	}

	out := make(chan stream.ProviderEvent)
	go func() {
		defer close(out)
		defer sdkStream.Close()
		processStream(ctx, sdkStream, out)
	}()

	return out, nil
}

func (p *Provider) buildRequest(req agent.CompletionRequest) (openai.ChatCompletionRequest, error) {
	messages, err := convertMessages(req.Messages, req.System)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	return chatReq, nil
}

// convertMessages maps blocks.Message history onto
// openai.ChatCompletionMessage, splatting a ToolUseBlock into the assistant
// message's ToolCalls and a ToolResultBlock into its own "tool"-role
// message — the shape go-openai's Chat Completions API expects instead of
// Anthropic's inline tool_result content blocks.
func convertMessages(messages []blocks.Message, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == blocks.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}

		var text strings.Builder
		var toolCalls []openai.ToolCall

		for _, block := range msg.Content {
			switch b := block.(type) {
			case blocks.TextBlock:
				text.WriteString(b.Text)

			case blocks.ToolUseBlock:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   b.ToolUseID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.Name,
						Arguments: string(b.Input),
					},
				})

			case blocks.ToolResultBlock:
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: b.ToolUseID,
					Content:    toolResultText(b),
				})

			case blocks.ReasoningBlock:
				// OpenAI's Chat Completions API does not accept
				// assistant-authored reasoning content back as input.
			}
		}

		if text.Len() == 0 && len(toolCalls) == 0 {
			continue
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:      role,
			Content:   text.String(),
			ToolCalls: toolCalls,
		})
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

// convertTools maps ToolDefinition onto openai.Tool.
func convertTools(tools []agent.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return result
}

// accumulatingToolCall tracks one streamed tool call's id/name/argument
// fragments across chunks, keyed by the Index OpenAI assigns it.
type accumulatingToolCall struct {
	id       string
	name     string
	args     strings.Builder
	started  bool
	blockIdx int
}

// processStream converts OpenAI chat-completion stream chunks into
// stream.ProviderEvent. Grounded on the teacher's processStream, which
// accumulates delta.ToolCalls by Index until FinishReason == "tool_calls";
// here each fragment also drives the content-block start/delta/stop
// framing the rest of this module's providers emit.
func processStream(ctx context.Context, sdkStream *openai.ChatCompletionStream, out chan<- stream.ProviderEvent) {
	started := false
	textStarted := false
	toolCalls := make(map[int]*accumulatingToolCall)
	var inputTokens, outputTokens int

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		resp, err := sdkStream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			out <- stream.MessageStopEvent{StopReason: "error"}
			return
		}

		if !started {
			started = true
			out <- stream.MessageStartEvent{Role: blocks.RoleAssistant}
		}
		if resp.Usage != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			if !textStarted {
				textStarted = true
				out <- stream.ContentBlockStartEvent{Index: 0}
			}
			out <- stream.ContentBlockDeltaEvent{Index: 0, Delta: stream.TextDelta{Text: delta.Content}}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, ok := toolCalls[idx]
			if !ok {
				acc = &accumulatingToolCall{blockIdx: idx + 1}
				toolCalls[idx] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			if !acc.started && acc.id != "" && acc.name != "" {
				acc.started = true
				out <- stream.ContentBlockStartEvent{
					Index: acc.blockIdx,
					Start: &stream.ToolUseStart{Name: acc.name, ToolUseID: acc.id},
				}
			}
			if tc.Function.Arguments != "" {
				acc.args.WriteString(tc.Function.Arguments)
				if acc.started {
					out <- stream.ContentBlockDeltaEvent{Index: acc.blockIdx, Delta: stream.ToolUseInputDelta{Input: tc.Function.Arguments}}
				}
			}
		}

		if choice.FinishReason != "" {
			if textStarted {
				out <- stream.ContentBlockStopEvent{Index: 0}
			}
			for _, acc := range toolCalls {
				if acc.started {
					out <- stream.ContentBlockStopEvent{Index: acc.blockIdx}
				}
			}
			out <- stream.MetadataEvent{Usage: blocks.Usage{
				InputTokens:  inputTokens,
				OutputTokens: outputTokens,
				TotalTokens:  inputTokens + outputTokens,
			}}
			out <- stream.MessageStopEvent{StopReason: string(choice.FinishReason)}
			return
		}
	}

	if textStarted {
		out <- stream.ContentBlockStopEvent{Index: 0}
	}
	out <- stream.MetadataEvent{Usage: blocks.Usage{InputTokens: inputTokens, OutputTokens: outputTokens, TotalTokens: inputTokens + outputTokens}}
	out <- stream.MessageStopEvent{StopReason: "stop"}
}

// IsRetryable classifies an error returned from the SDK as transient,
// mirroring the teacher's isRetryableError string-matching (the SDK surfaces
// HTTP failures as plain errors, not a typed status code). Provider-call
// retries are left to the caller; this module's built-in retry config
// (internal/agent/executor.go) only covers tool execution.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded", "connection reset", "connection refused"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
