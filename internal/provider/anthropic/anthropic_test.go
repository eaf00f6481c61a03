package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/haasonsaas/agentrt/internal/agent"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error constructing a provider without an API key")
	}
}

func TestNewDefaultsModel(t *testing.T) {
	p, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.defaultModel == "" {
		t.Fatal("expected a non-empty default model")
	}
}

func TestConvertMessagesMapsTextAndRoles(t *testing.T) {
	p := &Provider{defaultModel: "test"}
	messages := []blocks.Message{
		blocks.NewUserMessage("hello"),
		{Role: blocks.RoleAssistant, Content: blocks.ContentBlockList{blocks.TextBlock{Text: "hi there"}}},
	}

	result, err := p.convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(result))
	}
	if result[0].Role != anthropic.MessageParamRoleUser {
		t.Fatalf("expected first message to be user role, got %v", result[0].Role)
	}
	if result[1].Role != anthropic.MessageParamRoleAssistant {
		t.Fatalf("expected second message to be assistant role, got %v", result[1].Role)
	}
}

func TestConvertMessagesMapsToolUseAndResult(t *testing.T) {
	p := &Provider{defaultModel: "test"}
	messages := []blocks.Message{
		{Role: blocks.RoleAssistant, Content: blocks.ContentBlockList{
			blocks.ToolUseBlock{Name: "search", ToolUseID: "call-1", Input: json.RawMessage(`{"q":"weather"}`)},
		}},
		{Role: blocks.RoleUser, Content: blocks.ContentBlockList{
			blocks.NewSuccessTextResult("call-1", "sunny"),
		}},
	}

	result, err := p.convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(result))
	}
}

func TestConvertMessagesRejectsMalformedToolInput(t *testing.T) {
	p := &Provider{defaultModel: "test"}
	messages := []blocks.Message{
		{Role: blocks.RoleAssistant, Content: blocks.ContentBlockList{
			blocks.ToolUseBlock{Name: "search", ToolUseID: "call-1", Input: json.RawMessage(`not json`)},
		}},
	}

	if _, err := p.convertMessages(messages); err == nil {
		t.Fatal("expected error converting malformed tool input")
	}
}

func TestConvertToolsRejectsMalformedSchema(t *testing.T) {
	p := &Provider{defaultModel: "test"}
	tools := []agent.ToolDefinition{
		{Name: "search", Description: "search the web", InputSchema: json.RawMessage(`not json`)},
	}

	if _, err := p.convertTools(tools); err == nil {
		t.Fatal("expected error converting malformed tool schema")
	}
}

func TestConvertToolsMapsNameAndDescription(t *testing.T) {
	p := &Provider{defaultModel: "test"}
	tools := []agent.ToolDefinition{
		{Name: "search", Description: "search the web", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}

	result, err := p.convertTools(tools)
	if err != nil {
		t.Fatalf("convertTools: %v", err)
	}
	if len(result) != 1 || result[0].OfTool == nil {
		t.Fatalf("expected one converted tool, got %+v", result)
	}
	if result[0].OfTool.Name != "search" {
		t.Fatalf("expected tool name to be preserved, got %q", result[0].OfTool.Name)
	}
}

func TestIsRetryableClassifiesTimeouts(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatal("expected nil error to be non-retryable")
	}
}
