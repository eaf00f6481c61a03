package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/haasonsaas/agentrt/internal/agent/hooks"
	"github.com/haasonsaas/agentrt/internal/agent/interrupt"
	"github.com/haasonsaas/agentrt/internal/agent/stream"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

func TestAgentInvokeCommitsConversationOnEndTurn(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]stream.ProviderEvent{textTurn("hello back", "end_turn")}}
	a := NewAgent(provider, NewToolRegistry(), AgentConfig{ID: "a1", Model: "test-model"})

	result, err := a.Invoke(context.Background(), PromptInput("hi"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.StopReason != blocks.StopEndTurn {
		t.Fatalf("expected endTurn, got %v", result.StopReason)
	}

	conv := a.Conversation()
	if len(conv) != 2 {
		t.Fatalf("expected 2 committed messages (user + assistant), got %d", len(conv))
	}
	if conv[0].Role != blocks.RoleUser || conv[1].Role != blocks.RoleAssistant {
		t.Fatalf("unexpected conversation roles: %+v", conv)
	}
}

func TestAgentInvokeDoesNotCommitOnPause(t *testing.T) {
	reg := NewToolRegistry()
	gated := &fakeTool{name: "gated", success: blocks.NewSuccessTextResult("", "done")}
	if err := reg.Register(gated); err != nil {
		t.Fatalf("register: %v", err)
	}

	provider := &scriptedProvider{scripts: [][]stream.ProviderEvent{
		toolUseTurn("call-1", "gated", json.RawMessage(`{}`)),
		textTurn("done", "end_turn"),
	}}
	a := NewAgent(provider, reg, AgentConfig{ID: "a1", Model: "test-model"})

	var interruptID string
	RegisterHook(a, func(ctx context.Context, ev hooks.BeforeToolCallEvent) error {
		_, err := ev.Interrupt("approval", "needs approval")
		var raised *interrupt.RaisedError
		if errors.As(err, &raised) {
			interruptID = raised.ID
		}
		return err
	})

	result, err := a.Invoke(context.Background(), PromptInput("use the gated tool"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.StopReason != blocks.StopInterrupt {
		t.Fatalf("expected interrupt, got %v", result.StopReason)
	}
	if interruptID == "" {
		t.Fatalf("expected an interrupt id to be recorded")
	}

	conv := a.Conversation()
	if len(conv) != 1 {
		t.Fatalf("expected only the user prompt committed before a pause, got %d messages", len(conv))
	}
	if gated.calls != 0 {
		t.Fatalf("expected gated tool not yet run, got %d calls", gated.calls)
	}

	resumed, err := a.Invoke(context.Background(), ResumeInput{{InterruptID: interruptID, Response: json.RawMessage(`{"approved":true}`)}})
	if err != nil {
		t.Fatalf("resume Invoke: %v", err)
	}
	if resumed.StopReason != blocks.StopEndTurn {
		t.Fatalf("expected endTurn after resume, got %v", resumed.StopReason)
	}
	if gated.calls != 1 {
		t.Fatalf("expected gated tool to run once after approval, got %d", gated.calls)
	}
}
