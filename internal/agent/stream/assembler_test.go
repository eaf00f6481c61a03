package stream

import (
	"context"
	"testing"

	"github.com/haasonsaas/agentrt/pkg/blocks"
)

func replay(t *testing.T, events []ProviderEvent) (blocks.Message, blocks.StopReason, error) {
	t.Helper()
	src := make(chan ProviderEvent, len(events))
	for _, e := range events {
		src <- e
	}
	close(src)

	a := NewAssembler()
	out, future := a.Run(context.Background(), src)
	for range out {
	}
	return future.Wait()
}

func TestAssemblerTextBlock(t *testing.T) {
	msg, reason, err := replay(t, []ProviderEvent{
		MessageStartEvent{Role: blocks.RoleAssistant},
		ContentBlockStartEvent{Index: 0},
		ContentBlockDeltaEvent{Index: 0, Delta: TextDelta{Text: "Hello, "}},
		ContentBlockDeltaEvent{Index: 0, Delta: TextDelta{Text: "world"}},
		ContentBlockStopEvent{Index: 0},
		MessageStopEvent{StopReason: "end_turn"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != blocks.StopEndTurn {
		t.Fatalf("reason = %v, want endTurn", reason)
	}
	if len(msg.Content) != 1 {
		t.Fatalf("expected 1 block, got %d", len(msg.Content))
	}
	tb, ok := msg.Content[0].(blocks.TextBlock)
	if !ok || tb.Text != "Hello, world" {
		t.Fatalf("got %#v", msg.Content[0])
	}
}

func TestAssemblerToolUseBlock(t *testing.T) {
	msg, reason, err := replay(t, []ProviderEvent{
		MessageStartEvent{Role: blocks.RoleAssistant},
		ContentBlockStartEvent{Index: 0, Start: &ToolUseStart{Name: "calculator", ToolUseID: "t1"}},
		ContentBlockDeltaEvent{Index: 0, Delta: ToolUseInputDelta{Input: `{"expr":`}},
		ContentBlockDeltaEvent{Index: 0, Delta: ToolUseInputDelta{Input: `"1+1"}`}},
		ContentBlockStopEvent{Index: 0},
		MessageStopEvent{StopReason: "tool_use"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != blocks.StopToolUse {
		t.Fatalf("reason = %v, want toolUse", reason)
	}
	tu, ok := msg.Content[0].(blocks.ToolUseBlock)
	if !ok || tu.Name != "calculator" || tu.ToolUseID != "t1" {
		t.Fatalf("got %#v", msg.Content[0])
	}
	if string(tu.Input) != `{"expr":"1+1"}` {
		t.Fatalf("input = %s", tu.Input)
	}
}

func TestAssemblerToolUseEmptyInput(t *testing.T) {
	msg, _, err := replay(t, []ProviderEvent{
		MessageStartEvent{Role: blocks.RoleAssistant},
		ContentBlockStartEvent{Index: 0, Start: &ToolUseStart{Name: "ping", ToolUseID: "t2"}},
		ContentBlockStopEvent{Index: 0},
		MessageStopEvent{StopReason: "tool_use"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tu := msg.Content[0].(blocks.ToolUseBlock)
	if string(tu.Input) != "{}" {
		t.Fatalf("expected empty input to default to {}, got %s", tu.Input)
	}
}

func TestAssemblerReasoningBlock(t *testing.T) {
	msg, _, err := replay(t, []ProviderEvent{
		MessageStartEvent{Role: blocks.RoleAssistant},
		ContentBlockStartEvent{Index: 0},
		ContentBlockDeltaEvent{Index: 0, Delta: ReasoningDelta{Text: "thinking...", Signature: "sig"}},
		ContentBlockStopEvent{Index: 0},
		ContentBlockStartEvent{Index: 1},
		ContentBlockDeltaEvent{Index: 1, Delta: TextDelta{Text: "answer"}},
		ContentBlockStopEvent{Index: 1},
		MessageStopEvent{StopReason: "end_turn"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.Content) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(msg.Content))
	}
	rb, ok := msg.Content[0].(blocks.ReasoningBlock)
	if !ok || rb.Text != "thinking..." || rb.Signature != "sig" {
		t.Fatalf("got %#v", msg.Content[0])
	}
}

func TestAssemblerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := make(chan ProviderEvent)
	a := NewAssembler()
	out, future := a.Run(ctx, src)

	src <- MessageStartEvent{Role: blocks.RoleAssistant}
	<-out
	cancel()

	if _, _, err := future.Wait(); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestNormalizeStopReasonPassthrough(t *testing.T) {
	if got := NormalizeStopReason("some_future_reason"); got != blocks.StopReason("some_future_reason") {
		t.Fatalf("expected passthrough, got %v", got)
	}
}
