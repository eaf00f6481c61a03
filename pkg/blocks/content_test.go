package blocks

import (
	"encoding/json"
	"testing"
)

func TestContentBlockRoundTrip(t *testing.T) {
	cases := []ContentBlock{
		TextBlock{Text: "hello"},
		ReasoningBlock{Text: "because", Signature: "sig"},
		ToolUseBlock{Name: "calculator", ToolUseID: "t1", Input: json.RawMessage(`{"a":1}`)},
		NewSuccessTextResult("t1", "8"),
		CachePointBlock{CacheType: "ephemeral"},
		GuardContentBlock{Fields: json.RawMessage(`{"x":1}`)},
	}

	for _, want := range cases {
		raw, err := MarshalContentBlock(want)
		if err != nil {
			t.Fatalf("marshal %T: %v", want, err)
		}
		got, err := UnmarshalContentBlock(raw)
		if err != nil {
			t.Fatalf("unmarshal %T: %v", want, err)
		}
		if got.Kind() != want.Kind() {
			t.Fatalf("kind mismatch: got %v want %v", got.Kind(), want.Kind())
		}
	}
}

func TestImageSourceExclusivity(t *testing.T) {
	valid := NewMediaSourceFromURL("https://example.com/a.png")
	if _, err := NewImageBlock("png", valid); err != nil {
		t.Fatalf("expected valid source to succeed: %v", err)
	}

	var zero MediaSource
	if _, err := NewImageBlock("png", zero); err == nil {
		t.Fatalf("expected zero-value media source to be rejected")
	}
}

func TestMediaSourceJSONRoundTrip(t *testing.T) {
	sources := []MediaSource{
		NewMediaSourceFromBytes([]byte{1, 2, 3}),
		NewMediaSourceFromURL("https://example.com/x"),
		NewMediaSourceFromS3(S3Location{Bucket: "b", Key: "k"}),
		NewMediaSourceFromFileID("file-1"),
	}
	for _, s := range sources {
		raw, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var got MediaSource
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Kind() != s.Kind() {
			t.Fatalf("kind mismatch: got %v want %v", got.Kind(), s.Kind())
		}
	}
}

func TestContentBlockListOrderPreserved(t *testing.T) {
	list := ContentBlockList{
		ToolUseBlock{Name: "a", ToolUseID: "1"},
		ToolUseBlock{Name: "b", ToolUseID: "2"},
	}
	raw, err := json.Marshal(list)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got ContentBlockList
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(got))
	}
	first := got[0].(ToolUseBlock)
	second := got[1].(ToolUseBlock)
	if first.ToolUseID != "1" || second.ToolUseID != "2" {
		t.Fatalf("order not preserved: %+v %+v", first, second)
	}
}

func TestAgentResultString(t *testing.T) {
	r := AgentResult{
		LastMessage: Message{
			Role: RoleAssistant,
			Content: ContentBlockList{
				ReasoningBlock{Text: "thinking"},
				TextBlock{Text: "answer"},
			},
		},
	}
	got := r.String()
	want := reasoningMarker + "thinking" + "answer"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	r2 := AgentResult{StructuredOutput: json.RawMessage(`{"ok":true}`)}
	if r2.String() != `{"ok":true}` {
		t.Fatalf("structured output should take precedence, got %q", r2.String())
	}

	r3 := AgentResult{LastMessage: Message{Role: RoleAssistant, Content: ContentBlockList{ToolUseBlock{Name: "x"}}}}
	if r3.String() != "" {
		t.Fatalf("tool-use-only message should render empty, got %q", r3.String())
	}
}
