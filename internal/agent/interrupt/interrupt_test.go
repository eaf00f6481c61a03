package interrupt

import (
	"errors"
	"testing"
)

func TestDeriveIDDeterministic(t *testing.T) {
	a := DeriveID("tool:approval", "call-1", 0, []byte(`{"cmd":"rm"}`))
	b := DeriveID("tool:approval", "call-1", 0, []byte(`{"cmd":"rm"}`))
	if a != b {
		t.Fatalf("expected deterministic ID, got %q != %q", a, b)
	}
	if c := DeriveID("tool:approval", "call-1", 1, []byte(`{"cmd":"rm"}`)); c == a {
		t.Fatal("expected a different ordinal to change the ID")
	}
	if d := DeriveID("tool:approval", "call-2", 0, []byte(`{"cmd":"rm"}`)); d == a {
		t.Fatal("expected a different stable key to change the ID")
	}
}

func TestDeriveIDFormat(t *testing.T) {
	id := DeriveID("tool:approval", "call-1", 0, nil)
	if len(id) < len("v1:tool:approval:call-1:")+64 {
		t.Fatalf("unexpected ID shape: %q", id)
	}
	if id[:3] != "v1:" {
		t.Fatalf("expected v1 prefix, got %q", id)
	}
}

func TestRaiseReturnsRaisedErrorOnFirstCall(t *testing.T) {
	s := NewState()
	resp, err := s.Raise("tool:approval", "approval", "needs a human", "call-1", 0, []byte("{}"))
	if resp != nil {
		t.Fatalf("expected nil response on first raise, got %s", resp)
	}
	var raised *RaisedError
	if !errors.As(err, &raised) {
		t.Fatalf("expected *RaisedError, got %v", err)
	}
	if !errors.Is(err, ErrInterruptRaised) {
		t.Fatal("expected errors.Is to match the sentinel")
	}
	if !s.Activated {
		t.Fatal("expected state to be activated after a raise")
	}
}

func TestRaiseReplaysStoredResponse(t *testing.T) {
	s := NewState()
	_, err := s.Raise("tool:approval", "approval", "needs a human", "call-1", 0, []byte("{}"))
	var raised *RaisedError
	if !errors.As(err, &raised) {
		t.Fatalf("expected *RaisedError, got %v", err)
	}

	if err := s.Resume([]ResumeItem{{InterruptID: raised.ID, Response: []byte(`{"approved":true}`)}}, false); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	resp, err := s.Raise("tool:approval", "approval", "needs a human", "call-1", 0, []byte("{}"))
	if err != nil {
		t.Fatalf("expected replay to succeed without raising again, got %v", err)
	}
	if string(resp) != `{"approved":true}` {
		t.Fatalf("expected stored response, got %s", resp)
	}
}

func TestResumeRejectsUnknownID(t *testing.T) {
	s := NewState()
	err := s.Resume([]ResumeItem{{InterruptID: "v1:bogus:x:y", Response: []byte("{}")}}, false)
	if !errors.Is(err, ErrUnknownInterruptID) {
		t.Fatalf("expected ErrUnknownInterruptID, got %v", err)
	}
}

func TestResumeRejectsWhenStructuredOutputConfigured(t *testing.T) {
	s := NewState()
	err := s.Resume(nil, true)
	if !errors.Is(err, ErrResumeWithStructuredOutput) {
		t.Fatalf("expected ErrResumeWithStructuredOutput, got %v", err)
	}
}

func TestClearResetsState(t *testing.T) {
	s := NewState()
	s.Raise("tool:approval", "approval", "r", "call-1", 0, nil)
	s.SaveToolResult("t1", []byte(`{"ok":true}`))

	s.Clear()

	if s.Activated {
		t.Fatal("expected Activated to be false after Clear")
	}
	if len(s.Interrupts) != 0 {
		t.Fatal("expected Interrupts to be empty after Clear")
	}
	if _, ok := s.ToolResult("t1"); ok {
		t.Fatal("expected tool results to be cleared")
	}
}

func TestSnapshotReturnsCopy(t *testing.T) {
	s := NewState()
	s.Raise("tool:approval", "approval", "r", "call-1", 0, nil)

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 interrupt in snapshot, got %d", len(snap))
	}
	snap[0].Reason = "mutated"
	if s.Interrupts[snap[0].ID].Reason == "mutated" {
		t.Fatal("snapshot should not alias internal state")
	}
}
