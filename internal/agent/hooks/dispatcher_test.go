package hooks

import (
	"context"
	"errors"
	"testing"
)

func TestDispatchRegistrationOrder(t *testing.T) {
	p := NewProvider()
	var order []int
	On(p, func(ctx context.Context, ev BeforeInvocationEvent) error {
		order = append(order, 1)
		return nil
	})
	On(p, func(ctx context.Context, ev BeforeInvocationEvent) error {
		order = append(order, 2)
		return nil
	})

	if err := Dispatch(context.Background(), p, BeforeInvocationEvent{RunID: "r1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected forward order [1 2], got %v", order)
	}
}

func TestDispatchReverseOrderForAfterEvents(t *testing.T) {
	p := NewProvider()
	var order []int
	On(p, func(ctx context.Context, ev AfterInvocationEvent) error {
		order = append(order, 1)
		return nil
	})
	On(p, func(ctx context.Context, ev AfterInvocationEvent) error {
		order = append(order, 2)
		return nil
	})

	if err := Dispatch(context.Background(), p, AfterInvocationEvent{RunID: "r1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected reverse order [2 1], got %v", order)
	}
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	p := NewProvider()
	sentinel := errors.New("hook failed")
	called := false
	On(p, func(ctx context.Context, ev BeforeToolCallEvent) error {
		return sentinel
	})
	On(p, func(ctx context.Context, ev BeforeToolCallEvent) error {
		called = true
		return nil
	})

	err := Dispatch(context.Background(), p, BeforeToolCallEvent{})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if called {
		t.Fatal("dispatch should stop at the first error")
	}
}

func TestDispatchNoHandlersIsNoop(t *testing.T) {
	p := NewProvider()
	if err := Dispatch(context.Background(), p, AfterToolCallEvent{}); err != nil {
		t.Fatalf("unexpected error with no handlers: %v", err)
	}
}

func TestBeforeToolCallEventCancellation(t *testing.T) {
	p := NewProvider()
	On(p, func(ctx context.Context, ev BeforeToolCallEvent) error {
		*ev.Canceled = true
		*ev.CancelReason = "blocked by policy"
		return nil
	})

	canceled := false
	reason := ""
	ev := BeforeToolCallEvent{Canceled: &canceled, CancelReason: &reason}
	if err := Dispatch(context.Background(), p, ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !canceled || reason != "blocked by policy" {
		t.Fatalf("expected cancellation to propagate through pointer fields, got canceled=%v reason=%q", canceled, reason)
	}
}

func TestHandlerCount(t *testing.T) {
	p := NewProvider()
	if HandlerCount[BeforeInvocationEvent](p) != 0 {
		t.Fatal("expected zero handlers initially")
	}
	On(p, func(ctx context.Context, ev BeforeInvocationEvent) error { return nil })
	if HandlerCount[BeforeInvocationEvent](p) != 1 {
		t.Fatal("expected one handler after registration")
	}
}
