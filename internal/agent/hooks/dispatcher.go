// Package hooks implements the typed-event-class hook dispatcher: callbacks
// are registered per concrete event type rather than against a stringly-typed
// event-type enum, generalized from the teacher's internal/hooks
// Registry/EventType model (map[string][]*Registration keyed by a string
// event key) to a generic Dispatcher keyed by reflect.Type.
package hooks

import (
	"context"
	"reflect"
	"sync"
)

// ReverseOrdered is implemented by event values that want their handlers run
// in LIFO order relative to registration — the teardown convention used by
// After* events so the last setup hook tears down first.
type ReverseOrdered interface {
	ReverseOrdered() bool
}

type handlerEntry struct {
	fn func(ctx context.Context, ev any) error
}

// Provider aggregates one handler list per event class and dispatches by
// concrete Go type, snapshotting the handler slice under its lock before
// iterating so registration can never mutate a live dispatch.
type Provider struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]handlerEntry
}

// NewProvider constructs an empty hook provider.
func NewProvider() *Provider {
	return &Provider{handlers: make(map[reflect.Type][]handlerEntry)}
}

// On registers fn for every dispatch of event type E, in registration order.
func On[E any](p *Provider, fn func(context.Context, E) error) {
	t := reflect.TypeOf((*E)(nil)).Elem()
	wrapped := handlerEntry{fn: func(ctx context.Context, ev any) error {
		return fn(ctx, ev.(E))
	}}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[t] = append(p.handlers[t], wrapped)
}

// Dispatch runs every handler registered for E's concrete type against ev,
// in registration order (or reverse order if ev implements ReverseOrdered
// and returns true). A handler error aborts dispatch and propagates to the
// caller unwrapped — the dispatcher never swallows errors.
func Dispatch[E any](ctx context.Context, p *Provider, ev E) error {
	t := reflect.TypeOf((*E)(nil)).Elem()

	p.mu.RLock()
	snapshot := append([]handlerEntry(nil), p.handlers[t]...)
	p.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil
	}

	reverse := false
	if ro, ok := any(ev).(ReverseOrdered); ok {
		reverse = ro.ReverseOrdered()
	}

	if reverse {
		for i := len(snapshot) - 1; i >= 0; i-- {
			if err := snapshot[i].fn(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	}
	for _, h := range snapshot {
		if err := h.fn(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// HandlerCount reports how many handlers are registered for E, for tests.
func HandlerCount[E any](p *Provider) int {
	t := reflect.TypeOf((*E)(nil)).Elem()
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handlers[t])
}
