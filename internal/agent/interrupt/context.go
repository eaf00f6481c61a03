package interrupt

import (
	"context"
	"encoding/json"
)

// Func is the signature a tool or hook calls to pause the loop, bound by
// the loop to the active State and the origin/ordinal of the current call
// site before the tool ever sees it.
type Func func(name, reason string) (json.RawMessage, error)

// ResultMarkerPrefix tags the text of an error ToolResultBlock produced when
// a tool's own call to interrupt.FromContext(ctx) raised mid-execution, so
// the loop can tell a genuine tool failure apart from a pause request
// without widening the ToolResultBlock shape with a third status.
const ResultMarkerPrefix = "agentrt:interrupt-raised:"

type contextKey struct{}

// WithFunc attaches the active interrupt-raising function to ctx so a
// Tool.Execute implementation can call interrupt.FromContext(ctx) without
// the agent package's Tool interface needing an extra parameter per the
// teacher's existing Execute(ctx, input) shape.
func WithFunc(ctx context.Context, fn Func) context.Context {
	return context.WithValue(ctx, contextKey{}, fn)
}

// FromContext returns the interrupt function attached by the loop, or a
// no-op returning ErrNoInterruptFunc if none was attached (e.g. a tool
// invoked outside the loop, such as in a unit test).
func FromContext(ctx context.Context) Func {
	if fn, ok := ctx.Value(contextKey{}).(Func); ok && fn != nil {
		return fn
	}
	return func(name, reason string) (json.RawMessage, error) {
		return nil, ErrNoInterruptFunc
	}
}
