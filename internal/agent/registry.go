package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// ReservedToolName is the coordination tool name owned by the swarm
// executor. Register rejects it so a member agent's own tool set can never
// shadow swarm handoff routing.
const ReservedToolName = "handoff_to_agent"

// Tool parameter limits, carried from the teacher to bound resource use on
// untrusted tool-call input.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20
)

// Tool is an executable capability the model can request via a ToolUseBlock.
type Tool interface {
	// Name is the LLM-facing function name; must be unique within a registry.
	Name() string

	// Description explains when the model should reach for this tool.
	Description() string

	// InputSchema is the JSON Schema the model's tool_use.Input must satisfy.
	InputSchema() json.RawMessage

	// Execute runs the tool against validated input and returns the content
	// to attach to the resulting ToolResultBlock. The tool_use_id is supplied
	// by the caller, not chosen by the tool.
	Execute(ctx context.Context, input json.RawMessage) (blocks.ToolResultBlock, error)
}

// ToolRegistry is a thread-safe, insertion-order-preserving set of tools.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewToolRegistry creates an empty registry ready for tool registration.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool, failing if the name is already taken or reserved.
func (r *ToolRegistry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("agent: cannot register nil tool")
	}
	name := tool.Name()
	if name == ReservedToolName {
		return ErrReservedToolName
	}
	if len(name) > MaxToolNameLength {
		return fmt.Errorf("agent: tool name %q exceeds maximum length of %d", name, MaxToolNameLength)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// registerReserved installs the swarm handoff tool, bypassing the reserved
// name guard. Only the swarm package may call this.
func (r *ToolRegistry) registerReserved(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, tool.Name())
	}
	r.tools[tool.Name()] = tool
	r.order = append(r.order, tool.Name())
	return nil
}

// RegisterReserved exposes registerReserved to sibling packages (swarm)
// without opening the reserved-name guard to ordinary callers.
func (r *ToolRegistry) RegisterReserved(tool Tool) error {
	return r.registerReserved(tool)
}

// Unregister removes a tool by name, no-op if absent.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns a tool by name and whether it was found.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns a snapshot of registered tools in registration order.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Execute runs a registered tool by name, synthesizing an error
// ToolResultBlock (never an error return) for not-found/oversized input so
// the loop can commit it like any other result.
func (r *ToolRegistry) Execute(ctx context.Context, toolUseID, name string, input json.RawMessage) blocks.ToolResultBlock {
	if len(name) > MaxToolNameLength {
		return blocks.NewErrorToolResult(toolUseID, fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength))
	}
	if len(input) > MaxToolParamsSize {
		return blocks.NewErrorToolResult(toolUseID, fmt.Sprintf("tool input exceeds maximum size of %d bytes", MaxToolParamsSize))
	}

	tool, ok := r.Get(name)
	if !ok {
		return blocks.NewErrorToolResult(toolUseID, "tool not found: "+name)
	}

	result, err := tool.Execute(ctx, input)
	if err != nil {
		return blocks.NewErrorToolResult(toolUseID, err.Error())
	}
	result.ToolUseID = toolUseID
	return result
}
