package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentrt/internal/agent"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// currentTimeTool is a tiny, dependency-free demo tool so agentrtdemo run
// can show a full tool_use -> tool_result round trip without requiring any
// external service. Grounded on the teacher's simplest built-in tools
// (pkg/pluginsdk example plugins), which take no input and return one
// plain-text result.
type currentTimeTool struct{}

func (currentTimeTool) Name() string        { return "current_time" }
func (currentTimeTool) Description() string { return "Returns the current UTC time in RFC3339 format." }
func (currentTimeTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

func (currentTimeTool) Execute(ctx context.Context, input json.RawMessage) (blocks.ToolResultBlock, error) {
	return blocks.NewSuccessTextResult("", time.Now().UTC().Format(time.RFC3339)), nil
}

// demoRegistry builds the tool registry agentrtdemo wires into every agent
// it constructs.
func demoRegistry() (*agent.ToolRegistry, error) {
	reg := agent.NewToolRegistry()
	if err := reg.Register(currentTimeTool{}); err != nil {
		return nil, fmt.Errorf("register current_time tool: %w", err)
	}
	return reg, nil
}

// buildToolsCmd lists the tools agentrtdemo registers on every agent it
// builds, so a caller can see what the model has available before running.
func buildToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools agentrtdemo registers",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := demoRegistry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, tool := range reg.List() {
				fmt.Fprintf(out, "%s: %s\n", tool.Name(), tool.Description())
			}
			return nil
		},
	}
}
