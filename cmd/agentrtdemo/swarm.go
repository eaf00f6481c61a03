package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentrt/internal/agent"
	"github.com/haasonsaas/agentrt/internal/multiagent/swarm"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// buildSwarmCmd creates the "swarm" command: a two-agent triage/specialist
// swarm sharing one provider, demonstrating handoff_to_agent end to end.
func buildSwarmCmd() *cobra.Command {
	var maxHandoffs int

	cmd := &cobra.Command{
		Use:   "swarm [task]",
		Short: "Run a task through a two-agent triage/specialist swarm",
		Args:  cobra.ExactArgs(1),
	}
	f := registerProviderFlags(cmd)
	cmd.Flags().IntVar(&maxHandoffs, "max-handoffs", 10, "Maximum handoffs before the swarm gives up")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		provider, model, err := buildProvider(*f)
		if err != nil {
			return err
		}

		triageReg, err := demoRegistry()
		if err != nil {
			return err
		}
		specialistReg, err := demoRegistry()
		if err != nil {
			return err
		}

		triage := agent.NewAgent(provider, triageReg, agent.AgentConfig{
			ID:     "triage",
			Model:  model,
			System: "You triage incoming requests. Hand off anything requiring deep research to the specialist.",
		})
		specialist := agent.NewAgent(provider, specialistReg, agent.AgentConfig{
			ID:     "specialist",
			Model:  model,
			System: "You are a specialist who resolves requests handed off by triage.",
		})

		s, err := swarm.New(map[string]*agent.Agent{"triage": triage, "specialist": specialist}, "triage",
			swarm.WithMaxHandoffs(maxHandoffs))
		if err != nil {
			return err
		}

		result, err := s.Run(cmd.Context(), []blocks.ContentBlock{blocks.TextBlock{Text: args[0]}})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "status: %s\n", result.Status)
		if result.FailureReason != "" {
			fmt.Fprintf(w, "failure_reason: %s\n", result.FailureReason)
		}
		for id, node := range result.Results {
			fmt.Fprintf(w, "\n[%s] status=%s\n", id, node.Status)
			if node.Result != nil {
				fmt.Fprintln(w, node.Result.String())
			}
			if node.Err != nil {
				fmt.Fprintf(w, "error: %v\n", node.Err)
			}
		}
		return nil
	}

	return cmd
}
