// Command agentrtdemo is a thin CLI driving the agent runtime end to end:
// pick a provider, run one prompt through the turn cycle, and print the
// streamed events plus the final result. It exists to exercise the loop
// the way a real caller would, not to be a product surface of its own —
// mirrors the shape of the teacher's cmd/nexus root command, trimmed to the
// handful of subcommands this module's scope calls for.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentrtdemo",
		Short:        "agentrtdemo drives the agent runtime's turn cycle against a real provider",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd(), buildSwarmCmd(), buildToolsCmd())
	return root
}
