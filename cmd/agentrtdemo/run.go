package main

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentrt/internal/agent"
	"github.com/haasonsaas/agentrt/internal/agent/stream"
	"github.com/haasonsaas/agentrt/internal/observability"
	"github.com/haasonsaas/agentrt/internal/telemetry/promsink"
)

// buildRunCmd creates the "run" command: a single agent, the demo tool
// registry, one prompt, streamed to completion.
func buildRunCmd() *cobra.Command {
	var (
		system        string
		maxTokens     int
		temperature   float64
		withMetrics   bool
		logLevel      string
		logFormat     string
		traceEndpoint string
	)

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run one prompt through the agent turn cycle and print the result",
		Args:  cobra.ExactArgs(1),
	}
	f := registerProviderFlags(cmd)
	cmd.Flags().StringVar(&system, "system", "You are a concise, helpful assistant.", "System prompt")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 1024, "Max tokens per model call")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature (0 uses the provider default)")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "Print a Prometheus metrics snapshot after the run")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Structured log level (debug, info, warn, error); unset disables logging")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "Structured log format (text or json)")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP gRPC endpoint for tracing; unset disables tracing")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		provider, model, err := buildProvider(*f)
		if err != nil {
			return err
		}
		reg, err := demoRegistry()
		if err != nil {
			return err
		}

		promReg := prometheus.NewRegistry()
		var opts []agent.LoopOption
		if withMetrics {
			opts = append(opts, agent.WithMeter(promsink.New(promReg, "agentrtdemo")))
		}
		if logLevel != "" {
			logger := observability.NewLogger(observability.LogConfig{
				Level:  logLevel,
				Format: logFormat,
				Output: cmd.ErrOrStderr(),
			})
			opts = append(opts, agent.WithLogger(logger))
		}
		if traceEndpoint != "" {
			tracer, shutdown := observability.NewTracer(observability.TraceConfig{
				ServiceName:    "agentrtdemo",
				Endpoint:       traceEndpoint,
				EnableInsecure: true,
			})
			defer func() { _ = shutdown(cmd.Context()) }()
			opts = append(opts, agent.WithTracer(tracer))
		}

		a := agent.NewAgent(provider, reg, agent.AgentConfig{
			ID:          "agentrtdemo",
			Model:       model,
			System:      system,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		}, opts...)

		out, future, err := a.Stream(cmd.Context(), agent.PromptInput(args[0]))
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for ev := range out {
			printStreamEvent(w, ev)
		}

		result, err := future.Wait()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n--- result (stop_reason=%s) ---\n%s\n", result.StopReason, result.String())

		if withMetrics {
			printMetricsSnapshot(w, promReg)
		}
		return nil
	}

	return cmd
}

// printStreamEvent renders the event kinds a terminal demo cares about:
// assistant text deltas as they arrive and a one-line marker for each tool
// call. Reasoning deltas and the before/after-invocation bookkeeping events
// are left silent to keep the transcript readable.
func printStreamEvent(w io.Writer, ev agent.StreamEvent) {
	pev, ok := ev.(agent.ProviderStreamEvent)
	if !ok {
		return
	}
	switch d := pev.Event.(type) {
	case stream.ContentBlockStartEvent:
		if d.Start != nil {
			fmt.Fprintf(w, "\n[tool_use %s %s]\n", d.Start.Name, d.Start.ToolUseID)
		}
	case stream.ContentBlockDeltaEvent:
		if text, ok := d.Delta.(stream.TextDelta); ok {
			fmt.Fprint(w, text.Text)
		}
	}
}

func printMetricsSnapshot(w io.Writer, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		fmt.Fprintf(w, "metrics: gather failed: %v\n", err)
		return
	}
	fmt.Fprintln(w, "\n--- metrics ---")
	for _, mf := range families {
		fmt.Fprintf(w, "%s: %d samples\n", mf.GetName(), len(mf.GetMetric()))
	}
}
