package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentrt/internal/agent"
	"github.com/haasonsaas/agentrt/internal/provider/anthropic"
	"github.com/haasonsaas/agentrt/internal/provider/openai"
)

// registerProviderFlags attaches the --provider/--api-key/--model/--base-url
// flags to cmd and returns the struct they populate.
func registerProviderFlags(cmd *cobra.Command) *providerFlags {
	f := &providerFlags{}
	cmd.Flags().StringVar(&f.name, "provider", "anthropic", "LLM provider (anthropic, openai)")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "Provider API key (falls back to ANTHROPIC_API_KEY/OPENAI_API_KEY)")
	cmd.Flags().StringVar(&f.model, "model", "", "Model identifier (empty uses the provider's default)")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "Override the provider's API base URL")
	return f
}

// providerFlags holds the --provider/--api-key/--model/--base-url flags
// shared by every subcommand that talks to a model.
type providerFlags struct {
	name    string
	apiKey  string
	model   string
	baseURL string
}

// buildProvider resolves flags into a concrete agent.Provider, mirroring the
// teacher's provider-selection switch in gateway/runtime.go (resolveProvider)
// but narrowed to the two adapters this module carries.
func buildProvider(f providerFlags) (agent.Provider, string, error) {
	apiKey := f.apiKey
	switch f.name {
	case "anthropic":
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, "", fmt.Errorf("anthropic api key is required (--api-key or ANTHROPIC_API_KEY)")
		}
		p, err := anthropic.New(anthropic.Config{APIKey: apiKey, DefaultModel: f.model, BaseURL: f.baseURL})
		if err != nil {
			return nil, "", err
		}
		return p, f.model, nil
	case "openai":
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, "", fmt.Errorf("openai api key is required (--api-key or OPENAI_API_KEY)")
		}
		p, err := openai.New(openai.Config{APIKey: apiKey, DefaultModel: f.model, BaseURL: f.baseURL})
		if err != nil {
			return nil, "", err
		}
		return p, f.model, nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q (want anthropic or openai)", f.name)
	}
}
