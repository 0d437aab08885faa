package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/sift/internal/config"
	"github.com/efebarandurmaz/sift/internal/llm"
	"github.com/efebarandurmaz/sift/internal/llm/providers"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available LLM providers:")
			fmt.Fprintln(out)
			for _, name := range providers.NewFactory().Names() {
				url, ok := llm.KnownProviders[name]
				if !ok {
					url = "(set llm.base_url to any OpenAI-compatible endpoint)"
				}
				fmt.Fprintf(out, "  %-14s %s\n", name, url)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Configure in sift.yaml or via environment:")
			fmt.Fprintf(out, "  %s_LLM_PROVIDER=groq\n", config.EnvPrefix)
			fmt.Fprintf(out, "  %s_LLM_API_KEY=gsk_...\n", config.EnvPrefix)
			fmt.Fprintf(out, "  %s_LLM_MODEL=llama-3.3-70b-versatile\n", config.EnvPrefix)
			fmt.Fprintf(out, "  %s_LLM_EMBEDDING_PROVIDER=openai   # anthropic has no embeddings API\n", config.EnvPrefix)
		},
	}
}
